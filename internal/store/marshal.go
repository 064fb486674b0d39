package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/notestream/internal/domain"
)

// marshalIDs converts an ID list to a JSON array TEXT. nil becomes "[]".
func marshalIDs(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	data, err := domain.MarshalCanonical(ids)
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}
	return string(data), nil
}

// unmarshalIDs parses a JSON array TEXT. Returns an empty, non-nil slice
// for "[]".
func unmarshalIDs(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal ids: %w", err)
	}
	return ids, nil
}

// marshalData converts a note payload to canonical JSON TEXT.
func marshalData(data domain.Object) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	out, err := domain.MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(out), nil
}

// unmarshalData parses note payload TEXT. Large integers keep their
// precision through json.Number.
func unmarshalData(data string) (domain.Object, error) {
	if data == "" || data == "{}" {
		return domain.Object{}, nil
	}
	var obj domain.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return obj, nil
}

// marshalAttributes converts entity attributes to canonical JSON TEXT.
func marshalAttributes(attrs map[string]any) (string, error) {
	out, err := domain.MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attributes: %w", err)
	}
	return string(out), nil
}

// unmarshalAttributes parses entity attributes into plain Go values.
// Integral numbers become int64 and others float64.
func unmarshalAttributes(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	for k, v := range raw {
		raw[k] = plainNumbers(v)
	}
	return raw, nil
}

func plainNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i := range val {
			val[i] = plainNumbers(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = plainNumbers(val[k])
		}
		return val
	default:
		return v
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// mapError translates driver errors into domain sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
		}
	}
	return err
}
