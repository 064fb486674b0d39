package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/querysql"
)

// SaveOptions is threaded through a save to the notification subsystem.
type SaveOptions struct {
	// ForceProcessNotifications asks notification processing to run for
	// the saved record even when nothing it watches changed.
	ForceProcessNotifications bool
	ModifiedByID              string
}

// SaveResult reports what a save did.
type SaveResult struct {
	Created                   bool
	ForceProcessNotifications bool
}

// runner is satisfied by *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exec(ctx context.Context, r runner, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return r.ExecContext(ctx, query, args...)
}

// GetByID loads a business record. The returned entity has its fetched
// state set, so change detection works against the stored values.
func (s *Store) GetByID(ctx context.Context, entityType, id string) (*domain.Entity, error) {
	query, args, err := builder.Select("attributes").
		From("records").
		Where(sq.Eq{"entity_type": entityType, "id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", entityType, id, err)
	}

	var attrsJSON string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&attrsJSON); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", entityType, id, mapError(err))
	}
	attrs, err := unmarshalAttributes(attrsJSON)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", entityType, id, err)
	}
	return domain.LoadedEntity(entityType, id, attrs), nil
}

// CreateEntity persists a new record. attrs["id"] is used when set,
// otherwise an ID is generated. The returned entity is still new so that
// creation hooks see every attribute as changed; callers Commit it once
// the hooks have run.
func (s *Store) CreateEntity(ctx context.Context, entityType string, attrs map[string]any) (*domain.Entity, error) {
	id, _ := attrs["id"].(string)
	if id == "" {
		id = s.NewID()
	}
	e := domain.NewEntity(entityType, id, attrs)
	if _, err := s.Save(ctx, e, SaveOptions{}); err != nil {
		return nil, err
	}
	return e, nil
}

// Save inserts or updates a record with its current attributes.
func (s *Store) Save(ctx context.Context, e *domain.Entity, opts SaveOptions) (SaveResult, error) {
	if e.ID == "" {
		return SaveResult{}, fmt.Errorf("save %s: %w: missing id", e.Type, domain.ErrValidation)
	}
	if opts.ModifiedByID != "" {
		e.Set(domain.AttrModifiedByID, opts.ModifiedByID)
	}
	attrsJSON, err := marshalAttributes(e.Attributes())
	if err != nil {
		return SaveResult{}, fmt.Errorf("save %s: %w", e, err)
	}

	now := querysql.FormatTime(s.clock.Now())
	_, err = exec(ctx, s.db, builder.Insert("records").
		Columns("entity_type", "id", "name", "attributes", "created_at", "modified_at").
		Values(e.Type, e.ID, e.GetString(domain.AttrName), attrsJSON, now, now).
		Suffix("ON CONFLICT(entity_type, id) DO UPDATE SET name = excluded.name, attributes = excluded.attributes, modified_at = excluded.modified_at"))
	if err != nil {
		return SaveResult{}, fmt.Errorf("save %s: %w", e, mapError(err))
	}

	if opts.ForceProcessNotifications {
		slog.Debug("save requests notification processing", "entity_type", e.Type, "entity_id", e.ID)
	}
	return SaveResult{Created: e.IsNew(), ForceProcessNotifications: opts.ForceProcessNotifications}, nil
}

// DeleteEntity removes a record.
func (s *Store) DeleteEntity(ctx context.Context, entityType, id string) error {
	res, err := exec(ctx, s.db, builder.Delete("records").Where(sq.Eq{"entity_type": entityType, "id": id}))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", entityType, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s/%s: %w", entityType, id, domain.ErrNotFound)
	}
	return nil
}

// EntityName returns the display name of a record or user.
func (s *Store) EntityName(ctx context.Context, entityType, id string) (string, error) {
	if entityType == domain.ScopeUser {
		return s.UserName(ctx, id)
	}
	query, args, err := builder.Select("name").
		From("records").
		Where(sq.Eq{"entity_type": entityType, "id": id}).
		ToSql()
	if err != nil {
		return "", err
	}
	var name string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&name); err != nil {
		return "", fmt.Errorf("name of %s/%s: %w", entityType, id, mapError(err))
	}
	return name, nil
}
