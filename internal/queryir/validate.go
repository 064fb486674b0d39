package queryir

import (
	"fmt"
	"time"
)

// ValidationResult reports structural problems in a query tree.
type ValidationResult struct {
	// Valid is true when Errors is empty.
	Valid bool

	// Errors lists structural problems that make the query uncompilable.
	Errors []string

	// Warnings lists legal but suspicious constructs, such as an In
	// predicate with an empty list.
	Warnings []string
}

// Validate walks a query tree and reports structural problems.
// It is a pure function.
func Validate(q Query) ValidationResult {
	v := &validator{}
	v.query(q)
	return ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) errorf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) warnf(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) query(q Query) {
	switch query := q.(type) {
	case nil:
		v.errorf("nil query")
	case Select:
		v.selectNode(query)
	case *Select:
		v.selectNode(*query)
	case Union:
		v.union(query)
	case *Union:
		v.union(*query)
	default:
		v.errorf("unknown query type %T", q)
	}
}

func (v *validator) selectNode(s Select) {
	if s.From == "" {
		v.errorf("select: empty from")
	}
	if s.Limit < 0 || s.Offset < 0 {
		v.errorf("select %s: negative limit or offset", s.From)
	}
	for i, j := range s.Joins {
		if j.Table == "" {
			v.errorf("select %s: join[%d] has no table", s.From, i)
		}
		if j.Kind != InnerJoin && j.Kind != LeftJoin {
			v.errorf("select %s: join[%d] has unknown kind %d", s.From, i, j.Kind)
		}
		if j.On == nil {
			v.errorf("select %s: join[%d] %s has no condition", s.From, i, j.Table)
		} else {
			v.predicate(j.On)
		}
	}
	if s.Where != nil {
		v.predicate(s.Where)
	}
	for _, o := range s.OrderBy {
		if o.Column == "" {
			v.errorf("select %s: empty order column", s.From)
		}
	}
}

func (v *validator) union(u Union) {
	if len(u.Queries) == 0 {
		v.errorf("union: no member queries")
		return
	}
	width := len(u.Queries[0].Columns)
	for i, q := range u.Queries {
		if len(q.Columns) != width {
			v.errorf("union: member %d selects %d columns, member 0 selects %d", i, len(q.Columns), width)
		}
		v.selectNode(q)
	}
	if u.Limit < 0 || u.Offset < 0 {
		v.errorf("union: negative limit or offset")
	}
}

func (v *validator) predicate(p Predicate) {
	switch pred := p.(type) {
	case Eq:
		v.column(pred.Column)
		v.value(pred.Column, pred.Value)
	case NotEq:
		v.column(pred.Column)
		v.value(pred.Column, pred.Value)
	case Gt:
		v.column(pred.Column)
		v.value(pred.Column, pred.Value)
	case Like:
		v.column(pred.Column)
	case In:
		v.column(pred.Column)
		if len(pred.Values) == 0 {
			v.warnf("in %s: empty list never matches", pred.Column)
		}
		for _, val := range pred.Values {
			v.value(pred.Column, val)
		}
	case NotIn:
		v.column(pred.Column)
		for _, val := range pred.Values {
			v.value(pred.Column, val)
		}
	case IsNull:
		v.column(pred.Column)
	case NotNull:
		v.column(pred.Column)
	case ColEq:
		v.column(pred.Left)
		v.column(pred.Right)
	case ColNotEq:
		v.column(pred.Left)
		v.column(pred.Right)
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	case Or:
		if len(pred.Predicates) == 0 {
			v.warnf("or: empty disjunction never matches")
		}
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	case Exists:
		v.selectNode(pred.Query)
	case NotExists:
		v.selectNode(pred.Query)
	case nil:
		v.errorf("nil predicate")
	default:
		v.errorf("unknown predicate type %T", p)
	}
}

func (v *validator) column(c string) {
	if c == "" {
		v.errorf("empty column name")
	}
}

func (v *validator) value(col string, val any) {
	switch val.(type) {
	case string, bool, int, int64, time.Time:
	default:
		v.errorf("%s: unsupported value type %T", col, val)
	}
}
