// Package querysql compiles queryir trees into parameterized SQLite SQL.
//
// Rendering goes through squirrel builders. Values are always passed as
// bind parameters, never interpolated. Column and table names come from
// the query tree, which is built by trusted code only.
package querysql

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/notestream/internal/queryir"
)

// TimeLayout is the fixed-width UTC layout used for every timestamp column
// so that string comparison orders the same as time comparison.
const TimeLayout = "2006-01-02 15:04:05.000000"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}

// SQLCompiler compiles queryir trees for SQLite.
type SQLCompiler struct{}

// NewSQLCompiler creates a compiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query tree to SQL and bind parameters.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	switch query := q.(type) {
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Union:
		return c.compileUnion(query)
	case *queryir.Union:
		return c.compileUnion(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// CompileCount wraps the unpaged form of q in SELECT COUNT(*).
func (c *SQLCompiler) CompileCount(q queryir.Select) (string, []any, error) {
	inner, err := c.selectBuilder(q.Unpaged())
	if err != nil {
		return "", nil, err
	}
	sql, args, err := sq.Select("COUNT(*)").FromSelect(inner, "counted").ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("compile count: %w", err)
	}
	return sql, args, nil
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	b, err := c.selectBuilder(q)
	if err != nil {
		return "", nil, err
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("compile select %s: %w", q.From, err)
	}
	return sql, args, nil
}

func (c *SQLCompiler) selectBuilder(q queryir.Select) (sq.SelectBuilder, error) {
	if q.From == "" {
		return sq.SelectBuilder{}, fmt.Errorf("select has no from table")
	}

	cols := q.Columns
	if len(cols) == 0 {
		cols = []string{tableRef(q.From, q.Alias, true)}
	}

	b := sq.Select(cols...).From(tableRef(q.From, q.Alias, false))
	if q.Distinct {
		b = b.Distinct()
	}

	for i, j := range q.Joins {
		on, args, err := c.compilePredicate(j.On)
		if err != nil {
			return b, fmt.Errorf("join[%d] %s: %w", i, j.Table, err)
		}
		clause := fmt.Sprintf("%s ON %s", tableRef(j.Table, j.Alias, false), on)
		switch j.Kind {
		case queryir.InnerJoin:
			b = b.Join(clause, args...)
		case queryir.LeftJoin:
			b = b.LeftJoin(clause, args...)
		default:
			return b, fmt.Errorf("join[%d] %s: unsupported kind %d", i, j.Table, j.Kind)
		}
	}

	if q.Where != nil {
		where, args, err := c.compilePredicate(q.Where)
		if err != nil {
			return b, fmt.Errorf("where: %w", err)
		}
		b = b.Where(sq.Expr(where, args...))
	}

	if len(q.OrderBy) > 0 {
		b = b.OrderBy(orderTerms(q.OrderBy)...)
	}
	return applyPaging(b, q.Limit, q.Offset), nil
}

// compileUnion renders each member as its own derived table so it keeps
// its ORDER BY and LIMIT, then orders and pages the combined rows.
func (c *SQLCompiler) compileUnion(u queryir.Union) (string, []any, error) {
	if len(u.Queries) == 0 {
		return "", nil, fmt.Errorf("union has no member queries")
	}

	sep := " UNION "
	if u.All {
		sep = " UNION ALL "
	}

	parts := make([]string, 0, len(u.Queries))
	var args []any
	for i, member := range u.Queries {
		sql, memberArgs, err := c.compileSelect(member)
		if err != nil {
			return "", nil, fmt.Errorf("union member %d: %w", i, err)
		}
		parts = append(parts, "SELECT * FROM ("+sql+")")
		args = append(args, memberArgs...)
	}

	b := sq.Select("*").
		Prefix("WITH stream AS ("+strings.Join(parts, sep)+")", args...).
		From("stream")
	if u.Distinct {
		b = b.Distinct()
	}
	if len(u.OrderBy) > 0 {
		b = b.OrderBy(orderTerms(u.OrderBy)...)
	}
	b = applyPaging(b, u.Limit, u.Offset)

	sql, allArgs, err := b.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("compile union: %w", err)
	}
	return sql, allArgs, nil
}

// compilePredicate renders a predicate to a SQL fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	s, err := c.sqlizer(p)
	if err != nil {
		return "", nil, err
	}
	return s.ToSql()
}

func (c *SQLCompiler) sqlizer(p queryir.Predicate) (sq.Sqlizer, error) {
	switch pred := p.(type) {
	case nil:
		return sq.Expr("1 = 1"), nil
	case queryir.Eq:
		return sq.Eq{pred.Column: param(pred.Value)}, nil
	case queryir.NotEq:
		return sq.NotEq{pred.Column: param(pred.Value)}, nil
	case queryir.Gt:
		return sq.Gt{pred.Column: param(pred.Value)}, nil
	case queryir.Like:
		return sq.Like{pred.Column: pred.Pattern}, nil
	case queryir.In:
		if len(pred.Values) == 0 {
			return sq.Expr("1 = 0"), nil
		}
		return sq.Eq{pred.Column: params(pred.Values)}, nil
	case queryir.NotIn:
		if len(pred.Values) == 0 {
			return sq.Expr("1 = 1"), nil
		}
		return sq.NotEq{pred.Column: params(pred.Values)}, nil
	case queryir.IsNull:
		return sq.Eq{pred.Column: nil}, nil
	case queryir.NotNull:
		return sq.NotEq{pred.Column: nil}, nil
	case queryir.ColEq:
		return sq.Expr(pred.Left + " = " + pred.Right), nil
	case queryir.ColNotEq:
		return sq.Expr(pred.Left + " != " + pred.Right), nil
	case queryir.And:
		if len(pred.Predicates) == 0 {
			return sq.Expr("1 = 1"), nil
		}
		conj := make(sq.And, 0, len(pred.Predicates))
		for _, sub := range pred.Predicates {
			s, err := c.sqlizer(sub)
			if err != nil {
				return nil, err
			}
			conj = append(conj, s)
		}
		return conj, nil
	case queryir.Or:
		if len(pred.Predicates) == 0 {
			return sq.Expr("1 = 0"), nil
		}
		disj := make(sq.Or, 0, len(pred.Predicates))
		for _, sub := range pred.Predicates {
			s, err := c.sqlizer(sub)
			if err != nil {
				return nil, err
			}
			disj = append(disj, s)
		}
		return disj, nil
	case queryir.Exists:
		return c.existsExpr("EXISTS", pred.Query)
	case queryir.NotExists:
		return c.existsExpr("NOT EXISTS", pred.Query)
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) existsExpr(keyword string, q queryir.Select) (sq.Sqlizer, error) {
	if len(q.Columns) == 0 {
		q = q.WithColumns("1")
	}
	sql, args, err := c.compileSelect(q)
	if err != nil {
		return nil, fmt.Errorf("%s subquery: %w", strings.ToLower(keyword), err)
	}
	return sq.Expr(keyword+" ("+sql+")", args...), nil
}

func tableRef(table, alias string, star bool) string {
	if star {
		if alias != "" {
			return alias + ".*"
		}
		return table + ".*"
	}
	if alias != "" {
		return table + " " + alias
	}
	return table
}

func orderTerms(order []queryir.Order) []string {
	terms := make([]string, len(order))
	for i, o := range order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		terms[i] = o.Column + " " + dir
	}
	return terms
}

func applyPaging(b sq.SelectBuilder, limit, offset int) sq.SelectBuilder {
	switch {
	case limit > 0:
		b = b.Limit(uint64(limit))
		if offset > 0 {
			b = b.Offset(uint64(offset))
		}
	case offset > 0:
		// SQLite requires LIMIT before OFFSET; -1 means unbounded.
		b = b.Suffix(fmt.Sprintf("LIMIT -1 OFFSET %d", offset))
	}
	return b
}

func param(v any) any {
	if t, ok := v.(time.Time); ok {
		return FormatTime(t)
	}
	return v
}

func params(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = param(v)
	}
	return out
}
