package queryir

import "slices"

// Query is a node that produces rows.
//
// Query types:
//   - Select: one table access with joins, filter, order and limit
//   - Union: several Selects combined, then ordered and limited globally
type Query interface {
	queryNode()
}

// Predicate is a filter condition.
//
// Predicate types:
//   - Eq, NotEq, Gt, Like: column compared to a literal
//   - In, NotIn: column membership in a literal list
//   - IsNull, NotNull: null checks
//   - ColEq, ColNotEq: column compared to column (join conditions)
//   - And, Or: boolean composition
//   - Exists, NotExists: correlated subquery checks
type Predicate interface {
	predicateNode()
}

// JoinKind selects the join flavor.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

func (k JoinKind) String() string {
	switch k {
	case InnerJoin:
		return "JOIN"
	case LeftJoin:
		return "LEFT JOIN"
	default:
		return "UNKNOWN JOIN"
	}
}

// Join attaches another table to a Select.
type Join struct {
	Kind  JoinKind
	Table string
	Alias string
	On    Predicate
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Select is a single table access.
//
// Semantics:
//
//	SELECT [DISTINCT] <columns> FROM <from> <alias>
//	  <joins> WHERE <where> ORDER BY <order> LIMIT <limit> OFFSET <offset>
//
// Limit 0 means no limit. Columns empty means every column of From.
type Select struct {
	From     string
	Alias    string
	Columns  []string
	Joins    []Join
	Where    Predicate
	Distinct bool
	OrderBy  []Order
	Limit    int
	Offset   int
}

func (Select) queryNode() {}

// Filter adds a predicate, conjoined with any existing filter.
// The receiver is not modified.
func (s Select) Filter(p Predicate) Select {
	out := s.clone()
	out.Where = AndOf(s.Where, p)
	return out
}

// Join returns a copy with an extra join.
func (s Select) Join(j Join) Select {
	out := s.clone()
	out.Joins = append(out.Joins, j)
	return out
}

// WithDistinct returns a copy that selects distinct rows.
func (s Select) WithDistinct() Select {
	out := s.clone()
	out.Distinct = true
	return out
}

// WithColumns returns a copy selecting the given columns.
func (s Select) WithColumns(cols ...string) Select {
	out := s.clone()
	out.Columns = slices.Clone(cols)
	return out
}

// OrderedBy returns a copy with the given ORDER BY terms.
func (s Select) OrderedBy(order ...Order) Select {
	out := s.clone()
	out.OrderBy = slices.Clone(order)
	return out
}

// WithLimit returns a copy with LIMIT/OFFSET set.
func (s Select) WithLimit(limit, offset int) Select {
	out := s.clone()
	out.Limit = limit
	out.Offset = offset
	return out
}

// Unpaged returns a copy without ORDER BY, LIMIT and OFFSET, as used for
// COUNT queries built from the same where-shape.
func (s Select) Unpaged() Select {
	out := s.clone()
	out.OrderBy = nil
	out.Limit = 0
	out.Offset = 0
	return out
}

func (s Select) clone() Select {
	out := s
	out.Columns = slices.Clone(s.Columns)
	out.Joins = slices.Clone(s.Joins)
	out.OrderBy = slices.Clone(s.OrderBy)
	return out
}

// Union combines Selects.
//
// Semantics:
//
//	SELECT [DISTINCT] * FROM (
//	  SELECT * FROM (<q1>) UNION ALL SELECT * FROM (<q2>) ...
//	) ORDER BY <order> LIMIT <limit> OFFSET <offset>
//
// Each member keeps its own ORDER BY and LIMIT. Members must select the
// same columns in the same order.
type Union struct {
	Queries  []Select
	All      bool
	Distinct bool
	OrderBy  []Order
	Limit    int
	Offset   int
}

func (Union) queryNode() {}

// Eq is column = value.
type Eq struct {
	Column string
	Value  any
}

// NotEq is column != value.
type NotEq struct {
	Column string
	Value  any
}

// Gt is column > value.
type Gt struct {
	Column string
	Value  any
}

// Like is column LIKE pattern.
type Like struct {
	Column  string
	Pattern string
}

// In is column IN (values). An empty list matches nothing.
type In struct {
	Column string
	Values []any
}

// NotIn is column NOT IN (values). An empty list matches everything.
type NotIn struct {
	Column string
	Values []any
}

// IsNull is column IS NULL.
type IsNull struct {
	Column string
}

// NotNull is column IS NOT NULL.
type NotNull struct {
	Column string
}

// ColEq is left = right for two columns.
type ColEq struct {
	Left  string
	Right string
}

// ColNotEq is left != right for two columns.
type ColNotEq struct {
	Left  string
	Right string
}

// And is a conjunction. Empty means always true.
type And struct {
	Predicates []Predicate
}

// Or is a disjunction. Empty means always false.
type Or struct {
	Predicates []Predicate
}

// Exists is EXISTS (<query>).
type Exists struct {
	Query Select
}

// NotExists is NOT EXISTS (<query>).
type NotExists struct {
	Query Select
}

func (Eq) predicateNode()        {}
func (NotEq) predicateNode()     {}
func (Gt) predicateNode()        {}
func (Like) predicateNode()      {}
func (In) predicateNode()        {}
func (NotIn) predicateNode()     {}
func (IsNull) predicateNode()    {}
func (NotNull) predicateNode()   {}
func (ColEq) predicateNode()     {}
func (ColNotEq) predicateNode()  {}
func (And) predicateNode()       {}
func (Or) predicateNode()        {}
func (Exists) predicateNode()    {}
func (NotExists) predicateNode() {}

// AndOf conjoins predicates, dropping nils and flattening nested Ands.
// Returns nil when nothing remains and the single predicate when one does.
func AndOf(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case And:
			out = append(out, v.Predicates...)
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}

// OrOf disjoins predicates, dropping nils and flattening nested Ors.
func OrOf(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case Or:
			out = append(out, v.Predicates...)
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return Or{Predicates: out}
	}
}

// Strings converts a string slice to the []any form used by In and NotIn.
func Strings(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
