// Package queryir is the abstract query descriptor the stream composer
// produces and the store executes.
//
// The composer never emits SQL text. It builds a tree of Select and Union
// nodes with Predicate filters, and a backend compiler (see querysql) turns
// that tree into dialect-specific, parameterized SQL:
//
//	[composer] → [queryir tree] → [querysql] → SQLite
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed with marker methods so backend compilers
// can switch exhaustively over the node types.
//
// PURE COMPOSITION:
//
// Select is a value type. Every builder method (Filter, Join, WithDistinct,
// WithLimit, OrderedBy, WithColumns) returns a new Select and leaves the
// receiver untouched, so a base query can be shared by many branches:
//
//	base := queryir.Select{From: "notes", Alias: "n"}.Filter(filter)
//	own := base.Filter(queryir.Eq{Column: "n.created_by_id", Value: userID})
//	team := base.Join(teamJoin).Filter(teamPredicate)
//
// Neither own nor team observes the other's additions.
//
// VALUES:
//
// Predicate values are Go scalars: string, bool, int, int64 or time.Time.
// Compilers always pass them as bind parameters, never inline.
package queryir
