// Package domain defines the core types shared by every notestream package.
//
// A Note is one event in an entity's activity timeline. Notes are
// append-only: once projected, only their visibility metadata (UsersIDs,
// TeamsIDs) is ever rewritten. Ordering is by Number, a store-assigned
// logical sequence, never by CreatedAt.
//
// Note payloads are carried as Value trees (Null, String, Int, Bool,
// Array, Object). Floats never appear in a payload; entity attributes that
// hold floats are converted by ValueOf (integral values become Int, all
// others become their shortest decimal String).
//
// Errors are sentinel values (ErrNotFound, ErrForbidden, ErrAlreadyExists,
// ErrValidation) wrapped with fmt.Errorf("...: %w"). A *LogicError marks a
// metadata misconfiguration that must abort the current mutation.
package domain
