package domain

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Attribute names shared by business entities.
const (
	AttrTeamsIDs       = "teamsIds"
	AttrAssignedUserID = "assignedUserId"
	AttrAccountID      = "accountId"
	AttrCreatedByID    = "createdById"
	AttrModifiedByID   = "modifiedById"
	AttrName           = "name"
)

// Entity is a business record as seen by the stream engine.
//
// It tracks two attribute sets: the current values and the values fetched
// from the store. The difference drives change detection for audited
// fields, assignment, status and ownership.
type Entity struct {
	Type string
	ID   string

	attrs   map[string]any
	fetched map[string]any
	isNew   bool
}

// NewEntity creates an entity that has not been persisted yet.
func NewEntity(entityType, id string, attrs map[string]any) *Entity {
	e := &Entity{Type: entityType, ID: id, attrs: map[string]any{}, fetched: map[string]any{}, isNew: true}
	maps.Copy(e.attrs, attrs)
	e.attrs["id"] = id
	return e
}

// LoadedEntity creates an entity whose attributes were read from the store.
func LoadedEntity(entityType, id string, attrs map[string]any) *Entity {
	e := NewEntity(entityType, id, attrs)
	e.isNew = false
	maps.Copy(e.fetched, e.attrs)
	return e
}

// IsNew reports whether the entity has not been persisted before.
func (e *Entity) IsNew() bool { return e.isNew }

// Commit marks the current attribute values as fetched and the entity as
// persisted. Call after every mutation hook has run.
func (e *Entity) Commit() {
	e.isNew = false
	e.fetched = maps.Clone(e.attrs)
}

// Get returns the current value of an attribute, or nil.
func (e *Entity) Get(name string) any { return e.attrs[name] }

// Has reports whether the attribute is set, including to nil.
func (e *Entity) Has(name string) bool {
	_, ok := e.attrs[name]
	return ok
}

// Set assigns an attribute.
func (e *Entity) Set(name string, value any) { e.attrs[name] = value }

// SetMany assigns every attribute in values.
func (e *Entity) SetMany(values map[string]any) { maps.Copy(e.attrs, values) }

// GetFetched returns the fetched value of an attribute.
func (e *Entity) GetFetched(name string) any { return e.fetched[name] }

// HasFetched reports whether the attribute was present when fetched.
func (e *Entity) HasFetched(name string) bool {
	_, ok := e.fetched[name]
	return ok
}

// Attributes returns a copy of the current attribute values.
func (e *Entity) Attributes() map[string]any { return maps.Clone(e.attrs) }

// AttributeNames returns the sorted names of all current attributes.
func (e *Entity) AttributeNames() []string {
	names := slices.Collect(maps.Keys(e.attrs))
	sort.Strings(names)
	return names
}

// IsAttributeChanged reports whether the attribute differs from its
// fetched value. New entities report every set attribute as changed.
// ID lists compare as sets.
func (e *Entity) IsAttributeChanged(name string) bool {
	cur, ok := e.attrs[name]
	if !ok {
		return false
	}
	if e.isNew {
		return true
	}
	was, ok := e.fetched[name]
	if !ok {
		return cur != nil
	}
	if a, okA := asStrings(cur); okA {
		if b, okB := asStrings(was); okB {
			return !sameSet(a, b)
		}
	}
	return !Equal(cur, was)
}

// GetString returns the attribute as a string, or "" if unset or not a string.
func (e *Entity) GetString(name string) string {
	return toString(e.attrs[name])
}

// GetFetchedString returns the fetched attribute as a string.
func (e *Entity) GetFetchedString(name string) string {
	return toString(e.fetched[name])
}

// GetStrings returns a string-list attribute such as teamsIds.
func (e *Entity) GetStrings(name string) []string {
	ss, _ := asStrings(e.attrs[name])
	return ss
}

// GetFetchedStrings returns a fetched string-list attribute.
func (e *Entity) GetFetchedStrings(name string) []string {
	ss, _ := asStrings(e.fetched[name])
	return ss
}

// LinkMultipleIDs returns the IDs of a link-multiple field, e.g. teams.
func (e *Entity) LinkMultipleIDs(field string) []string {
	return e.GetStrings(field + "Ids")
}

// String implements fmt.Stringer.
func (e *Entity) String() string {
	return fmt.Sprintf("%s/%s", e.Type, e.ID)
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case String:
		return string(s)
	default:
		return ""
	}
}

func asStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

func sameSet(a, b []string) bool {
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(slices.Compact(as), slices.Compact(bs))
}
