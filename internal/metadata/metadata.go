// Package metadata provides read-only, key-path style lookups over the
// per-entity-type settings that drive the stream: which scopes are stream
// enabled, which field carries status, per-value styles, owner fields and
// the role table.
//
// Metadata is authored in CUE and decoded once at load time. Lookups of
// unknown paths return zero values rather than errors.
package metadata

import (
	"maps"
	"slices"
)

// Field types with special handling in the stream.
const (
	FieldLink          = "link"
	FieldLinkMultiple  = "linkMultiple"
	FieldLinkParent    = "linkParent"
	FieldText          = "text"
	FieldWysiwyg       = "wysiwyg"
	FieldEnum          = "enum"
	FieldVarchar       = "varchar"
	FieldAttachmentMul = "attachmentMultiple"
)

// Scope holds the per-entity-type flags.
type Scope struct {
	Entity         bool   `json:"entity"`
	Object         bool   `json:"object"`
	Stream         bool   `json:"stream"`
	ACL            bool   `json:"acl"`
	StatusField    string `json:"statusField,omitempty"`
	OwnerUserField string `json:"ownerUserField,omitempty"`
}

// Field describes one entity field.
type Field struct {
	Type    string            `json:"type"`
	Audited bool              `json:"audited,omitempty"`
	Entity  string            `json:"entity,omitempty"`
	Style   map[string]string `json:"style,omitempty"`
}

// EntityDefs holds field definitions and, for Note, status styles.
type EntityDefs struct {
	Fields       map[string]Field             `json:"fields,omitempty"`
	StatusStyles map[string]map[string]string `json:"statusStyles,omitempty"`
}

// Permission is the read/stream level pair for one scope.
type Permission struct {
	Read   string `json:"read"`
	Stream string `json:"stream"`
}

// Role grants per-scope permissions.
type Role struct {
	UserPermission string                `json:"userPermission,omitempty"`
	Scopes         map[string]Permission `json:"scopes,omitempty"`
}

// Provider is the read-only view consumed by the stream components.
type Provider interface {
	Scopes() []string
	Scope(entityType string) (Scope, bool)
	StreamEnabled(entityType string) bool
	StatusField(entityType string) string
	Field(entityType, field string) (Field, bool)
	Fields(entityType string) []string
	FieldStyle(entityType, field, value string) string
	StatusStyle(entityType, value string) string
	OwnerUserField(entityType string) string
	Role(id string) (Role, bool)
}

// Metadata is the decoded metadata tree.
type Metadata struct {
	scopes     map[string]Scope
	entityDefs map[string]EntityDefs
	roles      map[string]Role
}

var _ Provider = (*Metadata)(nil)

// New builds metadata from already decoded parts. Nil maps are allowed.
func New(scopes map[string]Scope, entityDefs map[string]EntityDefs, roles map[string]Role) *Metadata {
	m := &Metadata{
		scopes:     maps.Clone(scopes),
		entityDefs: maps.Clone(entityDefs),
		roles:      maps.Clone(roles),
	}
	if m.scopes == nil {
		m.scopes = map[string]Scope{}
	}
	if m.entityDefs == nil {
		m.entityDefs = map[string]EntityDefs{}
	}
	if m.roles == nil {
		m.roles = map[string]Role{}
	}
	return m
}

// Scopes returns every registered scope name in sorted order.
func (m *Metadata) Scopes() []string {
	return slices.Sorted(maps.Keys(m.scopes))
}

// Scope returns the flags for a scope.
func (m *Metadata) Scope(entityType string) (Scope, bool) {
	s, ok := m.scopes[entityType]
	return s, ok
}

// StreamEnabled reports scopes.<type>.stream.
func (m *Metadata) StreamEnabled(entityType string) bool {
	return m.scopes[entityType].Stream
}

// StatusField returns scopes.<type>.statusField.
func (m *Metadata) StatusField(entityType string) string {
	return m.scopes[entityType].StatusField
}

// Field returns entityDefs.<type>.fields.<field>.
func (m *Metadata) Field(entityType, field string) (Field, bool) {
	f, ok := m.entityDefs[entityType].Fields[field]
	return f, ok
}

// Fields returns the field names of a type in sorted order.
func (m *Metadata) Fields(entityType string) []string {
	return slices.Sorted(maps.Keys(m.entityDefs[entityType].Fields))
}

// FieldStyle returns entityDefs.<type>.fields.<field>.style.<value>.
func (m *Metadata) FieldStyle(entityType, field, value string) string {
	return m.entityDefs[entityType].Fields[field].Style[value]
}

// StatusStyle returns entityDefs.Note.statusStyles.<type>.<value>.
func (m *Metadata) StatusStyle(entityType, value string) string {
	return m.entityDefs["Note"].StatusStyles[entityType][value]
}

// OwnerUserField returns the field whose users own records of a type.
// Falls back to assignedUsers, assignedUser, then createdBy.
func (m *Metadata) OwnerUserField(entityType string) string {
	if f := m.scopes[entityType].OwnerUserField; f != "" {
		return f
	}
	for _, candidate := range []string{"assignedUsers", "assignedUser", "createdBy"} {
		if _, ok := m.Field(entityType, candidate); ok {
			return candidate
		}
	}
	return ""
}

// Role returns roles.<id>.
func (m *Metadata) Role(id string) (Role, bool) {
	r, ok := m.roles[id]
	return r, ok
}

// AuditedFields returns the audited field names of a type, sorted.
func AuditedFields(p Provider, entityType string) []string {
	var out []string
	for _, name := range p.Fields(entityType) {
		if f, _ := p.Field(entityType, name); f.Audited {
			out = append(out, name)
		}
	}
	return out
}
