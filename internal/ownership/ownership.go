// Package ownership copies an entity's owning users and teams onto notes.
//
// The owner field of a type comes from metadata. A link field contributes
// its single "<field>Id" attribute, a linkMultiple field its "<field>Ids"
// list. Any other field type is a metadata error and is reported as a
// *domain.LogicError.
package ownership

import (
	"fmt"
	"slices"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
)

// TeamsField is the linkMultiple field whose IDs are copied to notes.
const TeamsField = "teams"

// Ownership is the denormalized visibility of one entity.
type Ownership struct {
	UsersIDs []string
	TeamsIDs []string

	// HasTeams is set when the type has a teams link. Notes about types
	// without one keep their teams untouched.
	HasTeams bool
}

// Resolver reads ownership from entities using metadata.
type Resolver struct {
	meta metadata.Provider
}

// New creates a resolver.
func New(meta metadata.Provider) *Resolver {
	return &Resolver{meta: meta}
}

// OwnerAttribute returns the attribute that holds the owner user IDs of a
// type, e.g. "assignedUserId" or "assignedUsersIds". It returns "" when
// the type has no owner field.
func (r *Resolver) OwnerAttribute(entityType string) (string, error) {
	field := r.meta.OwnerUserField(entityType)
	if field == "" {
		return "", nil
	}
	def, ok := r.meta.Field(entityType, field)
	if !ok {
		return "", &domain.LogicError{EntityType: entityType, Field: field, Message: "owner field is not defined"}
	}
	switch def.Type {
	case metadata.FieldLinkMultiple:
		return field + "Ids", nil
	case metadata.FieldLink:
		return field + "Id", nil
	default:
		return "", &domain.LogicError{
			EntityType: entityType,
			Field:      field,
			Message:    fmt.Sprintf("owner field has unsupported type %q", def.Type),
		}
	}
}

// HasTeams reports whether entityType has a teams link.
func (r *Resolver) HasTeams(entityType string) bool {
	def, ok := r.meta.Field(entityType, TeamsField)
	return ok && def.Type == metadata.FieldLinkMultiple
}

// Resolve reads the current ownership of e. A misconfigured owner field
// is a *domain.LogicError; callers abort the write that needed it.
func (r *Resolver) Resolve(e *domain.Entity) (Ownership, error) {
	var own Ownership
	if r.HasTeams(e.Type) {
		own.HasTeams = true
		own.TeamsIDs = normalize(e.GetStrings(domain.AttrTeamsIDs))
	}

	attr, err := r.OwnerAttribute(e.Type)
	if err != nil {
		return own, err
	}
	own.UsersIDs = r.ownerIDs(e, attr)
	return own, nil
}

func (r *Resolver) ownerIDs(e *domain.Entity, attr string) []string {
	switch {
	case attr == "":
		return []string{}
	case e.Has(attr) && e.GetString(attr) != "":
		return []string{e.GetString(attr)}
	default:
		return normalize(e.GetStrings(attr))
	}
}

// Apply copies ownership onto a note. Teams are only replaced when the
// entity type has a teams link.
func Apply(n *domain.Note, own Ownership) {
	n.UsersIDs = slices.Clone(own.UsersIDs)
	if own.HasTeams {
		n.TeamsIDs = slices.Clone(own.TeamsIDs)
	}
}

func normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
