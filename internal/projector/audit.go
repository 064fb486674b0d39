package projector

import (
	"context"
	"log/slog"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/reqcache"
)

// AuditedField is an audited field with the attributes that store it.
type AuditedField struct {
	Name string
	Type string
	// Actual attributes hold the value; a change to any of them marks
	// the field as updated.
	Actual []string
	// NotActual attributes are derived, such as link names.
	NotActual []string
}

// AuditCache memoizes audited-field lists per entity type for one
// request.
type AuditCache struct {
	rc *reqcache.Cache
}

// NewAuditCache wraps a request cache. A nil rc disables memoization.
func NewAuditCache(rc *reqcache.Cache) *AuditCache {
	return &AuditCache{rc: rc}
}

// Fields returns the audited fields of entityType, excluding its status
// field, sorted by name.
func (c *AuditCache) Fields(meta metadata.Provider, entityType string) []AuditedField {
	var rc *reqcache.Cache
	if c != nil {
		rc = c.rc
	}
	fields, _ := reqcache.Remember(rc, "audit.fields:"+entityType, func() ([]AuditedField, error) {
		return auditedFields(meta, entityType), nil
	})
	return fields
}

func auditedFields(meta metadata.Provider, entityType string) []AuditedField {
	statusField := meta.StatusField(entityType)
	var out []AuditedField
	for _, name := range metadata.AuditedFields(meta, entityType) {
		if name == statusField {
			continue
		}
		def, _ := meta.Field(entityType, name)
		if def.Type == "" {
			continue
		}
		actual, notActual := attributesOf(name, def.Type)
		out = append(out, AuditedField{Name: name, Type: def.Type, Actual: actual, NotActual: notActual})
	}
	return out
}

func attributesOf(field, fieldType string) (actual, notActual []string) {
	switch fieldType {
	case metadata.FieldLink:
		return []string{field + "Id"}, []string{field + "Name"}
	case metadata.FieldLinkParent:
		return []string{field + "Id", field + "Type"}, []string{field + "Name"}
	case metadata.FieldLinkMultiple:
		return []string{field + "Ids"}, []string{field + "Names"}
	case "currency":
		return []string{field, field + "Currency"}, nil
	default:
		return []string{field}, nil
	}
}

// HandleAudited records changes to audited fields as an Update note.
// Long-text fields are listed without their values. A changed parent
// link records the previous parent's name when it still resolves.
// Returns a nil note when no audited field changed.
func (p *Projector) HandleAudited(ctx context.Context, cache *AuditCache, e *domain.Entity, opts Options) (*domain.Note, error) {
	var (
		updated []string
		was     = domain.Object{}
		became  = domain.Object{}
	)

	for _, f := range cache.Fields(p.meta, e.Type) {
		if !fieldChanged(e, f) {
			continue
		}
		updated = append(updated, f.Name)

		if f.Type == metadata.FieldText || f.Type == metadata.FieldWysiwyg {
			continue
		}
		for _, attrs := range [][]string{f.Actual, f.NotActual} {
			for _, a := range attrs {
				was[a] = valueOf(e.GetFetched(a))
				became[a] = valueOf(e.Get(a))
			}
		}
		if f.Type == metadata.FieldLinkParent {
			p.previousParentName(ctx, e, f.Name, was)
		}
	}

	if len(updated) == 0 {
		return nil, nil
	}

	n := p.newNote(domain.NoteUpdate, e)
	n.Data["fields"] = domain.StringArray(updated)
	n.Data["attributes"] = domain.Object{"was": was, "became": became}
	n.CreatedByID = author(Options{ModifiedByID: opts.ModifiedByID, Actor: opts.Actor}, true)
	return p.save(ctx, n)
}

func fieldChanged(e *domain.Entity, f AuditedField) bool {
	for _, a := range f.Actual {
		if e.HasFetched(a) && e.IsAttributeChanged(a) {
			return true
		}
	}
	return false
}

func (p *Projector) previousParentName(ctx context.Context, e *domain.Entity, field string, was domain.Object) {
	parentType := e.GetFetchedString(field + "Type")
	parentID := e.GetFetchedString(field + "Id")
	if parentType == "" || parentID == "" {
		return
	}
	if _, ok := p.meta.Scope(parentType); !ok {
		return
	}
	name, err := p.store.EntityName(ctx, parentType, parentID)
	if err != nil {
		slog.Debug("previous parent not resolvable", "entity_type", parentType, "entity_id", parentID)
		return
	}
	was[field+"Name"] = domain.String(name)
}
