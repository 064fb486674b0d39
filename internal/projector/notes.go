package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/store"
)

// NoteCreate records the creation of e. Ownership is only copied when the
// note rolls up to an account, since a parent-only note is visible through
// the parent's own access rules.
func (p *Projector) NoteCreate(ctx context.Context, e *domain.Entity, opts Options) (*domain.Note, error) {
	n := p.newNote(domain.NoteCreate, e)
	if setSuperParent(n, e) {
		if err := p.applyOwnership(n, e); err != nil {
			return nil, err
		}
	}

	if assignedID := e.GetString(domain.AttrAssignedUserID); assignedID != "" {
		n.Data["assignedUserId"] = domain.String(assignedID)
		n.Data["assignedUserName"] = domain.String(p.assignedUserName(ctx, e))
	}

	if field := p.meta.StatusField(e.Type); field != "" {
		if value := e.GetString(field); value != "" {
			n.Data["statusField"] = domain.String(field)
			n.Data["statusValue"] = domain.String(value)
			n.Data["statusStyle"] = domain.String(p.StatusStyle(e.Type, field, value))
		}
	}

	n.CreatedByID = author(opts, false)
	return p.save(ctx, n)
}

// NoteCreateRelated records that e was created for the parent entity.
func (p *Projector) NoteCreateRelated(ctx context.Context, e *domain.Entity, parentType, parentID string, opts Options) (*domain.Note, error) {
	if parentType == "" || parentID == "" {
		return nil, fmt.Errorf("create related note: %w: missing parent", domain.ErrValidation)
	}
	n := p.newNote(domain.NoteCreateRelated, nil)
	n.ParentType, n.ParentID = parentType, parentID
	n.RelatedType, n.RelatedID = e.Type, e.ID
	if err := p.applyOwnership(n, e); err != nil {
		return nil, err
	}
	setSuperParent(n, e)

	n.CreatedByID = author(opts, false)
	return p.save(ctx, n)
}

// NoteRelate records that e was linked to the parent entity. A second
// call for the same pair is a no-op.
func (p *Projector) NoteRelate(ctx context.Context, e *domain.Entity, parentType, parentID string, opts Options) (*domain.Note, error) {
	if parentType == "" || parentID == "" {
		return nil, fmt.Errorf("relate note: %w: missing parent", domain.ErrValidation)
	}
	exists, err := p.exists(ctx, store.NoteKey{
		Type:        domain.NoteRelate,
		ParentType:  parentType,
		ParentID:    parentID,
		RelatedType: e.Type,
		RelatedID:   e.ID,
	})
	if err != nil || exists {
		return nil, err
	}

	n := p.newNote(domain.NoteRelate, nil)
	n.ParentType, n.ParentID = parentType, parentID
	n.RelatedType, n.RelatedID = e.Type, e.ID
	if err := p.applyOwnership(n, e); err != nil {
		return nil, err
	}

	n.CreatedByID = author(opts, false)
	return p.save(ctx, n)
}

// NoteAssign records a change of e's assigned user.
func (p *Projector) NoteAssign(ctx context.Context, e *domain.Entity, opts Options) (*domain.Note, error) {
	n := p.newNote(domain.NoteAssign, e)
	if setSuperParent(n, e) {
		if err := p.applyOwnership(n, e); err != nil {
			return nil, err
		}
	}

	if assignedID := e.GetString(domain.AttrAssignedUserID); assignedID != "" {
		n.Data["assignedUserId"] = domain.String(assignedID)
		n.Data["assignedUserName"] = domain.String(p.assignedUserName(ctx, e))
	} else {
		n.Data["assignedUserId"] = domain.Null{}
	}

	n.CreatedByID = author(opts, true)
	return p.save(ctx, n)
}

// NoteStatus records the current value of a status field. An empty field
// means the type's configured status field.
func (p *Projector) NoteStatus(ctx context.Context, e *domain.Entity, field string, opts Options) (*domain.Note, error) {
	if field == "" {
		field = p.meta.StatusField(e.Type)
	}
	if field == "" {
		return nil, fmt.Errorf("status note for %s: %w: type has no status field", e.Type, domain.ErrValidation)
	}

	n := p.newNote(domain.NoteStatus, e)
	if setSuperParent(n, e) {
		if err := p.applyOwnership(n, e); err != nil {
			return nil, err
		}
	}

	value := e.GetString(field)
	n.Data["field"] = domain.String(field)
	n.Data["value"] = valueOf(e.Get(field))
	n.Data["style"] = domain.String(p.StatusStyle(e.Type, field, value))

	n.CreatedByID = author(opts, true)
	return p.save(ctx, n)
}

// NoteEmailReceived records an email received for the parent entity.
// A repeat for the same parent and email is a no-op.
func (p *Projector) NoteEmailReceived(ctx context.Context, parent, email *domain.Entity, isInitial bool) (*domain.Note, error) {
	if email == nil {
		return nil, fmt.Errorf("email received note: %w: missing email", domain.ErrValidation)
	}
	exists, err := p.exists(ctx, store.NoteKey{
		Type:        domain.NoteEmailReceived,
		ParentType:  parent.Type,
		ParentID:    parent.ID,
		RelatedType: domain.ScopeEmail,
		RelatedID:   email.ID,
	})
	if err != nil || exists {
		return nil, err
	}

	n, err := p.emailNote(domain.NoteEmailReceived, parent, email)
	if err != nil {
		return nil, err
	}
	n.Data["isInitial"] = domain.Bool(isInitial)
	if owner, ok := p.senderOf(ctx, email); ok {
		setPerson(n, owner.EntityType, owner.EntityID, owner.Name)
	}

	n.CreatedByID = domain.SystemUserID
	return p.save(ctx, n)
}

// NoteEmailSent records an email sent from the parent entity. The person
// is the acting user, or the sender address owner when the system sent it.
func (p *Projector) NoteEmailSent(ctx context.Context, parent, email *domain.Entity, opts Options) (*domain.Note, error) {
	if email == nil {
		return nil, fmt.Errorf("email sent note: %w: missing email", domain.ErrValidation)
	}
	n, err := p.emailNote(domain.NoteEmailSent, parent, email)
	if err != nil {
		return nil, err
	}

	switch actor := opts.Actor; {
	case actor != nil && !actor.IsSystem():
		setPerson(n, domain.ScopeUser, actor.ID, actor.Name)
	default:
		if owner, ok := p.senderOf(ctx, email); ok {
			setPerson(n, owner.EntityType, owner.EntityID, owner.Name)
		}
	}

	n.CreatedByID = author(opts, false)
	return p.save(ctx, n)
}

// NotePost records a user-authored post. With a parent the post is about
// that entity; without one it is a top-level post addressed to users,
// teams, portals or everyone.
func (p *Projector) NotePost(ctx context.Context, parent *domain.Entity, in PostInput, opts Options) (*domain.Note, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("post note: %w: empty post", domain.ErrValidation)
	}

	n := p.newNote(domain.NotePost, parent)
	n.Post = in.Text
	n.IsInternal = in.IsInternal
	if parent != nil {
		if setSuperParent(n, parent) {
			if err := p.applyOwnership(n, parent); err != nil {
				return nil, err
			}
		}
	} else {
		n.UsersIDs = sortedIDs(in.UsersIDs)
		n.TeamsIDs = sortedIDs(in.TeamsIDs)
		n.PortalsIDs = sortedIDs(in.PortalsIDs)
		n.IsGlobal = in.IsGlobal
	}

	n.CreatedByID = author(opts, false)
	return p.save(ctx, n)
}

func (p *Projector) emailNote(t domain.NoteType, parent, email *domain.Entity) (*domain.Note, error) {
	n := p.newNote(t, parent)
	n.RelatedType, n.RelatedID = domain.ScopeEmail, email.ID
	if err := p.applyOwnership(n, email); err != nil {
		return nil, err
	}
	setSuperParent(n, email)

	withContent := slices.Contains(p.cfg.EmailWithContentEntityTypes, parent.Type)
	if withContent {
		n.Post = emailBody(email)
	}

	n.Data["emailId"] = domain.String(email.ID)
	n.Data["emailName"] = domain.String(email.GetString(domain.AttrName))
	if withContent {
		n.Data["attachmentsIds"] = domain.StringArray(sortedIDs(email.GetStrings("attachmentsIds")))
	}
	return n, nil
}

func emailBody(email *domain.Entity) string {
	if plain := email.GetString("bodyPlain"); plain != "" {
		return plain
	}
	return email.GetString("body")
}

// senderOf resolves the person behind the email's from address. Absence
// is not an error.
func (p *Projector) senderOf(ctx context.Context, email *domain.Entity) (store.EmailOwner, bool) {
	from := email.GetString("from")
	if from == "" {
		return store.EmailOwner{}, false
	}
	owner, err := p.store.EntityByEmailAddress(ctx, from)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("email sender lookup failed", "email_id", email.ID, "error", err)
		}
		return store.EmailOwner{}, false
	}
	return owner, true
}

func setPerson(n *domain.Note, entityType, id, name string) {
	n.Data["personEntityType"] = domain.String(entityType)
	n.Data["personEntityId"] = domain.String(id)
	n.Data["personEntityName"] = domain.String(name)
}

// assignedUserName prefers the name carried on the entity and loads it
// otherwise. A missing user yields "".
func (p *Projector) assignedUserName(ctx context.Context, e *domain.Entity) string {
	if e.Has("assignedUserName") {
		return e.GetString("assignedUserName")
	}
	name, err := p.store.UserName(ctx, e.GetString(domain.AttrAssignedUserID))
	if err != nil {
		return ""
	}
	e.Set("assignedUserName", name)
	return name
}

func (p *Projector) exists(ctx context.Context, key store.NoteKey) (bool, error) {
	_, err := p.store.FindNoteID(ctx, key)
	switch {
	case err == nil:
		slog.Debug("note already projected", "type", string(key.Type), "parent_id", key.ParentID, "related_id", key.RelatedID)
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("find %s note: %w", key.Type, err)
	}
}

func valueOf(v any) domain.Value {
	val, err := domain.ValueOf(v)
	if err != nil {
		return domain.String(fmt.Sprint(v))
	}
	return val
}

func sortedIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
