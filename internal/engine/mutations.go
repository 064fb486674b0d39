package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/notestream/internal/acl"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/projector"
	"github.com/roach88/notestream/internal/reqcache"
	"github.com/roach88/notestream/internal/store"
	"github.com/roach88/notestream/internal/subscription"
)

// MutationKind names a mutation.
type MutationKind string

const (
	MutationCreate        MutationKind = "create"
	MutationUpdate        MutationKind = "update"
	MutationDelete        MutationKind = "delete"
	MutationRelate        MutationKind = "relate"
	MutationEmailReceived MutationKind = "email_received"
	MutationEmailSent     MutationKind = "email_sent"
	MutationPost          MutationKind = "post"
	MutationFollow        MutationKind = "follow"
	MutationUnfollow      MutationKind = "unfollow"
)

// Mutation is one change to apply. Which fields are read depends on Kind.
type Mutation struct {
	Kind  MutationKind
	Actor *domain.User

	EntityType string
	ID         string
	Attrs      map[string]any

	// ParentType and ParentID name the parent of relate, email and post
	// mutations.
	ParentType string
	ParentID   string

	EmailID   string
	IsInitial bool

	Post projector.PostInput

	// UserID is the follower of follow and unfollow. Empty means Actor.
	UserID string
}

// Outcome is what a mutation produced.
type Outcome struct {
	Entity   *domain.Entity
	Notes    []*domain.Note
	Followed []string
}

func (o *Outcome) add(n *domain.Note) {
	if n != nil {
		o.Notes = append(o.Notes, n)
	}
}

// Apply runs one mutation synchronously.
func (e *Engine) Apply(ctx context.Context, m Mutation) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	switch m.Kind {
	case MutationCreate:
		out, err = e.CreateEntity(ctx, m.Actor, m.EntityType, m.Attrs)
	case MutationUpdate:
		out, err = e.UpdateEntity(ctx, m.Actor, m.EntityType, m.ID, m.Attrs)
	case MutationDelete:
		err = e.DeleteEntity(ctx, m.Actor, m.EntityType, m.ID)
	case MutationRelate:
		out, err = e.Relate(ctx, m.Actor, m.EntityType, m.ID, m.ParentType, m.ParentID)
	case MutationEmailReceived:
		out, err = e.EmailReceived(ctx, m.ParentType, m.ParentID, m.EmailID, m.IsInitial)
	case MutationEmailSent:
		out, err = e.EmailSent(ctx, m.Actor, m.ParentType, m.ParentID, m.EmailID)
	case MutationPost:
		out, err = e.Post(ctx, m.Actor, m.ParentType, m.ParentID, m.Post)
	case MutationFollow:
		var ok bool
		ok, err = e.Follow(ctx, m.Actor, m.EntityType, m.ID, m.UserID)
		if ok {
			out.Followed = []string{followerID(m.Actor, m.UserID)}
		}
	case MutationUnfollow:
		_, err = e.Unfollow(ctx, m.Actor, m.EntityType, m.ID, m.UserID)
	default:
		err = fmt.Errorf("%w: unknown mutation kind %q", domain.ErrValidation, m.Kind)
	}
	if err != nil {
		return out, &MutationError{Kind: m.Kind, EntityType: m.EntityType, EntityID: m.ID, Err: err}
	}
	return out, nil
}

// CreateEntity persists a new record and runs the creation hooks: a
// Create note, a CreateRelated note on a stream-enabled parent, follows
// for the creator and the assigned users, and a forced access
// recalculation. The record and everything the hooks write are committed
// together; any hook error leaves the store untouched.
func (e *Engine) CreateEntity(ctx context.Context, actor *domain.User, entityType string, attrs map[string]any) (Outcome, error) {
	scope, ok := e.meta.Scope(entityType)
	if !ok || !scope.Entity {
		return Outcome{}, fmt.Errorf("create %s: %w: unknown entity type", entityType, domain.ErrValidation)
	}

	values := maps.Clone(attrs)
	if values == nil {
		values = map[string]any{}
	}
	if _, ok := values[domain.AttrCreatedByID]; !ok {
		values[domain.AttrCreatedByID] = actorID(actor)
	}

	var out Outcome
	err := e.inTx(ctx, func(w *writer) error {
		ent, err := w.store.CreateEntity(ctx, entityType, values)
		if err != nil {
			return fmt.Errorf("create %s: %w", entityType, err)
		}
		out.Entity = ent
		opts := projector.Options{Actor: actor, CreatedByID: ent.GetString(domain.AttrCreatedByID)}

		if scope.Stream {
			n, err := w.projector.NoteCreate(ctx, ent, opts)
			if err != nil {
				return err
			}
			out.add(n)

			candidates := append([]string{ent.GetString(domain.AttrCreatedByID)}, e.assignedUserIDs(ent)...)
			if out.Followed, err = w.subs.FollowMany(ctx, ent, candidates, false); err != nil {
				return err
			}
		}

		if parentType, parentID := ent.GetString("parentType"), ent.GetString("parentId"); parentID != "" && e.meta.StreamEnabled(parentType) {
			n, err := w.projector.NoteCreateRelated(ctx, ent, parentType, parentID, opts)
			if err != nil {
				return err
			}
			out.add(n)
		}

		_, err = w.recalc.Reconcile(ctx, ent, true)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	out.Entity.Commit()

	slog.Debug("entity created", "entity_type", out.Entity.Type, "entity_id", out.Entity.ID, "notes", len(out.Notes))
	return out, nil
}

// UpdateEntity applies attrs to a stored record and runs the update
// hooks: Assign, Status and Update notes for what changed, a follow for a
// new assignee, and an access recalculation when the owner or teams
// changed. Like CreateEntity it commits all or nothing.
func (e *Engine) UpdateEntity(ctx context.Context, actor *domain.User, entityType, id string, attrs map[string]any) (Outcome, error) {
	var out Outcome
	err := e.inTx(ctx, func(w *writer) error {
		ent, err := w.store.GetByID(ctx, entityType, id)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		changes := maps.Clone(attrs)
		delete(changes, "id")
		ent.SetMany(changes)

		modifiedBy := actorID(actor)
		if _, err := w.store.Save(ctx, ent, store.SaveOptions{ModifiedByID: modifiedBy}); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		out.Entity = ent

		if e.meta.StreamEnabled(entityType) {
			opts := projector.Options{Actor: actor, ModifiedByID: modifiedBy}

			if ent.IsAttributeChanged(domain.AttrAssignedUserID) {
				n, err := w.projector.NoteAssign(ctx, ent, opts)
				if err != nil {
					return err
				}
				out.add(n)
			}
			if field := e.meta.StatusField(entityType); field != "" && ent.IsAttributeChanged(field) {
				n, err := w.projector.NoteStatus(ctx, ent, field, opts)
				if err != nil {
					return err
				}
				out.add(n)
			}
			n, err := w.projector.HandleAudited(ctx, projector.NewAuditCache(reqcache.New()), ent, opts)
			if err != nil {
				return err
			}
			out.add(n)

			if added := e.newlyAssigned(ent); len(added) > 0 {
				if out.Followed, err = w.subs.FollowMany(ctx, ent, added, false); err != nil {
					return err
				}
			}
		}

		_, err = w.recalc.Reconcile(ctx, ent, false)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	out.Entity.Commit()
	return out, nil
}

// DeleteEntity removes a record and every follow of it.
func (e *Engine) DeleteEntity(ctx context.Context, actor *domain.User, entityType, id string) error {
	return e.inTx(ctx, func(w *writer) error {
		ent, err := w.store.GetByID(ctx, entityType, id)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if err := w.store.DeleteEntity(ctx, entityType, id); err != nil {
			return err
		}
		removed, err := w.subs.UnfollowAll(ctx, ent)
		if err != nil {
			return err
		}
		slog.Debug("entity deleted", "entity_type", entityType, "entity_id", id, "actor_id", actorID(actor), "unfollowed", removed)
		return nil
	})
}

// Relate records that a stored record was linked to a parent. Parents
// without a stream produce nothing.
func (e *Engine) Relate(ctx context.Context, actor *domain.User, entityType, id, parentType, parentID string) (Outcome, error) {
	var out Outcome
	err := e.inTx(ctx, func(w *writer) error {
		ent, err := w.store.GetByID(ctx, entityType, id)
		if err != nil {
			return fmt.Errorf("relate: %w", err)
		}
		if _, err := w.store.GetByID(ctx, parentType, parentID); err != nil {
			return fmt.Errorf("relate: %w", err)
		}
		out.Entity = ent
		if !e.meta.StreamEnabled(parentType) {
			return nil
		}
		n, err := w.projector.NoteRelate(ctx, ent, parentType, parentID, projector.Options{Actor: actor})
		out.add(n)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// EmailReceived records an email received for a parent record.
func (e *Engine) EmailReceived(ctx context.Context, parentType, parentID, emailID string, isInitial bool) (Outcome, error) {
	var out Outcome
	err := e.inTx(ctx, func(w *writer) error {
		parent, email, err := emailPair(ctx, w.store, parentType, parentID, emailID)
		if err != nil || !e.meta.StreamEnabled(parentType) {
			return err
		}
		out.Entity = parent
		n, err := w.projector.NoteEmailReceived(ctx, parent, email, isInitial)
		out.add(n)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// EmailSent records an email sent from a parent record.
func (e *Engine) EmailSent(ctx context.Context, actor *domain.User, parentType, parentID, emailID string) (Outcome, error) {
	var out Outcome
	err := e.inTx(ctx, func(w *writer) error {
		parent, email, err := emailPair(ctx, w.store, parentType, parentID, emailID)
		if err != nil || !e.meta.StreamEnabled(parentType) {
			return err
		}
		out.Entity = parent
		n, err := w.projector.NoteEmailSent(ctx, parent, email, projector.Options{Actor: actor})
		out.add(n)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func emailPair(ctx context.Context, s *store.Store, parentType, parentID, emailID string) (*domain.Entity, *domain.Entity, error) {
	parent, err := s.GetByID(ctx, parentType, parentID)
	if err != nil {
		return nil, nil, fmt.Errorf("email note: %w", err)
	}
	email, err := s.GetByID(ctx, domain.ScopeEmail, emailID)
	if err != nil {
		return nil, nil, fmt.Errorf("email note: %w", err)
	}
	return parent, email, nil
}

// Post records a post by actor. With a parent the actor needs stream
// access to it; without one the post is top-level.
func (e *Engine) Post(ctx context.Context, actor *domain.User, parentType, parentID string, in projector.PostInput) (Outcome, error) {
	if actor == nil {
		return Outcome{}, fmt.Errorf("post: %w: missing author", domain.ErrValidation)
	}
	if parentID != "" && !e.meta.StreamEnabled(parentType) {
		return Outcome{}, fmt.Errorf("post: %w: %s has no stream", domain.ErrValidation, parentType)
	}

	var out Outcome
	err := e.inTx(ctx, func(w *writer) error {
		var parent *domain.Entity
		if parentID != "" {
			var err error
			if parent, err = w.store.GetByID(ctx, parentType, parentID); err != nil {
				return fmt.Errorf("post: %w", err)
			}
			if err := e.checkStream(actor, parent); err != nil {
				return fmt.Errorf("post: %w", err)
			}
		}
		out.Entity = parent
		n, err := w.projector.NotePost(ctx, parent, in, projector.Options{Actor: actor})
		out.add(n)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// Follow makes userID, or actor when empty, follow a record. Following
// on behalf of someone else needs user permission over them.
func (e *Engine) Follow(ctx context.Context, actor *domain.User, entityType, id, userID string) (bool, error) {
	var followed bool
	err := e.inTx(ctx, func(w *writer) error {
		ent, err := e.followTarget(ctx, w.store, actor, entityType, id, userID)
		if err != nil {
			return err
		}
		followed, err = w.subs.Follow(ctx, ent, followerID(actor, userID), false)
		return err
	})
	return followed, err
}

// Unfollow removes the follow of userID, or actor when empty.
func (e *Engine) Unfollow(ctx context.Context, actor *domain.User, entityType, id, userID string) (bool, error) {
	var removed bool
	err := e.inTx(ctx, func(w *writer) error {
		ent, err := e.followTarget(ctx, w.store, actor, entityType, id, userID)
		if err != nil {
			return err
		}
		removed, err = w.subs.Unfollow(ctx, ent, followerID(actor, userID))
		return err
	})
	return removed, err
}

// Followers lists the followers of a record the actor may stream.
func (e *Engine) Followers(ctx context.Context, actor *domain.User, entityType, id string, offset, limit int) (subscription.FollowerPage, error) {
	ent, err := e.store.GetByID(ctx, entityType, id)
	if err != nil {
		return subscription.FollowerPage{}, fmt.Errorf("followers: %w", err)
	}
	if err := e.checkStream(actor, ent); err != nil {
		return subscription.FollowerPage{}, fmt.Errorf("followers: %w", err)
	}
	return e.subs.Followers(ctx, ent, actorID(actor), offset, limit)
}

func (e *Engine) followTarget(ctx context.Context, s *store.Store, actor *domain.User, entityType, id, userID string) (*domain.Entity, error) {
	ent, err := s.GetByID(ctx, entityType, id)
	if err != nil {
		return nil, fmt.Errorf("follow: %w", err)
	}
	if actor == nil || userID == "" || userID == actor.ID {
		return ent, nil
	}
	target, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("follow: %w", err)
	}
	if !e.authority.CheckUserPermission(actor, target) {
		return nil, fmt.Errorf("follow as %s: %w: no user permission", userID, domain.ErrForbidden)
	}
	return ent, nil
}

func followerID(actor *domain.User, userID string) string {
	if userID != "" {
		return userID
	}
	return actorID(actor)
}

func (e *Engine) checkStream(actor *domain.User, ent *domain.Entity) error {
	if actor == nil {
		return nil
	}
	ok, err := e.authority.CheckEntityStream(actor, ent)
	if err != nil && !errors.Is(err, acl.ErrNotImplemented) {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w: no stream access", ent, domain.ErrForbidden)
	}
	return nil
}

// assignedUserIDs returns the users an entity is assigned to through
// either assignment field.
func (e *Engine) assignedUserIDs(ent *domain.Entity) []string {
	var ids []string
	if id := ent.GetString(domain.AttrAssignedUserID); id != "" {
		ids = append(ids, id)
	}
	if f, ok := e.meta.Field(ent.Type, "assignedUsers"); ok && f.Type == metadata.FieldLinkMultiple {
		ids = append(ids, ent.GetStrings("assignedUsersIds")...)
	}
	return ids
}

// newlyAssigned returns the assigned users not assigned when fetched.
func (e *Engine) newlyAssigned(ent *domain.Entity) []string {
	before := map[string]bool{}
	if id := ent.GetFetchedString(domain.AttrAssignedUserID); id != "" {
		before[id] = true
	}
	for _, id := range ent.GetFetchedStrings("assignedUsersIds") {
		before[id] = true
	}

	var added []string
	for _, id := range e.assignedUserIDs(ent) {
		if !before[id] {
			added = append(added, id)
		}
	}
	return added
}
