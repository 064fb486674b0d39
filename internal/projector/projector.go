// Package projector turns business-entity mutations into notes.
//
// Every projection follows the same steps: set the note type and parent,
// set the super parent from the entity's account link, copy ownership
// (owning users and teams) onto the note, build the payload, and persist.
//
// Handlers are registered once, in New, in a typed registry keyed by
// EventKind. Project dispatches through the registry; each kind also has a
// direct method for callers that know what they are projecting.
package projector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/ownership"
	"github.com/roach88/notestream/internal/reqcache"
	"github.com/roach88/notestream/internal/store"
)

// EventKind names a projectable mutation.
type EventKind string

const (
	EventCreate        EventKind = "create"
	EventCreateRelated EventKind = "createRelated"
	EventRelate        EventKind = "relate"
	EventAssign        EventKind = "assign"
	EventStatus        EventKind = "status"
	EventAudited       EventKind = "audited"
	EventEmailReceived EventKind = "emailReceived"
	EventEmailSent     EventKind = "emailSent"
	EventPost          EventKind = "post"
)

// Options carries the acting users of a projection.
type Options struct {
	// CreatedByID overrides the note author.
	CreatedByID string
	// ModifiedByID wins over CreatedByID for assign, status and update
	// notes, which are caused by a modification.
	ModifiedByID string
	// Actor is the user performing the mutation. Used as the author when
	// no override is given and as the person of sent emails.
	Actor *domain.User
}

// Event is one mutation to project.
type Event struct {
	Kind   EventKind
	Entity *domain.Entity

	// ParentType and ParentID name the entity a related entity was
	// created for or linked to (createRelated, relate).
	ParentType string
	ParentID   string

	// Field is the status field for status events.
	Field string

	// Email is the email of emailReceived and emailSent events.
	Email     *domain.Entity
	IsInitial bool

	Post PostInput

	// Cache is the request cache for audited-field lists. May be nil.
	Cache   *reqcache.Cache
	Options Options
}

// PostInput describes a user-authored post.
type PostInput struct {
	Text       string
	UsersIDs   []string
	TeamsIDs   []string
	PortalsIDs []string
	IsGlobal   bool
	IsInternal bool
}

// Store is the persistence the projector needs.
type Store interface {
	InsertNote(ctx context.Context, n *domain.Note) error
	FindNoteID(ctx context.Context, key store.NoteKey) (string, error)
	EntityName(ctx context.Context, entityType, id string) (string, error)
	UserName(ctx context.Context, id string) (string, error)
	EntityByEmailAddress(ctx context.Context, address string) (store.EmailOwner, error)
}

// Handler projects one event kind. A nil note with a nil error means the
// event produced nothing (an idempotent repeat or no audited change).
type Handler func(ctx context.Context, ev Event) (*domain.Note, error)

// Config holds projection settings.
type Config struct {
	// EmailWithContentEntityTypes lists parent types whose email notes
	// carry the email body and attachments.
	EmailWithContentEntityTypes []string
}

// Projector creates notes for entity mutations.
type Projector struct {
	store    Store
	meta     metadata.Provider
	owners   *ownership.Resolver
	clock    domain.Clock
	cfg      Config
	handlers map[EventKind]Handler
}

// Option configures a Projector.
type Option func(*Projector)

// WithClock sets the clock used for note timestamps.
func WithClock(c domain.Clock) Option {
	return func(p *Projector) { p.clock = c }
}

// WithConfig sets projection settings.
func WithConfig(cfg Config) Option {
	return func(p *Projector) { p.cfg = cfg }
}

// New creates a projector and builds its handler registry.
func New(s Store, meta metadata.Provider, opts ...Option) *Projector {
	p := &Projector{
		store:  s,
		meta:   meta,
		owners: ownership.New(meta),
		clock:  domain.SystemClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.handlers = map[EventKind]Handler{
		EventCreate: func(ctx context.Context, ev Event) (*domain.Note, error) {
			return p.NoteCreate(ctx, ev.Entity, ev.Options)
		},
		EventCreateRelated: func(ctx context.Context, ev Event) (*domain.Note, error) {
			return p.NoteCreateRelated(ctx, ev.Entity, ev.ParentType, ev.ParentID, ev.Options)
		},
		EventRelate: func(ctx context.Context, ev Event) (*domain.Note, error) {
			return p.NoteRelate(ctx, ev.Entity, ev.ParentType, ev.ParentID, ev.Options)
		},
		EventAssign: func(ctx context.Context, ev Event) (*domain.Note, error) {
			return p.NoteAssign(ctx, ev.Entity, ev.Options)
		},
		EventStatus: func(ctx context.Context, ev Event) (*domain.Note, error) {
			return p.NoteStatus(ctx, ev.Entity, ev.Field, ev.Options)
		},
		EventAudited: func(ctx context.Context, ev Event) (*domain.Note, error) {
			return p.HandleAudited(ctx, NewAuditCache(ev.Cache), ev.Entity, ev.Options)
		},
		EventEmailReceived: func(ctx context.Context, ev Event) (*domain.Note, error) {
			return p.NoteEmailReceived(ctx, ev.Entity, ev.Email, ev.IsInitial)
		},
		EventEmailSent: func(ctx context.Context, ev Event) (*domain.Note, error) {
			return p.NoteEmailSent(ctx, ev.Entity, ev.Email, ev.Options)
		},
		EventPost: func(ctx context.Context, ev Event) (*domain.Note, error) {
			return p.NotePost(ctx, ev.Entity, ev.Post, ev.Options)
		},
	}
	return p
}

// Kinds returns the registered event kinds, sorted.
func (p *Projector) Kinds() []EventKind {
	kinds := make([]EventKind, 0, len(p.handlers))
	for k := range p.handlers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Project dispatches ev to its handler.
func (p *Projector) Project(ctx context.Context, ev Event) (*domain.Note, error) {
	h, ok := p.handlers[ev.Kind]
	if !ok {
		return nil, fmt.Errorf("project: %w: unknown event kind %q", domain.ErrValidation, ev.Kind)
	}
	if ev.Entity == nil && ev.Kind != EventPost {
		return nil, fmt.Errorf("project %s: %w: missing entity", ev.Kind, domain.ErrValidation)
	}
	return h(ctx, ev)
}

// newNote starts a note about e.
func (p *Projector) newNote(t domain.NoteType, e *domain.Entity) *domain.Note {
	n := &domain.Note{
		Type:      t,
		Data:      domain.Object{},
		UsersIDs:  []string{},
		TeamsIDs:  []string{},
		CreatedAt: p.clock.Now(),
	}
	if e != nil {
		n.ParentType = e.Type
		n.ParentID = e.ID
	}
	return n
}

// setSuperParent rolls the note up to the account of src, if any.
func setSuperParent(n *domain.Note, src *domain.Entity) bool {
	accountID := src.GetString(domain.AttrAccountID)
	if accountID == "" {
		return false
	}
	n.SuperParentType = domain.ScopeAccount
	n.SuperParentID = accountID
	return true
}

// applyOwnership copies the ownership of src onto n. A misconfigured owner
// field is a *domain.LogicError and aborts the projection.
func (p *Projector) applyOwnership(n *domain.Note, src *domain.Entity) error {
	own, err := p.owners.Resolve(src)
	if err != nil {
		return fmt.Errorf("project %s note for %s: %w", n.Type, src, err)
	}
	ownership.Apply(n, own)
	return nil
}

// author picks the note author. modifiedWins is set for notes caused by
// a modification.
func author(opts Options, modifiedWins bool) string {
	if modifiedWins && opts.ModifiedByID != "" {
		return opts.ModifiedByID
	}
	if opts.CreatedByID != "" {
		return opts.CreatedByID
	}
	if opts.Actor != nil {
		return opts.Actor.ID
	}
	return domain.SystemUserID
}

func (p *Projector) save(ctx context.Context, n *domain.Note) (*domain.Note, error) {
	if err := p.store.InsertNote(ctx, n); err != nil {
		return nil, fmt.Errorf("project %s note: %w", n.Type, err)
	}
	slog.Debug("note projected",
		"note_id", n.ID,
		"number", n.Number,
		"type", string(n.Type),
		"parent_type", n.ParentType,
		"parent_id", n.ParentID,
	)
	return n, nil
}
