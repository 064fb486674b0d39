// Package recalc repairs the denormalized users and teams of recent notes
// when an entity's ownership changes.
//
// Repair is bounded: only the most recent notes referencing the entity are
// considered, and of those only notes younger than the ACL period are
// touched. Older notes keep the visibility they were projected with.
package recalc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/ownership"
	"github.com/roach88/notestream/internal/store"
)

// Defaults for Config.
const (
	DefaultNoteACLLimit           = 50
	DefaultNoteACLPeriod          = 72 * time.Hour
	DefaultNoteNotificationPeriod = time.Hour
)

// skippedTypes never carry note ACL.
var skippedTypes = []string{
	domain.ScopeNote, domain.ScopeUser, domain.ScopeTeam,
	domain.ScopeRole, domain.ScopePortal, domain.ScopePortalRole,
}

// Config bounds the repair window.
type Config struct {
	// NoteACLLimit is the number of most recent notes considered.
	NoteACLLimit int
	// NoteACLPeriod is the age after which a note is no longer repaired.
	NoteACLPeriod time.Duration
	// NoteNotificationPeriod is the age after which a repair no longer
	// forces notification processing.
	NoteNotificationPeriod time.Duration
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		NoteACLLimit:           DefaultNoteACLLimit,
		NoteACLPeriod:          DefaultNoteACLPeriod,
		NoteNotificationPeriod: DefaultNoteNotificationPeriod,
	}
}

// Store is the persistence the recalculator needs.
type Store interface {
	ListNotesForAccess(ctx context.Context, entityType, id string, limit int) ([]domain.Note, error)
	UpdateNoteAccess(ctx context.Context, n *domain.Note, opts store.SaveOptions) (store.SaveResult, error)
}

// Result summarizes one reconciliation.
type Result struct {
	Candidates int
	Updated    int
	Skipped    int
	Notified   int
}

// Recalculator reconciles note access with entity ownership.
type Recalculator struct {
	store  Store
	meta   metadata.Provider
	owners *ownership.Resolver
	clock  domain.Clock
	cfg    Config
}

// Option configures a Recalculator.
type Option func(*Recalculator)

// WithClock sets the clock the note windows are measured against.
func WithClock(c domain.Clock) Option {
	return func(r *Recalculator) { r.clock = c }
}

// WithConfig sets the window bounds. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(r *Recalculator) {
		if cfg.NoteACLLimit > 0 {
			r.cfg.NoteACLLimit = cfg.NoteACLLimit
		}
		if cfg.NoteACLPeriod > 0 {
			r.cfg.NoteACLPeriod = cfg.NoteACLPeriod
		}
		if cfg.NoteNotificationPeriod > 0 {
			r.cfg.NoteNotificationPeriod = cfg.NoteNotificationPeriod
		}
	}
}

// New creates a recalculator.
func New(s Store, meta metadata.Provider, opts ...Option) *Recalculator {
	r := &Recalculator{
		store:  s,
		meta:   meta,
		owners: ownership.New(meta),
		clock:  domain.SystemClock{},
		cfg:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// change is the ownership delta applied to each candidate note.
type change struct {
	usersChanged bool
	teamsChanged bool
	force        bool
	usersIDs     []string
	teamsIDs     []string
}

// Reconcile rewrites the users and teams of recent notes about e after
// its owner or teams changed. With forceNotify both are rewritten and the
// saves request notification processing. It runs to completion before
// returning. A misconfigured owner field is a *domain.LogicError.
func (r *Recalculator) Reconcile(ctx context.Context, e *domain.Entity, forceNotify bool) (Result, error) {
	if !r.applies(e.Type) {
		return Result{}, nil
	}

	ch, err := r.changeOf(e, forceNotify)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile %s: %w", e, err)
	}
	if !ch.usersChanged && !ch.teamsChanged && !ch.force {
		return Result{}, nil
	}

	notes, err := r.store.ListNotesForAccess(ctx, e.Type, e.ID, r.cfg.NoteACLLimit)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile %s: %w", e, err)
	}

	now := r.clock.Now()
	notificationThreshold := now.Add(-r.cfg.NoteNotificationPeriod)
	aclThreshold := now.Add(-r.cfg.NoteACLPeriod)

	res := Result{Candidates: len(notes)}
	for i := range notes {
		n := &notes[i]
		if n.CreatedAt.IsZero() {
			res.Skipped++
			continue
		}

		force := ch.force
		if !e.IsNew() {
			if n.CreatedAt.Before(notificationThreshold) {
				force = false
			}
			if n.CreatedAt.Before(aclThreshold) {
				res.Skipped++
				continue
			}
		}

		if ch.teamsChanged || force {
			n.TeamsIDs = slices.Clone(ch.teamsIDs)
		}
		if ch.usersChanged || force {
			n.UsersIDs = slices.Clone(ch.usersIDs)
		}

		saved, err := r.store.UpdateNoteAccess(ctx, n, store.SaveOptions{ForceProcessNotifications: force})
		if err != nil {
			return res, fmt.Errorf("reconcile %s: note %s: %w", e, n.ID, err)
		}
		res.Updated++
		if saved.ForceProcessNotifications {
			res.Notified++
		}
	}

	slog.Debug("note access reconciled",
		"entity_type", e.Type,
		"entity_id", e.ID,
		"candidates", res.Candidates,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"notified", res.Notified,
	)
	return res, nil
}

func (r *Recalculator) applies(entityType string) bool {
	if slices.Contains(skippedTypes, entityType) {
		return false
	}
	s, ok := r.meta.Scope(entityType)
	return ok && s.ACL && s.Object
}

func (r *Recalculator) changeOf(e *domain.Entity, force bool) (change, error) {
	ch := change{force: force, usersIDs: []string{}, teamsIDs: []string{}}

	attr, err := r.owners.OwnerAttribute(e.Type)
	if err != nil {
		return ch, err
	}
	own, err := r.owners.Resolve(e)
	if err != nil {
		return ch, err
	}

	if attr != "" {
		ch.usersChanged = e.IsAttributeChanged(attr)
		if ch.usersChanged || force {
			ch.usersIDs = own.UsersIDs
		}
	}
	if own.HasTeams {
		ch.teamsChanged = e.IsAttributeChanged(domain.AttrTeamsIDs)
		if ch.teamsChanged || force {
			ch.teamsIDs = own.TeamsIDs
		}
	}
	return ch, nil
}
