// Package composer builds the access-filtered note streams.
//
// Visibility cannot be one WHERE clause: a note visible through a followed
// parent needs a join on subscriptions, one visible through a team needs
// the note-team membership, and so on. The user stream is therefore a
// union of branches, each derived from one immutable base query and each
// covering one visibility rule. The union is ordered by note number and
// paged once.
//
// The composer only produces queryir trees. Compilation and execution
// belong to the store.
package composer

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/notestream/internal/access"
	"github.com/roach88/notestream/internal/acl"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/queryir"
	"github.com/roach88/notestream/internal/reqcache"
)

// Defaults for paging.
const (
	DefaultMaxSize      = 20
	DefaultMaxSizeLimit = 200
)

// Stream filters.
const (
	FilterPosts   = "posts"
	FilterUpdates = "updates"
)

// Search narrows a stream. Every part is intersected into the base query,
// so it applies to all branches alike.
type Search struct {
	// Text matches the post body.
	Text string
	// Where is a structured predicate over note columns (alias n).
	Where queryir.Predicate
	// Named is a named filter, see NamedFilters.
	Named string
}

// Params are the paging and filter options of a stream request.
type Params struct {
	Offset  int
	MaxSize int
	// After keeps notes created strictly after this time.
	After *time.Time
	// Filter is "", FilterPosts or FilterUpdates.
	Filter string
	// SkipOwn drops notes created by the acting user from the followed
	// and addressed branches.
	SkipOwn bool
	Search  *Search
	// Cache holds resolved access rules for the request. Nil means a
	// fresh cache per call.
	Cache *reqcache.Cache
}

// Page is one page of a stream. Total is -1 when no count was computed;
// HasMore then tells whether another page exists.
type Page struct {
	List    []domain.Note `json:"list"`
	Total   int           `json:"total"`
	HasMore bool          `json:"hasMore"`
}

// Store is the persistence the composer needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetByID(ctx context.Context, entityType, id string) (*domain.Entity, error)
	RunQuery(ctx context.Context, q queryir.Query) ([]domain.Note, error)
	Count(ctx context.Context, q queryir.Select) (int, error)
}

// Composer builds and runs stream queries.
type Composer struct {
	store        Store
	meta         metadata.Provider
	authority    acl.Authority
	rules        *access.Resolver
	maxSizeLimit int
}

// Option configures a Composer.
type Option func(*Composer)

// WithMaxSizeLimit caps the page size a caller may request.
func WithMaxSizeLimit(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.maxSizeLimit = n
		}
	}
}

// New creates a composer.
func New(s Store, meta metadata.Provider, authority acl.Authority, opts ...Option) *Composer {
	c := &Composer{
		store:        s,
		meta:         meta,
		authority:    authority,
		rules:        access.NewResolver(meta, authority),
		maxSizeLimit: DefaultMaxSizeLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// normalize applies the paging defaults and bounds.
func (c *Composer) normalize(p Params) (Params, error) {
	switch p.Filter {
	case "", FilterPosts, FilterUpdates:
	default:
		return p, fmt.Errorf("%w: unknown stream filter %q", domain.ErrValidation, p.Filter)
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.MaxSize <= 0 {
		p.MaxSize = DefaultMaxSize
	}
	if p.MaxSize > c.maxSizeLimit {
		p.MaxSize = c.maxSizeLimit
	}
	if p.Cache == nil {
		p.Cache = reqcache.New()
	}
	return p, nil
}
