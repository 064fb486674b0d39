// Package access derives, per user, which entity types are restricted to
// team or own records in the stream, which are hidden from it entirely,
// and (for portal users) which are not fully readable.
package access

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/roach88/notestream/internal/acl"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/reqcache"
)

// Rules is the per-user classification of entity types. Every list is
// sorted. Rules are never cached beyond a single request.
type Rules struct {
	OnlyTeam []string
	OnlyOwn  []string
	Ignored  []string
	NotAll   []string
}

// IsIgnored reports whether notes about entityType are hidden.
func (r Rules) IsIgnored(entityType string) bool {
	return slices.Contains(r.Ignored, entityType)
}

// Restricted returns OnlyTeam and OnlyOwn combined, sorted.
func (r Rules) Restricted() []string {
	out := append(slices.Clone(r.OnlyTeam), r.OnlyOwn...)
	slices.Sort(out)
	return out
}

// Resolver computes Rules from metadata scopes and the ACL authority.
type Resolver struct {
	meta      metadata.Provider
	authority acl.Authority
}

// NewResolver creates a resolver.
func NewResolver(meta metadata.Provider, authority acl.Authority) *Resolver {
	return &Resolver{meta: meta, authority: authority}
}

// ResolveForUser classifies every object scope for user, memoizing the
// result in rc for the rest of the request. rc may be nil.
func (r *Resolver) ResolveForUser(rc *reqcache.Cache, user *domain.User) (Rules, error) {
	return reqcache.Remember(rc, "access.rules:"+user.ID, func() (Rules, error) {
		return r.resolve(user), nil
	})
}

func (r *Resolver) resolve(user *domain.User) Rules {
	var rules Rules

	for _, scope := range r.meta.Scopes() {
		s, _ := r.meta.Scope(scope)
		if !s.Entity || !s.Object {
			continue
		}

		read, readErr := r.authority.Level(user, scope, acl.ActionRead)
		stream, streamErr := r.authority.Level(user, scope, acl.ActionStream)
		if isNotImplemented(readErr) || isNotImplemented(streamErr) {
			rules.Ignored = append(rules.Ignored, scope)
			if user.IsPortal() && scope != domain.ScopeUser {
				rules.NotAll = append(rules.NotAll, scope)
			}
			continue
		}
		if readErr != nil || streamErr != nil {
			slog.Warn("acl level lookup failed", "scope", scope, "user_id", user.ID, "error", errors.Join(readErr, streamErr))
			rules.Ignored = append(rules.Ignored, scope)
			continue
		}

		if read == acl.LevelNo && stream == acl.LevelNo {
			rules.Ignored = append(rules.Ignored, scope)
		}
		// Users are hidden when inaccessible but never restricted by level.
		if scope == domain.ScopeUser {
			continue
		}

		if user.IsPortal() {
			if read != acl.LevelAll {
				rules.NotAll = append(rules.NotAll, scope)
			}
			continue
		}

		switch read {
		case acl.LevelOwn:
			rules.OnlyOwn = append(rules.OnlyOwn, scope)
		case acl.LevelTeam:
			rules.OnlyTeam = append(rules.OnlyTeam, scope)
		}
	}

	slog.Debug("resolved stream access rules",
		"user_id", user.ID,
		"only_team", len(rules.OnlyTeam),
		"only_own", len(rules.OnlyOwn),
		"ignored", len(rules.Ignored),
		"not_all", len(rules.NotAll),
	)
	return rules
}

func isNotImplemented(err error) bool {
	return errors.Is(err, acl.ErrNotImplemented)
}
