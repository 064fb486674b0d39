// Package subscription manages users following entities.
//
// A follow fails closed: it returns false and writes nothing when the
// entity type has no stream, the user is the system user, the user is
// missing or inactive, or the user may not read the entity's stream.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/notestream/internal/acl"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/store"
)

// DefaultFollowersLimit is the page size of Followers when none is given.
const DefaultFollowersLimit = 200

// Store is the persistence the service needs.
type Store interface {
	ActiveUser(ctx context.Context, id string) (*domain.User, error)
	SubscriptionExists(ctx context.Context, sub domain.Subscription) (bool, error)
	InsertSubscription(ctx context.Context, sub domain.Subscription) error
	InsertSubscriptions(ctx context.Context, entityType, entityID string, userIDs []string) error
	DeleteSubscription(ctx context.Context, sub domain.Subscription) (bool, error)
	DeleteSubscriptionsForEntity(ctx context.Context, entityType, entityID string) (int64, error)
	FollowerIDs(ctx context.Context, entityType, entityID string) ([]string, error)
	Followers(ctx context.Context, entityType, entityID, currentUserID string, offset, limit int) ([]store.Follower, int, error)
	SubscriberIDs(ctx context.Context, entityType, entityID string, excludePortal bool) ([]string, error)
}

// FollowerPage is one page of followers.
type FollowerPage struct {
	List  []store.Follower `json:"list"`
	Total int              `json:"total"`
}

// Service follows and unfollows entities.
type Service struct {
	store          Store
	meta           metadata.Provider
	authority      acl.Authority
	followersLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithFollowersLimit sets the default page size of Followers.
func WithFollowersLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.followersLimit = n
		}
	}
}

// New creates a subscription service.
func New(s Store, meta metadata.Provider, authority acl.Authority, opts ...Option) *Service {
	svc := &Service{
		store:          s,
		meta:           meta,
		authority:      authority,
		followersLimit: DefaultFollowersLimit,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func subscriptionOf(e *domain.Entity, userID string) domain.Subscription {
	return domain.Subscription{UserID: userID, EntityID: e.ID, EntityType: e.Type}
}

// Follow makes userID follow e. It reports whether the user follows e
// afterwards. With skipACL the stream permission check is bypassed; the
// other checks still apply.
func (s *Service) Follow(ctx context.Context, e *domain.Entity, userID string, skipACL bool) (bool, error) {
	ok, err := s.canFollow(ctx, e, userID, skipACL)
	if err != nil || !ok {
		return false, err
	}

	sub := subscriptionOf(e, userID)
	exists, err := s.store.SubscriptionExists(ctx, sub)
	if err != nil {
		return false, fmt.Errorf("follow %s: %w", e, err)
	}
	if exists {
		return true, nil
	}
	if err := s.store.InsertSubscription(ctx, sub); err != nil {
		return false, fmt.Errorf("follow %s: %w", e, err)
	}
	slog.Debug("entity followed", "entity_type", e.Type, "entity_id", e.ID, "user_id", userID)
	return true, nil
}

// Unfollow removes the follow of userID on e. It returns false only when
// the entity type has no stream.
func (s *Service) Unfollow(ctx context.Context, e *domain.Entity, userID string) (bool, error) {
	if !s.meta.StreamEnabled(e.Type) {
		return false, nil
	}
	if _, err := s.store.DeleteSubscription(ctx, subscriptionOf(e, userID)); err != nil {
		return false, fmt.Errorf("unfollow %s: %w", e, err)
	}
	return true, nil
}

// IsFollowed reports whether userID follows e.
func (s *Service) IsFollowed(ctx context.Context, e *domain.Entity, userID string) (bool, error) {
	ok, err := s.store.SubscriptionExists(ctx, subscriptionOf(e, userID))
	if err != nil {
		return false, fmt.Errorf("is followed %s: %w", e, err)
	}
	return ok, nil
}

// FollowMany makes every eligible user follow e with one batched insert
// and returns the IDs that now follow it. Duplicates and the system user
// are dropped; the rest pass the same checks as Follow.
func (s *Service) FollowMany(ctx context.Context, e *domain.Entity, userIDs []string, skipACL bool) ([]string, error) {
	if !s.meta.StreamEnabled(e.Type) {
		return []string{}, nil
	}

	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" || id == domain.SystemUserID || slices.Contains(ids, id) {
			continue
		}
		ok, err := s.canFollow(ctx, e, id, skipACL)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ids, nil
	}

	if err := s.store.InsertSubscriptions(ctx, e.Type, e.ID, ids); err != nil {
		return nil, fmt.Errorf("follow many %s: %w", e, err)
	}
	slices.Sort(ids)
	slog.Debug("entity followed by users", "entity_type", e.Type, "entity_id", e.ID, "count", len(ids))
	return ids, nil
}

// UnfollowAll removes every follow of e, as when e is deleted.
func (s *Service) UnfollowAll(ctx context.Context, e *domain.Entity) (int64, error) {
	if e.ID == "" {
		return 0, nil
	}
	n, err := s.store.DeleteSubscriptionsForEntity(ctx, e.Type, e.ID)
	if err != nil {
		return 0, fmt.Errorf("unfollow all %s: %w", e, err)
	}
	return n, nil
}

// FollowerIDs returns the IDs of every user following e.
func (s *Service) FollowerIDs(ctx context.Context, e *domain.Entity) ([]string, error) {
	return s.store.FollowerIDs(ctx, e.Type, e.ID)
}

// Followers returns a page of active followers, currentUserID first. A
// non-positive limit uses the configured default.
func (s *Service) Followers(ctx context.Context, e *domain.Entity, currentUserID string, offset, limit int) (FollowerPage, error) {
	if limit <= 0 {
		limit = s.followersLimit
	}
	list, total, err := s.store.Followers(ctx, e.Type, e.ID, currentUserID, max(offset, 0), limit)
	if err != nil {
		return FollowerPage{}, fmt.Errorf("followers of %s: %w", e, err)
	}
	return FollowerPage{List: list, Total: total}, nil
}

// Subscribers returns the active users following a parent, for
// notification fan-out. Internal notes leave portal users out. A type
// without stream has no subscribers.
func (s *Service) Subscribers(ctx context.Context, parentType, parentID string, isInternal bool) ([]string, error) {
	if !s.meta.StreamEnabled(parentType) {
		return []string{}, nil
	}
	return s.store.SubscriberIDs(ctx, parentType, parentID, isInternal)
}

func (s *Service) canFollow(ctx context.Context, e *domain.Entity, userID string, skipACL bool) (bool, error) {
	if userID == domain.SystemUserID || !s.meta.StreamEnabled(e.Type) {
		return false, nil
	}

	user, err := s.store.ActiveUser(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("follow %s: %w", e, err)
	}
	if skipACL {
		return true, nil
	}

	ok, err := s.authority.CheckEntityStream(user, e)
	switch {
	case errors.Is(err, acl.ErrNotImplemented):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("follow %s: %w", e, err)
	}
	return ok, nil
}
