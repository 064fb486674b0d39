package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/notestream/internal/domain"
)

// SubscriptionsTable holds explicit follows.
const SubscriptionsTable = "subscriptions"

// Follower is a user following an entity.
type Follower struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func subscriptionWhere(sub domain.Subscription) sq.Eq {
	return sq.Eq{"user_id": sub.UserID, "entity_id": sub.EntityID, "entity_type": sub.EntityType}
}

// InsertSubscription adds a follow. Existing follows are left untouched.
func (s *Store) InsertSubscription(ctx context.Context, sub domain.Subscription) error {
	_, err := exec(ctx, s.db, builder.Insert(SubscriptionsTable).
		Columns("user_id", "entity_id", "entity_type").
		Values(sub.UserID, sub.EntityID, sub.EntityType).
		Suffix("ON CONFLICT(user_id, entity_id, entity_type) DO NOTHING"))
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// InsertSubscriptions makes every user follow the entity with a single
// batched insert. Rows for the same users are deleted first so the batch
// cannot conflict.
func (s *Store) InsertSubscriptions(ctx context.Context, entityType, entityID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := exec(ctx, tx, builder.Delete(SubscriptionsTable).Where(sq.Eq{
			"entity_id":   entityID,
			"entity_type": entityType,
			"user_id":     userIDs,
		}))
		if err != nil {
			return fmt.Errorf("insert subscriptions: clear: %w", err)
		}

		ins := builder.Insert(SubscriptionsTable).Columns("user_id", "entity_id", "entity_type")
		for _, id := range userIDs {
			ins = ins.Values(id, entityID, entityType)
		}
		if _, err := exec(ctx, tx, ins); err != nil {
			return fmt.Errorf("insert subscriptions: %w", mapError(err))
		}
		return nil
	})
}

// DeleteSubscription removes a follow and reports whether one existed.
func (s *Store) DeleteSubscription(ctx context.Context, sub domain.Subscription) (bool, error) {
	res, err := exec(ctx, s.db, builder.Delete(SubscriptionsTable).Where(subscriptionWhere(sub)))
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteSubscriptionsForEntity removes every follow of an entity.
func (s *Store) DeleteSubscriptionsForEntity(ctx context.Context, entityType, entityID string) (int64, error) {
	res, err := exec(ctx, s.db, builder.Delete(SubscriptionsTable).Where(sq.Eq{
		"entity_id":   entityID,
		"entity_type": entityType,
	}))
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions for %s/%s: %w", entityType, entityID, err)
	}
	return res.RowsAffected()
}

// SubscriptionExists reports whether the follow triple is stored.
func (s *Store) SubscriptionExists(ctx context.Context, sub domain.Subscription) (bool, error) {
	query, args, err := builder.Select("1").
		From(SubscriptionsTable).
		Where(subscriptionWhere(sub)).
		Limit(1).
		ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("subscription exists: %w", err)
	}
	return true, nil
}

// FollowerIDs returns the IDs of every user following the entity, sorted,
// whether or not the user is still active.
func (s *Store) FollowerIDs(ctx context.Context, entityType, entityID string) ([]string, error) {
	query, args, err := builder.Select("user_id").
		From(SubscriptionsTable).
		Where(sq.Eq{"entity_id": entityID, "entity_type": entityType}).
		OrderBy("user_id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	ids, err := s.queryStrings(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("follower ids: %w", err)
	}
	return ids, nil
}

// Followers returns a page of active followers with names, currentUserID
// first, then by name, and the total active follower count.
func (s *Store) Followers(ctx context.Context, entityType, entityID, currentUserID string, offset, limit int) ([]Follower, int, error) {
	where := sq.Eq{"s.entity_id": entityID, "s.entity_type": entityType, "u.is_active": 1}

	countQuery, countArgs, err := builder.Select("COUNT(*)").
		From(SubscriptionsTable + " s").
		Join("users u ON u.id = s.user_id").
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count followers: %w", err)
	}

	b := builder.Select("u.id", "u.name").
		From(SubscriptionsTable + " s").
		Join("users u ON u.id = s.user_id").
		Where(where).
		OrderByClause("(u.id = ?) DESC", currentUserID).
		OrderBy("u.name ASC", "u.id ASC")
	if limit <= 0 {
		limit = math.MaxInt32
	}
	b = b.Limit(uint64(limit))
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list followers: %w", err)
	}
	defer rows.Close()

	followers := []Follower{}
	for rows.Next() {
		var f Follower
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, 0, fmt.Errorf("scan follower: %w", err)
		}
		followers = append(followers, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate followers: %w", err)
	}
	return followers, total, nil
}

// SubscriberIDs returns the active users following the entity. Portal
// users are left out when excludePortal is set.
func (s *Store) SubscriberIDs(ctx context.Context, entityType, entityID string, excludePortal bool) ([]string, error) {
	b := builder.Select("s.user_id").
		From(SubscriptionsTable + " s").
		Join("users u ON u.id = s.user_id").
		Where(sq.Eq{"s.entity_id": entityID, "s.entity_type": entityType, "u.is_active": 1}).
		OrderBy("s.user_id ASC")
	if excludePortal {
		b = b.Where(sq.NotEq{"u.type": string(domain.UserPortal)})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	ids, err := s.queryStrings(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("subscriber ids: %w", err)
	}
	return ids, nil
}
