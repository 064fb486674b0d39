package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/notestream/internal/domain"
)

// EmailOwner is the record an email address belongs to.
type EmailOwner struct {
	EntityType string
	EntityID   string
	Name       string
}

// CreateUser inserts a user with its team, portal and role memberships.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" || u.ID == domain.SystemUserID {
		return fmt.Errorf("create user %q: %w: reserved or empty id", u.ID, domain.ErrValidation)
	}
	userType := u.Type
	if userType == "" {
		userType = domain.UserRegular
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := exec(ctx, tx, builder.Insert("users").
			Columns("id", "name", "type", "is_active").
			Values(u.ID, u.Name, string(userType), boolInt(u.IsActive)))
		if err != nil {
			return fmt.Errorf("create user %s: %w", u.ID, mapError(err))
		}
		memberships := []struct {
			table, column string
			ids           []string
		}{
			{"team_users", "team_id", u.TeamsIDs},
			{"portal_users", "portal_id", u.PortalsIDs},
			{"user_roles", "role_id", u.RolesIDs},
		}
		for _, m := range memberships {
			if len(m.ids) == 0 {
				continue
			}
			ins := builder.Insert(m.table).Columns(m.column, "user_id").Suffix("ON CONFLICT DO NOTHING")
			for _, id := range m.ids {
				ins = ins.Values(id, u.ID)
			}
			if _, err := exec(ctx, tx, ins); err != nil {
				return fmt.Errorf("create user %s: %s: %w", u.ID, m.table, err)
			}
		}
		return nil
	})
}

// GetUser loads a user with memberships. The system user is synthetic
// and always resolves.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if id == domain.SystemUserID {
		return domain.SystemUser(), nil
	}

	query, args, err := builder.Select("id", "name", "type", "is_active").
		From("users").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		u        domain.User
		userType string
		active   int
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Name, &userType, &active); err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, mapError(err))
	}
	u.Type = domain.UserType(userType)
	u.IsActive = active != 0

	if u.TeamsIDs, err = s.membership(ctx, "team_users", "team_id", id); err != nil {
		return nil, err
	}
	if u.PortalsIDs, err = s.membership(ctx, "portal_users", "portal_id", id); err != nil {
		return nil, err
	}
	if u.RolesIDs, err = s.membership(ctx, "user_roles", "role_id", id); err != nil {
		return nil, err
	}
	return &u, nil
}

// ActiveUser is GetUser that reports inactive users as not found.
func (s *Store) ActiveUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("user %s is inactive: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

// UserName returns a user's display name.
func (s *Store) UserName(ctx context.Context, id string) (string, error) {
	if id == domain.SystemUserID {
		return domain.SystemUser().Name, nil
	}
	query, args, err := builder.Select("name").From("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return "", err
	}
	var name string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&name); err != nil {
		return "", fmt.Errorf("name of user %s: %w", id, mapError(err))
	}
	return name, nil
}

func (s *Store) membership(ctx context.Context, table, column, userID string) ([]string, error) {
	query, args, err := builder.Select(column).
		From(table).
		Where(sq.Eq{"user_id": userID}).
		OrderBy(column + " ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryStrings(ctx, query, args...)
}

// SetEmailAddress links an address to a person record or user.
func (s *Store) SetEmailAddress(ctx context.Context, address, entityType, entityID string) error {
	_, err := exec(ctx, s.db, builder.Insert("email_addresses").
		Columns("address", "entity_type", "entity_id").
		Values(address, entityType, entityID).
		Suffix("ON CONFLICT(address) DO UPDATE SET entity_type = excluded.entity_type, entity_id = excluded.entity_id"))
	if err != nil {
		return fmt.Errorf("set email address %s: %w", address, err)
	}
	return nil
}

// EntityByEmailAddress resolves the person an address belongs to.
// Address matching is case-insensitive.
func (s *Store) EntityByEmailAddress(ctx context.Context, address string) (EmailOwner, error) {
	query, args, err := builder.Select("entity_type", "entity_id").
		From("email_addresses").
		Where(sq.Eq{"address": address}).
		ToSql()
	if err != nil {
		return EmailOwner{}, err
	}
	var owner EmailOwner
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&owner.EntityType, &owner.EntityID); err != nil {
		return EmailOwner{}, fmt.Errorf("email address %s: %w", address, mapError(err))
	}
	// A missing name leaves the owner usable; the address still resolved.
	owner.Name, _ = s.EntityName(ctx, owner.EntityType, owner.EntityID)
	return owner, nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
