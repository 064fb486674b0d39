// Package acl answers read and stream permission questions for users
// against entity scopes and individual entities.
//
// Permissions come from the role table in metadata. A user's effective
// level on a scope is the highest level granted by any of their roles.
// Scopes whose metadata has acl=false report ErrNotImplemented; callers
// decide how to degrade.
package acl

import (
	"errors"
	"slices"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
)

// ErrNotImplemented reports a scope that carries no ACL.
var ErrNotImplemented = errors.New("acl: not implemented for scope")

// Level is a permission granularity.
type Level string

const (
	LevelNo   Level = "no"
	LevelOwn  Level = "own"
	LevelTeam Level = "team"
	LevelAll  Level = "all"
)

func (l Level) rank() int {
	switch l {
	case LevelAll:
		return 3
	case LevelTeam:
		return 2
	case LevelOwn:
		return 1
	default:
		return 0
	}
}

// Action is the permission being checked.
type Action string

const (
	ActionRead   Action = "read"
	ActionStream Action = "stream"
)

// Authority is the ACL collaborator used by the stream components.
type Authority interface {
	Level(user *domain.User, scope string, action Action) (Level, error)
	CheckScope(user *domain.User, scope string, action Action) (bool, error)
	CheckEntity(user *domain.User, entity *domain.Entity, action Action) (bool, error)
	CheckEntityStream(user *domain.User, entity *domain.Entity) (bool, error)
	CheckUserPermission(user, target *domain.User) bool
	OwnerUserField(scope string) string
}

// RoleTable implements Authority over metadata roles.
type RoleTable struct {
	meta metadata.Provider
}

var _ Authority = (*RoleTable)(nil)

// NewRoleTable creates a role-table authority.
func NewRoleTable(meta metadata.Provider) *RoleTable {
	return &RoleTable{meta: meta}
}

// Level returns the user's effective level for an action on a scope.
func (r *RoleTable) Level(user *domain.User, scope string, action Action) (Level, error) {
	s, ok := r.meta.Scope(scope)
	if !ok {
		return LevelNo, nil
	}
	if !s.ACL {
		return LevelNo, ErrNotImplemented
	}
	if user.IsAdmin() || user.IsSystem() {
		return LevelAll, nil
	}

	best := LevelNo
	for _, roleID := range user.RolesIDs {
		role, ok := r.meta.Role(roleID)
		if !ok {
			continue
		}
		perm, ok := role.Scopes[scope]
		if !ok {
			continue
		}
		var l Level
		switch action {
		case ActionStream:
			l = Level(perm.Stream)
		default:
			l = Level(perm.Read)
		}
		if l.rank() > best.rank() {
			best = l
		}
	}
	return best, nil
}

// CheckScope reports whether the user has any level above no.
func (r *RoleTable) CheckScope(user *domain.User, scope string, action Action) (bool, error) {
	l, err := r.Level(user, scope, action)
	if err != nil {
		return false, err
	}
	return l != LevelNo, nil
}

// CheckEntity checks an action on a single record.
func (r *RoleTable) CheckEntity(user *domain.User, entity *domain.Entity, action Action) (bool, error) {
	l, err := r.Level(user, entity.Type, action)
	if err != nil {
		return false, err
	}
	switch l {
	case LevelAll:
		return true, nil
	case LevelTeam:
		return user.InTeam(entity.GetStrings(domain.AttrTeamsIDs)) || r.owns(user, entity), nil
	case LevelOwn:
		return r.owns(user, entity), nil
	default:
		return false, nil
	}
}

// CheckEntityStream checks stream access on a single record.
func (r *RoleTable) CheckEntityStream(user *domain.User, entity *domain.Entity) (bool, error) {
	return r.CheckEntity(user, entity, ActionStream)
}

// CheckUserPermission reports whether user may read target's stream.
func (r *RoleTable) CheckUserPermission(user, target *domain.User) bool {
	if user.ID == target.ID || user.IsAdmin() || user.IsSystem() {
		return true
	}
	best := LevelNo
	for _, roleID := range user.RolesIDs {
		role, ok := r.meta.Role(roleID)
		if !ok {
			continue
		}
		if l := Level(role.UserPermission); l.rank() > best.rank() {
			best = l
		}
	}
	switch best {
	case LevelAll:
		return true
	case LevelTeam:
		return user.InTeam(target.TeamsIDs)
	default:
		return false
	}
}

// OwnerUserField returns the owner field configured for a scope.
func (r *RoleTable) OwnerUserField(scope string) string {
	return r.meta.OwnerUserField(scope)
}

func (r *RoleTable) owns(user *domain.User, entity *domain.Entity) bool {
	field := r.meta.OwnerUserField(entity.Type)
	if field == "" {
		return false
	}
	def, _ := r.meta.Field(entity.Type, field)
	switch def.Type {
	case metadata.FieldLinkMultiple:
		return slices.Contains(entity.GetStrings(field+"Ids"), user.ID)
	default:
		return entity.GetString(field+"Id") == user.ID
	}
}
