package domain

// SystemUserID identifies the synthetic system user. It never follows
// entities and never receives a stream.
const SystemUserID = "system"

// UserType distinguishes the kinds of accounts that read streams.
type UserType string

const (
	UserRegular UserType = "regular"
	UserAdmin   UserType = "admin"
	UserPortal  UserType = "portal"
	UserAPI     UserType = "api"
	UserSystem  UserType = "system"
)

// User is the acting or target user of a stream operation.
type User struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Type       UserType `json:"type" yaml:"type"`
	IsActive   bool     `json:"isActive" yaml:"active"`
	TeamsIDs   []string `json:"teamsIds" yaml:"teams"`
	PortalsIDs []string `json:"portalsIds" yaml:"portals"`
	RolesIDs   []string `json:"rolesIds" yaml:"roles"`
}

func (u *User) IsAdmin() bool  { return u.Type == UserAdmin }
func (u *User) IsPortal() bool { return u.Type == UserPortal }
func (u *User) IsAPI() bool    { return u.Type == UserAPI }

// IsSystem reports whether u is the synthetic system user.
func (u *User) IsSystem() bool {
	return u.ID == SystemUserID || u.Type == UserSystem
}

// InTeam reports whether u belongs to any of the given teams.
func (u *User) InTeam(teamIDs []string) bool {
	for _, t := range teamIDs {
		for _, own := range u.TeamsIDs {
			if t == own {
				return true
			}
		}
	}
	return false
}

// SystemUser returns the synthetic system user.
func SystemUser() *User {
	return &User{ID: SystemUserID, Name: "System", Type: UserSystem, IsActive: true}
}
