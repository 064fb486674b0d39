package domain

import "time"

// NoteType classifies a timeline event.
type NoteType string

const (
	NotePost          NoteType = "Post"
	NoteCreate        NoteType = "Create"
	NoteCreateRelated NoteType = "CreateRelated"
	NoteRelate        NoteType = "Relate"
	NoteAssign        NoteType = "Assign"
	NoteStatus        NoteType = "Status"
	NoteUpdate        NoteType = "Update"
	NoteEmailReceived NoteType = "EmailReceived"
	NoteEmailSent     NoteType = "EmailSent"
)

// NoteTypes lists every known note type.
var NoteTypes = []NoteType{
	NotePost, NoteCreate, NoteCreateRelated, NoteRelate, NoteAssign,
	NoteStatus, NoteUpdate, NoteEmailReceived, NoteEmailSent,
}

// Valid reports whether t is a known note type.
func (t NoteType) Valid() bool {
	for _, known := range NoteTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Scope names with fixed meaning for the stream.
const (
	ScopeNote       = "Note"
	ScopeUser       = "User"
	ScopeTeam       = "Team"
	ScopeRole       = "Role"
	ScopePortal     = "Portal"
	ScopePortalRole = "PortalRole"
	ScopeEmail      = "Email"
	ScopeAccount    = "Account"
)

// Note is one event in an entity's activity timeline.
//
// Number is assigned by the store at insert, strictly increasing and
// never reused. It is the only ordering key.
type Note struct {
	ID     string   `json:"id"`
	Number int64    `json:"number"`
	Type   NoteType `json:"type"`
	Post   string   `json:"post,omitempty"`
	Data   Object   `json:"data"`

	ParentType      string `json:"parentType,omitempty"`
	ParentID        string `json:"parentId,omitempty"`
	RelatedType     string `json:"relatedType,omitempty"`
	RelatedID       string `json:"relatedId,omitempty"`
	SuperParentType string `json:"superParentType,omitempty"`
	SuperParentID   string `json:"superParentId,omitempty"`

	UsersIDs   []string `json:"usersIds"`
	TeamsIDs   []string `json:"teamsIds"`
	PortalsIDs []string `json:"portalsIds,omitempty"`

	IsGlobal   bool `json:"isGlobal"`
	IsInternal bool `json:"isInternal"`

	CreatedAt   time.Time `json:"createdAt"`
	CreatedByID string    `json:"createdById"`
}

// HasParent reports whether the note is attached to an entity.
func (n *Note) HasParent() bool {
	return n.ParentID != ""
}

// Age returns how long ago the note was created relative to now.
func (n *Note) Age(now time.Time) time.Duration {
	return now.Sub(n.CreatedAt)
}
