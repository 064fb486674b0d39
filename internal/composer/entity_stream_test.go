package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notestream/internal/domain"
)

func accountFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.entity("Account", "a1", map[string]any{"name": "Acme", "teamsIds": []string{"t1"}})

	f.note(domain.Note{ID: "direct", Type: domain.NoteCreate, ParentType: "Account", ParentID: "a1"})
	f.note(domain.Note{ID: "contact-foreign", Type: domain.NoteCreate, ParentType: "Contact", ParentID: "c1",
		SuperParentType: "Account", SuperParentID: "a1", TeamsIDs: []string{"t2"}})
	f.note(domain.Note{ID: "contact-team", Type: domain.NoteCreate, ParentType: "Contact", ParentID: "c2",
		SuperParentType: "Account", SuperParentID: "a1", TeamsIDs: []string{"t1"}})
	f.note(domain.Note{ID: "email-mine", Type: domain.NoteEmailReceived, ParentType: "Account", ParentID: "a1",
		RelatedType: "Email", RelatedID: "e1", UsersIDs: []string{"u1"}})
	f.note(domain.Note{ID: "email-other", Type: domain.NoteEmailReceived, ParentType: "Account", ParentID: "a1",
		RelatedType: "Email", RelatedID: "e2", UsersIDs: []string{"u2"}})
	f.note(domain.Note{ID: "case", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k9",
		SuperParentType: "Account", SuperParentID: "a1"})
	return f
}

func TestEntityStream_Restrictions(t *testing.T) {
	f := accountFixture(t)

	page, err := f.composer.EntityStream(t.Context(), f.users["u1"], "Account", "a1", Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{"case", "email-mine", "contact-team", "direct"}, ids(page.List))
	assert.Equal(t, 4, page.Total)
	assert.False(t, page.HasMore)
}

func TestEntityStream_AdminSeesEverything(t *testing.T) {
	f := accountFixture(t)

	page, err := f.composer.EntityStream(t.Context(), f.users["admin"], "Account", "a1", Params{})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Len(t, page.List, 6)
}

func TestEntityStream_Paging(t *testing.T) {
	f := accountFixture(t)

	page, err := f.composer.EntityStream(t.Context(), f.users["u1"], "Account", "a1", Params{MaxSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"case", "email-mine"}, ids(page.List))
	assert.Equal(t, 4, page.Total)
	assert.True(t, page.HasMore)

	page, err = f.composer.EntityStream(t.Context(), f.users["u1"], "Account", "a1", Params{MaxSize: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"contact-team", "direct"}, ids(page.List))
	assert.False(t, page.HasMore)
}

func TestEntityStream_Access(t *testing.T) {
	f := accountFixture(t)
	f.entity("Document", "d1", nil)

	tests := []struct {
		name       string
		userID     string
		entityType string
		id         string
		want       error
	}{
		{"other team", "u2", "Account", "a1", domain.ErrForbidden},
		{"portal not owner", "p1", "Account", "a1", domain.ErrForbidden},
		{"user scope", "admin", "User", "u1", domain.ErrForbidden},
		{"acl not implemented", "u1", "Document", "d1", domain.ErrForbidden},
		{"missing", "u1", "Account", "nope", domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.composer.EntityStream(t.Context(), f.users[tt.userID], tt.entityType, tt.id, Params{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEntityStream_Portal(t *testing.T) {
	f := newFixture(t)
	f.entity("Case", "k2", map[string]any{"name": "Broken", "assignedUserId": "p1"})

	f.note(domain.Note{ID: "internal", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k2", IsInternal: true})
	f.note(domain.Note{ID: "public", Type: domain.NotePost, ParentType: "Case", ParentID: "k2", Post: "on it"})
	f.note(domain.Note{ID: "opportunity", Type: domain.NoteCreateRelated, ParentType: "Case", ParentID: "k2",
		RelatedType: "Opportunity", RelatedID: "o1"})
	f.note(domain.Note{ID: "email-mine", Type: domain.NoteEmailSent, ParentType: "Case", ParentID: "k2",
		RelatedType: "Email", RelatedID: "e1", UsersIDs: []string{"p1"}})

	page, err := f.composer.EntityStream(t.Context(), f.users["p1"], "Case", "k2", Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{"email-mine", "public"}, ids(page.List))
	assert.Equal(t, 2, page.Total)
}

func TestEntityStream_Filters(t *testing.T) {
	f := newFixture(t)
	f.entity("Case", "k3", map[string]any{"name": "Noisy"})

	for _, typ := range []domain.NoteType{domain.NoteCreate, domain.NoteAssign, domain.NoteStatus, domain.NoteUpdate, domain.NotePost} {
		f.note(domain.Note{ID: string(typ), Type: typ, ParentType: "Case", ParentID: "k3"})
	}

	page, err := f.composer.EntityStream(t.Context(), f.users["u1"], "Case", "k3", Params{Filter: FilterUpdates})
	require.NoError(t, err)
	assert.Equal(t, []string{"Status", "Assign"}, ids(page.List))

	page, err = f.composer.EntityStream(t.Context(), f.users["u1"], "Case", "k3", Params{Filter: FilterPosts})
	require.NoError(t, err)
	assert.Equal(t, []string{"Post"}, ids(page.List))
	assert.Equal(t, 1, page.Total)

	page, err = f.composer.EntityStream(t.Context(), f.users["u1"], "Case", "k3", Params{Search: &Search{Named: "mine"}})
	require.NoError(t, err)
	assert.Empty(t, page.List)
	assert.Zero(t, page.Total)
}
