package composer

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/queryir"
)

func TestUserStream_OwnLevelRequiresNoteUser(t *testing.T) {
	f := newFixture(t)
	f.follow("u1", "Case", "k1")

	f.note(domain.Note{ID: "other", Type: domain.NoteCreateRelated, ParentType: "Case", ParentID: "k1",
		RelatedType: "Opportunity", RelatedID: "o1", UsersIDs: []string{"u2"}})
	f.note(domain.Note{ID: "mine", Type: domain.NoteCreateRelated, ParentType: "Case", ParentID: "k1",
		RelatedType: "Opportunity", RelatedID: "o2", UsersIDs: []string{"u1"}})
	f.note(domain.Note{ID: "plain", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k1"})

	assert.Equal(t, []string{"plain", "mine"}, f.userStream("u1", Params{}))
}

func TestUserStream_TeamLevelRequiresTeamOrUser(t *testing.T) {
	f := newFixture(t)
	f.follow("u1", "Case", "k1")

	f.note(domain.Note{ID: "team", Type: domain.NoteRelate, ParentType: "Case", ParentID: "k1",
		RelatedType: "Contact", RelatedID: "c1", TeamsIDs: []string{"t1"}})
	f.note(domain.Note{ID: "foreign", Type: domain.NoteRelate, ParentType: "Case", ParentID: "k1",
		RelatedType: "Contact", RelatedID: "c2", TeamsIDs: []string{"t2"}})
	f.note(domain.Note{ID: "owner", Type: domain.NoteRelate, ParentType: "Case", ParentID: "k1",
		RelatedType: "Contact", RelatedID: "c3", TeamsIDs: []string{"t2"}, UsersIDs: []string{"u1"}})

	assert.Equal(t, []string{"owner", "team"}, f.userStream("u1", Params{}))
}

func TestUserStream_SuperParent(t *testing.T) {
	f := newFixture(t)
	f.follow("u1", "Account", "a1")

	f.note(domain.Note{ID: "contact-team", Type: domain.NoteCreate, ParentType: "Contact", ParentID: "c5",
		SuperParentType: "Account", SuperParentID: "a1", TeamsIDs: []string{"t1"}})
	f.note(domain.Note{ID: "contact-foreign", Type: domain.NoteCreate, ParentType: "Contact", ParentID: "c6",
		SuperParentType: "Account", SuperParentID: "a1", TeamsIDs: []string{"t9"}})
	f.note(domain.Note{ID: "case", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k5",
		SuperParentType: "Account", SuperParentID: "a1"})
	f.note(domain.Note{ID: "lead-foreign", Type: domain.NoteCreate, ParentType: "Lead", ParentID: "l1",
		SuperParentType: "Account", SuperParentID: "a1", UsersIDs: []string{"u2"}})
	f.note(domain.Note{ID: "lead-own", Type: domain.NoteCreate, ParentType: "Lead", ParentID: "l2",
		SuperParentType: "Account", SuperParentID: "a1", UsersIDs: []string{"u1"}})

	assert.Equal(t, []string{"lead-own", "case", "contact-team"}, f.userStream("u1", Params{}))
}

func TestUserStream_DirectAndAncestorMatchAppearsOnce(t *testing.T) {
	f := newFixture(t)
	f.follow("u1", "Account", "a1")
	f.follow("u1", "Case", "k5")

	f.note(domain.Note{ID: "both", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k5",
		SuperParentType: "Account", SuperParentID: "a1"})

	assert.Equal(t, []string{"both"}, f.userStream("u1", Params{}))
}

func TestUserStream_PostMatchedByTwoBranchesAppearsOnce(t *testing.T) {
	f := newFixture(t)

	f.note(domain.Note{ID: "team-post", CreatedByID: "u1", TeamsIDs: []string{"t1"}})

	assert.Equal(t, []string{"team-post"}, f.userStream("u1", Params{}))
	assert.Equal(t, []string{"team-post"}, f.userStream("u3", Params{}))
	assert.Empty(t, f.userStream("u2", Params{}))
}

func TestUserStream_TopLevelPosts(t *testing.T) {
	f := newFixture(t)

	f.note(domain.Note{ID: "global", IsGlobal: true})
	f.note(domain.Note{ID: "portal", PortalsIDs: []string{"port1"}})
	f.note(domain.Note{ID: "mention", UsersIDs: []string{"u1"}})

	assert.Equal(t, []string{"mention", "global"}, f.userStream("u1", Params{}))
	assert.Equal(t, []string{"global"}, f.userStream("u3", Params{}))
	assert.Equal(t, []string{"global"}, f.userStream("admin", Params{}))
	assert.Equal(t, []string{"portal"}, f.userStream("p1", Params{}))
	assert.Empty(t, f.userStream("api", Params{}))
	assert.Equal(t, []string{"mention", "portal", "global"}, f.userStream("u2", Params{}), "own posts are listed")
}

func TestUserStream_IgnoredScopes(t *testing.T) {
	f := newFixture(t)
	f.follow("u1", "Document", "d1")
	f.follow("u1", "Case", "k1")

	f.note(domain.Note{ID: "doc", Type: domain.NoteCreate, ParentType: "Document", ParentID: "d1"})
	f.note(domain.Note{ID: "doc-related", Type: domain.NoteCreateRelated, ParentType: "Case", ParentID: "k1",
		RelatedType: "Document", RelatedID: "d2"})
	f.note(domain.Note{ID: "case", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k1"})

	assert.Equal(t, []string{"case"}, f.userStream("u1", Params{}))
}

func TestUserStream_HasMore(t *testing.T) {
	f := newFixture(t)
	for range 25 {
		f.note(domain.Note{CreatedByID: "u1"})
	}

	page, err := f.composer.UserStream(t.Context(), f.users["u1"], "u1", Params{Offset: 0, MaxSize: 20})
	require.NoError(t, err)
	assert.Len(t, page.List, 20)
	assert.True(t, page.HasMore)
	assert.Equal(t, -1, page.Total)
	assert.Equal(t, "n25", page.List[0].ID)
	assert.Equal(t, "n06", page.List[19].ID)

	page, err = f.composer.UserStream(t.Context(), f.users["u1"], "u1", Params{Offset: 20, MaxSize: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"n05", "n04", "n03", "n02", "n01"}, ids(page.List))
	assert.False(t, page.HasMore)
}

func TestUserStream_NumbersStrictlyDecrease(t *testing.T) {
	f := newFixture(t)
	f.follow("u1", "Case", "k1")
	for range 5 {
		f.note(domain.Note{Type: domain.NoteCreate, ParentType: "Case", ParentID: "k1"})
		f.note(domain.Note{CreatedByID: "u1"})
	}

	page, err := f.composer.UserStream(t.Context(), f.users["u1"], "u1", Params{MaxSize: 50})
	require.NoError(t, err)
	require.Len(t, page.List, 10)
	for i := 1; i < len(page.List); i++ {
		assert.Greater(t, page.List[i-1].Number, page.List[i].Number)
	}
}

func TestUserStream_After(t *testing.T) {
	f := newFixture(t)
	f.note(domain.Note{ID: "first", CreatedByID: "u1"})
	second := f.note(domain.Note{ID: "second", CreatedByID: "u1"})
	f.note(domain.Note{ID: "third", CreatedByID: "u1"})

	after := second.CreatedAt
	assert.Equal(t, []string{"third"}, f.userStream("u1", Params{After: &after}))
}

func TestUserStream_Filters(t *testing.T) {
	f := newFixture(t)
	f.follow("u1", "Case", "k1")
	f.note(domain.Note{ID: "status", Type: domain.NoteStatus, ParentType: "Case", ParentID: "k1"})
	f.note(domain.Note{ID: "assign", Type: domain.NoteAssign, ParentType: "Case", ParentID: "k1"})
	f.note(domain.Note{ID: "post", CreatedByID: "u1"})

	assert.Equal(t, []string{"post"}, f.userStream("u1", Params{Filter: FilterPosts}))
	assert.Equal(t, []string{"status"}, f.userStream("u1", Params{Filter: FilterUpdates}))

	_, err := f.composer.UserStream(t.Context(), f.users["u1"], "u1", Params{Filter: "bogus"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUserStream_Search(t *testing.T) {
	f := newFixture(t)
	f.follow("u1", "Case", "k1")
	f.note(domain.Note{ID: "match", Post: "printer is on fire", ParentType: "Case", ParentID: "k1"})
	f.note(domain.Note{ID: "miss", Post: "all good", ParentType: "Case", ParentID: "k1"})
	f.note(domain.Note{ID: "own", Post: "fire drill", CreatedByID: "u1"})

	assert.Equal(t, []string{"own", "match"}, f.userStream("u1", Params{Search: &Search{Text: "fire"}}))
	assert.Equal(t, []string{"own"}, f.userStream("u1", Params{Search: &Search{Named: "mine"}}))
	assert.Equal(t, []string{"miss"}, f.userStream("u1", Params{Search: &Search{
		Where: queryir.Eq{Column: "n.id", Value: "miss"},
	}}))

	_, err := f.composer.UserStream(t.Context(), f.users["u1"], "u1", Params{Search: &Search{Named: "nope"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUserStream_SkipOwn(t *testing.T) {
	f := newFixture(t)
	f.follow("u1", "Case", "k1")
	f.note(domain.Note{ID: "by-me", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k1", CreatedByID: "u1"})
	f.note(domain.Note{ID: "by-bob", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k1"})
	f.note(domain.Note{ID: "own-post", CreatedByID: "u1"})

	assert.Equal(t, []string{"own-post", "by-bob", "by-me"}, f.userStream("u1", Params{}))
	assert.Equal(t, []string{"own-post", "by-bob"}, f.userStream("u1", Params{SkipOwn: true}))
}

func TestUserStream_Portal(t *testing.T) {
	f := newFixture(t)
	f.follow("p1", "Case", "k1")

	f.note(domain.Note{ID: "internal", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k1", IsInternal: true})
	f.note(domain.Note{ID: "public", Type: domain.NoteCreate, ParentType: "Case", ParentID: "k1"})
	f.note(domain.Note{ID: "opportunity", Type: domain.NoteCreateRelated, ParentType: "Case", ParentID: "k1",
		RelatedType: "Opportunity", RelatedID: "o1"})
	f.note(domain.Note{ID: "email-mine", Type: domain.NoteEmailReceived, ParentType: "Case", ParentID: "k1",
		RelatedType: "Email", RelatedID: "e1", UsersIDs: []string{"p1"}})
	f.note(domain.Note{ID: "email-other", Type: domain.NoteEmailReceived, ParentType: "Case", ParentID: "k1",
		RelatedType: "Email", RelatedID: "e2", UsersIDs: []string{"u1"}})

	assert.Equal(t, []string{"email-mine", "public"}, f.userStream("p1", Params{}))
}

func TestUserStream_Permission(t *testing.T) {
	f := newFixture(t)
	f.note(domain.Note{ID: "post", CreatedByID: "u1"})

	page, err := f.composer.UserStream(t.Context(), f.users["u3"], "u1", Params{})
	require.NoError(t, err, "same team")
	assert.Equal(t, []string{"post"}, ids(page.List))

	_, err = f.composer.UserStream(t.Context(), f.users["admin"], "u1", Params{})
	require.NoError(t, err)

	_, err = f.composer.UserStream(t.Context(), f.users["u2"], "u1", Params{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.composer.UserStream(t.Context(), f.users["admin"], "ghost", Params{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserStream_MaxSizeBounds(t *testing.T) {
	f := newFixture(t, WithMaxSizeLimit(3))
	for range 5 {
		f.note(domain.Note{CreatedByID: "u1"})
	}

	page, err := f.composer.UserStream(t.Context(), f.users["u1"], "u1", Params{MaxSize: 100, Offset: -4})
	require.NoError(t, err)
	assert.Len(t, page.List, 3)
	assert.True(t, page.HasMore)
}

func TestExplainUserStream_Branches(t *testing.T) {
	f := newFixture(t)
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))

	for _, userID := range []string{"u1", "p1", "admin", "api"} {
		t.Run(userID, func(t *testing.T) {
			ex, err := f.composer.ExplainUserStream(t.Context(), f.users[userID], userID, Params{})
			require.NoError(t, err)
			g.Assert(t, "user_stream_branches_"+userID, []byte(strings.Join(ex.Branches, "\n")+"\n"))

			assert.True(t, strings.HasPrefix(ex.SQL, "WITH stream AS (SELECT * FROM (SELECT n.id AS id"))
			assert.True(t, strings.HasSuffix(ex.SQL, "SELECT * FROM stream ORDER BY number DESC LIMIT 21"))
			assert.Equal(t, len(ex.Branches)-1, strings.Count(ex.SQL, " UNION "))
			assert.NotContains(t, ex.SQL, "UNION ALL")
			assert.NotContains(t, ex.SQL, userID, "values are bound, never inlined")
			assert.Contains(t, ex.Args, userID)
		})
	}
}

func TestExplainUserStream_SkipOwnWrapsAddressedBranches(t *testing.T) {
	f := newFixture(t)

	plain, err := f.composer.ExplainUserStream(t.Context(), f.users["u1"], "u1", Params{})
	require.NoError(t, err)
	skipped, err := f.composer.ExplainUserStream(t.Context(), f.users["u1"], "u1", Params{SkipOwn: true})
	require.NoError(t, err)

	assert.Equal(t, plain.Branches, skipped.Branches)
	wrapped := len(plain.Branches) - 2
	assert.Equal(t,
		strings.Count(plain.SQL, "n.created_by_id <> ?")+wrapped,
		strings.Count(skipped.SQL, "n.created_by_id <> ?"))
}
