package composer

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/notestream/internal/acl"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/store"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	store    *store.Store
	composer *Composer
	users    map[string]*domain.User
	seq      int
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{t: t, store: s, users: map[string]*domain.User{}}
	for _, u := range []domain.User{
		{ID: "u1", Name: "Alice", IsActive: true, TeamsIDs: []string{"t1"}, RolesIDs: []string{"sales"}},
		{ID: "u2", Name: "Bob", IsActive: true, TeamsIDs: []string{"t2"}, RolesIDs: []string{"sales"}},
		{ID: "u3", Name: "Carol", IsActive: true, TeamsIDs: []string{"t1"}, RolesIDs: []string{"sales"}},
		{ID: "admin", Name: "Root", Type: domain.UserAdmin, IsActive: true},
		{ID: "p1", Name: "Pat", Type: domain.UserPortal, IsActive: true, PortalsIDs: []string{"port1"}, RolesIDs: []string{"portal"}},
		{ID: "api", Name: "Bot", Type: domain.UserAPI, IsActive: true, TeamsIDs: []string{"t1"}, RolesIDs: []string{"sales"}},
	} {
		require.NoError(t, s.CreateUser(t.Context(), &u))
		loaded, err := s.GetUser(t.Context(), u.ID)
		require.NoError(t, err)
		f.users[u.ID] = loaded
	}

	meta := metadata.Default()
	f.composer = New(s, meta, acl.NewRoleTable(meta), opts...)
	return f
}

// note inserts n one minute after the previous note. Unset fields get
// post defaults: type Post, author u2.
func (f *fixture) note(n domain.Note) *domain.Note {
	f.t.Helper()
	f.seq++
	if n.ID == "" {
		n.ID = fmt.Sprintf("n%02d", f.seq)
	}
	if n.Type == "" {
		n.Type = domain.NotePost
	}
	if n.CreatedByID == "" {
		n.CreatedByID = "u2"
	}
	n.CreatedAt = testNow.Add(time.Duration(f.seq) * time.Minute)
	require.NoError(f.t, f.store.InsertNote(f.t.Context(), &n))
	return &n
}

func (f *fixture) follow(userID, entityType, id string) {
	f.t.Helper()
	require.NoError(f.t, f.store.InsertSubscription(f.t.Context(), domain.Subscription{
		UserID: userID, EntityType: entityType, EntityID: id,
	}))
}

func (f *fixture) entity(entityType, id string, attrs map[string]any) {
	f.t.Helper()
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["id"] = id
	_, err := f.store.CreateEntity(f.t.Context(), entityType, attrs)
	require.NoError(f.t, err)
}

func (f *fixture) userStream(userID string, p Params) []string {
	f.t.Helper()
	page, err := f.composer.UserStream(f.t.Context(), f.users[userID], userID, p)
	require.NoError(f.t, err)
	return ids(page.List)
}

func ids(notes []domain.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}
