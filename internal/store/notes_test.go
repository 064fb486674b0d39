package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/queryir"
)

func TestInsertNote_NumberStrictlyIncreases(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	var last int64
	for i := 0; i < 5; i++ {
		n := createTestNote("", domain.NoteCreate, "a1")
		require.NoError(t, s.InsertNote(ctx, n))
		assert.Greater(t, n.Number, last)
		last = n.Number
	}
}

func TestInsertNote_NumberNeverReused(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	first := createTestNote("n1", domain.NoteCreate, "a1")
	require.NoError(t, s.InsertNote(ctx, first))
	_, err := s.conn.Exec("DELETE FROM notes WHERE id = 'n1'")
	require.NoError(t, err)

	second := createTestNote("n2", domain.NoteCreate, "a1")
	require.NoError(t, s.InsertNote(ctx, second))
	assert.Greater(t, second.Number, first.Number)
}

func TestInsertNote_FillsDefaults(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	n := &domain.Note{Type: domain.NotePost, Post: "hello"}
	require.NoError(t, s.InsertNote(ctx, n))

	assert.Equal(t, "id-0001", n.ID)
	assert.Equal(t, testNow, n.CreatedAt)
	assert.NotNil(t, n.Data)
}

func TestInsertNote_RejectsUnknownType(t *testing.T) {
	s := createTestStore(t)

	err := s.InsertNote(t.Context(), &domain.Note{Type: "Bogus"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestInsertNote_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.InsertNote(ctx, createTestNote("n1", domain.NoteCreate, "a1")))
	err := s.InsertNote(ctx, createTestNote("n1", domain.NoteCreate, "a1"))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestGetNote_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	n := &domain.Note{
		ID:              "n1",
		Type:            domain.NoteStatus,
		Data:            domain.NewObject(domain.P("field", domain.String("status")), domain.P("value", domain.String("Closed Won")), domain.P("style", domain.String("success"))),
		ParentType:      "Opportunity",
		ParentID:        "o1",
		SuperParentType: "Account",
		SuperParentID:   "a1",
		UsersIDs:        []string{"u1", "u2"},
		TeamsIDs:        []string{"t1"},
		IsInternal:      true,
		CreatedAt:       testNow.Add(-time.Minute),
		CreatedByID:     "u1",
	}
	require.NoError(t, s.InsertNote(ctx, n))

	got, err := s.GetNote(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, n.Number, got.Number)
	assert.Equal(t, domain.NoteStatus, got.Type)
	assert.Equal(t, "success", got.Data.GetString("style"))
	assert.Equal(t, "Opportunity", got.ParentType)
	assert.Equal(t, "a1", got.SuperParentID)
	assert.Empty(t, got.RelatedID)
	assert.Equal(t, []string{"u1", "u2"}, got.UsersIDs)
	assert.Equal(t, []string{"t1"}, got.TeamsIDs)
	assert.Equal(t, []string{}, got.PortalsIDs)
	assert.True(t, got.IsInternal)
	assert.False(t, got.IsGlobal)
	assert.True(t, n.CreatedAt.Equal(got.CreatedAt))
}

func TestGetNote_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetNote(t.Context(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateNoteAccess_RewritesMembership(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	n := createTestNote("n1", domain.NoteCreate, "a1")
	n.UsersIDs = []string{"u1"}
	n.TeamsIDs = []string{"t1", "t2"}
	require.NoError(t, s.InsertNote(ctx, n))

	n.UsersIDs = []string{"u2"}
	n.TeamsIDs = nil
	res, err := s.UpdateNoteAccess(ctx, n, SaveOptions{ForceProcessNotifications: true})
	require.NoError(t, err)
	assert.True(t, res.ForceProcessNotifications)

	got, err := s.GetNote(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, got.UsersIDs)
	assert.Equal(t, []string{}, got.TeamsIDs)

	var users, teams int
	require.NoError(t, s.conn.QueryRow("SELECT COUNT(*) FROM note_users WHERE note_id = 'n1' AND user_id = 'u2'").Scan(&users))
	require.NoError(t, s.conn.QueryRow("SELECT COUNT(*) FROM note_teams WHERE note_id = 'n1'").Scan(&teams))
	assert.Equal(t, 1, users)
	assert.Equal(t, 0, teams)
}

func TestUpdateNoteAccess_MissingNote(t *testing.T) {
	s := createTestStore(t)

	_, err := s.UpdateNoteAccess(t.Context(), &domain.Note{ID: "missing"}, SaveOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindNoteID(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	n := createTestNote("n1", domain.NoteEmailReceived, "a1")
	n.RelatedType = "Email"
	n.RelatedID = "e1"
	require.NoError(t, s.InsertNote(ctx, n))
	require.NoError(t, s.InsertNote(ctx, createTestNote("n2", domain.NoteCreate, "a1")))

	id, err := s.FindNoteID(ctx, NoteKey{
		Type:        domain.NoteEmailReceived,
		ParentType:  "Account",
		ParentID:    "a1",
		RelatedType: "Email",
		RelatedID:   "e1",
	})
	require.NoError(t, err)
	assert.Equal(t, "n1", id)

	id, err = s.FindNoteID(ctx, NoteKey{Type: domain.NoteCreate, ParentType: "Account", ParentID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "n2", id)

	_, err = s.FindNoteID(ctx, NoteKey{Type: domain.NoteEmailReceived, ParentType: "Account", ParentID: "a1", RelatedType: "Email", RelatedID: "e2"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListNotesForAccess(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	related := createTestNote("related", domain.NoteCreateRelated, "a1")
	related.RelatedType = "Contact"
	related.RelatedID = "c1"

	rolledUp := createTestNote("rolled-up", domain.NoteCreate, "c1")
	rolledUp.ParentType = "Contact"
	rolledUp.SuperParentType = "Account"
	rolledUp.SuperParentID = "a1"

	noSuper := createTestNote("no-super", domain.NoteCreate, "c1")
	noSuper.ParentType = "Contact"

	other := createTestNote("other", domain.NoteCreate, "a9")

	for _, n := range []*domain.Note{related, rolledUp, noSuper, other} {
		require.NoError(t, s.InsertNote(ctx, n))
	}

	notes, err := s.ListNotesForAccess(ctx, "Contact", "c1", 50)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "rolled-up", notes[0].ID)
	assert.Equal(t, "related", notes[1].ID)

	limited, err := s.ListNotesForAccess(ctx, "Contact", "c1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "rolled-up", limited[0].ID)
}

func TestRunQuery_AndCount(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	for i := 0; i < 25; i++ {
		require.NoError(t, s.InsertNote(ctx, createTestNote("", domain.NoteCreate, "a1")))
	}

	q := queryir.Select{
		From:    NotesTable,
		Alias:   "n",
		Columns: NoteColumns("n"),
		Where:   queryir.Eq{Column: "n.parent_id", Value: "a1"},
		OrderBy: []queryir.Order{{Column: "n.number", Desc: true}},
		Limit:   10,
		Offset:  20,
	}
	notes, err := s.RunQuery(ctx, q)
	require.NoError(t, err)
	assert.Len(t, notes, 5)
	assert.Greater(t, notes[0].Number, notes[4].Number)

	total, err := s.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
}

func TestRunQuery_EmptyResultIsNotNil(t *testing.T) {
	s := createTestStore(t)

	notes, err := s.RunQuery(t.Context(), queryir.Select{From: NotesTable, Columns: NoteColumns("")})
	require.NoError(t, err)
	assert.NotNil(t, notes)
	assert.Empty(t, notes)
}

func TestNoteColumns(t *testing.T) {
	cols := NoteColumns("n")
	assert.Equal(t, "n.id AS id", cols[0])
	assert.Equal(t, "n.number AS number", cols[1])
	assert.Len(t, cols, len(noteColumns))

	assert.Equal(t, noteColumns, NoteColumns(""))
}
