package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/notestream/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir with a fixed clock
// and deterministic IDs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithClock(domain.ClockFunc(func() time.Time { return testNow })),
		WithIDGenerator(domain.NewFixedGenerator("id")),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestNote creates a note about an Account with minimal fields.
func createTestNote(id string, noteType domain.NoteType, parentID string) *domain.Note {
	return &domain.Note{
		ID:          id,
		Type:        noteType,
		ParentType:  "Account",
		ParentID:    parentID,
		Data:        domain.Object{},
		CreatedAt:   testNow,
		CreatedByID: "u1",
	}
}

func createTestUser(t *testing.T, s *Store, u domain.User) {
	t.Helper()
	if err := s.CreateUser(t.Context(), &u); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", u.ID, err)
	}
}
