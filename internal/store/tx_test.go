package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notestream/internal/domain"
)

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.conn.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestInTx_RollsBackEveryWrite(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	createTestUser(t, s, domain.User{ID: "u1", Name: "Alice", IsActive: true})

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Store) error {
		if _, err := tx.CreateEntity(ctx, "Account", map[string]any{"id": "a1", "name": "Acme"}); err != nil {
			return err
		}
		n := createTestNote("n1", domain.NoteCreate, "a1")
		n.UsersIDs = []string{"u1"}
		if err := tx.InsertNote(ctx, n); err != nil {
			return err
		}
		if err := tx.InsertSubscriptions(ctx, "Account", "a1", []string{"u1"}); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		if _, err := tx.GetByID(ctx, "Account", "a1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetByID(ctx, "Account", "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, countRows(t, s, "notes"))
	assert.Zero(t, countRows(t, s, "note_users"))
	assert.Zero(t, countRows(t, s, SubscriptionsTable))
}

func TestInTx_Commits(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	err := s.InTx(ctx, func(tx *Store) error {
		_, err := tx.CreateEntity(ctx, "Account", map[string]any{"id": "a1", "name": "Acme"})
		if err != nil {
			return err
		}
		return tx.InsertNote(ctx, createTestNote("n1", domain.NoteCreate, "a1"))
	})
	require.NoError(t, err)

	_, err = s.GetByID(ctx, "Account", "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, s, "notes"))
}

func TestInTx_NestedCallJoinsOuter(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	err := s.InTx(ctx, func(tx *Store) error {
		if err := tx.InTx(ctx, func(inner *Store) error {
			_, err := inner.CreateEntity(ctx, "Account", map[string]any{"id": "a1", "name": "Acme"})
			return err
		}); err != nil {
			return err
		}
		assert.NoError(t, tx.Close(), "closing a bound store leaves the connection open")
		return errors.New("abort outer")
	})
	require.Error(t, err)

	_, err = s.GetByID(ctx, "Account", "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInTx_PanicRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	assert.Panics(t, func() {
		_ = s.InTx(ctx, func(tx *Store) error {
			if _, err := tx.CreateEntity(ctx, "Account", map[string]any{"id": "a1", "name": "Acme"}); err != nil {
				return err
			}
			panic("hook blew up")
		})
	})

	_, err := s.GetByID(ctx, "Account", "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
