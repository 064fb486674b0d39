package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notestream/internal/domain"
)

func TestCreateUser_GetUser(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	createTestUser(t, s, domain.User{
		ID:         "u1",
		Name:       "Alice",
		Type:       domain.UserPortal,
		IsActive:   true,
		TeamsIDs:   []string{"t2", "t1"},
		PortalsIDs: []string{"p1"},
		RolesIDs:   []string{"portal"},
	})

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, domain.UserPortal, u.Type)
	assert.True(t, u.IsActive)
	assert.Equal(t, []string{"t1", "t2"}, u.TeamsIDs)
	assert.Equal(t, []string{"p1"}, u.PortalsIDs)
	assert.Equal(t, []string{"portal"}, u.RolesIDs)
}

func TestCreateUser_DefaultsAndErrors(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	createTestUser(t, s, domain.User{ID: "u1", Name: "Alice", IsActive: true})
	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserRegular, u.Type)
	assert.Equal(t, []string{}, u.TeamsIDs)

	err = s.CreateUser(ctx, &domain.User{ID: "u1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	err = s.CreateUser(ctx, &domain.User{ID: domain.SystemUserID})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetUser_SystemAndMissing(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	u, err := s.GetUser(ctx, domain.SystemUserID)
	require.NoError(t, err)
	assert.True(t, u.IsSystem())

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestActiveUser(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	createTestUser(t, s, domain.User{ID: "u1", IsActive: true})
	createTestUser(t, s, domain.User{ID: "u2", IsActive: false})

	_, err := s.ActiveUser(ctx, "u1")
	assert.NoError(t, err)
	_, err = s.ActiveUser(ctx, "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEmailAddress_Lookup(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	_, err := s.CreateEntity(ctx, "Contact", map[string]any{"id": "c1", "name": "Carol"})
	require.NoError(t, err)
	require.NoError(t, s.SetEmailAddress(ctx, "carol@example.com", "Contact", "c1"))

	owner, err := s.EntityByEmailAddress(ctx, "Carol@Example.com")
	require.NoError(t, err)
	assert.Equal(t, EmailOwner{EntityType: "Contact", EntityID: "c1", Name: "Carol"}, owner)

	_, err = s.EntityByEmailAddress(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
