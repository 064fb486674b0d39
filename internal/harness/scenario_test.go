package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/engine"
)

const minimalScenario = `
name: minimal
description: "One create"
now: 2026-01-01T00:00:00Z
users:
  - {id: u1, name: Ann}
steps:
  - op: create
    as: u1
    type: Account
    id: a1
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, 2026, s.Now.Year())
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "create", s.Steps[0].Op)
	assert.Empty(t, s.Assertions)

	u := s.Users[0].User()
	assert.Equal(t, domain.UserRegular, u.Type)
	assert.True(t, u.IsActive, "users are active unless marked inactive")
}

func TestParseScenario_StepFields(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: fields
description: "Every step field"
now: 2026-01-01T00:00:00Z
steps:
  - op: post
    as: u1
    advance: 90s
    parent: Account/a1
    post: {text: hi, users: [u2], internal: true}
    expect:
      error: forbidden
      notes: []
`))
	require.NoError(t, err)

	step := s.Steps[0]
	assert.Equal(t, int64(90), int64(step.Advance.Seconds()))
	assert.Equal(t, "Account/a1", step.Parent)
	require.NotNil(t, step.Post)
	assert.Equal(t, []string{"u2"}, step.Post.Users)
	assert.True(t, step.Post.Internal)
	require.NotNil(t, step.Expect)
	assert.Equal(t, ErrKindForbidden, step.Expect.Error)
	assert.NotNil(t, step.Expect.Notes, "an empty list is still checked")
	assert.Nil(t, step.Expect.Followed)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: minimalScenario + "asserts: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: x\nnow: 2026-01-01T00:00:00Z\nsteps: [{op: create, type: Account}]\n",
			want: "name is required",
		},
		{
			name: "missing now",
			yaml: "name: x\ndescription: x\nsteps: [{op: create, type: Account}]\n",
			want: "now is required",
		},
		{
			name: "no steps",
			yaml: "name: x\ndescription: x\nnow: 2026-01-01T00:00:00Z\n",
			want: "steps list is required",
		},
		{
			name: "unknown op",
			yaml: "name: x\ndescription: x\nnow: 2026-01-01T00:00:00Z\nsteps: [{op: archive, type: Account}]\n",
			want: `unknown op "archive"`,
		},
		{
			name: "update without id",
			yaml: "name: x\ndescription: x\nnow: 2026-01-01T00:00:00Z\nsteps: [{op: update, type: Account}]\n",
			want: "type and id are required for update",
		},
		{
			name: "bad parent",
			yaml: "name: x\ndescription: x\nnow: 2026-01-01T00:00:00Z\nsteps: [{op: relate, type: Contact, id: c1, parent: Account}]\n",
			want: "invalid entity reference",
		},
		{
			name: "post without body",
			yaml: "name: x\ndescription: x\nnow: 2026-01-01T00:00:00Z\nsteps: [{op: post}]\n",
			want: "post is required",
		},
		{
			name: "unknown error kind",
			yaml: "name: x\ndescription: x\nnow: 2026-01-01T00:00:00Z\nsteps: [{op: create, type: Account, expect: {error: boom}}]\n",
			want: `unknown error kind "boom"`,
		},
		{
			name: "duplicate user",
			yaml: "name: x\ndescription: x\nnow: 2026-01-01T00:00:00Z\nusers: [{id: u1}, {id: u1}]\nsteps: [{op: create, type: Account}]\n",
			want: `duplicate id "u1"`,
		},
		{
			name: "stream without user",
			yaml: "name: x\ndescription: x\nnow: 2026-01-01T00:00:00Z\nsteps: [{op: create, type: Account}]\nassertions: [{type: stream}]\n",
			want: "user is required for stream",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: x\nnow: 2026-01-01T00:00:00Z\nsteps: [{op: create, type: Account}]\nassertions: [{type: final_state}]\n",
			want: `unknown assertion type "final_state"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesMetadataDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario+"metadata: meta\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "meta"), s.Metadata)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestOps_CoverEveryMutationKind(t *testing.T) {
	kinds := []engine.MutationKind{
		engine.MutationCreate, engine.MutationUpdate, engine.MutationDelete,
		engine.MutationRelate, engine.MutationEmailReceived, engine.MutationEmailSent,
		engine.MutationPost, engine.MutationFollow, engine.MutationUnfollow,
	}
	for _, k := range kinds {
		assert.Equal(t, k, ops[string(k)])
	}
	assert.Len(t, ops, len(kinds))
}

func TestParseRef(t *testing.T) {
	typ, id, err := parseRef("Account/a1")
	require.NoError(t, err)
	assert.Equal(t, "Account", typ)
	assert.Equal(t, "a1", id)

	for _, bad := range []string{"", "Account", "/a1", "Account/"} {
		_, _, err := parseRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
users:
  - {id: u1, name: Ann}
steps:
  - {op: create, as: u1, type: Account, id: a1, attrs: {name: Acme}}
  - {op: follow, as: u1, type: Account, id: a1}
`), 0o644))

	batch, err := LoadBatch(path)
	require.NoError(t, err)
	assert.Len(t, batch.Users, 1)
	require.Len(t, batch.Steps, 2)

	m := batch.Steps[0].Mutation(&domain.User{ID: "u1"})
	assert.Equal(t, engine.MutationCreate, m.Kind)
	assert.Equal(t, "a1", m.Attrs["id"], "the step id becomes the record id")
	assert.Equal(t, "Acme", m.Attrs["name"])
	assert.NotContains(t, batch.Steps[0].Attrs, "id", "the step attrs are not modified")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("steps: [{op: update, type: Account}]\n"), 0o644))
	_, err = LoadBatch(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]")
}

func TestStepMutation_Post(t *testing.T) {
	step := Step{
		Op:     "post",
		Parent: "Case/k1",
		Post:   &PostSpec{Text: "hi", Teams: []string{"t1"}, Global: true, Internal: true},
	}
	m := step.Mutation(domain.SystemUser())

	assert.Equal(t, engine.MutationPost, m.Kind)
	assert.Equal(t, "Case", m.ParentType)
	assert.Equal(t, "k1", m.ParentID)
	assert.Equal(t, "hi", m.Post.Text)
	assert.Equal(t, []string{"t1"}, m.Post.TeamsIDs)
	assert.True(t, m.Post.IsGlobal)
	assert.True(t, m.Post.IsInternal)
}
