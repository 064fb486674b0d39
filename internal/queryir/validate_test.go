package queryir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate_Valid(t *testing.T) {
	q := Select{From: "notes", Alias: "n", Columns: []string{"n.id"}}.
		Join(Join{Kind: LeftJoin, Table: "subscriptions", Alias: "s", On: ColEq{Left: "s.entity_id", Right: "n.parent_id"}}).
		Filter(AndOf(
			Eq{Column: "n.type", Value: "Post"},
			Gt{Column: "n.created_at", Value: time.Unix(0, 0)},
			IsNull{Column: "s.id"},
			Exists{Query: Select{From: "note_users", Where: ColEq{Left: "note_users.note_id", Right: "n.id"}}},
		))

	res := Validate(q)
	assert.True(t, res.Valid, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
	}{
		{"nil", nil, "nil query"},
		{"empty from", Select{}, "select: empty from"},
		{"join without on", Select{From: "notes", Joins: []Join{{Table: "x"}}}, "select notes: join[0] x has no condition"},
		{"bad value", Select{From: "notes", Where: Eq{Column: "n.x", Value: 1.5}}, "n.x: unsupported value type float64"},
		{"empty union", Union{}, "union: no member queries"},
		{
			"union width",
			Union{Queries: []Select{
				{From: "notes", Columns: []string{"a"}},
				{From: "notes", Columns: []string{"a", "b"}},
			}},
			"union: member 1 selects 2 columns, member 0 selects 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.q)
			assert.False(t, res.Valid)
			assert.Contains(t, res.Errors, tt.want)
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	res := Validate(Select{From: "notes", Where: AndOf(In{Column: "n.type"}, Or{})})
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"in n.type: empty list never matches", "or: empty disjunction never matches"}, res.Warnings)
}
