package composer

import (
	"fmt"
	"strings"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/queryir"
	"github.com/roach88/notestream/internal/store"
)

// noteAlias is the alias of the notes table in every stream query.
const noteAlias = "n"

func col(name string) string { return noteAlias + "." + name }

var byNumberDesc = queryir.Order{Column: col("number"), Desc: true}

// NamedFilters are the named filters a Search may select.
var NamedFilters = map[string]func(actor *domain.User) queryir.Predicate{
	"mine": func(actor *domain.User) queryir.Predicate {
		return queryir.Eq{Column: col("created_by_id"), Value: actor.ID}
	},
	"emails": func(*domain.User) queryir.Predicate {
		return queryir.In{Column: col("type"), Values: noteTypes(domain.NoteEmailReceived, domain.NoteEmailSent)}
	},
	"internal": func(*domain.User) queryir.Predicate {
		return queryir.Eq{Column: col("is_internal"), Value: true}
	},
}

func noteTypes(types ...domain.NoteType) []any {
	out := make([]any, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// baseSelect is the shared shape every stream query starts from.
func baseSelect(where queryir.Predicate) queryir.Select {
	return queryir.Select{
		From:    store.NotesTable,
		Alias:   noteAlias,
		Columns: store.NoteColumns(noteAlias),
		Where:   where,
		OrderBy: []queryir.Order{byNumberDesc},
	}
}

// searchWhere renders the caller's search. An unknown named filter is a
// validation error.
func searchWhere(s *Search, actor *domain.User) (queryir.Predicate, error) {
	if s == nil {
		return nil, nil
	}
	var preds []queryir.Predicate
	if text := strings.TrimSpace(s.Text); text != "" {
		preds = append(preds, queryir.Like{Column: col("post"), Pattern: "%" + text + "%"})
	}
	if s.Named != "" {
		f, ok := NamedFilters[s.Named]
		if !ok {
			return nil, fmt.Errorf("%w: unknown filter %q", domain.ErrValidation, s.Named)
		}
		preds = append(preds, f(actor))
	}
	preds = append(preds, s.Where)
	return queryir.AndOf(preds...), nil
}

// streamWhere renders the paging-independent request filters.
func streamWhere(p Params, updates []domain.NoteType) queryir.Predicate {
	var preds []queryir.Predicate
	if p.After != nil && !p.After.IsZero() {
		preds = append(preds, queryir.Gt{Column: col("created_at"), Value: *p.After})
	}
	switch p.Filter {
	case FilterPosts:
		preds = append(preds, queryir.Eq{Column: col("type"), Value: string(domain.NotePost)})
	case FilterUpdates:
		preds = append(preds, queryir.In{Column: col("type"), Values: noteTypes(updates...)})
	}
	return queryir.AndOf(preds...)
}

// ignoreWhere hides notes whose parent or related entity is of an
// ignored type, and email notes when emails are ignored.
func ignoreWhere(ignored []string) queryir.Predicate {
	if len(ignored) == 0 {
		return nil
	}
	values := queryir.Strings(ignored)
	preds := []queryir.Predicate{
		queryir.OrOf(
			queryir.IsNull{Column: col("related_type")},
			queryir.NotIn{Column: col("related_type"), Values: values},
		),
		queryir.OrOf(
			queryir.IsNull{Column: col("parent_type")},
			queryir.NotIn{Column: col("parent_type"), Values: values},
		),
	}
	for _, t := range ignored {
		if t == domain.ScopeEmail {
			preds = append(preds, queryir.NotIn{
				Column: col("type"),
				Values: noteTypes(domain.NoteEmailReceived, domain.NoteEmailSent),
			})
		}
	}
	return queryir.AndOf(preds...)
}

func noRelated() queryir.Predicate {
	return queryir.IsNull{Column: col("related_id")}
}

func relatedIn(types []string) queryir.Predicate {
	return queryir.AndOf(
		queryir.NotNull{Column: col("related_id")},
		queryir.In{Column: col("related_type"), Values: queryir.Strings(types)},
	)
}

func relatedNotIn(types []string) queryir.Predicate {
	return queryir.AndOf(
		queryir.NotNull{Column: col("related_id")},
		queryir.NotIn{Column: col("related_type"), Values: queryir.Strings(types)},
	)
}

// member is a correlated membership check against one of the note
// membership tables.
func member(table, alias, column string, values []any) queryir.Predicate {
	return queryir.Exists{Query: queryir.Select{
		From:  table,
		Alias: alias,
		Where: queryir.AndOf(
			queryir.ColEq{Left: alias + ".note_id", Right: col("id")},
			queryir.In{Column: alias + "." + column, Values: values},
		),
	}}
}

func noteUser(userID string) queryir.Predicate {
	return member("note_users", "nu", "user_id", []any{userID})
}

func noteTeams(teamIDs []string) queryir.Predicate {
	return member("note_teams", "nt", "team_id", queryir.Strings(teamIDs))
}

func notePortals(portalIDs []string) queryir.Predicate {
	return member("note_portals", "np", "portal_id", queryir.Strings(portalIDs))
}

// portalRelatedWhere limits a portal user to notes without a related
// entity, with a related entity of a fully readable type, or, with email
// read access, related emails the user takes part in.
func portalRelatedWhere(notAll []string, userID string, canReadEmail bool) queryir.Predicate {
	preds := []queryir.Predicate{noRelated(), relatedNotIn(notAll)}
	if canReadEmail {
		preds = append(preds, queryir.AndOf(
			queryir.NotNull{Column: col("related_id")},
			queryir.Eq{Column: col("related_type"), Value: domain.ScopeEmail},
			noteUser(userID),
		))
	}
	return queryir.OrOf(preds...)
}

// topLevelPost matches posts without a parent.
func topLevelPost(global bool) queryir.Predicate {
	return queryir.AndOf(
		queryir.IsNull{Column: col("parent_id")},
		queryir.Eq{Column: col("type"), Value: string(domain.NotePost)},
		queryir.Eq{Column: col("is_global"), Value: global},
	)
}
