package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/notestream/internal/access"
	"github.com/roach88/notestream/internal/acl"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/queryir"
	"github.com/roach88/notestream/internal/querysql"
)

// Branch is one visibility rule of the user stream.
type Branch struct {
	Name  string
	Query queryir.Select
}

// UserStreamQuery is a composed user stream before execution.
type UserStreamQuery struct {
	Branches []Branch
	Union    queryir.Union
	MaxSize  int
}

// Explain is the compiled form of a user stream.
type Explain struct {
	Branches []string `json:"branches"`
	SQL      string   `json:"sql"`
	Args     []any    `json:"args"`
}

// UserStream returns the notes userID may see, newest first, as seen by
// actor. The total is not counted; HasMore reports a further page.
func (c *Composer) UserStream(ctx context.Context, actor *domain.User, userID string, p Params) (Page, error) {
	q, err := c.ComposeUserStream(ctx, actor, userID, p)
	if err != nil {
		return Page{}, err
	}

	notes, err := c.store.RunQuery(ctx, q.Union)
	if err != nil {
		return Page{}, fmt.Errorf("user stream of %s: %w", userID, err)
	}

	page := Page{List: notes, Total: -1}
	if len(notes) > q.MaxSize {
		page.List = notes[:q.MaxSize]
		page.HasMore = true
	}
	return page, nil
}

// ExplainUserStream compiles the user stream without running it.
func (c *Composer) ExplainUserStream(ctx context.Context, actor *domain.User, userID string, p Params) (Explain, error) {
	q, err := c.ComposeUserStream(ctx, actor, userID, p)
	if err != nil {
		return Explain{}, err
	}
	sql, args, err := querysql.NewSQLCompiler().Compile(q.Union)
	if err != nil {
		return Explain{}, fmt.Errorf("explain user stream: %w", err)
	}
	names := make([]string, len(q.Branches))
	for i, b := range q.Branches {
		names[i] = b.Name
	}
	return Explain{Branches: names, SQL: sql, Args: args}, nil
}

// ComposeUserStream loads the target user, checks actor may read their
// stream and builds the union.
func (c *Composer) ComposeUserStream(ctx context.Context, actor *domain.User, userID string, p Params) (UserStreamQuery, error) {
	p, err := c.normalize(p)
	if err != nil {
		return UserStreamQuery{}, err
	}
	if userID == "" {
		userID = actor.ID
	}

	user := actor
	if userID != actor.ID {
		user, err = c.store.GetUser(ctx, userID)
		if err != nil {
			return UserStreamQuery{}, fmt.Errorf("user stream of %s: %w", userID, err)
		}
	}
	if !c.authority.CheckUserPermission(actor, user) {
		return UserStreamQuery{}, fmt.Errorf("user stream of %s: %w: no user permission", userID, domain.ErrForbidden)
	}

	rules, err := c.rules.ResolveForUser(p.Cache, user)
	if err != nil {
		return UserStreamQuery{}, fmt.Errorf("user stream of %s: %w", userID, err)
	}
	search, err := searchWhere(p.Search, actor)
	if err != nil {
		return UserStreamQuery{}, err
	}

	canReadEmail := false
	if user.IsPortal() {
		canReadEmail, err = c.authority.CheckScope(user, domain.ScopeEmail, acl.ActionRead)
		if err != nil && !errors.Is(err, acl.ErrNotImplemented) {
			return UserStreamQuery{}, fmt.Errorf("user stream of %s: %w", userID, err)
		}
	}

	base := baseSelect(queryir.AndOf(search, streamWhere(p, []domain.NoteType{domain.NoteUpdate, domain.NoteStatus}))).
		WithLimit(p.Offset+p.MaxSize+1, 0)

	b := userBranches{user: user, rules: rules, base: base, canReadEmail: canReadEmail}
	branches := b.addressed()
	if p.SkipOwn {
		branches = skipOwn(branches, actor.ID)
	}
	branches = append(branches, b.authored()...)

	// Plain UNION: a note matched by several branches is returned once.
	union := queryir.Union{
		OrderBy: []queryir.Order{{Column: "number", Desc: true}},
		Limit:   p.MaxSize + 1,
		Offset:  p.Offset,
	}
	for _, br := range branches {
		union.Queries = append(union.Queries, br.Query)
	}

	slog.Debug("user stream composed",
		"user_id", user.ID,
		"actor_id", actor.ID,
		"branches", len(branches),
		"offset", p.Offset,
		"max_size", p.MaxSize,
	)
	return UserStreamQuery{Branches: branches, Union: union, MaxSize: p.MaxSize}, nil
}

// userBranches derives the branches of one user's stream from an
// immutable base query.
type userBranches struct {
	user         *domain.User
	rules        access.Rules
	base         queryir.Select
	canReadEmail bool
}

// followedParent joins the user's subscriptions on the note parent.
func (b userBranches) followedParent() queryir.Select {
	return b.base.
		Join(queryir.Join{
			Kind:  queryir.InnerJoin,
			Table: "subscriptions",
			Alias: "s",
			On: queryir.AndOf(
				queryir.ColEq{Left: "s.entity_type", Right: col("parent_type")},
				queryir.ColEq{Left: "s.entity_id", Right: col("parent_id")},
				queryir.Eq{Column: "s.user_id", Value: b.user.ID},
			),
		}).
		Filter(ignoreWhere(b.rules.Ignored))
}

// followedSuperParent joins the user's subscriptions on the note super
// parent and drops notes whose parent the user follows directly, which
// the parent branches already cover.
func (b userBranches) followedSuperParent() queryir.Select {
	return b.base.
		Join(queryir.Join{
			Kind:  queryir.InnerJoin,
			Table: "subscriptions",
			Alias: "ss",
			On: queryir.AndOf(
				queryir.ColEq{Left: "ss.entity_type", Right: col("super_parent_type")},
				queryir.ColEq{Left: "ss.entity_id", Right: col("super_parent_id")},
				queryir.Eq{Column: "ss.user_id", Value: b.user.ID},
			),
		}).
		Join(queryir.Join{
			Kind:  queryir.LeftJoin,
			Table: "subscriptions",
			Alias: "sx",
			On: queryir.AndOf(
				queryir.ColEq{Left: "sx.entity_type", Right: col("parent_type")},
				queryir.ColEq{Left: "sx.entity_id", Right: col("parent_id")},
				queryir.Eq{Column: "sx.user_id", Value: b.user.ID},
			),
		}).
		Filter(queryir.IsNull{Column: "sx.id"}).
		Filter(queryir.OrOf(
			queryir.ColNotEq{Left: col("parent_id"), Right: col("super_parent_id")},
			queryir.ColNotEq{Left: col("parent_type"), Right: col("super_parent_type")},
		)).
		Filter(ignoreWhere(b.rules.Ignored))
}

func (b userBranches) teamOrUser() queryir.Predicate {
	return queryir.OrOf(noteTeams(b.user.TeamsIDs), noteUser(b.user.ID))
}

// addressed returns the branches reaching the user through follows,
// mentions, portals and teams.
func (b userBranches) addressed() []Branch {
	var out []Branch
	restricted := b.rules.Restricted()
	onlyTeam, onlyOwn := b.rules.OnlyTeam, b.rules.OnlyOwn

	parent := b.followedParent()
	if b.user.IsPortal() {
		out = append(out, Branch{"subscription_portal", parent.
			Filter(queryir.Eq{Column: col("is_internal"), Value: false}).
			Filter(portalRelatedWhere(b.rules.NotAll, b.user.ID, b.canReadEmail))})
	} else {
		out = append(out, Branch{"subscription", parent.
			Filter(queryir.OrOf(relatedNotIn(restricted), noRelated()))})
		if len(onlyTeam) > 0 {
			out = append(out, Branch{"subscription_team", parent.
				Filter(relatedIn(onlyTeam)).
				Filter(b.teamOrUser())})
		}
		if len(onlyOwn) > 0 {
			out = append(out, Branch{"subscription_own", parent.
				Filter(relatedIn(onlyOwn)).
				Filter(noteUser(b.user.ID))})
		}

		super := b.followedSuperParent()
		out = append(out, Branch{"super_parent", super.
			Filter(queryir.OrOf(
				relatedNotIn(restricted),
				queryir.AndOf(noRelated(), queryir.NotIn{Column: col("parent_type"), Values: queryir.Strings(restricted)}),
			))})
		if len(onlyTeam) > 0 {
			out = append(out, Branch{"super_parent_team", super.
				Filter(queryir.OrOf(
					relatedIn(onlyTeam),
					queryir.AndOf(noRelated(), queryir.In{Column: col("parent_type"), Values: queryir.Strings(onlyTeam)}),
				)).
				Filter(b.teamOrUser())})
		}
		if len(onlyOwn) > 0 {
			out = append(out, Branch{"super_parent_own", super.
				Filter(queryir.OrOf(
					relatedIn(onlyOwn),
					queryir.AndOf(noRelated(), queryir.In{Column: col("parent_type"), Values: queryir.Strings(onlyOwn)}),
				)).
				Filter(noteUser(b.user.ID))})
		}
	}

	out = append(out, Branch{"post_mentioned", b.base.
		Filter(queryir.NotEq{Column: col("created_by_id"), Value: b.user.ID}).
		Filter(noteUser(b.user.ID)).
		Filter(topLevelPost(false))})

	if b.user.IsPortal() && len(b.user.PortalsIDs) > 0 {
		out = append(out, Branch{"post_portal", b.base.
			Filter(notePortals(b.user.PortalsIDs)).
			Filter(topLevelPost(false))})
	}
	if len(b.user.TeamsIDs) > 0 {
		out = append(out, Branch{"post_team", b.base.
			Filter(noteTeams(b.user.TeamsIDs)).
			Filter(topLevelPost(false))})
	}
	return out
}

// authored returns the branches of the user's own and global posts.
func (b userBranches) authored() []Branch {
	out := []Branch{{"post_own", b.base.
		Filter(queryir.Eq{Column: col("created_by_id"), Value: b.user.ID}).
		Filter(topLevelPost(false))}}

	if (!b.user.IsPortal() || b.user.IsAdmin()) && !b.user.IsAPI() {
		out = append(out, Branch{"post_global", b.base.Filter(topLevelPost(true))})
	}
	return out
}

// skipOwn re-wraps every built branch with one extra predicate instead of
// deriving the branches again.
func skipOwn(branches []Branch, actorID string) []Branch {
	out := make([]Branch, len(branches))
	for i, br := range branches {
		out[i] = Branch{Name: br.Name, Query: br.Query.Filter(queryir.NotEq{Column: col("created_by_id"), Value: actorID})}
	}
	return out
}
