package composer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/notestream/internal/access"
	"github.com/roach88/notestream/internal/acl"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/queryir"
)

// EntityStream returns the notes about an entity that actor may see,
// newest first, with the exact total.
func (c *Composer) EntityStream(ctx context.Context, actor *domain.User, entityType, id string, p Params) (Page, error) {
	q, err := c.ComposeEntityStream(ctx, actor, entityType, id, p)
	if err != nil {
		return Page{}, err
	}

	var (
		notes []domain.Note
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		notes, err = c.store.RunQuery(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = c.store.Count(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return Page{}, fmt.Errorf("entity stream of %s/%s: %w", entityType, id, err)
	}

	return Page{List: notes, Total: total, HasMore: q.Offset+len(notes) < total}, nil
}

// ComposeEntityStream checks actor's stream access on the entity and
// builds the paged query. The same query, unpaged, gives the count.
func (c *Composer) ComposeEntityStream(ctx context.Context, actor *domain.User, entityType, id string, p Params) (queryir.Select, error) {
	p, err := c.normalize(p)
	if err != nil {
		return queryir.Select{}, err
	}
	if entityType == domain.ScopeUser {
		return queryir.Select{}, fmt.Errorf("entity stream of %s/%s: %w", entityType, id, domain.ErrForbidden)
	}

	e, err := c.store.GetByID(ctx, entityType, id)
	if err != nil {
		return queryir.Select{}, fmt.Errorf("entity stream of %s/%s: %w", entityType, id, err)
	}
	ok, err := c.authority.CheckEntityStream(actor, e)
	if err != nil && !errors.Is(err, acl.ErrNotImplemented) {
		return queryir.Select{}, fmt.Errorf("entity stream of %s: %w", e, err)
	}
	if !ok {
		return queryir.Select{}, fmt.Errorf("entity stream of %s: %w: no stream access", e, domain.ErrForbidden)
	}

	rules, err := c.rules.ResolveForUser(p.Cache, actor)
	if err != nil {
		return queryir.Select{}, fmt.Errorf("entity stream of %s: %w", e, err)
	}
	search, err := searchWhere(p.Search, actor)
	if err != nil {
		return queryir.Select{}, err
	}

	var scope queryir.Predicate
	if actor.IsPortal() {
		canReadEmail, err := c.authority.CheckScope(actor, domain.ScopeEmail, acl.ActionRead)
		if err != nil && !errors.Is(err, acl.ErrNotImplemented) {
			return queryir.Select{}, fmt.Errorf("entity stream of %s: %w", e, err)
		}
		scope = queryir.AndOf(
			parentIs(entityType, id),
			queryir.Eq{Column: col("is_internal"), Value: false},
			portalRelatedWhere(rules.NotAll, actor.ID, canReadEmail),
		)
	} else {
		scope = queryir.AndOf(
			queryir.OrOf(parentIs(entityType, id), superParentIs(entityType, id)),
			restrictedWhere(rules, actor, entityType, id),
		)
	}

	where := queryir.AndOf(
		search,
		scope,
		ignoreWhere(rules.Ignored),
		streamWhere(p, []domain.NoteType{domain.NoteAssign, domain.NoteStatus}),
	)
	return baseSelect(where).WithLimit(p.MaxSize, p.Offset), nil
}

func parentIs(entityType, id string) queryir.Predicate {
	return queryir.AndOf(
		queryir.Eq{Column: col("parent_type"), Value: entityType},
		queryir.Eq{Column: col("parent_id"), Value: id},
	)
}

func superParentIs(entityType, id string) queryir.Predicate {
	return queryir.AndOf(
		queryir.Eq{Column: col("super_parent_type"), Value: entityType},
		queryir.Eq{Column: col("super_parent_id"), Value: id},
	)
}

// restrictedWhere applies team and own restrictions to notes that reach
// the entity through a related record or through a child rolled up to it.
// Notes directly about the entity are always visible once the entity is.
func restrictedWhere(rules access.Rules, actor *domain.User, entityType, id string) queryir.Predicate {
	restricted := rules.Restricted()
	if len(restricted) == 0 {
		return nil
	}
	restrictedValues := queryir.Strings(restricted)

	typed := func(types []string) queryir.Predicate {
		return queryir.OrOf(
			relatedIn(types),
			queryir.AndOf(noRelated(), queryir.In{Column: col("parent_type"), Values: queryir.Strings(types)}),
		)
	}

	return queryir.OrOf(
		relatedNotIn(restricted),
		queryir.AndOf(
			noRelated(),
			superParentIs(entityType, id),
			queryir.NotNull{Column: col("parent_id")},
			queryir.NotIn{Column: col("parent_type"), Values: restrictedValues},
		),
		queryir.AndOf(noRelated(), parentIs(entityType, id)),
		queryir.AndOf(
			typed(rules.OnlyTeam),
			queryir.OrOf(noteTeams(actor.TeamsIDs), noteUser(actor.ID)),
		),
		queryir.AndOf(
			typed(rules.OnlyOwn),
			noteUser(actor.ID),
		),
	)
}
