package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/notestream/internal/composer"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Subject  string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Subject)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion, result *Result) {
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertStream:
			err = h.assertStream(ctx, a)
		case AssertEntityStream:
			err = h.assertEntityStream(ctx, a)
		case AssertFollowers:
			err = h.assertFollowers(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			result.AddError("assertions[%d]: %v", i, err)
		}
	}
}

func params(a Assertion) composer.Params {
	p := composer.Params{
		Offset:  a.Offset,
		MaxSize: a.MaxSize,
		Filter:  a.Filter,
		SkipOwn: a.SkipOwn,
	}
	if a.Text != "" || a.Named != "" {
		p.Search = &composer.Search{Text: a.Text, Named: a.Named}
	}
	return p
}

func (h *Harness) assertStream(ctx context.Context, a Assertion) error {
	reader := a.As
	if reader == "" {
		reader = a.User
	}
	actor, err := h.actor(ctx, reader)
	if err != nil {
		return fmt.Errorf("resolve reader %q: %w", reader, err)
	}
	page, err := h.engine.UserStream(ctx, actor, a.User, params(a))
	return checkPage(a, "user "+a.User, page, err, len(page.List))
}

func (h *Harness) assertEntityStream(ctx context.Context, a Assertion) error {
	entityType, id, err := parseRef(a.Entity)
	if err != nil {
		return err
	}
	actor, err := h.actor(ctx, a.As)
	if err != nil {
		return fmt.Errorf("resolve reader %q: %w", a.As, err)
	}
	page, err := h.engine.EntityStream(ctx, actor, entityType, id, params(a))
	return checkPage(a, a.Entity, page, err, page.Total)
}

// checkPage compares a stream page. count is what Count is checked
// against.
func checkPage(a Assertion, subject string, page composer.Page, err error, count int) error {
	if kind := ErrorKind(err); kind != a.Error {
		return &AssertionError{
			Type:     a.Type,
			Subject:  subject,
			Expected: fmt.Sprintf("error %q", a.Error),
			Actual:   fmt.Sprintf("error %q (%v)", kind, err),
		}
	}
	if err != nil {
		return nil
	}

	labels := noteLabels(page.List)
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Subject: subject, Expected: expected, Actual: actual}
	}

	if a.Notes != nil && !slices.Equal(a.Notes, labels) {
		return fail(fmt.Sprintf("notes %q", a.Notes), fmt.Sprintf("notes %q", labels))
	}
	for _, want := range a.Contains {
		if !slices.Contains(labels, want) {
			return fail(fmt.Sprintf("contains %q", want), fmt.Sprintf("notes %q", labels))
		}
	}
	for _, unwanted := range a.Excludes {
		if slices.Contains(labels, unwanted) {
			return fail(fmt.Sprintf("excludes %q", unwanted), fmt.Sprintf("notes %q", labels))
		}
	}
	if a.Count != nil && *a.Count != count {
		return fail(fmt.Sprintf("count %d", *a.Count), fmt.Sprintf("count %d", count))
	}
	return nil
}

func (h *Harness) assertFollowers(ctx context.Context, a Assertion) error {
	entityType, id, err := parseRef(a.Entity)
	if err != nil {
		return err
	}
	ids, err := h.store.FollowerIDs(ctx, entityType, id)
	if err != nil {
		return err
	}
	want := a.Users
	if want == nil {
		want = []string{}
	}
	if ids == nil {
		ids = []string{}
	}
	if !slices.Equal(slices.Sorted(slices.Values(want)), ids) {
		return &AssertionError{
			Type:     a.Type,
			Subject:  a.Entity,
			Expected: fmt.Sprintf("followers %q", want),
			Actual:   fmt.Sprintf("followers %q", ids),
		}
	}
	return nil
}
