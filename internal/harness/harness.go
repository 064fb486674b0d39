package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/roach88/notestream/internal/acl"
	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/engine"
	"github.com/roach88/notestream/internal/metadata"
	"github.com/roach88/notestream/internal/projector"
	"github.com/roach88/notestream/internal/store"
	"github.com/roach88/notestream/internal/testutil"
)

// Error kinds used by step expectations and assertions.
const (
	ErrKindValidation     = "validation"
	ErrKindForbidden      = "forbidden"
	ErrKindNotFound       = "not_found"
	ErrKindAlreadyExists  = "already_exists"
	ErrKindNotImplemented = "not_implemented"
	ErrKindLogic          = "logic"
	ErrKindInternal       = "internal"
)

// ErrorKind classifies err. A nil error has kind "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrValidation):
		return ErrKindValidation
	case errors.Is(err, domain.ErrForbidden):
		return ErrKindForbidden
	case errors.Is(err, domain.ErrNotFound):
		return ErrKindNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return ErrKindAlreadyExists
	case errors.Is(err, acl.ErrNotImplemented):
		return ErrKindNotImplemented
	case domain.IsLogicError(err):
		return ErrKindLogic
	default:
		return ErrKindInternal
	}
}

func validErrorKind(kind string) bool {
	switch kind {
	case ErrKindValidation, ErrKindForbidden, ErrKindNotFound, ErrKindAlreadyExists,
		ErrKindNotImplemented, ErrKindLogic, ErrKindInternal:
		return true
	}
	return false
}

// Harness holds the state of one scenario run.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.Clock
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create a fresh in-memory store with a manual clock and sequential IDs
//  2. Seed the scenario users
//  3. Apply each step through engine.Apply and check its expectations
//  4. Evaluate the assertions
//
// An error is returned only when the scenario cannot be executed at all;
// failed expectations are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	meta, err := loadMetadata(scenario.Metadata)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewClock(scenario.Now)
	st, err := store.Open(":memory:",
		store.WithClock(clock),
		store.WithIDGenerator(domain.NewFixedGenerator("id")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store: st,
		engine: engine.New(st, meta,
			engine.WithClock(clock),
			engine.WithConfig(engine.Config{
				Projector: projector.Config{EmailWithContentEntityTypes: scenario.EmailWithContent},
			}),
		),
		clock:  clock,
		logger: slog.Default().With("scenario", scenario.Name),
	}

	if err := h.seedUsers(ctx, scenario.Users); err != nil {
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.executeStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Trace = append(result.Trace, event)
		checkStep(result, i, step, event)
	}

	h.evaluateAssertions(ctx, scenario.Assertions, result)

	h.logger.Debug("scenario finished", "steps", len(scenario.Steps), "pass", result.Pass, "errors", len(result.Errors))
	return result, nil
}

func loadMetadata(dir string) (*metadata.Metadata, error) {
	if dir == "" {
		return metadata.Default(), nil
	}
	meta, err := metadata.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return meta, nil
}

func (h *Harness) seedUsers(ctx context.Context, users []UserSpec) error {
	_, err := SeedUsers(ctx, h.store, users, false)
	return err
}

// SeedUsers stores the users and their email addresses. With
// skipExisting a user that is already stored is left untouched; the
// returned count is the number of users created.
func SeedUsers(ctx context.Context, st *store.Store, users []UserSpec, skipExisting bool) (int, error) {
	created := 0
	for _, u := range users {
		err := st.CreateUser(ctx, u.User())
		switch {
		case err == nil:
			created++
		case skipExisting && errors.Is(err, domain.ErrAlreadyExists):
			continue
		default:
			return created, err
		}
		if u.Email != "" {
			if err := st.SetEmailAddress(ctx, u.Email, domain.ScopeUser, u.ID); err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// actor resolves a user ID. Empty means the system user.
func (h *Harness) actor(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return domain.SystemUser(), nil
	}
	return h.store.GetUser(ctx, id)
}

// executeStep advances the clock and applies one step.
func (h *Harness) executeStep(ctx context.Context, i int, step Step) (TraceEvent, error) {
	at := h.clock.Advance(step.Advance)
	event, err := Execute(ctx, h.engine, i, step, at)
	if err == nil && event.Error != "" {
		h.logger.Debug("step failed", "step", i, "op", step.Op, "error", event.Error)
	}
	return event, err
}

// Execute applies one step through eng at time at. Mutation failures
// are recorded in the event; only an unresolvable actor is returned as
// an error. An empty actor is the system user.
func Execute(ctx context.Context, eng *engine.Engine, i int, step Step, at time.Time) (TraceEvent, error) {
	actor := domain.SystemUser()
	if step.As != "" {
		u, err := eng.User(ctx, step.As)
		if err != nil {
			return TraceEvent{}, fmt.Errorf("resolve actor %q: %w", step.As, err)
		}
		actor = u
	}

	event := TraceEvent{
		Step:  i,
		Op:    step.Op,
		Actor: actor.ID,
		At:    at.UTC().Format(time.RFC3339),
		Notes: []string{},
	}
	switch {
	case step.Type != "" && step.ID != "":
		event.Target = step.Type + "/" + step.ID
	case step.Type != "":
		event.Target = step.Type
	default:
		event.Target = step.Parent
	}

	out, err := eng.Apply(ctx, step.Mutation(actor))
	if err != nil {
		event.Error = ErrorKind(err)
	}
	if out.Entity != nil {
		event.Target = out.Entity.Type + "/" + out.Entity.ID
	}
	for _, n := range out.Notes {
		event.Notes = append(event.Notes, NoteLabel(n))
	}
	if len(out.Followed) > 0 {
		event.Followed = slices.Sorted(slices.Values(out.Followed))
	}
	return event, nil
}

// Mutation converts the step into an engine mutation performed by actor.
// The clock advance is not part of the mutation.
func (step Step) Mutation(actor *domain.User) engine.Mutation {
	m := engine.Mutation{
		Kind:       ops[step.Op],
		Actor:      actor,
		EntityType: step.Type,
		ID:         step.ID,
		Attrs:      step.Attrs,
		EmailID:    step.Email,
		IsInitial:  step.Initial,
		UserID:     step.User,
	}
	if m.Kind == engine.MutationCreate && step.ID != "" {
		attrs := maps.Clone(step.Attrs)
		if attrs == nil {
			attrs = map[string]any{}
		}
		attrs["id"] = step.ID
		m.Attrs = attrs
	}
	if step.Parent != "" {
		m.ParentType, m.ParentID, _ = parseRef(step.Parent)
	}
	if step.Post != nil {
		m.Post = projector.PostInput{
			Text:       step.Post.Text,
			UsersIDs:   step.Post.Users,
			TeamsIDs:   step.Post.Teams,
			PortalsIDs: step.Post.Portals,
			IsGlobal:   step.Post.Global,
			IsInternal: step.Post.Internal,
		}
	}
	return m
}

func checkStep(result *Result, i int, step Step, event TraceEvent) {
	want := step.Expect
	if want == nil {
		want = &StepExpect{}
	}
	if event.Error != want.Error {
		result.AddError("step %d (%s): expected error %q, got %q", i, step.Op, want.Error, event.Error)
	}
	if want.Notes != nil && !slices.Equal(want.Notes, event.Notes) {
		result.AddError("step %d (%s): expected notes %q, got %q", i, step.Op, want.Notes, event.Notes)
	}
	if want.Followed != nil {
		got := event.Followed
		if got == nil {
			got = []string{}
		}
		if !slices.Equal(slices.Sorted(slices.Values(want.Followed)), got) {
			result.AddError("step %d (%s): expected followed %q, got %q", i, step.Op, want.Followed, got)
		}
	}
}
