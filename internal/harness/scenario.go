package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/notestream/internal/domain"
	"github.com/roach88/notestream/internal/engine"
)

// Scenario defines a stream scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the clock reading at the first step.
	Now time.Time `yaml:"now"`

	// Metadata is a directory holding a CUE metadata package. Relative
	// paths are resolved against the scenario file. Empty means the
	// built-in metadata.
	Metadata string `yaml:"metadata,omitempty"`

	// EmailWithContent lists parent types whose email notes carry the body.
	EmailWithContent []string `yaml:"email_with_content,omitempty"`

	// Users are created before the first step.
	Users []UserSpec `yaml:"users"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`

	// Assertions run after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// UserSpec seeds a user. Users are active unless Inactive is set.
type UserSpec struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Type     domain.UserType `yaml:"type,omitempty"`
	Inactive bool            `yaml:"inactive,omitempty"`
	Teams    []string        `yaml:"teams,omitempty"`
	Portals  []string        `yaml:"portals,omitempty"`
	Roles    []string        `yaml:"roles,omitempty"`
	// Email registers an address owned by the user.
	Email string `yaml:"email,omitempty"`
}

// User converts the seed entry to a domain user.
func (u UserSpec) User() *domain.User {
	userType := u.Type
	if userType == "" {
		userType = domain.UserRegular
	}
	return &domain.User{
		ID:         u.ID,
		Name:       u.Name,
		Type:       userType,
		IsActive:   !u.Inactive,
		TeamsIDs:   u.Teams,
		PortalsIDs: u.Portals,
		RolesIDs:   u.Roles,
	}
}

// Step is one mutation.
type Step struct {
	// Op is an engine mutation kind, see engine.MutationKind.
	Op string `yaml:"op"`

	// As is the acting user. Empty means the system user.
	As string `yaml:"as,omitempty"`

	// Advance moves the clock before the step runs.
	Advance time.Duration `yaml:"advance,omitempty"`

	Type  string         `yaml:"type,omitempty"`
	ID    string         `yaml:"id,omitempty"`
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// Parent is "Type/ID".
	Parent string `yaml:"parent,omitempty"`

	Email   string    `yaml:"email,omitempty"`
	Initial bool      `yaml:"initial,omitempty"`
	Post    *PostSpec `yaml:"post,omitempty"`

	// User is the follower of follow and unfollow.
	User string `yaml:"user,omitempty"`

	Expect *StepExpect `yaml:"expect,omitempty"`
}

// PostSpec is the body and audience of a post.
type PostSpec struct {
	Text     string   `yaml:"text"`
	Users    []string `yaml:"users,omitempty"`
	Teams    []string `yaml:"teams,omitempty"`
	Portals  []string `yaml:"portals,omitempty"`
	Global   bool     `yaml:"global,omitempty"`
	Internal bool     `yaml:"internal,omitempty"`
}

// StepExpect checks the outcome of a step. Nil lists are not checked.
type StepExpect struct {
	// Error is an error kind, see ErrorKind. Empty expects success.
	Error    string   `yaml:"error,omitempty"`
	Notes    []string `yaml:"notes,omitempty"`
	Followed []string `yaml:"followed,omitempty"`
}

// Assertion checks the final state.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// User is the stream owner (stream).
	User string `yaml:"user,omitempty"`

	// As is the reader. Defaults to User for stream assertions and to
	// the system user otherwise.
	As string `yaml:"as,omitempty"`

	// Entity is "Type/ID" (entity_stream, followers).
	Entity string `yaml:"entity,omitempty"`

	Offset  int    `yaml:"offset,omitempty"`
	MaxSize int    `yaml:"max_size,omitempty"`
	Filter  string `yaml:"filter,omitempty"`
	SkipOwn bool   `yaml:"skip_own,omitempty"`
	Text    string `yaml:"text,omitempty"`
	Named   string `yaml:"named,omitempty"`

	// Notes is the exact ordered list of note labels.
	Notes []string `yaml:"notes,omitempty"`
	// Contains and Excludes check single labels.
	Contains []string `yaml:"contains,omitempty"`
	Excludes []string `yaml:"excludes,omitempty"`
	// Users is the exact follower list.
	Users []string `yaml:"users,omitempty"`
	// Count is the stream length, or the total for entity streams.
	Count *int `yaml:"count,omitempty"`
	// Error expects the read to fail with this kind.
	Error string `yaml:"error,omitempty"`
}

// Assertion type constants.
const (
	AssertStream       = "stream"
	AssertEntityStream = "entity_stream"
	AssertFollowers    = "followers"
)

var ops = map[string]engine.MutationKind{
	string(engine.MutationCreate):        engine.MutationCreate,
	string(engine.MutationUpdate):        engine.MutationUpdate,
	string(engine.MutationDelete):        engine.MutationDelete,
	string(engine.MutationRelate):        engine.MutationRelate,
	string(engine.MutationEmailReceived): engine.MutationEmailReceived,
	string(engine.MutationEmailSent):     engine.MutationEmailSent,
	string(engine.MutationPost):          engine.MutationPost,
	string(engine.MutationFollow):        engine.MutationFollow,
	string(engine.MutationUnfollow):      engine.MutationUnfollow,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and a relative metadata path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Metadata != "" && !filepath.IsAbs(s.Metadata) {
		s.Metadata = filepath.Join(filepath.Dir(path), s.Metadata)
	}
	return s, nil
}

// Batch is a list of users and steps without assertions, applied to a
// persistent store by the apply command.
type Batch struct {
	Users []UserSpec `yaml:"users,omitempty"`
	Steps []Step     `yaml:"steps"`
}

// LoadBatch reads and validates a batch YAML file.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	var batch Batch
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i, u := range batch.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("invalid batch: users[%d]: id is required", i)
		}
	}
	for i, step := range batch.Steps {
		if err := validateStep(step); err != nil {
			return nil, fmt.Errorf("invalid batch: steps[%d]: %w", i, err)
		}
	}
	return &batch, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Now.IsZero() {
		return fmt.Errorf("now is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := map[string]bool{}
	for i, u := range s.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	kind, ok := ops[step.Op]
	if !ok {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Advance < 0 {
		return fmt.Errorf("advance must be non-negative")
	}
	if step.Expect != nil && step.Expect.Error != "" && !validErrorKind(step.Expect.Error) {
		return fmt.Errorf("unknown error kind %q", step.Expect.Error)
	}

	switch kind {
	case engine.MutationCreate:
		if step.Type == "" {
			return fmt.Errorf("type is required for %s", step.Op)
		}
	case engine.MutationUpdate, engine.MutationDelete, engine.MutationFollow, engine.MutationUnfollow:
		if step.Type == "" || step.ID == "" {
			return fmt.Errorf("type and id are required for %s", step.Op)
		}
	case engine.MutationRelate:
		if step.Type == "" || step.ID == "" {
			return fmt.Errorf("type and id are required for %s", step.Op)
		}
		if _, _, err := parseRef(step.Parent); err != nil {
			return err
		}
	case engine.MutationEmailReceived, engine.MutationEmailSent:
		if step.Email == "" {
			return fmt.Errorf("email is required for %s", step.Op)
		}
		if _, _, err := parseRef(step.Parent); err != nil {
			return err
		}
	case engine.MutationPost:
		if step.Post == nil {
			return fmt.Errorf("post is required for %s", step.Op)
		}
		if step.Parent != "" {
			if _, _, err := parseRef(step.Parent); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	if a.Error != "" && !validErrorKind(a.Error) {
		return fmt.Errorf("unknown error kind %q", a.Error)
	}
	switch a.Type {
	case AssertStream:
		if a.User == "" {
			return fmt.Errorf("user is required for %s", a.Type)
		}
	case AssertEntityStream, AssertFollowers:
		if _, _, err := parseRef(a.Entity); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// parseRef splits "Type/ID".
func parseRef(ref string) (string, string, error) {
	entityType, id, ok := strings.Cut(ref, "/")
	if !ok || entityType == "" || id == "" {
		return "", "", fmt.Errorf("invalid entity reference %q: want Type/ID", ref)
	}
	return entityType, id, nil
}
