package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/notestream/internal/domain"
)

// TraceEvent is the outcome of one scenario step.
type TraceEvent struct {
	Step     int      `json:"step"`
	Op       string   `json:"op"`
	Actor    string   `json:"actor"`
	Target   string   `json:"target,omitempty"`
	At       string   `json:"at"`
	Notes    []string `json:"notes"`
	Followed []string `json:"followed,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// NoteLabel renders a note for matching and traces:
//
//	Type [ParentType/ParentID] [<- RelatedType/RelatedID] [: post]
//
// The post body is only included for Post notes.
func NoteLabel(n *domain.Note) string {
	var b strings.Builder
	b.WriteString(string(n.Type))
	if n.ParentID != "" {
		fmt.Fprintf(&b, " %s/%s", n.ParentType, n.ParentID)
	}
	if n.RelatedID != "" {
		fmt.Fprintf(&b, " <- %s/%s", n.RelatedType, n.RelatedID)
	}
	if n.Type == domain.NotePost && n.Post != "" {
		fmt.Fprintf(&b, ": %s", n.Post)
	}
	return b.String()
}

func noteLabels(notes []domain.Note) []string {
	out := make([]string, len(notes))
	for i := range notes {
		out[i] = NoteLabel(&notes[i])
	}
	return out
}
