package engine

import (
	"fmt"
	"log/slog"
)

// MutationError reports a failed mutation with enough context to replay
// it by hand.
type MutationError struct {
	Kind       MutationKind
	EntityType string
	EntityID   string
	Err        error
}

func (e *MutationError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Kind, e.EntityType, e.EntityID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.EntityType, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

func logMutationError(m Mutation, err error) {
	actorID := ""
	if m.Actor != nil {
		actorID = m.Actor.ID
	}
	slog.Error("mutation failed",
		"error", err,
		"kind", string(m.Kind),
		"entity_type", m.EntityType,
		"entity_id", m.ID,
		"actor_id", actorID,
	)
}
