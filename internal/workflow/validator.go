package workflow

import (
	"fmt"
	"strings"
)

// Validation is the verdict for a proposed status transition. An illegal
// transition is reported as data, never as an error: the HTTP layer turns an
// invalid verdict into a 400 response.
type Validation struct {
	Valid    bool     `json:"valid"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateStatusTransition decides whether an entity may move from one
// unified status to another. It is a pure function over the taxonomy: the
// caller supplies the freshly read current status, and the verdict only holds
// for that snapshot.
//
// Rules:
//   - empty from means the entity is being created; only the initial status
//     is accepted
//   - from == to is accepted with a warning (idempotent re-submit)
//   - side terminal states are reachable from any non-terminal state
//   - otherwise the transition must advance exactly one step along the
//     canonical chain; skipped steps are named in the reason
func ValidateStatusTransition(entity EntityType, from, to string) Validation {
	c, ok := chains[entity]
	if !ok {
		return invalid("unknown entity type %q", entity)
	}
	if to == "" {
		return invalid("target status required")
	}
	if !c.knows(to) {
		return invalid("unknown status %q for %s", to, entity)
	}

	if from == "" {
		if to == c.ordered[0] {
			return Validation{Valid: true}
		}
		return invalid("%s must be created in status %s, not %s", entity, c.ordered[0], to)
	}
	if !c.knows(from) {
		return invalid("unknown status %q for %s", from, entity)
	}

	if from == to {
		return Validation{
			Valid:    true,
			Warnings: []string{fmt.Sprintf("status already %s, transition is a no-op", to)},
		}
	}

	if c.isSideTerminal(to) {
		if c.isTerminal(from) {
			return invalid("cannot move to %s from terminal status %s", to, from)
		}
		return Validation{Valid: true}
	}
	if c.isSideTerminal(from) {
		return invalid("status %s is terminal, no further transitions allowed", from)
	}

	fromIdx := c.orderIndex(from)
	toIdx := c.orderIndex(to)
	switch {
	case toIdx < fromIdx:
		return invalid("backwards transition %s -> %s is not allowed", from, to)
	case toIdx == fromIdx+1:
		return Validation{Valid: true}
	default:
		skipped := c.ordered[fromIdx+1 : toIdx]
		return invalid("cannot skip intermediate status %s between %s and %s",
			strings.Join(skipped, ", "), from, to)
	}
}

func invalid(format string, args ...any) Validation {
	return Validation{Valid: false, Reason: fmt.Sprintf(format, args...)}
}
