package workflow

import "github.com/rotisserie/eris"

// Sentinel errors surfaced to callers. Concurrency conflicts are never
// auto-retried; the caller decides whether to override.
var (
	// ErrAlreadyClaimed means the review is claimed by another staff member.
	ErrAlreadyClaimed = eris.New("workflow: review already claimed")

	// ErrStaleClaim means a reassignment raced with another change of
	// claimant and must be re-read before retrying.
	ErrStaleClaim = eris.New("workflow: stale claim")

	// ErrTerminalState means a mutating operation was attempted against a
	// rejected or escalated review. Nothing is partially applied.
	ErrTerminalState = eris.New("workflow: review is terminal and read-only")

	// ErrForbiddenOverride means the requesting staff's role does not
	// strictly outrank the current claimant's.
	ErrForbiddenOverride = eris.New("workflow: insufficient rank to override claim")

	// ErrInvalidTransition means the requested status change is not an edge
	// of the workflow graph.
	ErrInvalidTransition = eris.New("workflow: invalid status transition")

	// ErrNotClaimant means the acting staff member does not hold the claim
	// required for the operation.
	ErrNotClaimant = eris.New("workflow: operation requires holding the claim")
)
