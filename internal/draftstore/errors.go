package draftstore

import (
	"fmt"

	"github.com/iceos/orchestrator/internal/validator"
)

// NotFoundError reports a session with no stored draft.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("draftstore: no draft for session %q", e.SessionID)
}

// ConflictError reports an X-Version-Lock mismatch (spec §4.9): the caller's
// view of the draft is stale.
type ConflictError struct {
	SessionID string
	Expected  string
	Got       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("draftstore: version lock mismatch for session %q: have %s, got %s", e.SessionID, e.Expected, e.Got)
}

// RateLimitedError reports a mutation rejected by the per-(token, route)
// limiter.
type RateLimitedError struct {
	Token             string
	Route             string
	RetryAfterSeconds int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("draftstore: rate limit exceeded for token %q on route %q, retry after %ds", e.Token, e.Route, e.RetryAfterSeconds)
}

// NotLockedYetError reports an attempt to instantiate a draft with no
// finalizable partial blueprint.
type NotLockedYetError struct {
	SessionID string
}

func (e *NotLockedYetError) Error() string {
	return fmt.Sprintf("draftstore: session %q has no partial blueprint to instantiate", e.SessionID)
}

// FinalizationFailedError reports an Instantiate call whose partial
// blueprint did not pass validation (spec §3 PartialBlueprint.finalize:
// "fails if invalid"), or a Store with no validator wired at all.
type FinalizationFailedError struct {
	SessionID string
	Result    validator.Result
}

func (e *FinalizationFailedError) Error() string {
	return fmt.Sprintf("draftstore: session %q partial blueprint failed validation: %v", e.SessionID, e.Result.Errors)
}
