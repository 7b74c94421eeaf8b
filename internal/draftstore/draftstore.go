// Package draftstore implements the Draft Store (C8): a keyed
// session_id -> Draft store with optimistic concurrency via X-Version-Lock,
// per-(token, route) rate limiting on mutations, and a draft.updated
// broadcast on every successful mutation (spec §4.9).
package draftstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/ratelimit"
	"github.com/iceos/orchestrator/internal/validator"
)

const defaultDraftTTL = 24 * time.Hour

// Broadcaster fans a draft.updated event out to a session's connected WS
// clients. Implemented by the MCP WebSocket gateway; decoupled here so
// draftstore never imports it.
type Broadcaster interface {
	BroadcastDraftUpdate(sessionID string, draft *blueprint.Draft)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastDraftUpdate(string, *blueprint.Draft) {}

// Store mediates all draft reads/writes through Backend, enforcing the
// version-lock and rate-limit invariants uniformly.
type Store struct {
	backend     Backend
	limiter     *ratelimit.Limiter
	broadcaster Broadcaster
	validator   *validator.Validator
	ttl         time.Duration

	mutationLimit         int64
	mutationWindowSeconds int
}

// New builds a Store. limiter and broadcaster may be nil — mutations are
// then unthrottled and unbroadcast, useful for tests. v gates Instantiate:
// a nil v means finalization is never attempted (Instantiate returns
// *FinalizationFailedError for any draft that has a partial blueprint), so
// production wiring must supply one.
func New(backend Backend, limiter *ratelimit.Limiter, broadcaster Broadcaster, v *validator.Validator) *Store {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	return &Store{
		backend:               backend,
		limiter:               limiter,
		broadcaster:           broadcaster,
		validator:             v,
		ttl:                   defaultDraftTTL,
		mutationLimit:         60,
		mutationWindowSeconds: 60,
	}
}

// SetBroadcaster completes construction once a Broadcaster (the WS
// gateway) has been built — draftstore.New is typically called before the
// gateway exists, since the gateway's own inbound handlers in turn need a
// *Store to mutate.
func (s *Store) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = noopBroadcaster{}
	}
	s.broadcaster = b
}

func draftKey(sessionID string) string {
	return fmt.Sprintf("draft:%s", sessionID)
}

// Get fetches a session's draft, or *NotFoundError if none exists.
func (s *Store) Get(ctx context.Context, sessionID string) (*blueprint.Draft, error) {
	raw, found, err := s.backend.Get(ctx, draftKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("draftstore: get %q: %w", sessionID, err)
	}
	if !found {
		return nil, &NotFoundError{SessionID: sessionID}
	}
	var draft blueprint.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("draftstore: decode draft %q: %w", sessionID, err)
	}
	return &draft, nil
}

// CreateOrGet returns the existing draft for sessionID, or creates and
// persists an empty one.
func (s *Store) CreateOrGet(ctx context.Context, sessionID string) (*blueprint.Draft, error) {
	draft, err := s.Get(ctx, sessionID)
	if err == nil {
		return draft, nil
	}
	var nf *NotFoundError
	if !isNotFound(err, &nf) {
		return nil, err
	}

	fresh := &blueprint.Draft{SessionID: sessionID}
	if err := s.persist(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func isNotFound(err error, target **NotFoundError) bool {
	nf, ok := err.(*NotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

func (s *Store) persist(ctx context.Context, draft *blueprint.Draft) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("draftstore: encode draft %q: %w", draft.SessionID, err)
	}
	if err := s.backend.Set(ctx, draftKey(draft.SessionID), raw, s.ttl); err != nil {
		return fmt.Errorf("draftstore: persist draft %q: %w", draft.SessionID, err)
	}
	return nil
}

// checkRateLimit gates a mutation for (token, route); a nil limiter or
// empty token means unthrottled (internal callers, tests).
func (s *Store) checkRateLimit(ctx context.Context, token, route string) error {
	if s.limiter == nil || token == "" {
		return nil
	}
	result, err := s.limiter.CheckRoute(ctx, token, route, s.mutationLimit, s.mutationWindowSeconds)
	if err != nil {
		return fmt.Errorf("draftstore: rate limit check: %w", err)
	}
	if !result.Allowed {
		return &RateLimitedError{Token: token, Route: route, RetryAfterSeconds: result.RetryAfterSeconds}
	}
	return nil
}

// checkVersionLock compares the caller-supplied lock against the current
// draft's computed lock. An empty want skips the check (first mutation
// after CreateOrGet, before the caller has ever seen a lock value).
func checkVersionLock(draft *blueprint.Draft, want string) error {
	if want == "" {
		return nil
	}
	have := draft.VersionLock()
	if have != want {
		return &ConflictError{SessionID: draft.SessionID, Expected: have, Got: want}
	}
	return nil
}

// Mutate applies fn to the session's current draft under the version-lock
// and rate-limit gates, persists the result, and broadcasts draft.updated.
func (s *Store) Mutate(ctx context.Context, sessionID, versionLock, token, route string, fn func(*blueprint.Draft)) (*blueprint.Draft, error) {
	if err := s.checkRateLimit(ctx, token, route); err != nil {
		return nil, err
	}

	draft, err := s.CreateOrGet(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkVersionLock(draft, versionLock); err != nil {
		return nil, err
	}

	fn(draft)

	if err := s.persist(ctx, draft); err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastDraftUpdate(sessionID, draft)
	return draft, nil
}

// Lock author-locks a node against further edits.
func (s *Store) Lock(ctx context.Context, sessionID, versionLock, token, nodeID string) (*blueprint.Draft, error) {
	return s.Mutate(ctx, sessionID, versionLock, token, "draft.lock", func(d *blueprint.Draft) {
		if !d.IsLocked(nodeID) {
			d.LockedNodes = append(d.LockedNodes, nodeID)
		}
	})
}

// SetPosition records a node's canvas position.
func (s *Store) SetPosition(ctx context.Context, sessionID, versionLock, token, nodeID string, pos blueprint.Position) (*blueprint.Draft, error) {
	return s.Mutate(ctx, sessionID, versionLock, token, "draft.position", func(d *blueprint.Draft) {
		if d.NodePositions == nil {
			d.NodePositions = make(map[string]blueprint.Position)
		}
		d.NodePositions[nodeID] = pos
	})
}

// AppendPrompt records a new authoring prompt in the draft's history.
func (s *Store) AppendPrompt(ctx context.Context, sessionID, versionLock, token, prompt string) (*blueprint.Draft, error) {
	return s.Mutate(ctx, sessionID, versionLock, token, "draft.prompt", func(d *blueprint.Draft) {
		d.PromptHistory = append(d.PromptHistory, prompt)
	})
}

// SetPartial replaces the draft's in-progress partial blueprint, e.g. after
// the composer incrementally validates a new node.
func (s *Store) SetPartial(ctx context.Context, sessionID, versionLock, token string, partial *blueprint.PartialBlueprint) (*blueprint.Draft, error) {
	return s.Mutate(ctx, sessionID, versionLock, token, "draft.update", func(d *blueprint.Draft) {
		d.Partial = partial
	})
}

// Instantiate finalizes the draft's partial blueprint into a full Blueprint,
// stashes it as LastBlueprint, and returns it. Returns *NotLockedYetError
// if the draft has no partial blueprint yet, or *FinalizationFailedError if
// the candidate blueprint does not pass validation (or no validator was
// wired into this Store).
func (s *Store) Instantiate(ctx context.Context, sessionID, versionLock, token string) (*blueprint.Blueprint, error) {
	if err := s.checkRateLimit(ctx, token, "draft.instantiate"); err != nil {
		return nil, err
	}

	draft, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkVersionLock(draft, versionLock); err != nil {
		return nil, err
	}
	if draft.Partial == nil {
		return nil, &NotLockedYetError{SessionID: sessionID}
	}
	if s.validator == nil {
		return nil, &FinalizationFailedError{SessionID: sessionID}
	}

	bp, result := s.validator.Finalize(draft.Partial)
	if !result.IsValid {
		return nil, &FinalizationFailedError{SessionID: sessionID, Result: result}
	}

	draft.LastBlueprint = bp
	if err := s.persist(ctx, draft); err != nil {
		return nil, err
	}
	s.broadcaster.BroadcastDraftUpdate(sessionID, draft)
	return bp, nil
}
