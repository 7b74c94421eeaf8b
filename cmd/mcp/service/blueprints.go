// Package service implements the MCP control plane's application logic —
// the layer cmd/mcp/handlers calls into, mirroring the
// handler-calls-service-calls-repository split the teacher uses in
// cmd/orchestrator (handlers/run.go -> service.RunService ->
// repository.RunRepository), rebuilt here over internal/storage,
// internal/engine, internal/validator, and internal/registry instead of
// the teacher's own repository/service types.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iceos/orchestrator/internal/blueprint"
	"github.com/iceos/orchestrator/internal/storage"
	"github.com/iceos/orchestrator/internal/validator"
)

const tenantDefault = "default"

// BlueprintService validates and persists blueprints, and maintains the
// tag -> blueprint_id alias SPEC_FULL.md adds alongside the spec's
// blueprint_id-addressed endpoint.
type BlueprintService struct {
	store     storage.BlueprintStore
	validator *validator.Validator
	redis     *redis.Client
}

// NewBlueprintService builds a BlueprintService.
func NewBlueprintService(store storage.BlueprintStore, v *validator.Validator, redisClient *redis.Client) *BlueprintService {
	return &BlueprintService{store: store, validator: v, redis: redisClient}
}

// ValidationFailedError wraps a failing validator.Result so handlers can
// tell a 422 apart from a storage error.
type ValidationFailedError struct {
	Result validator.Result
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("blueprint validation failed: %v", e.Result.Errors)
}

// Register validates bp and upserts it, returning whether this blueprint_id
// already existed ("updated") or not ("accepted") — BlueprintAck.status
// (spec §6.1).
func (s *BlueprintService) Register(ctx context.Context, bp *blueprint.Blueprint, tag string) (status string, err error) {
	result := s.validator.Validate(bp)
	if !result.IsValid {
		return "", &ValidationFailedError{Result: result}
	}

	body, err := json.Marshal(bp)
	if err != nil {
		return "", fmt.Errorf("service: encode blueprint: %w", err)
	}

	_, err = s.store.GetBlueprint(ctx, bp.BlueprintID, tenantDefault)
	status = "accepted"
	if err == nil {
		status = "updated"
	}

	record := storage.BlueprintRecord{
		ID:            bp.BlueprintID,
		SchemaVersion: bp.SchemaVersion,
		Body:          body,
		Tenant:        tenantDefault,
	}
	if err := s.store.PutBlueprint(ctx, record); err != nil {
		return "", fmt.Errorf("service: persist blueprint: %w", err)
	}

	if tag != "" && s.redis != nil {
		if err := s.redis.Set(ctx, tagKey(tag), bp.BlueprintID, 0).Err(); err != nil {
			return "", fmt.Errorf("service: tag blueprint: %w", err)
		}
	}

	return status, nil
}

// Get fetches a blueprint by id.
func (s *BlueprintService) Get(ctx context.Context, blueprintID string) (*blueprint.Blueprint, error) {
	record, err := s.store.GetBlueprint(ctx, blueprintID, tenantDefault)
	if err != nil {
		return nil, err
	}
	var bp blueprint.Blueprint
	if err := json.Unmarshal(record.Body, &bp); err != nil {
		return nil, fmt.Errorf("service: decode blueprint %s: %w", blueprintID, err)
	}
	return &bp, nil
}

// GetByTag resolves tag to its current blueprint, per SPEC_FULL.md's
// POST /api/v1/mcp/blueprints/{tag} addition.
func (s *BlueprintService) GetByTag(ctx context.Context, tag string) (*blueprint.Blueprint, error) {
	if s.redis == nil {
		return nil, &TagNotFoundError{Tag: tag}
	}
	blueprintID, err := s.redis.Get(ctx, tagKey(tag)).Result()
	if err == redis.Nil {
		return nil, &TagNotFoundError{Tag: tag}
	}
	if err != nil {
		return nil, fmt.Errorf("service: resolve tag %q: %w", tag, err)
	}
	return s.Get(ctx, blueprintID)
}

// RegisterByTag validates and persists bp, then (re)points tag at it —
// SPEC_FULL.md's POST /api/v1/mcp/blueprints/{tag}.
func (s *BlueprintService) RegisterByTag(ctx context.Context, tag string, bp *blueprint.Blueprint) (string, error) {
	if bp.BlueprintID == "" {
		bp.BlueprintID = uuid.NewString()
	}
	return s.Register(ctx, bp, tag)
}

func tagKey(tag string) string { return fmt.Sprintf("mcp:tag:%s", tag) }

// TagNotFoundError reports an unknown tag alias.
type TagNotFoundError struct{ Tag string }

func (e *TagNotFoundError) Error() string { return fmt.Sprintf("tag %q not found", e.Tag) }
