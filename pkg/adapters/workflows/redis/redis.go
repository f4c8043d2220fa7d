package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	workflowKeyPrefix = "markflow:workflow:"
	workflowIndexKey  = "markflow:workflows"
)

// WorkflowStore implements WorkflowStore using Redis. Definitions are stored
// as JSON values and indexed in a set.
type WorkflowStore struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewWorkflowStore creates a new Redis workflow store
func NewWorkflowStore(client redis.UniversalClient, logger *zap.Logger) *WorkflowStore {
	return &WorkflowStore{client: client, logger: logger}
}

// SaveWorkflow stores a workflow definition
func (s *WorkflowStore) SaveWorkflow(ctx context.Context, def *domain.WorkflowDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("workflow ID is required")
	}

	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, getWorkflowKey(def.ID), data, 0)
		pipe.SAdd(ctx, workflowIndexKey, def.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.Debug("workflow saved",
		zap.String("workflow_id", def.ID),
		zap.Int("tasks", len(def.Tasks)))

	return nil
}

// GetWorkflow retrieves a workflow definition
func (s *WorkflowStore) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	data, err := s.client.Get(ctx, getWorkflowKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	var def domain.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}
	return &def, nil
}

// ListWorkflows returns every indexed workflow sorted by ID. Index entries
// whose definition disappeared are skipped.
func (s *WorkflowStore) ListWorkflows(ctx context.Context) ([]*domain.WorkflowDefinition, error) {
	ids, err := s.client.SMembers(ctx, workflowIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	sort.Strings(ids)

	defs := make([]*domain.WorkflowDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := s.GetWorkflow(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrWorkflowNotFound) {
				s.logger.Warn("stale workflow index entry", zap.String("workflow_id", id))
				continue
			}
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func getWorkflowKey(id string) string {
	return workflowKeyPrefix + id
}
