package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/markflow/pkg/domain"
)

// InMemoryWorkflowStore implements WorkflowStore using in-memory map
type InMemoryWorkflowStore struct {
	workflows map[string][]byte
	mu        sync.RWMutex
}

// NewInMemoryWorkflowStore creates a store seeded with defs
func NewInMemoryWorkflowStore(defs ...*domain.WorkflowDefinition) (*InMemoryWorkflowStore, error) {
	s := &InMemoryWorkflowStore{workflows: make(map[string][]byte)}
	for _, def := range defs {
		if err := s.SaveWorkflow(context.Background(), def); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SaveWorkflow stores a copy of def
func (s *InMemoryWorkflowStore) SaveWorkflow(ctx context.Context, def *domain.WorkflowDefinition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("workflow ID is required")
	}

	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[def.ID] = data
	return nil
}

// GetWorkflow returns a copy of the workflow stored under id
func (s *InMemoryWorkflowStore) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	s.mu.RLock()
	data, ok := s.workflows[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
	}
	return decode(data)
}

// ListWorkflows returns every stored workflow sorted by ID
func (s *InMemoryWorkflowStore) ListWorkflows(ctx context.Context) ([]*domain.WorkflowDefinition, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.workflows))
	for id := range s.workflows {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	defs := make([]*domain.WorkflowDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := s.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func decode(data []byte) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &def, nil
}
