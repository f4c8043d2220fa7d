package redis

import (
	"context"
	"testing"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkflowStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewWorkflowStore(client, zap.NewNop())
	ctx := context.Background()

	def := &domain.WorkflowDefinition{
		ID:   "grade",
		Name: "Grade",
		Tasks: []domain.TaskDefinition{{
			Name:     "Grade",
			Requires: []string{"questions"},
			Provides: []string{"grading"},
			Resolver: domain.ResolverRef{
				Name: "ChatBatch",
				Params: map[string]domain.ParamBinding{
					"batch":     domain.FromPool("questions"),
					"chunkSize": domain.Static(5.0),
				},
				Results: map[string]string{"response": "grading"},
			},
		}},
	}
	require.NoError(t, store.SaveWorkflow(ctx, def))
	require.NoError(t, store.SaveWorkflow(ctx, &domain.WorkflowDefinition{ID: "another"}))

	got, err := store.GetWorkflow(ctx, "grade")
	require.NoError(t, err)
	assert.Equal(t, def, got)

	_, err = store.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)

	mr.Del("markflow:workflow:another")
	defs, err := store.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "grade", defs[0].ID)

	assert.Error(t, store.SaveWorkflow(ctx, &domain.WorkflowDefinition{}))
}
