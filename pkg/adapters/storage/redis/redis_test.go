package redis

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStorage(t *testing.T, ttl time.Duration) (*StateStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStateStorage(client, ttl, zap.NewNop()), mr
}

func TestStateStorageRoundTrip(t *testing.T) {
	s, mr := newTestStorage(t, time.Hour)
	ctx := context.Background()

	run := &domain.RunState{
		RunID:      "run-1",
		WorkflowID: "grade",
		Status:     domain.ExecutionStatusCompleted,
		Request:    domain.RunRequest{Output: []string{"grading"}},
		Output:     map[string]interface{}{"grading": map[string]interface{}{"final_score": 7.0}},
		Tasks: map[string]*domain.TaskState{
			"Grade": {Name: "Grade", Status: domain.ExecutionStatusCompleted},
		},
		SubmittedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveRun(ctx, run))
	assert.True(t, mr.Exists("markflow:run:run-1"))
	assert.Equal(t, time.Hour, mr.TTL("markflow:run:run-1"))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Output, got.Output)
	assert.Equal(t, domain.ExecutionStatusCompleted, got.Tasks["Grade"].Status)
	assert.True(t, run.SubmittedAt.Equal(got.SubmittedAt))

	require.NoError(t, s.SaveRun(ctx, &domain.RunState{RunID: "run-0"}))
	ids, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-0", "run-1"}, ids)

	require.NoError(t, s.DeleteRun(ctx, "run-1"))
	_, err = s.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestStateStorageRejectsEmptyID(t *testing.T) {
	s, _ := newTestStorage(t, 0)
	assert.Error(t, s.SaveRun(context.Background(), &domain.RunState{}))
}
