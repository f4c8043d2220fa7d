package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var first, second []string
	require.NoError(t, bus.Subscribe(ctx, domain.TopicRuns, func(_ context.Context, e domain.Event) error {
		first = append(first, e.ID)
		return errors.New("handler errors stay with the subscriber")
	}))
	require.NoError(t, bus.Subscribe(ctx, domain.TopicRuns, func(_ context.Context, e domain.Event) error {
		second = append(second, e.ID)
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, domain.TopicRuns, domain.Event{ID: "a"}))
	require.NoError(t, bus.Publish(ctx, domain.TopicTasks, domain.Event{ID: "other-topic"}))
	require.NoError(t, bus.Publish(ctx, domain.TopicRuns, domain.Event{ID: "b"}))

	assert.Equal(t, []string{"a", "b"}, first)
	assert.Equal(t, []string{"a", "b"}, second)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, bus.Subscribe(ctx, domain.TopicTasks, func(context.Context, domain.Event) error { return nil }))
	cancel()

	assert.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers[domain.TopicTasks]) == 0
	}, time.Second, 5*time.Millisecond)
}
