package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	eventsmemory "github.com/aescanero/markflow/pkg/adapters/events/memory"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleRunStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := eventsmemory.NewInMemoryEventBus()

	router := gin.New()
	router.GET("/api/v1/runs/:id/ws", NewHandler(bus, zap.NewNop()).HandleRunStream)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/runs/run-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domain.TopicTasks, domain.Event{ID: "e0", Type: domain.EventTypeTaskStarted, RunID: "run-2", Task: "Other"}))
	require.NoError(t, bus.Publish(ctx, domain.TopicTasks, domain.Event{ID: "e1", Type: domain.EventTypeTaskStarted, RunID: "run-1", Task: "Grade"}))
	require.NoError(t, bus.Publish(ctx, domain.TopicTasks, domain.Event{ID: "e2", Type: domain.EventTypeTaskCompleted, RunID: "run-1", Task: "Grade"}))
	require.NoError(t, bus.Publish(ctx, domain.TopicRuns, domain.Event{ID: "e3", Type: domain.EventTypeRunCompleted, RunID: "run-1"}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got []string
	for i := 0; i < 3; i++ {
		var event domain.Event
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, "run-1", event.RunID)
		got = append(got, event.ID)
	}
	assert.Equal(t, []string{"e1", "e2", "e3"}, got)

	// the server closes the stream after the terminal event
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, isTerminal(domain.EventTypeRunFailed))
	assert.True(t, isTerminal(domain.EventTypeRunCancelled))
	assert.False(t, isTerminal(domain.EventTypeTaskFailed))
	assert.False(t, isTerminal(domain.EventTypeRunStarted))
}
