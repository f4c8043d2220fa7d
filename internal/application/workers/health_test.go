package workers

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/markflow/pkg/adapters/metrics/nop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type poolGauges struct {
	nop.Collector
	idle, busy, stopped int
	samples             int
}

func (g *poolGauges) RecordWorkerPoolStatus(idle, busy, stopped int) {
	g.idle, g.busy, g.stopped = idle, busy, stopped
	g.samples++
}

func TestHealthCheckRecordsAndLogsTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	gauges := &poolGauges{}
	pool := NewPool(2, 4, &fakeExecutor{}, gauges, zap.New(core), time.Hour)
	require.NoError(t, pool.Start())

	pool.health.checkHealth()
	pool.health.checkHealth()
	assert.Equal(t, 2, gauges.samples)
	assert.Equal(t, 2, gauges.idle)
	assert.Equal(t, 1, logs.FilterMessage("worker pool is healthy").Len())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	pool.health.checkHealth()
	assert.Equal(t, 2, gauges.stopped)
	assert.Equal(t, 1, logs.FilterMessage("worker pool is unhealthy").Len())
}

func TestHealthStatusBeforeStart(t *testing.T) {
	pool := NewPool(3, 10, &fakeExecutor{}, nop.Collector{}, zap.NewNop(), 0)

	status := pool.Health().GetStatus()
	assert.Zero(t, status.TotalWorkers)
	assert.Equal(t, 10, status.QueueCapacity)
	assert.False(t, status.Saturated)
	assert.False(t, status.Healthy)
}
