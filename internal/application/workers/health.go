package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// saturationRatio is the queue fill level reported as saturated
const saturationRatio = 0.9

// HealthMonitor samples the pool periodically, records the worker gauges and
// logs health transitions.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}

	mu          sync.Mutex
	lastHealthy *bool
}

// HealthStatus represents the health status of the worker pool
type HealthStatus struct {
	TotalWorkers   int `json:"total_workers"`
	IdleWorkers    int `json:"idle_workers"`
	BusyWorkers    int `json:"busy_workers"`
	StoppedWorkers int `json:"stopped_workers"`
	QueuedRuns     int `json:"queued_runs"`
	QueueCapacity  int `json:"queue_capacity"`
	// Saturated is set when the queue is close to rejecting submissions
	Saturated bool `json:"saturated"`
	// LongestRun is how long the oldest run in progress has been executing
	LongestRun time.Duration `json:"longest_run_ns"`
	Healthy    bool          `json:"healthy"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic sampling. Calls after the first are no-ops.
func (h *HealthMonitor) Start() {
	if h.interval <= 0 {
		return
	}
	h.startOnce.Do(func() { go h.run() })
}

// Stop ends periodic sampling
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *HealthMonitor) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.checkHealth()
		}
	}
}

// checkHealth records the gauges and logs when health flips
func (h *HealthMonitor) checkHealth() {
	status := h.GetStatus()

	h.pool.metrics.RecordWorkerPoolStatus(
		status.IdleWorkers,
		status.BusyWorkers,
		status.StoppedWorkers,
	)

	h.mu.Lock()
	changed := h.lastHealthy == nil || *h.lastHealthy != status.Healthy
	healthy := status.Healthy
	h.lastHealthy = &healthy
	h.mu.Unlock()

	switch {
	case changed && !status.Healthy:
		h.logger.Warn("worker pool is unhealthy",
			zap.Int("total", status.TotalWorkers),
			zap.Int("stopped", status.StoppedWorkers))
	case changed:
		h.logger.Info("worker pool is healthy", zap.Int("total", status.TotalWorkers))
	}

	if status.Saturated {
		h.logger.Warn("run queue is nearly full - consider scaling up",
			zap.Int("queued", status.QueuedRuns),
			zap.Int("capacity", status.QueueCapacity),
			zap.Int("busy", status.BusyWorkers))
	}
}

// GetStatus samples the pool now
func (h *HealthMonitor) GetStatus() *HealthStatus {
	now := time.Now()
	status := &HealthStatus{
		QueuedRuns:    len(h.pool.queue),
		QueueCapacity: cap(h.pool.queue),
		Timestamp:     now,
	}

	for _, w := range h.pool.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		ws, since := w.status, w.lastJob
		w.mu.RUnlock()

		status.TotalWorkers++
		switch ws {
		case WorkerStatusIdle:
			status.IdleWorkers++
		case WorkerStatusBusy:
			status.BusyWorkers++
			if d := now.Sub(since); d > status.LongestRun {
				status.LongestRun = d
			}
		case WorkerStatusStopped:
			status.StoppedWorkers++
		}
	}

	status.Saturated = status.QueueCapacity > 0 &&
		float64(status.QueuedRuns) >= saturationRatio*float64(status.QueueCapacity)
	status.Healthy = status.TotalWorkers > 0 && status.StoppedWorkers == 0
	return status
}

// IsHealthy returns true if the worker pool is healthy
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
