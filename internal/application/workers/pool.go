package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/markflow/pkg/ports"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Dispatch when the queue has no free slot.
var ErrQueueFull = errors.New("run queue is full")

// ErrPoolStopped is returned by Dispatch after Shutdown.
var ErrPoolStopped = errors.New("worker pool is stopped")

// RunExecutor executes a submitted run
type RunExecutor interface {
	ExecuteRun(ctx context.Context, runID string) error
}

// Pool manages a pool of worker goroutines
type Pool struct {
	size     int
	executor RunExecutor
	metrics  ports.MetricsCollector
	logger   *zap.Logger
	health   *HealthMonitor

	queue   chan string
	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool with a queue of queueSize pending runs
func NewPool(
	size, queueSize int,
	executor RunExecutor,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	if queueSize < 1 {
		queueSize = 1
	}

	pool := &Pool{
		size:     size,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
		queue:    make(chan string, queueSize),
		workers:  make([]*worker, size),
		ctx:      ctx,
		cancel:   cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	if p.size < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	// Create and start workers
	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	// Start health monitor
	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Dispatch queues a run without blocking
func (p *Pool) Dispatch(ctx context.Context, runID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- runID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Health returns the pool's health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// Shutdown stops accepting runs, cancels the running ones and waits for the
// workers to exit. Runs still queued are left in their submitted state.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	// Stop health monitor
	p.health.Stop()

	// Cancel context to signal workers to stop
	p.cancel()

	// Wait for all workers to finish with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete",
			zap.Int("abandoned_runs", len(p.queue)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return
		case runID := <-w.pool.queue:
			w.handleRun(ctx, runID)
		}
	}
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	if status == WorkerStatusBusy {
		w.lastJob = time.Now()
	}
}

// handleRun executes one queued run
func (w *worker) handleRun(ctx context.Context, runID string) {
	w.setStatus(WorkerStatusBusy)
	defer w.setStatus(WorkerStatusIdle)

	w.pool.logger.Info("executing run",
		zap.String("worker_id", w.id),
		zap.String("run_id", runID))

	startTime := time.Now()
	if err := w.pool.executor.ExecuteRun(ctx, runID); err != nil {
		w.pool.logger.Warn("run finished with error",
			zap.String("worker_id", w.id),
			zap.String("run_id", runID),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err))
		return
	}

	w.pool.logger.Info("run execution completed",
		zap.String("worker_id", w.id),
		zap.String("run_id", runID),
		zap.Duration("duration", time.Since(startTime)))
}
