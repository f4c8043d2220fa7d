package prometheus

import (
	"time"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	runsCompleted     *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	activeRuns        prometheus.Gauge
	tasksExecuted     *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	llmCalls          *prometheus.CounterVec
	llmTokens         *prometheus.CounterVec
	llmLatency        *prometheus.HistogramVec
	gradingCalls      *prometheus.CounterVec
	gradingLeftover   prometheus.Counter
	assetFailures     *prometheus.CounterVec
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a Prometheus metrics collector registered on reg.
// Pass prometheus.DefaultRegisterer to expose metrics on the default handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markflow_runs_completed_total",
				Help: "Total number of workflow runs by final status",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markflow_run_duration_seconds",
				Help:    "Workflow run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"status"},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "markflow_active_runs",
				Help: "Number of currently active runs",
			},
		),
		tasksExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markflow_tasks_executed_total",
				Help: "Total number of tasks executed",
			},
			[]string{"resolver", "status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markflow_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"resolver"},
		),
		llmCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markflow_llm_calls_total",
				Help: "Total number of LLM API calls",
			},
			[]string{"model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markflow_llm_tokens_total",
				Help: "Total number of LLM tokens used",
			},
			[]string{"model", "type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markflow_llm_latency_seconds",
				Help:    "LLM API call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 60},
			},
			[]string{"model"},
		),
		gradingCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markflow_grading_calls_total",
				Help: "Grading chunk calls by outcome (complete, partial, empty, error)",
			},
			[]string{"outcome"},
		),
		gradingLeftover: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "markflow_grading_leftover_items_total",
				Help: "Items still ungraded after the retry and pass budget",
			},
		),
		assetFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markflow_asset_failures_total",
				Help: "Assets that could not be resolved",
			},
			[]string{"kind"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "markflow_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "markflow_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "markflow_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// RecordRunCompleted records a finished run
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordTaskExecuted records a task execution
func (c *Collector) RecordTaskExecuted(resolver, status string, duration time.Duration) {
	c.tasksExecuted.WithLabelValues(resolver, status).Inc()
	c.taskDuration.WithLabelValues(resolver).Observe(duration.Seconds())
}

// RecordLLMCall records a model call with its latency and token usage
func (c *Collector) RecordLLMCall(model, status string, duration time.Duration, usage domain.Usage) {
	c.llmCalls.WithLabelValues(model, status).Inc()
	c.llmLatency.WithLabelValues(model).Observe(duration.Seconds())
	if usage.InputTokens > 0 {
		c.llmTokens.WithLabelValues(model, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		c.llmTokens.WithLabelValues(model, "output").Add(float64(usage.OutputTokens))
	}
}

// RecordGradingCall records the outcome of one grading chunk call
func (c *Collector) RecordGradingCall(outcome string) {
	c.gradingCalls.WithLabelValues(outcome).Inc()
}

// RecordGradingLeftover records items left ungraded after all passes
func (c *Collector) RecordGradingLeftover(count int) {
	c.gradingLeftover.Add(float64(count))
}

// RecordAssetFailure records an asset that could not be resolved
func (c *Collector) RecordAssetFailure(kind string) {
	c.assetFailures.WithLabelValues(kind).Inc()
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

// SetActiveRuns sets the number of currently active runs
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}
