// Package nop provides a MetricsCollector that discards everything.
package nop

import (
	"time"

	"github.com/aescanero/markflow/pkg/domain"
)

// Collector discards all metrics. Useful for tests and for embedding the
// engine without a metrics backend.
type Collector struct{}

func (Collector) RecordRunCompleted(string, time.Duration) {}
func (Collector) RecordTaskExecuted(string, string, time.Duration) {}
func (Collector) RecordLLMCall(string, string, time.Duration, domain.Usage) {}
func (Collector) RecordGradingCall(string) {}
func (Collector) RecordGradingLeftover(int) {}
func (Collector) RecordAssetFailure(string) {}
func (Collector) RecordWorkerPoolStatus(int, int, int) {}
func (Collector) SetActiveRuns(int) {}
