package ports

import (
	"context"
	"time"

	"github.com/aescanero/markflow/pkg/domain"
)

// WorkflowStore supplies workflow definitions.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context) ([]*domain.WorkflowDefinition, error)
	SaveWorkflow(ctx context.Context, def *domain.WorkflowDefinition) error
}

// FileStore supplies metadata of stored files.
type FileStore interface {
	GetFile(ctx context.Context, id string) (*domain.FileInfo, error)
}

// StateStorage persists run records.
type StateStorage interface {
	SaveRun(ctx context.Context, run *domain.RunState) error
	GetRun(ctx context.Context, runID string) (*domain.RunState, error)
	DeleteRun(ctx context.Context, runID string) error
	ListRuns(ctx context.Context) ([]string, error)
}

// EventHandler consumes events delivered by an EventBus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// LLMClient sends a completion request to a model provider.
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error)
}

// PDFRenderer renders a web page to a PDF document.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, url string) ([]byte, error)
}

// MetricsCollector records runtime metrics.
type MetricsCollector interface {
	RecordRunCompleted(status string, duration time.Duration)
	RecordTaskExecuted(resolver, status string, duration time.Duration)
	RecordLLMCall(model, status string, duration time.Duration, usage domain.Usage)
	RecordGradingCall(outcome string)
	RecordGradingLeftover(count int)
	RecordAssetFailure(kind string)
	RecordWorkerPoolStatus(idle, busy, stopped int)
	SetActiveRuns(count int)
}
