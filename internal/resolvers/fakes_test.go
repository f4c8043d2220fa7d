package resolvers

import (
	"context"
	"sync"
	"testing"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// fakeLLM answers every request through respond and records it.
type fakeLLM struct {
	mu       sync.Mutex
	requests []*domain.LLMRequest
	respond  func(req *domain.LLMRequest) (string, error)
}

func (f *fakeLLM) GenerateCompletion(_ context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	content, err := f.respond(req)
	if err != nil {
		return nil, err
	}
	return &domain.LLMResponse{
		Content: content,
		Model:   req.Model,
		Usage:   domain.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (f *fakeLLM) calls() []*domain.LLMRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.LLMRequest(nil), f.requests...)
}

func staticLLM(content string) *fakeLLM {
	return &fakeLLM{respond: func(*domain.LLMRequest) (string, error) { return content, nil }}
}

type fakeRenderer struct {
	urls []string
	pdf  []byte
	err  error
}

func (f *fakeRenderer) RenderPDF(_ context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.pdf, f.err
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Logger:  zap.NewNop(),
		HTTP:    resty.New(),
		TempDir: t.TempDir(),
	}
}
