package resolvers

import (
	"fmt"
	"os"
	"time"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/internal/application/grading"
	"github.com/aescanero/markflow/pkg/adapters/metrics/nop"
	"github.com/aescanero/markflow/pkg/ports"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Registered resolver names.
const (
	NameAsset     = "Asset"
	NamePDF       = "PDF"
	NameWeb       = "Web"
	NameChat      = "Chat"
	NameChatBatch = "ChatBatch"
	NameVision    = "Vision"
	NameRest      = "Rest"
	NameSet       = "Set"
	NamePrint     = "Print"
)

// Default model call settings.
const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 4096
)

// Deps are the collaborators shared by the built-in resolvers.
type Deps struct {
	// LLM serves the Chat, ChatBatch and Vision resolvers.
	LLM ports.LLMClient
	// Files looks up internal asset ids.
	Files ports.FileStore
	// Renderer turns extension-less URLs into PDF documents. Optional.
	Renderer ports.PDFRenderer
	// HTTP is used for downloads, web extraction and REST calls.
	HTTP    *resty.Client
	Metrics ports.MetricsCollector
	Logger  *zap.Logger

	// Model is used when a task does not set the model param.
	Model     string
	MaxTokens int
	// Grading holds the default batch bounds, overridable per task.
	Grading grading.Config

	// TempDir receives downloaded and rendered files.
	TempDir string
	// PublicDir is joined with root-relative file store URLs.
	PublicDir string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = nop.Collector{}
	}
	if d.HTTP == nil {
		d.HTTP = resty.New().SetTimeout(60 * time.Second)
	}
	if d.Model == "" {
		d.Model = DefaultModel
	}
	if d.MaxTokens <= 0 {
		d.MaxTokens = DefaultMaxTokens
	}
	if d.Grading.ChunkSize == 0 && d.Grading.MaxChunkRetries == 0 && d.Grading.MaxGlobalPasses == 0 {
		d.Grading = grading.DefaultConfig()
	}
	if d.TempDir == "" {
		d.TempDir = os.TempDir()
	}
	return d
}

// NewRegistry builds the registry holding every built-in resolver.
func NewRegistry(deps Deps) (*engine.Registry, error) {
	deps = deps.withDefaults()
	if err := deps.Grading.Validate(); err != nil {
		return nil, err
	}

	registry := engine.NewRegistry()
	for _, entry := range []struct {
		name     string
		resolver engine.Resolver
	}{
		{NameAsset, NewAssetResolver(deps)},
		{NamePDF, NewPDFResolver(deps)},
		{NameWeb, NewWebResolver(deps)},
		{NameChat, NewChatResolver(deps)},
		{NameChatBatch, NewChatBatchResolver(deps)},
		{NameVision, NewVisionResolver(deps)},
		{NameRest, NewRestResolver(deps)},
		{NameSet, NewSetResolver(deps)},
		{NamePrint, NewPrintResolver(deps)},
	} {
		if err := registry.Register(entry.name, entry.resolver); err != nil {
			return nil, fmt.Errorf("failed to register resolver: %w", err)
		}
	}

	deps.Logger.Info("resolvers registered", zap.Strings("names", registry.Names()))
	return registry, nil
}
