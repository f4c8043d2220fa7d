// Package anthropic implements LLMClient on top of the official Anthropic SDK.
package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/aescanero/markflow/pkg/ports"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// DefaultModel is used when neither the request nor the client sets one.
const DefaultModel = "claude-sonnet-4-5"

// jsonInstruction is appended to the system prompt for JSON requests, the
// Messages API having no response format switch.
const jsonInstruction = "Respond with a single valid JSON object and nothing else. Do not wrap it in Markdown."

// Client implements LLMClient using the Anthropic API
type Client struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// Options configure a Client.
type Options struct {
	APIKey  string
	BaseURL string
	// Model replaces request models that are not Claude models.
	Model   string
	Timeout time.Duration
	Metrics ports.MetricsCollector
}

// NewClient creates a new Anthropic client
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key is required", domain.ErrConfiguration)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client:  anthropic.NewClient(reqOpts...),
		model:   model,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		logger:  logger,
	}, nil
}

// GenerateCompletion sends req to the Messages API.
func (c *Client) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.resolveModel(req.Model)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	system := req.System
	if req.ResponseFormat == domain.ResponseFormatJSON {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	for _, msg := range req.Messages {
		blocks, err := contentBlocks(msg)
		if err != nil {
			return nil, err
		}
		switch msg.Role {
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		c.record(model, "error", duration, domain.Usage{})
		c.logger.Error("anthropic request failed",
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, fmt.Errorf("%w: anthropic: %v", domain.ErrExternalService, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	usage := domain.Usage{
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}
	c.record(model, "success", duration, usage)
	c.logger.Debug("anthropic request completed",
		zap.String("model", model),
		zap.String("stop_reason", string(message.StopReason)),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Duration("duration", duration))

	return &domain.LLMResponse{
		Content:    text.String(),
		Model:      string(message.Model),
		StopReason: string(message.StopReason),
		Usage:      usage,
	}, nil
}

// resolveModel keeps Claude models and replaces anything else, such as the
// OpenAI defaults stored in older workflow definitions.
func (c *Client) resolveModel(model string) string {
	if strings.HasPrefix(model, "claude") {
		return model
	}
	return c.model
}

func (c *Client) record(model, status string, duration time.Duration, usage domain.Usage) {
	if c.metrics != nil {
		c.metrics.RecordLLMCall(model, status, duration, usage)
	}
}

func contentBlocks(msg domain.Message) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Attachments)+1)
	for _, att := range msg.Attachments {
		data := base64.StdEncoding.EncodeToString(att.Data)
		switch {
		case att.MimeType == "application/pdf":
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: data}))
		case strings.HasPrefix(att.MimeType, "image/"):
			blocks = append(blocks, anthropic.NewImageBlockBase64(att.MimeType, data))
		default:
			return nil, fmt.Errorf("%w: unsupported attachment type %s", domain.ErrPrecondition, att.MimeType)
		}
	}
	if msg.Content != "" || len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	return blocks, nil
}
