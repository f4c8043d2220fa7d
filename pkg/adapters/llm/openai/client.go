// Package openai implements LLMClient against OpenAI-compatible chat
// completion endpoints.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/aescanero/markflow/pkg/ports"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public OpenAI API.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client implements LLMClient over HTTP
type Client struct {
	http    *resty.Client
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// Options configure a Client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Metrics ports.MetricsCollector
}

// NewClient creates a new chat completions client
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key is required", domain.ErrConfiguration)
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetAuthToken(opts.APIKey).
		SetHeader("Content-Type", "application/json")
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}

	return &Client{http: httpClient, metrics: opts.Metrics, logger: logger}, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a string, or a list of parts when files are attached.
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	File     *filePart `json:"file,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateCompletion sends req to /chat/completions.
func (c *Client) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	body := chatRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	if req.ResponseFormat != "" {
		body.ResponseFormat = &responseFormat{Type: req.ResponseFormat}
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, toChatMessage(msg))
	}

	var out chatResponse
	var apiErr errorResponse
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	duration := time.Since(start)

	if err != nil {
		c.record(req.Model, "error", duration, domain.Usage{})
		return nil, fmt.Errorf("%w: openai request failed: %v", domain.ErrExternalService, err)
	}
	if resp.IsError() {
		c.record(req.Model, "error", duration, domain.Usage{})
		c.logger.Error("openai request rejected",
			zap.String("model", req.Model),
			zap.Int("status", resp.StatusCode()),
			zap.String("error", apiErr.Error.Message))
		return nil, fmt.Errorf("%w: openai returned %d: %s", domain.ErrExternalService, resp.StatusCode(), apiErr.Error.Message)
	}
	if len(out.Choices) == 0 {
		c.record(req.Model, "error", duration, domain.Usage{})
		return nil, fmt.Errorf("%w: openai returned no choices", domain.ErrExternalService)
	}

	usage := domain.Usage{
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}
	c.record(req.Model, "success", duration, usage)
	c.logger.Debug("openai request completed",
		zap.String("model", out.Model),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Duration("duration", duration))

	return &domain.LLMResponse{
		Content:    out.Choices[0].Message.Content,
		Model:      out.Model,
		StopReason: out.Choices[0].FinishReason,
		Usage:      usage,
	}, nil
}

func (c *Client) record(model, status string, duration time.Duration, usage domain.Usage) {
	if c.metrics != nil {
		c.metrics.RecordLLMCall(model, status, duration, usage)
	}
}

func toChatMessage(msg domain.Message) chatMessage {
	if len(msg.Attachments) == 0 {
		return chatMessage{Role: msg.Role, Content: msg.Content}
	}

	parts := []contentPart{{Type: "text", Text: msg.Content}}
	for i, att := range msg.Attachments {
		dataURL := "data:" + att.MimeType + ";base64," + base64.StdEncoding.EncodeToString(att.Data)
		if strings.HasPrefix(att.MimeType, "image/") {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: dataURL}})
			continue
		}
		parts = append(parts, contentPart{
			Type: "file",
			File: &filePart{Filename: fmt.Sprintf("attachment-%d", i+1), FileData: dataURL},
		})
	}
	return chatMessage{Role: msg.Role, Content: parts}
}
