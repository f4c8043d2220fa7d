package resolvers

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
	"go.uber.org/zap"
)

const paramFormat = "format"

// ChatResolver sends its params as a single prompt and returns the parsed
// JSON answer.
//
// Params: any prompt fields, plus the optional format (response schema,
// falling back to the context value of the same name) and model.
// Outputs: response, usage.
type ChatResolver struct {
	deps   Deps
	logger *zap.Logger
}

// NewChatResolver creates a ChatResolver.
func NewChatResolver(deps Deps) *ChatResolver {
	deps = deps.withDefaults()
	return &ChatResolver{deps: deps, logger: deps.Logger.With(zap.String("resolver", NameChat))}
}

// Exec implements engine.Resolver.
func (r *ChatResolver) Exec(ctx context.Context, params engine.Params, execCtx *engine.ExecutionContext) (engine.Outputs, error) {
	prompt := buildPrompt(params, paramFormat)
	if prompt == "" {
		return nil, fmt.Errorf("%w: no prompt fields", domain.ErrMissingParam)
	}

	schema := asSchema(params[paramFormat])
	if schema == nil && execCtx != nil {
		if v, ok := execCtx.Get(paramFormat); ok {
			schema = asSchema(v)
		}
	}
	if schema != nil {
		prompt += schemaHint(schema)
	}

	start := time.Now()
	resp, err := complete(ctx, r.deps, params, &domain.LLMRequest{
		Messages:       []domain.Message{{Role: "user", Content: prompt}},
		ResponseFormat: domain.ResponseFormatJSON,
	})
	if err != nil {
		return nil, err
	}

	var parsed interface{}
	if err := parseJSON(resp.Content, &parsed); err != nil {
		return nil, err
	}
	if err := checkSchema(parsed, schema); err != nil {
		return nil, err
	}

	r.logger.Debug("chat completed",
		zap.String("model", resp.Model),
		zap.Int("prompt_length", len(prompt)),
		zap.Duration("duration", time.Since(start)))

	return engine.Outputs{
		"response": parsed,
		"usage": map[string]interface{}{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}, nil
}
