package resolvers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/internal/application/grading"
	"github.com/aescanero/markflow/pkg/domain"
	"go.uber.org/zap"
)

const (
	paramBatch           = "batch"
	paramResponseFormat  = "responseformat"
	paramChunkSize       = "chunkSize"
	paramMaxChunkRetries = "maxChunkRetries"
	paramMaxGlobalPasses = "maxGlobalPasses"
)

const examinerPrompt = `You are a strict GCSE Examiner who marks the answers, make sure you cross check more thoroughly and let student know the areas of improvement
Do not autogenerate question numbers; use those provided in the batch. Answer all questions in the batch, do not skip any`

const batchPrefix = "\n\nBATCH Questions (JSON):\n"

// ChatBatchResolver grades batch.questions through the model in bounded
// chunks.
//
// Params: batch {questions}, responseformat, chunkSize, maxChunkRetries,
// maxGlobalPasses, model and any prompt fields.
// Outputs: response {questions, final_score, overall_feedback}, leftover,
// processingTimeMs.
type ChatBatchResolver struct {
	deps   Deps
	logger *zap.Logger
}

// NewChatBatchResolver creates a ChatBatchResolver.
func NewChatBatchResolver(deps Deps) *ChatBatchResolver {
	deps = deps.withDefaults()
	return &ChatBatchResolver{deps: deps, logger: deps.Logger.With(zap.String("resolver", NameChatBatch))}
}

type batchParam struct {
	Questions []grading.QuestionItem `json:"questions"`
}

type batchAnswer struct {
	Questions       []grading.QuestionItem `json:"questions"`
	OverallFeedback string                 `json:"overall_feedback"`
}

// Exec implements engine.Resolver.
func (r *ChatBatchResolver) Exec(ctx context.Context, params engine.Params, _ *engine.ExecutionContext) (engine.Outputs, error) {
	start := time.Now()

	if !params.Has(paramBatch) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingParam, paramBatch)
	}
	var batch batchParam
	if err := params.Decode(paramBatch, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPrecondition, err)
	}

	cfg := r.deps.Grading
	cfg.ChunkSize = params.Int(paramChunkSize, cfg.ChunkSize)
	cfg.MaxChunkRetries = params.Int(paramMaxChunkRetries, cfg.MaxChunkRetries)
	cfg.MaxGlobalPasses = params.Int(paramMaxGlobalPasses, cfg.MaxGlobalPasses)

	prompt := buildPrompt(params, paramBatch, paramResponseFormat,
		paramChunkSize, paramMaxChunkRetries, paramMaxGlobalPasses)
	if schema := asSchema(params[paramResponseFormat]); schema != nil {
		prompt += schemaHint(schema)
	}

	service := grading.ServiceFunc(func(ctx context.Context, items []grading.QuestionItem) (*grading.ChunkResult, error) {
		return r.gradeChunk(ctx, params, prompt, items)
	})
	grader, err := grading.NewBatchGrader(service, cfg, r.deps.Metrics, r.logger)
	if err != nil {
		return nil, err
	}

	result, err := grader.Grade(ctx, batch.Questions)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	r.logger.Info("batch graded",
		zap.Int("questions", len(batch.Questions)),
		zap.Int("graded", len(result.Questions)),
		zap.Int("leftover", len(result.Leftover)),
		zap.Int("calls", result.Calls),
		zap.Float64("final_score", result.FinalScore),
		zap.Duration("duration", elapsed))

	return engine.Outputs{
		"response": map[string]interface{}{
			"questions":        toGeneric(result.Questions),
			"final_score":      result.FinalScore,
			"overall_feedback": result.OverallFeedback,
		},
		"leftover":         toGeneric(result.Leftover),
		"processingTimeMs": elapsed.Milliseconds(),
	}, nil
}

func (r *ChatBatchResolver) gradeChunk(ctx context.Context, params engine.Params, prompt string, items []grading.QuestionItem) (*grading.ChunkResult, error) {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	resp, err := complete(ctx, r.deps, params, &domain.LLMRequest{
		System:         examinerPrompt,
		Messages:       []domain.Message{{Role: "user", Content: prompt + batchPrefix + string(data)}},
		ResponseFormat: domain.ResponseFormatJSON,
	})
	if err != nil {
		return nil, err
	}

	var answer batchAnswer
	if err := parseJSON(resp.Content, &answer); err != nil {
		return nil, err
	}
	return &grading.ChunkResult{Questions: answer.Questions, OverallFeedback: answer.OverallFeedback}, nil
}
