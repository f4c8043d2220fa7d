package grading

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/aescanero/markflow/pkg/ports"
	"go.uber.org/zap"
)

const (
	// FieldQuestionNumber is the join key between items and answers.
	FieldQuestionNumber = "question_number"
	// FieldMarkingCriteria is preserved from the original items by default.
	FieldMarkingCriteria = "marking_criteria"
	// FieldMarksAwarded is summed into the final score.
	FieldMarksAwarded = "marks_awarded"
)

// Call outcomes recorded in metrics.
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
)

// QuestionItem is one question with the student's answer, or the graded
// version of it returned by the service.
type QuestionItem map[string]interface{}

// Number returns the normalized question number: numeric values are printed
// without trailing zeros so that 3, 3.0 and "3" are the same question.
func (q QuestionItem) Number() string {
	return normalizeNumber(q[FieldQuestionNumber])
}

func normalizeNumber(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return s
	}
	if f, ok := engine.ToFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func (q QuestionItem) clone() QuestionItem {
	out := make(QuestionItem, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// ChunkResult is what the service returned for one chunk.
type ChunkResult struct {
	Questions       []QuestionItem
	OverallFeedback string
}

// Service grades one chunk of items. It may omit items from its answer and
// may fail outright.
type Service interface {
	GradeChunk(ctx context.Context, items []QuestionItem) (*ChunkResult, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(ctx context.Context, items []QuestionItem) (*ChunkResult, error)

// GradeChunk calls f.
func (f ServiceFunc) GradeChunk(ctx context.Context, items []QuestionItem) (*ChunkResult, error) {
	return f(ctx, items)
}

// Result is the merged outcome of a grading call.
type Result struct {
	Questions       []QuestionItem `json:"questions"`
	FinalScore      float64        `json:"final_score"`
	OverallFeedback string         `json:"overall_feedback"`
	Leftover        []QuestionItem `json:"leftover"`
	Passes          int            `json:"passes"`
	Calls           int            `json:"calls"`
	FailedCalls     int            `json:"failed_calls"`
}

// Complete reports whether every item was graded.
func (r *Result) Complete() bool {
	return len(r.Leftover) == 0
}

// BatchGrader grades large item lists through a Service in bounded chunks,
// retrying omitted items per chunk and re-chunking leftovers across passes.
// Calls are made one at a time.
type BatchGrader struct {
	service Service
	cfg     Config
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewBatchGrader creates a grader. cfg is validated here so that bounds are
// fixed before any call is made.
func NewBatchGrader(service Service, cfg Config, metrics ports.MetricsCollector, logger *zap.Logger) (*BatchGrader, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: grading service is required", domain.ErrConfiguration)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BatchGrader{service: service, cfg: cfg, metrics: metrics, logger: logger}, nil
}

// Config returns the effective configuration.
func (g *BatchGrader) Config() Config {
	return g.cfg
}

// Grade grades items. Items must carry unique question numbers. The
// returned error is only set for invalid input or a cancelled context;
// items still ungraded after the budget is spent are in Result.Leftover.
func (g *BatchGrader) Grade(ctx context.Context, items []QuestionItem) (*Result, error) {
	originals := make(map[string]QuestionItem, len(items))
	pending := make([]QuestionItem, 0, len(items))
	for i, item := range items {
		num := item.Number()
		if num == "" {
			return nil, fmt.Errorf("%w: item %d has no %s", domain.ErrPrecondition, i, FieldQuestionNumber)
		}
		if _, dup := originals[num]; dup {
			return nil, fmt.Errorf("%w: duplicate %s %s", domain.ErrPrecondition, FieldQuestionNumber, num)
		}
		originals[num] = item
		pending = append(pending, item)
	}

	state := &gradeState{
		originals: originals,
		answered:  make(map[string]QuestionItem, len(items)),
	}
	result := &Result{}

	for len(pending) > 0 && result.Passes < g.cfg.MaxGlobalPasses {
		result.Passes++
		g.logger.Debug("grading pass",
			zap.Int("pass", result.Passes),
			zap.Int("pending", len(pending)))

		var leftover []QuestionItem
		for start := 0; start < len(pending); start += g.cfg.ChunkSize {
			end := start + g.cfg.ChunkSize
			if end > len(pending) {
				end = len(pending)
			}
			rest, err := g.gradeChunk(ctx, pending[start:end], state, result)
			if err != nil {
				return nil, err
			}
			leftover = append(leftover, rest...)
		}
		pending = leftover
	}

	result.Questions = g.merge(state)
	result.Leftover = pending
	if result.Leftover == nil {
		result.Leftover = []QuestionItem{}
	}
	result.FinalScore = score(result.Questions)
	result.OverallFeedback = state.feedback

	if len(pending) > 0 {
		g.logger.Warn("grading incomplete",
			zap.Int("leftover", len(pending)),
			zap.Int("graded", len(result.Questions)),
			zap.Int("passes", result.Passes),
			zap.Int("calls", result.Calls))
		g.metrics.RecordGradingLeftover(len(pending))
	}

	return result, nil
}

type gradeState struct {
	originals map[string]QuestionItem
	answered  map[string]QuestionItem
	order     []string
	feedback  string
}

// gradeChunk runs the retry loop of one chunk and returns what is left
func (g *BatchGrader) gradeChunk(ctx context.Context, chunk []QuestionItem, state *gradeState, result *Result) ([]QuestionItem, error) {
	missing := append([]QuestionItem(nil), chunk...)

	for attempt := 1; len(missing) > 0 && attempt <= g.cfg.MaxChunkRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result.Calls++
		start := time.Now()
		res, err := g.service.GradeChunk(ctx, missing)
		if err == nil && res == nil {
			err = fmt.Errorf("%w: grading service returned no result", domain.ErrExternalService)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.FailedCalls++
			g.metrics.RecordGradingCall(OutcomeError)
			g.logger.Error("grading call failed",
				zap.Int("attempt", attempt),
				zap.Int("items", len(missing)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			continue
		}

		requested := make(map[string]bool, len(missing))
		for _, item := range missing {
			requested[item.Number()] = true
		}

		accepted := 0
		for _, answer := range res.Questions {
			num := answer.Number()
			if !requested[num] {
				g.logger.Debug("discarding answer",
					zap.String(FieldQuestionNumber, num),
					zap.Bool("already_graded", state.answered[num] != nil))
				continue
			}
			requested[num] = false
			state.answered[num] = answer
			state.order = append(state.order, num)
			accepted++
		}
		if fb := strings.TrimSpace(res.OverallFeedback); fb != "" {
			state.feedback = fb
		}

		var still []QuestionItem
		for _, item := range missing {
			if _, ok := state.answered[item.Number()]; !ok {
				still = append(still, item)
			}
		}

		outcome := OutcomePartial
		switch {
		case len(still) == 0:
			outcome = OutcomeComplete
		case accepted == 0:
			outcome = OutcomeEmpty
		}
		g.metrics.RecordGradingCall(outcome)
		g.logger.Debug("grading call",
			zap.Int("attempt", attempt),
			zap.Int("requested", len(missing)),
			zap.Int("answered", accepted),
			zap.String("outcome", outcome),
			zap.Duration("duration", time.Since(start)))

		missing = still
	}

	return missing, nil
}

// merge restores preserved fields from the originals and sorts by number
func (g *BatchGrader) merge(state *gradeState) []QuestionItem {
	questions := make([]QuestionItem, 0, len(state.order))
	for _, num := range state.order {
		answer := state.answered[num].clone()
		original := state.originals[num]
		for _, field := range g.cfg.PreservedFields {
			if v, ok := original[field]; ok {
				answer[field] = v
			} else {
				delete(answer, field)
			}
		}
		answer[FieldQuestionNumber] = original[FieldQuestionNumber]
		questions = append(questions, answer)
	}

	SortByNumber(questions)
	return questions
}

// SortByNumber orders items by numeric question number. Non-numeric numbers
// come after the numeric ones, in lexicographic order.
func SortByNumber(items []QuestionItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Number(), items[j].Number()
		fa, errA := strconv.ParseFloat(a, 64)
		fb, errB := strconv.ParseFloat(b, 64)
		switch {
		case errA == nil && errB == nil:
			return fa < fb
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return a < b
		}
	})
}

// score sums marks_awarded; missing or non-numeric marks count as zero
func score(items []QuestionItem) float64 {
	var total float64
	for _, item := range items {
		if f, ok := engine.ToFloat(item[FieldMarksAwarded]); ok {
			total += f
		}
	}
	return total
}
