package grading

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aescanero/markflow/pkg/adapters/metrics/nop"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// mockService grades with a pluggable policy and records every request.
type mockService struct {
	requests [][]string
	policy   func(call int, items []QuestionItem) (*ChunkResult, error)
}

func (m *mockService) GradeChunk(_ context.Context, items []QuestionItem) (*ChunkResult, error) {
	nums := make([]string, len(items))
	for i, item := range items {
		nums[i] = item.Number()
	}
	m.requests = append(m.requests, nums)
	return m.policy(len(m.requests), items)
}

// answer grades an item with marks equal to its number and a wrong
// marking_criteria that must be overwritten.
func answer(item QuestionItem) QuestionItem {
	n := item.Number()
	var marks float64
	fmt.Sscan(n, &marks)
	return QuestionItem{
		FieldQuestionNumber:  item[FieldQuestionNumber],
		"feedback":           "ok " + n,
		FieldMarksAwarded:    marks,
		FieldMarkingCriteria: "made up by the model",
	}
}

func answerAll(_ int, items []QuestionItem) (*ChunkResult, error) {
	res := &ChunkResult{}
	for _, item := range items {
		res.Questions = append(res.Questions, answer(item))
	}
	return res, nil
}

func makeItems(n int) []QuestionItem {
	items := make([]QuestionItem, n)
	for i := range items {
		// reverse order to exercise sorting
		num := n - i
		items[i] = QuestionItem{
			FieldQuestionNumber:  num,
			"question_text":      fmt.Sprintf("question %d", num),
			"max_marks":          num,
			FieldMarkingCriteria: fmt.Sprintf("criteria %d", num),
		}
	}
	return items
}

func newGrader(t *testing.T, svc Service, cfg Config, logger *zap.Logger) *BatchGrader {
	t.Helper()
	g, err := NewBatchGrader(svc, cfg, nop.Collector{}, logger)
	require.NoError(t, err)
	return g
}

func TestGradeAllAnswered(t *testing.T) {
	svc := &mockService{policy: answerAll}
	g := newGrader(t, svc, DefaultConfig(), zap.NewNop())

	res, err := g.Grade(context.Background(), makeItems(12))
	require.NoError(t, err)

	// 3 chunks of 5, 5 and 2 items in a single pass
	require.Len(t, svc.requests, 3)
	assert.Len(t, svc.requests[0], 5)
	assert.Len(t, svc.requests[1], 5)
	assert.Len(t, svc.requests[2], 2)
	assert.Equal(t, 1, res.Passes)
	assert.Equal(t, 3, res.Calls)

	require.Len(t, res.Questions, 12)
	for i, q := range res.Questions {
		assert.Equal(t, fmt.Sprint(i+1), q.Number())
		assert.Equal(t, fmt.Sprintf("criteria %d", i+1), q[FieldMarkingCriteria])
	}
	assert.Equal(t, float64(78), res.FinalScore) // 1 + 2 + ... + 12
	assert.Empty(t, res.Leftover)
	assert.True(t, res.Complete())
}

func TestGradeAlwaysOmitting(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	// answers everything except the last item of each request
	svc := &mockService{policy: func(_ int, items []QuestionItem) (*ChunkResult, error) {
		res := &ChunkResult{}
		for _, item := range items[:len(items)-1] {
			res.Questions = append(res.Questions, answer(item))
		}
		return res, nil
	}}
	cfg := DefaultConfig()
	g := newGrader(t, svc, cfg, zap.New(core))

	items := makeItems(7)
	res, err := g.Grade(context.Background(), items)
	require.NoError(t, err)

	assert.NotEmpty(t, res.Leftover)
	assert.Equal(t, len(items), len(res.Questions)+len(res.Leftover))
	assert.Equal(t, cfg.MaxGlobalPasses, res.Passes)
	assert.LessOrEqual(t, res.Calls, cfg.MaxGlobalPasses*cfg.MaxChunkRetries*len(items))

	warnings := logs.FilterMessage("grading incomplete").All()
	require.Len(t, warnings, 1)
	assert.EqualValues(t, len(res.Leftover), warnings[0].ContextMap()["leftover"])

	// leftovers never count towards the score
	for _, left := range res.Leftover {
		for _, q := range res.Questions {
			assert.NotEqual(t, left.Number(), q.Number())
		}
	}
}

func TestGradeRetriesOmittedItems(t *testing.T) {
	// first call answers only the first item, later calls answer everything
	svc := &mockService{policy: func(call int, items []QuestionItem) (*ChunkResult, error) {
		if call == 1 {
			return &ChunkResult{Questions: []QuestionItem{answer(items[0])}}, nil
		}
		return answerAll(call, items)
	}}
	g := newGrader(t, svc, Config{ChunkSize: 3, MaxChunkRetries: 3, MaxGlobalPasses: 1}, zap.NewNop())

	res, err := g.Grade(context.Background(), makeItems(3))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"3", "2", "1"}, {"2", "1"}}, svc.requests)
	assert.Len(t, res.Questions, 3)
	assert.Empty(t, res.Leftover)
}

func TestGradeFailedCallsConsumeAttempts(t *testing.T) {
	svc := &mockService{policy: func(call int, items []QuestionItem) (*ChunkResult, error) {
		if call <= 2 {
			return nil, fmt.Errorf("%w: not json", domain.ErrExternalService)
		}
		return answerAll(call, items)
	}}
	g := newGrader(t, svc, Config{ChunkSize: 5, MaxChunkRetries: 2, MaxGlobalPasses: 2}, zap.NewNop())

	res, err := g.Grade(context.Background(), makeItems(2))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Passes)
	assert.Equal(t, 3, res.Calls)
	assert.Equal(t, 2, res.FailedCalls)
	assert.Len(t, res.Questions, 2)
}

func TestGradeNilResultConsumesAttempt(t *testing.T) {
	svc := &mockService{policy: func(call int, items []QuestionItem) (*ChunkResult, error) {
		if call == 1 {
			return nil, nil
		}
		return answerAll(call, items)
	}}
	g := newGrader(t, svc, Config{ChunkSize: 5, MaxChunkRetries: 2, MaxGlobalPasses: 1}, zap.NewNop())

	res, err := g.Grade(context.Background(), makeItems(2))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Calls)
	assert.Equal(t, 1, res.FailedCalls)
	assert.Len(t, res.Questions, 2)
	assert.Empty(t, res.Leftover)
}

func TestGradeDropsPreservedFieldMissingFromOriginal(t *testing.T) {
	svc := &mockService{policy: answerAll}
	g := newGrader(t, svc, DefaultConfig(), zap.NewNop())

	res, err := g.Grade(context.Background(), []QuestionItem{
		{FieldQuestionNumber: 1, "question_text": "no criteria here"},
		{FieldQuestionNumber: 2, FieldMarkingCriteria: "c2"},
	})
	require.NoError(t, err)

	require.Len(t, res.Questions, 2)
	assert.NotContains(t, res.Questions[0], FieldMarkingCriteria)
	assert.Equal(t, "c2", res.Questions[1][FieldMarkingCriteria])
}

func TestGradeDiscardsUnknownAndDuplicateAnswers(t *testing.T) {
	svc := &mockService{policy: func(_ int, items []QuestionItem) (*ChunkResult, error) {
		return &ChunkResult{
			Questions: []QuestionItem{
				answer(items[0]),
				{FieldQuestionNumber: 99, FieldMarksAwarded: 50},
				{FieldQuestionNumber: items[0][FieldQuestionNumber], FieldMarksAwarded: 40},
				{FieldQuestionNumber: "2.0", FieldMarksAwarded: 2},
			},
			OverallFeedback: "Good effort",
		}, nil
	}}
	g := newGrader(t, svc, DefaultConfig(), zap.NewNop())

	res, err := g.Grade(context.Background(), []QuestionItem{
		{FieldQuestionNumber: "1", FieldMarkingCriteria: "c1"},
		{FieldQuestionNumber: "2", FieldMarkingCriteria: "c2"},
	})
	require.NoError(t, err)

	require.Len(t, res.Questions, 2)
	assert.Equal(t, "1", res.Questions[0][FieldQuestionNumber])
	assert.Equal(t, "2", res.Questions[1][FieldQuestionNumber], "number restored to the original value")
	assert.Equal(t, "c2", res.Questions[1][FieldMarkingCriteria], "criteria restored when the model omits it")
	assert.Equal(t, float64(3), res.FinalScore)
	assert.Equal(t, "Good effort", res.OverallFeedback)
}

func TestGradeInvalidInput(t *testing.T) {
	g := newGrader(t, &mockService{policy: answerAll}, DefaultConfig(), zap.NewNop())

	_, err := g.Grade(context.Background(), []QuestionItem{{"question_text": "no number"}})
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	_, err = g.Grade(context.Background(), []QuestionItem{
		{FieldQuestionNumber: 1},
		{FieldQuestionNumber: "1"},
	})
	assert.ErrorIs(t, err, domain.ErrPrecondition)

	res, err := g.Grade(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Questions)
	assert.Zero(t, res.Calls)
}

func TestGradeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &mockService{policy: func(call int, items []QuestionItem) (*ChunkResult, error) {
		cancel()
		return nil, errors.New("interrupted")
	}}
	g := newGrader(t, svc, DefaultConfig(), zap.NewNop())

	_, err := g.Grade(ctx, makeItems(10))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, svc.requests, 1)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	for _, cfg := range []Config{
		{ChunkSize: 0, MaxChunkRetries: 1, MaxGlobalPasses: 1},
		{ChunkSize: 1, MaxChunkRetries: 0, MaxGlobalPasses: 1},
		{ChunkSize: 1, MaxChunkRetries: 1, MaxGlobalPasses: -1},
	} {
		_, err := NewBatchGrader(&mockService{policy: answerAll}, cfg, nop.Collector{}, zap.NewNop())
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	}

	_, err := NewBatchGrader(nil, DefaultConfig(), nop.Collector{}, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSortByNumber(t *testing.T) {
	items := []QuestionItem{
		{FieldQuestionNumber: "10"},
		{FieldQuestionNumber: "b"},
		{FieldQuestionNumber: 2},
		{FieldQuestionNumber: "3a"},
		{FieldQuestionNumber: 1.5},
	}
	SortByNumber(items)

	var got []string
	for _, item := range items {
		got = append(got, item.Number())
	}
	assert.Equal(t, []string{"1.5", "2", "10", "3a", "b"}, got)
}
