package resolvers

import (
	"context"
	"fmt"
	"os"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/internal/application/grading"
	"github.com/aescanero/markflow/pkg/domain"
	"go.uber.org/zap"
)

const (
	paramPrompt           = "prompt"
	paramFiles            = "files"
	paramProcessor        = "processor"
	paramMarkschemePrompt = "markschemeprompt"
	paramMarkschemeFormat = "markschemeformat"

	// DefaultVisionProcessor tags the files sent to the Vision resolver.
	DefaultVisionProcessor = "vision"

	fileTypeAnswersheet   = "answersheet"
	fileTypeMarkingScheme = "markingscheme"
)

// VisionResolver sends files to a multimodal model together with a prompt.
//
// When an answer sheet or a marking scheme is among the files, each is sent
// in its own request and the marking criteria found in the scheme are merged
// into the answer sheet questions. Otherwise every file tagged with the
// processor is sent with the prompt in one request.
//
// Params: prompt (required), files, format, markschemeprompt,
// markschemeformat, processor, model. Outputs: response.
type VisionResolver struct {
	deps   Deps
	logger *zap.Logger
}

// NewVisionResolver creates a VisionResolver.
func NewVisionResolver(deps Deps) *VisionResolver {
	deps = deps.withDefaults()
	return &VisionResolver{deps: deps, logger: deps.Logger.With(zap.String("resolver", NameVision))}
}

type questionList struct {
	Questions []grading.QuestionItem `json:"questions"`
}

// Exec implements engine.Resolver.
func (r *VisionResolver) Exec(ctx context.Context, params engine.Params, _ *engine.ExecutionContext) (engine.Outputs, error) {
	prompt, err := params.RequireString(paramPrompt)
	if err != nil {
		return nil, err
	}

	var files []domain.ResolvedFile
	if err := params.Decode(paramFiles, &files); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	processor := params.String(paramProcessor)
	if processor == "" {
		processor = DefaultVisionProcessor
	}

	var tagged []domain.ResolvedFile
	var answersheet, markscheme *domain.ResolvedFile
	for i := range files {
		if files[i].Processor != processor {
			continue
		}
		tagged = append(tagged, files[i])
		switch files[i].Type {
		case fileTypeAnswersheet:
			if answersheet == nil {
				answersheet = &files[i]
			}
		case fileTypeMarkingScheme:
			if markscheme == nil {
				markscheme = &files[i]
			}
		}
	}

	if answersheet == nil && markscheme == nil {
		return r.single(ctx, params, prompt, tagged)
	}

	var answers, scheme questionList
	if answersheet != nil {
		if err := r.analyze(ctx, params, prompt+schemaHint(params[paramFormat]), []domain.ResolvedFile{*answersheet}, &answers); err != nil {
			return nil, fmt.Errorf("answer sheet: %w", err)
		}
	}
	if markscheme != nil {
		schemePrompt := params.String(paramMarkschemePrompt)
		if schemePrompt == "" {
			schemePrompt = prompt
		}
		if err := r.analyze(ctx, params, schemePrompt+schemaHint(params[paramMarkschemeFormat]), []domain.ResolvedFile{*markscheme}, &scheme); err != nil {
			return nil, fmt.Errorf("marking scheme: %w", err)
		}
	}

	return engine.Outputs{
		"response": map[string]interface{}{
			"questions": toGeneric(mergeCriteria(answers.Questions, scheme.Questions)),
		},
	}, nil
}

func (r *VisionResolver) single(ctx context.Context, params engine.Params, prompt string, files []domain.ResolvedFile) (engine.Outputs, error) {
	if len(files) == 0 {
		r.logger.Debug("no tagged files, sending prompt only")
	}
	var parsed interface{}
	if err := r.analyze(ctx, params, prompt+schemaHint(params[paramFormat]), files, &parsed); err != nil {
		return nil, err
	}
	if err := checkSchema(parsed, asSchema(params[paramFormat])); err != nil {
		return nil, err
	}
	return engine.Outputs{"response": parsed}, nil
}

// analyze sends prompt with files attached and decodes the JSON answer into out
func (r *VisionResolver) analyze(ctx context.Context, params engine.Params, prompt string, files []domain.ResolvedFile, out interface{}) error {
	msg := domain.Message{Role: "user", Content: prompt}
	for _, file := range files {
		if file.FilePath == "" || file.MimeType == "" {
			r.logger.Warn("skipping file without path or mime type",
				zap.String("file", file.FilePath),
				zap.String("type", file.Type))
			continue
		}
		data, err := os.ReadFile(file.FilePath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file.FilePath, err)
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{MimeType: file.MimeType, Data: data})
	}

	resp, err := complete(ctx, r.deps, params, &domain.LLMRequest{
		Messages:       []domain.Message{msg},
		ResponseFormat: domain.ResponseFormatJSON,
	})
	if err != nil {
		return err
	}
	r.logger.Debug("vision request completed",
		zap.Int("attachments", len(msg.Attachments)),
		zap.Int("output_tokens", resp.Usage.OutputTokens))
	return parseJSON(resp.Content, out)
}

// mergeCriteria sets marking_criteria on every answer from the scheme
// question with the same number, or "" when the scheme has none.
func mergeCriteria(answers, scheme []grading.QuestionItem) []grading.QuestionItem {
	criteria := make(map[string]interface{}, len(scheme))
	for _, q := range scheme {
		if _, seen := criteria[q.Number()]; !seen {
			criteria[q.Number()] = q[grading.FieldMarkingCriteria]
		}
	}

	merged := make([]grading.QuestionItem, 0, len(answers))
	for _, q := range answers {
		out := make(grading.QuestionItem, len(q)+1)
		for k, v := range q {
			out[k] = v
		}
		if c, ok := criteria[q.Number()]; ok && c != nil {
			out[grading.FieldMarkingCriteria] = c
		} else {
			out[grading.FieldMarkingCriteria] = ""
		}
		merged = append(merged, out)
	}
	return merged
}
