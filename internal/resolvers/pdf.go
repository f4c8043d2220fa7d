package resolvers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

const (
	// PDFProcessor tags the files the PDF resolver extracts text from.
	PDFProcessor = "pdfProcessor"
	mimePDF      = "application/pdf"
)

// PDFResolver extracts the text of PDF files.
//
// Params: files (the Asset resolver output). Only files with mime type
// application/pdf and processor pdfProcessor are read; missing or unreadable
// files are skipped. Outputs: content, meta {pageCount, processedFiles}.
type PDFResolver struct {
	logger *zap.Logger
}

// NewPDFResolver creates a PDFResolver.
func NewPDFResolver(deps Deps) *PDFResolver {
	deps = deps.withDefaults()
	return &PDFResolver{logger: deps.Logger.With(zap.String("resolver", NamePDF))}
}

// Exec implements engine.Resolver.
func (r *PDFResolver) Exec(ctx context.Context, params engine.Params, _ *engine.ExecutionContext) (engine.Outputs, error) {
	var files []domain.ResolvedFile
	if err := params.Decode(paramFiles, &files); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s must be a non-empty list", domain.ErrMissingParam, paramFiles)
	}

	var texts []string
	pageCount := 0
	processed := []interface{}{}
	for _, file := range files {
		if file.MimeType != mimePDF || file.Processor != PDFProcessor {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := os.Stat(file.FilePath); err != nil {
			r.logger.Warn("skipping missing file", zap.String("file", file.FilePath))
			continue
		}

		text, pages, err := extractPDFText(file.FilePath)
		if err != nil {
			r.logger.Error("failed to extract pdf",
				zap.String("file", file.FilePath),
				zap.Error(err))
			continue
		}
		texts = append(texts, text)
		pageCount += pages
		processed = append(processed, file.FilePath)
	}

	if len(processed) == 0 {
		r.logger.Info("no pdf files processed", zap.Int("files", len(files)))
	}

	return engine.Outputs{
		"content": strings.TrimSpace(strings.Join(texts, "\n\n")),
		"meta": map[string]interface{}{
			"pageCount":      pageCount,
			"processedFiles": processed,
		},
	}, nil
}

var openPDF = pdf.Open

// extractPDFText returns the plain text of every page, one line per page.
func extractPDFText(path string) (text string, pages int, err error) {
	// the parser panics on some malformed inputs, trailer parsing included
	defer func() {
		if r := recover(); r != nil {
			text, pages, err = "", 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := openPDF(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	pages = reader.NumPage()
	lines := make([]string, 0, pages)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		lines = append(lines, strings.Join(strings.Fields(content), " "))
	}
	return strings.Join(lines, "\n"), pages, nil
}
