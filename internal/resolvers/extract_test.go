package resolvers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a one-page document showing text in Helvetica.
func buildPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDFResolver(t *testing.T) {
	first := writeFile(t, "first.pdf", buildPDF("Hello PDF"))
	second := writeFile(t, "second.pdf", buildPDF("Second document"))
	broken := writeFile(t, "broken.pdf", []byte("%PDF-1.4 not really"))

	out, err := NewPDFResolver(testDeps(t)).Exec(context.Background(), engine.Params{
		"files": []domain.ResolvedFile{
			{FilePath: first, MimeType: "application/pdf", Processor: PDFProcessor},
			{FilePath: second, MimeType: "application/pdf", Processor: "vision"},
			{FilePath: broken, MimeType: "application/pdf", Processor: PDFProcessor},
			{FilePath: filepath.Join(t.TempDir(), "gone.pdf"), MimeType: "application/pdf", Processor: PDFProcessor},
			{FilePath: first, MimeType: "image/png", Processor: PDFProcessor},
		},
	}, nil)
	require.NoError(t, err)

	assert.Contains(t, out["content"], "Hello PDF")
	assert.NotContains(t, out["content"], "Second document")
	meta := out["meta"].(map[string]interface{})
	assert.Equal(t, 1, meta["pageCount"])
	assert.Equal(t, []interface{}{first}, meta["processedFiles"])
}

func TestExtractPDFTextRecoversFromOpenPanic(t *testing.T) {
	path := writeFile(t, "trailer.pdf", buildPDF("unused"))

	orig := openPDF
	openPDF = func(string) (*os.File, *pdf.Reader, error) {
		panic("malformed trailer")
	}
	t.Cleanup(func() { openPDF = orig })

	text, pages, err := extractPDFText(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed trailer")
	assert.Empty(t, text)
	assert.Zero(t, pages)

	// the resolver skips the file instead of failing the run
	out, err := NewPDFResolver(testDeps(t)).Exec(context.Background(), engine.Params{
		"files": []domain.ResolvedFile{{FilePath: path, MimeType: "application/pdf", Processor: PDFProcessor}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", out["content"])
}

func TestPDFResolverNothingToProcess(t *testing.T) {
	resolver := NewPDFResolver(testDeps(t))

	out, err := resolver.Exec(context.Background(), engine.Params{
		"files": []domain.ResolvedFile{{FilePath: "/x.png", MimeType: "image/png", Processor: "vision"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", out["content"])
	assert.Equal(t, map[string]interface{}{"pageCount": 0, "processedFiles": []interface{}{}}, out["meta"])

	_, err = resolver.Exec(context.Background(), engine.Params{}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingParam)
}

func TestWebResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Ignored</title><style>p { color: red }</style></head><body>
<h1>Title</h1>
<p>Some <b>bold</b> text</p>
<script>var ignored = 1;</script>
</body></html>`)
	}))
	defer srv.Close()

	resolver := NewWebResolver(testDeps(t))

	out, err := resolver.Exec(context.Background(), engine.Params{"url": srv.URL + "/page"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Title\nSome bold text", out["content"])
	assert.Equal(t, 20, out["length"])

	_, err = resolver.Exec(context.Background(), engine.Params{"url": srv.URL + "/gone"}, nil)
	assert.ErrorIs(t, err, domain.ErrExternalService)

	_, err = resolver.Exec(context.Background(), engine.Params{}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingParam)
}
