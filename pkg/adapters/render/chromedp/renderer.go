// Package chromedp renders web pages to PDF with a headless Chrome.
package chromedp

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Renderer implements PDFRenderer. Every call starts its own browser, so
// calls are independent and nothing is kept between runs.
type Renderer struct {
	allocOpts []chromedp.ExecAllocatorOption
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRenderer creates a renderer. execPath selects the browser binary and
// may be empty to let chromedp find one.
func NewRenderer(execPath string, timeout time.Duration, logger *zap.Logger) *Renderer {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	return &Renderer{allocOpts: opts, timeout: timeout, logger: logger}
}

// RenderPDF loads url and prints it to PDF with backgrounds.
func (r *Renderer) RenderPDF(ctx context.Context, url string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	start := time.Now()
	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", url, err)
	}

	r.logger.Debug("page rendered",
		zap.String("url", url),
		zap.Int("bytes", len(pdf)),
		zap.Duration("duration", time.Since(start)))
	return pdf, nil
}
