package resolvers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	paramAssets    = "assets"
	paramAssetURLs = "assetUrls"

	mimeOctetStream = "application/octet-stream"
)

// Asset failure kinds recorded in metrics.
const (
	assetKindStored = "stored"
	assetKindURL    = "url"
)

// AssetResolver turns asset ids and URLs into local files.
//
// Params: assets ([]AssetRef) and/or assetUrls ([]URLRef).
// Outputs: files ([]ResolvedFile), failures ([]AssetFailure).
type AssetResolver struct {
	deps   Deps
	logger *zap.Logger
}

// NewAssetResolver creates an AssetResolver.
func NewAssetResolver(deps Deps) *AssetResolver {
	deps = deps.withDefaults()
	return &AssetResolver{deps: deps, logger: deps.Logger.With(zap.String("resolver", NameAsset))}
}

// Exec implements engine.Resolver.
func (r *AssetResolver) Exec(ctx context.Context, params engine.Params, _ *engine.ExecutionContext) (engine.Outputs, error) {
	var assets []domain.AssetRef
	var urls []domain.URLRef
	if err := params.Decode(paramAssets, &assets); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if err := params.Decode(paramAssetURLs, &urls); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if len(assets) == 0 && len(urls) == 0 {
		return nil, fmt.Errorf("%w: either %s or %s must be provided", domain.ErrPrecondition, paramAssets, paramAssetURLs)
	}

	files := []domain.ResolvedFile{}
	failures := []domain.AssetFailure{}
	fail := func(kind, ref string, err error) {
		r.logger.Warn("failed to resolve asset",
			zap.String("kind", kind),
			zap.String("reference", ref),
			zap.Error(err))
		r.deps.Metrics.RecordAssetFailure(kind)
		failures = append(failures, domain.AssetFailure{Reference: ref, Reason: err.Error()})
	}

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file, err := r.resolveStored(ctx, asset)
		if err != nil {
			fail(assetKindStored, "asset:"+asset.ID, err)
			continue
		}
		files = append(files, *file)
	}

	for _, ref := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file, err := r.resolveURL(ctx, ref)
		if err != nil {
			fail(assetKindURL, ref.URL, err)
			continue
		}
		files = append(files, *file)
	}

	if len(files) == 0 {
		reasons := make([]string, len(failures))
		for i, f := range failures {
			reasons[i] = f.Reference + ": " + f.Reason
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetResolution, strings.Join(reasons, "; "))
	}

	r.logger.Info("assets resolved",
		zap.Int("files", len(files)),
		zap.Int("failures", len(failures)))

	return engine.Outputs{"files": files, "failures": failures}, nil
}

// resolveStored looks an asset up in the file store. Root-relative URLs are
// served from the public directory, absolute ones are downloaded.
func (r *AssetResolver) resolveStored(ctx context.Context, asset domain.AssetRef) (*domain.ResolvedFile, error) {
	if asset.ID == "" {
		return nil, errors.New("asset id is empty")
	}
	if r.deps.Files == nil {
		return nil, errors.New("no file store configured")
	}
	info, err := r.deps.Files.GetFile(ctx, asset.ID)
	if err != nil {
		return nil, err
	}
	if info.URL == "" {
		return nil, errors.New("file has no url")
	}

	var filePath string
	switch {
	case isRemote(info.URL):
		filePath, err = r.download(ctx, info.URL, urlExt(info.URL))
		if err != nil {
			return nil, err
		}
	case strings.HasPrefix(info.URL, "/"):
		filePath = filepath.Join(r.deps.PublicDir, filepath.FromSlash(info.URL))
	default:
		filePath = info.URL
	}

	mimeType := info.MimeType
	if mimeType == "" {
		mimeType = sniffMime(filePath)
	}

	return &domain.ResolvedFile{
		FilePath:  filePath,
		MimeType:  mimeType,
		Processor: asset.Processor,
		Type:      asset.Type,
		Source:    "asset:" + asset.ID,
	}, nil
}

// resolveURL downloads a file, or renders a page to PDF when the URL path
// has no extension.
func (r *AssetResolver) resolveURL(ctx context.Context, ref domain.URLRef) (*domain.ResolvedFile, error) {
	if !isRemote(ref.URL) {
		return nil, fmt.Errorf("unsupported url %q", ref.URL)
	}

	file := &domain.ResolvedFile{Processor: ref.Processor, Type: ref.Type, Source: ref.URL}

	ext := urlExt(ref.URL)
	if ext == "" {
		if r.deps.Renderer == nil {
			return nil, errors.New("page rendering is disabled")
		}
		data, err := r.deps.Renderer.RenderPDF(ctx, ref.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to render page: %w", err)
		}
		filePath, err := r.writeTemp("page-*.pdf", data)
		if err != nil {
			return nil, err
		}
		file.FilePath = filePath
		file.MimeType = mimePDF
		return file, nil
	}

	filePath, err := r.download(ctx, ref.URL, ext)
	if err != nil {
		return nil, err
	}
	file.FilePath = filePath
	file.MimeType = mimeByExtension(ext)
	if file.MimeType == "" {
		file.MimeType = sniffMime(filePath)
	}
	return file, nil
}

func (r *AssetResolver) download(ctx context.Context, rawURL, ext string) (string, error) {
	resp, err := r.deps.HTTP.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode())
	}
	filePath, err := r.writeTemp("file-*"+ext, resp.Body())
	if err != nil {
		return "", err
	}
	r.logger.Debug("asset downloaded",
		zap.String("url", rawURL),
		zap.String("file", filePath),
		zap.Int("bytes", len(resp.Body())))
	return filePath, nil
}

func (r *AssetResolver) writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(r.deps.TempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return f.Name(), nil
}

func isRemote(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// urlExt returns the extension of the URL path, ignoring query and fragment.
func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

func mimeByExtension(ext string) string {
	mediaType, _, _ := strings.Cut(mime.TypeByExtension(strings.ToLower(ext)), ";")
	return strings.TrimSpace(mediaType)
}

func sniffMime(filePath string) string {
	mt, err := mimetype.DetectFile(filePath)
	if err != nil {
		return mimeOctetStream
	}
	mediaType, _, _ := strings.Cut(mt.String(), ";")
	return mediaType
}
