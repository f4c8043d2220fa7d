package resolvers

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const paramURL = "url"

// WebResolver fetches a page and returns the text of its body.
//
// Params: url. Outputs: content, length.
type WebResolver struct {
	deps   Deps
	logger *zap.Logger
}

// NewWebResolver creates a WebResolver.
func NewWebResolver(deps Deps) *WebResolver {
	deps = deps.withDefaults()
	return &WebResolver{deps: deps, logger: deps.Logger.With(zap.String("resolver", NameWeb))}
}

// Exec implements engine.Resolver.
func (r *WebResolver) Exec(ctx context.Context, params engine.Params, _ *engine.ExecutionContext) (engine.Outputs, error) {
	url, err := params.RequireString(paramURL)
	if err != nil {
		return nil, err
	}

	resp, err := r.deps.HTTP.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch %s: %v", domain.ErrExternalService, url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: fetching %s returned %d", domain.ErrExternalService, url, resp.StatusCode())
	}

	text, err := bodyText(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", domain.ErrExternalService, url, err)
	}
	length := utf8.RuneCountInString(text)

	r.logger.Debug("page extracted", zap.String("url", url), zap.Int("length", length))
	return engine.Outputs{"content": text, "length": length}, nil
}

// bodyText concatenates the text nodes under <body>, leaving out scripts and
// styles.
func bodyText(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", err
	}

	body := findElement(doc, atom.Body)
	if body == nil {
		return "", nil
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)

	return strings.TrimSpace(sb.String()), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
