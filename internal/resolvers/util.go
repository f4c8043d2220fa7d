package resolvers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
	"go.uber.org/zap"
)

const (
	paramMethod  = "method"
	paramHeaders = "headers"
	paramBody    = "body"
	paramMessage = "message"

	contextCounter = "counter"
	contextLimit   = "limit"
)

// RestResolver performs one HTTP call.
//
// Params: url, method (GET), headers, body. A non-string body is sent as
// JSON. Outputs: responseBody (decoded when it is JSON), statusCode.
type RestResolver struct {
	deps   Deps
	logger *zap.Logger
}

// NewRestResolver creates a RestResolver.
func NewRestResolver(deps Deps) *RestResolver {
	deps = deps.withDefaults()
	return &RestResolver{deps: deps, logger: deps.Logger.With(zap.String("resolver", NameRest))}
}

// Exec implements engine.Resolver.
func (r *RestResolver) Exec(ctx context.Context, params engine.Params, _ *engine.ExecutionContext) (engine.Outputs, error) {
	url, err := params.RequireString(paramURL)
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(params.String(paramMethod))
	if method == "" {
		method = http.MethodGet
	}

	var headers map[string]interface{}
	if err := params.Decode(paramHeaders, &headers); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	req := r.deps.HTTP.R().SetContext(ctx)
	for k, v := range headers {
		req.SetHeader(k, engine.Stringify(v))
	}
	if body, ok := params[paramBody]; ok && body != nil {
		if s, isString := body.(string); isString {
			req.SetBody(s)
		} else {
			if req.Header.Get("Content-Type") == "" {
				req.SetHeader("Content-Type", "application/json")
			}
			req.SetBody(body)
		}
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrExternalService, method, url, err)
	}

	var responseBody interface{}
	if raw := resp.Body(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &responseBody); err != nil {
			responseBody = string(raw)
		}
	}

	r.logger.Debug("rest call completed",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode()))

	return engine.Outputs{
		"responseBody": responseBody,
		"statusCode":   resp.StatusCode(),
	}, nil
}

// SetResolver returns its params unchanged. It is used to put constants into
// the data pool.
type SetResolver struct {
	logger *zap.Logger
}

// NewSetResolver creates a SetResolver.
func NewSetResolver(deps Deps) *SetResolver {
	deps = deps.withDefaults()
	return &SetResolver{logger: deps.Logger.With(zap.String("resolver", NameSet))}
}

// Exec implements engine.Resolver.
func (r *SetResolver) Exec(_ context.Context, params engine.Params, _ *engine.ExecutionContext) (engine.Outputs, error) {
	out := make(engine.Outputs, len(params))
	for k, v := range params {
		out[k] = v
	}
	r.logger.Debug("values set", zap.Int("count", len(out)))
	return out, nil
}

// PrintResolver logs a message and counts its invocations in the run
// context.
//
// Params: message. Outputs: continue, true while the context counter is
// below the context limit (unbounded when unset).
type PrintResolver struct {
	logger *zap.Logger
}

// NewPrintResolver creates a PrintResolver.
func NewPrintResolver(deps Deps) *PrintResolver {
	deps = deps.withDefaults()
	return &PrintResolver{logger: deps.Logger.With(zap.String("resolver", NamePrint))}
}

// Exec implements engine.Resolver.
func (r *PrintResolver) Exec(_ context.Context, params engine.Params, execCtx *engine.ExecutionContext) (engine.Outputs, error) {
	if execCtx == nil {
		execCtx = engine.NewExecutionContext(nil)
	}

	var counter int
	limit := math.Inf(1)
	execCtx.Update(func(values map[string]interface{}) {
		if n, ok := engine.ToFloat(values[contextCounter]); ok {
			counter = int(n)
		}
		counter++
		values[contextCounter] = counter
		if l, ok := engine.ToFloat(values[contextLimit]); ok && l > 0 {
			limit = l
		}
	})

	r.logger.Info("print",
		zap.String("message", params.String(paramMessage)),
		zap.Int("counter", counter))

	return engine.Outputs{"continue": float64(counter) < limit}, nil
}
