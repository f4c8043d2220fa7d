package resolvers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"method":      r.Method,
				"token":       r.Header.Get("X-Token"),
				"contentType": r.Header.Get("Content-Type"),
				"body":        string(body),
			})
		case "/text":
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, "bad input")
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	resolver := NewRestResolver(testDeps(t))

	out, err := resolver.Exec(context.Background(), engine.Params{
		"url":     srv.URL + "/echo",
		"method":  "post",
		"headers": map[string]interface{}{"X-Token": "abc"},
		"body":    map[string]interface{}{"name": "test"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, out["statusCode"])
	assert.Equal(t, map[string]interface{}{
		"method":      "POST",
		"token":       "abc",
		"contentType": "application/json",
		"body":        `{"name":"test"}`,
	}, out["responseBody"])

	out, err = resolver.Exec(context.Background(), engine.Params{"url": srv.URL + "/text"}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, out["statusCode"])
	assert.Equal(t, "bad input", out["responseBody"])

	out, err = resolver.Exec(context.Background(), engine.Params{"url": srv.URL + "/empty"}, nil)
	require.NoError(t, err)
	assert.Nil(t, out["responseBody"])

	_, err = resolver.Exec(context.Background(), engine.Params{}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingParam)

	_, err = resolver.Exec(context.Background(), engine.Params{"url": "http://127.0.0.1:1/unreachable"}, nil)
	assert.ErrorIs(t, err, domain.ErrExternalService)
}

func TestSetResolver(t *testing.T) {
	params := engine.Params{"limit": 3, "topic": "algebra"}
	out, err := NewSetResolver(testDeps(t)).Exec(context.Background(), params, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.Outputs{"limit": 3, "topic": "algebra"}, out)
}

func TestPrintResolver(t *testing.T) {
	resolver := NewPrintResolver(testDeps(t))
	execCtx := engine.NewExecutionContext(map[string]interface{}{"limit": float64(2)})

	out, err := resolver.Exec(context.Background(), engine.Params{"message": "hi"}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, true, out["continue"])

	out, err = resolver.Exec(context.Background(), engine.Params{"message": "hi"}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, false, out["continue"])

	counter, _ := execCtx.Get("counter")
	assert.Equal(t, 2, counter)

	unbounded := engine.NewExecutionContext(nil)
	out, err = resolver.Exec(context.Background(), engine.Params{}, unbounded)
	require.NoError(t, err)
	assert.Equal(t, true, out["continue"])
}
