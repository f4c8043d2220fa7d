package resolvers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
)

// Params every model resolver keeps out of the prompt.
const (
	paramAPIKey = "apiKey"
	paramModel  = "model"
)

const schemaHintPrefix = "\n\nPlease provide the response as a valid JSON object strictly adhering to this schema:\n"

// buildPrompt renders params as "key: value" blocks in key order.
func buildPrompt(params engine.Params, reserved ...string) string {
	fields := params.Without(append([]string{paramAPIKey, paramModel}, reserved...)...)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	blocks := make([]string, 0, len(keys))
	for _, k := range keys {
		blocks = append(blocks, k+": "+engine.Stringify(fields[k]))
	}
	return strings.Join(blocks, "\n\n")
}

// schemaHint returns the instruction appended to a prompt when a response
// schema is known, or "" for a nil schema.
func schemaHint(schema interface{}) string {
	if schema == nil {
		return ""
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return ""
	}
	return schemaHintPrefix + string(data)
}

// asSchema returns v when it is a JSON object.
func asSchema(v interface{}) map[string]interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return t
	case engine.Params:
		return t
	}
	return nil
}

// stripFences removes a surrounding Markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseJSON decodes a model answer after stripping fences.
func parseJSON(content string, out interface{}) error {
	clean := stripFences(content)
	if clean == "" {
		return fmt.Errorf("%w: empty response", domain.ErrExternalService)
	}
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return fmt.Errorf("%w: response is not valid JSON: %v", domain.ErrExternalService, err)
	}
	return nil
}

// checkSchema verifies that every schema key is present in obj and, when the
// entry declares a type, that the value has it. Nested schemas are not
// descended into.
func checkSchema(obj interface{}, schema map[string]interface{}) error {
	if len(schema) == 0 {
		return nil
	}
	fields, ok := obj.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: expected a JSON object, got %s", domain.ErrSchemaMismatch, jsType(obj))
	}

	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, present := fields[key]
		if !present {
			return fmt.Errorf("%w: missing key %s", domain.ErrSchemaMismatch, key)
		}
		entry, ok := schema[key].(map[string]interface{})
		if !ok {
			continue
		}
		want, ok := entry["type"].(string)
		if !ok {
			continue
		}
		if got := jsType(value); got != want {
			return fmt.Errorf("%w: key %s is %s, expected %s", domain.ErrSchemaMismatch, key, got, want)
		}
	}
	return nil
}

// jsType names the primitive type of a decoded JSON value. Arrays and null
// are objects.
func jsType(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, float32, int, int64, json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return "object"
	}
}

// complete sends one request through the configured model client.
func complete(ctx context.Context, deps Deps, params engine.Params, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("%w: no model client configured", domain.ErrConfiguration)
	}
	if req.Model == "" {
		req.Model = deps.Model
		if m := params.String(paramModel); m != "" {
			req.Model = m
		}
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = deps.MaxTokens
	}
	return deps.LLM.GenerateCompletion(ctx, req)
}

// toGeneric converts a typed value into plain maps and slices so that the
// engine can copy it between tasks.
func toGeneric(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
