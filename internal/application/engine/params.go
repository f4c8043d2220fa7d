package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aescanero/markflow/pkg/domain"
)

// Params are the arguments handed to a single resolver invocation. Each
// invocation owns its copy.
type Params map[string]interface{}

// Outputs are the values a resolver returns, keyed by resolver output name.
type Outputs map[string]interface{}

// Has reports whether key is present and not nil.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns the value under key formatted as a string, or "" when absent.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return Stringify(v)
}

// RequireString returns the string under key or ErrMissingParam.
func (p Params) RequireString(key string) (string, error) {
	s := p.String(key)
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrMissingParam, key)
	}
	return s, nil
}

// Int returns the integer under key, or def when absent or not numeric.
func (p Params) Int(key string, def int) int {
	if n, ok := toFloat(p[key]); ok {
		return int(n)
	}
	return def
}

// Decode converts the value under key into out through its JSON form, which
// accepts both typed values produced by other resolvers and generic maps
// coming from callers.
func (p Params) Decode(key string, out interface{}) error {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("param %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("param %s: %w", key, err)
	}
	return nil
}

// Without returns a copy of p minus the given keys.
func (p Params) Without(keys ...string) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Stringify renders v the way prompt builders expect: strings as-is, other
// values as compact JSON.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// ToFloat converts JSON-ish numeric values, including numeric strings.
func ToFloat(v interface{}) (float64, bool) {
	return toFloat(v)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// deepCopy copies the container kinds produced by JSON decoding so that
// resolvers cannot alias each other's maps and slices.
func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, x := range t {
			out[k] = deepCopy(x)
		}
		return out
	case Params:
		out := make(Params, len(t))
		for k, x := range t {
			out[k] = deepCopy(x)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = deepCopy(x)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
