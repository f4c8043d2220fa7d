package engine

import (
	"fmt"
	"os"

	"github.com/aescanero/markflow/pkg/domain"
	"go.uber.org/zap"
)

// Kind is the merge category of a bound value.
type Kind int

const (
	// KindScalar covers strings, numbers, booleans, nil and any other leaf.
	KindScalar Kind = iota
	// KindList covers ordered sequences.
	KindList
	// KindMapping covers string-keyed maps.
	KindMapping
)

// KindOf classifies v.
func KindOf(v interface{}) Kind {
	if _, ok := asMapping(v); ok {
		return KindMapping
	}
	if _, ok := asList(v); ok {
		return KindList
	}
	return KindScalar
}

// Merge combines src into dst and returns the result without mutating either:
//   - mapping into mapping merges key by key, recursively
//   - list into list appends src after dst
//   - any other combination yields a copy of src
func Merge(dst, src interface{}) interface{} {
	switch {
	case KindOf(dst) == KindMapping && KindOf(src) == KindMapping:
		d, _ := asMapping(dst)
		s, _ := asMapping(src)
		out := make(map[string]interface{}, len(d)+len(s))
		for k, v := range d {
			out[k] = deepCopy(v)
		}
		for k, v := range s {
			if existing, ok := out[k]; ok {
				out[k] = Merge(existing, v)
				continue
			}
			out[k] = deepCopy(v)
		}
		return out
	case KindOf(dst) == KindList && KindOf(src) == KindList:
		d, _ := asList(dst)
		s, _ := asList(src)
		out := make([]interface{}, 0, len(d)+len(s))
		for _, v := range d {
			out = append(out, deepCopy(v))
		}
		for _, v := range s {
			out = append(out, deepCopy(v))
		}
		return out
	default:
		return deepCopy(src)
	}
}

func asMapping(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case Params:
		return map[string]interface{}(t), true
	}
	return nil, false
}

func asList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// Bound is the result of applying workflow params at run start.
type Bound struct {
	Input   map[string]interface{}
	Context map[string]interface{}
	Options map[string]interface{}
}

// Binder applies workflow params to the run's input, context and options.
type Binder struct {
	logger    *zap.Logger
	lookupEnv func(string) (string, bool)
}

// NewBinder creates a binder. lookupEnv resolves Environment params and
// defaults to os.LookupEnv.
func NewBinder(logger *zap.Logger, lookupEnv func(string) (string, bool)) *Binder {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &Binder{logger: logger, lookupEnv: lookupEnv}
}

// Bind applies params in declaration order. The caller's input is not
// modified.
func (b *Binder) Bind(params []domain.WorkflowParam, input map[string]interface{}) (*Bound, error) {
	bound := &Bound{
		Input:   make(map[string]interface{}, len(input)),
		Context: make(map[string]interface{}),
		Options: make(map[string]interface{}),
	}
	for k, v := range input {
		bound.Input[k] = deepCopy(v)
	}

	for i, param := range params {
		switch param.Source {
		case domain.ParamSourceContent:
			for k, v := range param.Value {
				bound.Context[k] = deepCopy(v)
			}
		case domain.ParamSourceInput:
			for k, v := range param.Value {
				bound.Input[k] = Merge(bound.Input[k], v)
			}
		case domain.ParamSourceOptions:
			for k, v := range param.Value {
				bound.Options[k] = deepCopy(v)
			}
		case domain.ParamSourceEnvironment:
			if err := b.bindEnvironment(param, bound.Context); err != nil {
				return nil, fmt.Errorf("param[%d] %s: %w", i, param.Name, err)
			}
		case domain.ParamSourceStatic, domain.ParamSourceOutput, domain.ParamSourceParam:
			b.logger.Debug("workflow param not consumed by binder",
				zap.String("name", param.Name),
				zap.String("source", string(param.Source)))
		default:
			return nil, fmt.Errorf("%w: param[%d] %s has unknown source %q",
				domain.ErrConfiguration, i, param.Name, param.Source)
		}
	}

	return bound, nil
}

func (b *Binder) bindEnvironment(param domain.WorkflowParam, context map[string]interface{}) error {
	for key, v := range param.Value {
		name, ok := v.(string)
		if !ok || name == "" {
			return fmt.Errorf("%w: environment param %s must name a variable", domain.ErrConfiguration, key)
		}
		value, found := b.lookupEnv(name)
		if !found {
			b.logger.Warn("environment variable not set",
				zap.String("key", key),
				zap.String("variable", name))
			continue
		}
		context[key] = value
	}
	return nil
}
