package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/aescanero/markflow/pkg/domain"
)

// Resolver is the executable capability behind a task.
type Resolver interface {
	Exec(ctx context.Context, params Params, execCtx *ExecutionContext) (Outputs, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, params Params, execCtx *ExecutionContext) (Outputs, error)

// Exec calls f.
func (f ResolverFunc) Exec(ctx context.Context, params Params, execCtx *ExecutionContext) (Outputs, error) {
	return f(ctx, params, execCtx)
}

// Registry maps resolver names to resolvers. It is populated once at startup
// and only read afterwards.
type Registry struct {
	resolvers map[string]Resolver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

// Register adds a resolver under name.
func (r *Registry) Register(name string, resolver Resolver) error {
	if name == "" {
		return fmt.Errorf("resolver name is required")
	}
	if resolver == nil {
		return fmt.Errorf("resolver %s is nil", name)
	}
	if _, exists := r.resolvers[name]; exists {
		return fmt.Errorf("resolver %s already registered", name)
	}
	r.resolvers[name] = resolver
	return nil
}

// Get returns the resolver registered under name.
func (r *Registry) Get(name string) (Resolver, error) {
	resolver, ok := r.resolvers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownResolver, name)
	}
	return resolver, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.resolvers[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.resolvers))
	for name := range r.resolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
