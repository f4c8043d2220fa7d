package engine

import "sync"

// ExecutionContext is the key/value store shared by all tasks of one run.
// It is safe for concurrent use by the tasks of a layer.
type ExecutionContext struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewExecutionContext creates a context seeded with a copy of initial.
func NewExecutionContext(initial map[string]interface{}) *ExecutionContext {
	values := make(map[string]interface{}, len(initial))
	for k, v := range initial {
		values[k] = deepCopy(v)
	}
	return &ExecutionContext{values: values}
}

// Get returns the value stored under key.
func (c *ExecutionContext) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the value under key when it is a string.
func (c *ExecutionContext) GetString(key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}

// Set stores value under key.
func (c *ExecutionContext) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Update runs fn with exclusive access to the underlying map, for
// read-modify-write sequences such as counters.
func (c *ExecutionContext) Update(fn func(values map[string]interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.values)
}

// Snapshot returns a copy of the current values.
func (c *ExecutionContext) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		out[k] = deepCopy(v)
	}
	return out
}
