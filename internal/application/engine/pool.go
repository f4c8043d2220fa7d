package engine

import "sort"

// DataPool holds every named value available to a run: the initial input
// plus the outputs of the tasks that already ran. It is only mutated between
// layers, by the executor goroutine.
type DataPool struct {
	values map[string]interface{}
}

// NewDataPool creates a pool seeded with a shallow copy of input.
func NewDataPool(input map[string]interface{}) *DataPool {
	values := make(map[string]interface{}, len(input))
	for k, v := range input {
		values[k] = v
	}
	return &DataPool{values: values}
}

// Get returns the value stored under key.
func (p *DataPool) Get(key string) (interface{}, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is available.
func (p *DataPool) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// HasAll reports whether every key is available.
func (p *DataPool) HasAll(keys []string) bool {
	for _, k := range keys {
		if !p.Has(k) {
			return false
		}
	}
	return true
}

// Missing returns the keys that are not available, sorted.
func (p *DataPool) Missing(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if !p.Has(k) {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// Merge adds values to the pool, overwriting existing keys.
func (p *DataPool) Merge(values map[string]interface{}) {
	for k, v := range values {
		p.values[k] = v
	}
}

// Pick returns the values stored under keys.
func (p *DataPool) Pick(keys []string) map[string]interface{} {
	out := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Keys returns every available key, sorted.
func (p *DataPool) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
