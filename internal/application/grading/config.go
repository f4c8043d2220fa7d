package grading

import (
	"fmt"

	"github.com/aescanero/markflow/pkg/domain"
)

// Default bounds.
const (
	DefaultChunkSize       = 5
	DefaultMaxChunkRetries = 3
	DefaultMaxGlobalPasses = 3
)

// Config bounds a grading call.
type Config struct {
	// ChunkSize is the number of items sent per call.
	ChunkSize int
	// MaxChunkRetries is the number of calls made for one chunk, the first
	// one included.
	MaxChunkRetries int
	// MaxGlobalPasses is the number of times leftovers are re-chunked.
	MaxGlobalPasses int
	// PreservedFields are copied from the original items into the answers.
	// A preserved field the original lacks is dropped from the answer.
	PreservedFields []string
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       DefaultChunkSize,
		MaxChunkRetries: DefaultMaxChunkRetries,
		MaxGlobalPasses: DefaultMaxGlobalPasses,
		PreservedFields: []string{FieldMarkingCriteria},
	}
}

// Validate checks that every bound is positive.
func (c Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, c.ChunkSize)
	}
	if c.MaxChunkRetries < 1 {
		return fmt.Errorf("%w: max chunk retries must be positive, got %d", domain.ErrConfiguration, c.MaxChunkRetries)
	}
	if c.MaxGlobalPasses < 1 {
		return fmt.Errorf("%w: max global passes must be positive, got %d", domain.ErrConfiguration, c.MaxGlobalPasses)
	}
	return nil
}

// withDefaults fills an unset preserved field list
func (c Config) withDefaults() Config {
	if c.PreservedFields == nil {
		c.PreservedFields = []string{FieldMarkingCriteria}
	}
	return c
}
