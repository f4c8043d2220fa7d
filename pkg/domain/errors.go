package domain

import (
	"errors"
	"fmt"
)

// Configuration errors abort a run before or during scheduling and are
// surfaced to the caller unchanged.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrUnknownResolver    = fmt.Errorf("%w: unknown resolver", ErrConfiguration)
	ErrMissingParam       = fmt.Errorf("%w: missing mandatory parameter", ErrConfiguration)
	ErrInvalidGraph       = fmt.Errorf("%w: invalid task graph", ErrConfiguration)
	ErrUnsatisfiableGraph = fmt.Errorf("%w: unsatisfiable task graph", ErrConfiguration)
	ErrPrecondition       = fmt.Errorf("%w: precondition failed", ErrConfiguration)
)

// Runtime errors.
var (
	ErrExternalService  = errors.New("external service error")
	ErrSchemaMismatch   = errors.New("response does not match schema")
	ErrAssetResolution  = errors.New("asset resolution failed")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrRunNotFound      = errors.New("run not found")
	ErrFileNotFound     = errors.New("file not found")
)

// IsConfigurationError reports whether err is fatal because of how the
// workflow or its parameters were declared.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsNotFound reports whether err denotes a missing workflow, run or file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrFileNotFound)
}
