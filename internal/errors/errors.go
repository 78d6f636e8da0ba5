// Package errors provides centralized error handling with category and
// component metadata for structured logging and troubleshooting.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryCamera        ErrorCategory = "camera"
	CategoryInference     ErrorCategory = "inference"
	CategoryModelInit     ErrorCategory = "model-initialization"
	CategoryLabelLoad     ErrorCategory = "label-loading"
	CategoryValidation    ErrorCategory = "validation"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryNetwork       ErrorCategory = "network"
	CategoryDatabase      ErrorCategory = "database"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryCapture       ErrorCategory = "capture"
	CategoryMetrics       ErrorCategory = "metrics"
	CategoryState         ErrorCategory = "state"
	CategoryMQTTPublish   ErrorCategory = "mqtt-publish"
	CategoryImageFetch    ErrorCategory = "image-fetch"
	CategoryGeneric       ErrorCategory = "generic"
)

// Sentinel errors for the pipeline's failure taxonomy. Callers match these
// with errors.Is; all carry their category when wrapped through this package.
var (
	// ErrCameraUnavailable indicates the capture device could not be opened
	// or disappeared mid-stream. Fatal to the frame source only.
	ErrCameraUnavailable = stderrors.New("camera unavailable")

	// ErrDuplicateCapture indicates a capture was rejected by the per-species
	// cooldown. A normal negative outcome, not a failure.
	ErrDuplicateCapture = stderrors.New("duplicate capture within cooldown window")
)

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	Component string         // Component where the error occurred
	Category  ErrorCategory  // Error category for grouping
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is implements error type checking
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetContext returns a copy of the context map, safe to mutate.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	cloned := make(map[string]any, len(ee.Context))
	maps.Copy(cloned, ee.Context)
	return cloned
}

// ErrorBuilder provides a fluent interface for constructing enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new ErrorBuilder wrapping the given error
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{
		err:      err,
		category: CategoryGeneric,
	}
}

// Newf creates a new ErrorBuilder from a formatted message
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (b *ErrorBuilder) Component(component string) *ErrorBuilder {
	b.component = component
	return b
}

// Category sets the error category
func (b *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	b.category = category
	return b
}

// Context adds a key-value pair to the error context
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build constructs the final EnhancedError
func (b *ErrorBuilder) Build() *EnhancedError {
	// Avoid double wrapping, merge context into the existing error instead
	var existing *EnhancedError
	if stderrors.As(b.err, &existing) && len(b.context) > 0 {
		if existing.Context == nil {
			existing.Context = make(map[string]any, len(b.context))
		}
		maps.Copy(existing.Context, b.context)
		return existing
	}

	return &EnhancedError{
		Err:       b.err,
		Component: b.component,
		Category:  b.category,
		Context:   b.context,
		Timestamp: time.Now(),
	}
}

// Standard library passthroughs so callers only import this package.

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join wraps errors.Join from the standard library
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
