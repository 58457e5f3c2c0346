// Package errors defines the structured error types used across the asset
// pipeline, split into two propagation classes: soft errors that accumulate
// on an asset or a scan (invalid paths, unresolved imports, handler
// failures) and fatal errors raised synchronously (a missing library at
// asset construction).
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes pipeline errors.
type ErrorType string

const (
	ErrorTypeScan      ErrorType = "scan"
	ErrorTypeAsset     ErrorType = "asset"
	ErrorTypeReference ErrorType = "reference"
	ErrorTypeLookup    ErrorType = "lookup"
	ErrorTypeFatal     ErrorType = "fatal"
)

// Error codes.
const (
	ErrCodeInvalidPath            = "ERR_INVALID_PATH"
	ErrCodeDuplicateAsset         = "ERR_DUPLICATE_ASSET"
	ErrCodeAssetNotFound          = "ERR_ASSET_NOT_FOUND"
	ErrCodeUnrecognizedExtension  = "ERR_UNRECOGNIZED_EXTENSION"
	ErrCodeCircularReference      = "ERR_CIRCULAR_REFERENCE"
	ErrCodeInvalidReference       = "ERR_INVALID_REFERENCE"
	ErrCodeMissingLibrary         = "ERR_MISSING_LIBRARY"
	ErrCodeHandlerFailed          = "ERR_HANDLER_FAILED"
	ErrCodeDirtyDump              = "ERR_DIRTY_DUMP"
)

// PipelineError is a structured error with a type, stable code, and
// optional cause and source location.
type PipelineError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	// Path is the external asset path the error belongs to, when known.
	Path string
	// Line is the 1-based line of the offending text, 0 when unknown.
	Line int
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Path != "" {
		location := e.Path
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so call sites can compare against sentinel
// constructors with errors.Is.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithLine attaches a 1-based source line to the error.
func (e *PipelineError) WithLine(line int) *PipelineError {
	e.Line = line
	return e
}

// Error constructors

// ErrInvalidPath reports a discovered path containing a disallowed character.
func ErrInvalidPath(path string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeScan,
		Code:    ErrCodeInvalidPath,
		Message: "invalid characters in path: " + path,
		Path:    path,
	}
}

// ErrDuplicateAsset reports the same external path discovered under two roots.
func ErrDuplicateAsset(path, firstRoot, secondRoot string) *PipelineError {
	return &PipelineError{
		Type: ErrorTypeScan,
		Code: ErrCodeDuplicateAsset,
		Message: fmt.Sprintf("duplicate asset path (already seen under %s, ignoring %s)",
			firstRoot, secondRoot),
		Path: path,
	}
}

// ErrAssetNotFound reports an import/reference target or lookup miss.
func ErrAssetNotFound(path, from string) *PipelineError {
	e := &PipelineError{
		Type:    ErrorTypeLookup,
		Code:    ErrCodeAssetNotFound,
		Message: "asset not found: " + path,
		Path:    from,
	}
	if from == "" {
		e.Path = path
	}

	return e
}

// ErrUnrecognizedExtension reports a path whose extension has no registered
// descriptor.
func ErrUnrecognizedExtension(path string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeLookup,
		Code:    ErrCodeUnrecognizedExtension,
		Message: "no descriptor registered for extension of: " + path,
		Path:    path,
	}
}

// ErrCircularReference reports a reference (not an import, which is legal)
// that would cycle back through the referencing asset.
func ErrCircularReference(path, target string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeReference,
		Code:    ErrCodeCircularReference,
		Message: "circular reference to: " + target,
		Path:    path,
	}
}

// ErrInvalidReference reports a malformed reference entity or format.
func ErrInvalidReference(path, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeReference,
		Code:    ErrCodeInvalidReference,
		Message: message,
		Path:    path,
	}
}

// ErrMissingLibrary is fatal: an asset whose descriptor requires a library
// that cannot be loaded cannot be constructed at all.
func ErrMissingLibrary(name string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeFatal,
		Code:    ErrCodeMissingLibrary,
		Message: "required library not available: " + name,
	}
}

// ErrHandlerFailed wraps a failure from a descriptor hook (parse handler,
// compile, finalize, or minify).
func ErrHandlerFailed(path, stage string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeAsset,
		Code:    ErrCodeHandlerFailed,
		Message: stage + " handler failed",
		Cause:   cause,
		Path:    path,
	}
}

// ErrDirtyDump reports a refused dump while the last scan holds errors.
func ErrDirtyDump(count int) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeScan,
		Code:    ErrCodeDirtyDump,
		Message: fmt.Sprintf("refusing to dump: last scan left %d error(s)", count),
	}
}

// ProcessingError aggregates all errors from one scan or from one asset's
// processing pass. It is what the strict entry points return.
type ProcessingError struct {
	Errors []error
}

// Error implements the error interface.
func (pe *ProcessingError) Error() string {
	switch len(pe.Errors) {
	case 0:
		return "no errors"
	case 1:
		return pe.Errors[0].Error()
	}

	msgs := make([]string, len(pe.Errors))
	for i, err := range pe.Errors {
		msgs[i] = err.Error()
	}

	return fmt.Sprintf("%d errors: %s", len(pe.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the aggregated errors to errors.Is/As.
func (pe *ProcessingError) Unwrap() []error {
	return pe.Errors
}
