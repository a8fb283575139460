// Package errors provides the error taxonomy for the NAV validation service.
//
// Errors are classified by category so callers can decide how to react:
// configuration errors abort a run, data errors surface as a distinct
// "no data" condition, and computation errors inside a single validation
// are captured and converted into error-status rows without stopping the
// rest of the batch.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryParse         ErrorCategory = "parse"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryData          ErrorCategory = "data"
	CategoryComputation   ErrorCategory = "computation"
	CategoryCache         ErrorCategory = "cache"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeDirectoryError ErrorCode = "directory_error"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeMissingField  ErrorCode = "missing_field"
	CodeInvalidData   ErrorCode = "invalid_data"
	CodeEncodingError ErrorCode = "encoding_error"

	// Configuration errors
	CodeInvalidConfig      ErrorCode = "invalid_config"
	CodeMissingConfig      ErrorCode = "missing_config"
	CodeInvalidThreshold   ErrorCode = "invalid_threshold"
	CodeInvariantViolation ErrorCode = "invariant_violation"

	// Data errors
	CodeNoData         ErrorCode = "no_data"
	CodeEmptyDataset   ErrorCode = "empty_dataset"
	CodeMissingDataset ErrorCode = "missing_dataset"

	// Validation errors
	CodeValidationFailed ErrorCode = "validation_failed"

	// Computation errors
	CodeComputationFailed ErrorCode = "computation_failed"
	CodeZeroDenominator   ErrorCode = "zero_denominator"

	// Cache errors
	CodeCacheFailure ErrorCode = "cache_failure"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
	CodeNotImplemented  ErrorCode = "not_implemented"
)

// ValidatorError is the service's structured error type. It carries a
// category and code for programmatic handling, free-form context for
// diagnostics, and an optional remediation suggestion for CLI output.
type ValidatorError struct {
	Category   ErrorCategory          `json:"category"`
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
}

// Error implements the error interface
func (e *ValidatorError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s:%s] %s", strings.ToUpper(string(e.Category)), e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap returns the underlying cause, enabling errors.Is/As chains
func (e *ValidatorError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a diagnostic key/value pair to the error
func (e *ValidatorError) WithContext(key string, value interface{}) *ValidatorError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSuggestion attaches a remediation hint shown to CLI users
func (e *ValidatorError) WithSuggestion(suggestion string) *ValidatorError {
	e.Suggestion = suggestion
	return e
}

// New creates a ValidatorError with a captured stack trace
func New(category ErrorCategory, code ErrorCode, message string) *ValidatorError {
	return &ValidatorError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: fmt.Sprintf("%+v", errors.New(message)),
	}
}

// Newf creates a ValidatorError with a formatted message
func Newf(category ErrorCategory, code ErrorCode, format string, args ...interface{}) *ValidatorError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a ValidatorError wrapping an existing error
func Wrap(cause error, category ErrorCategory, code ErrorCode, message string) *ValidatorError {
	if cause == nil {
		return New(category, code, message)
	}
	return &ValidatorError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StackTrace: fmt.Sprintf("%+v", errors.WithStack(cause)),
	}
}

// Wrapf creates a ValidatorError wrapping an error with a formatted message
func Wrapf(cause error, category ErrorCategory, code ErrorCode, format string, args ...interface{}) *ValidatorError {
	return Wrap(cause, category, code, fmt.Sprintf(format, args...))
}

// ConfigurationError creates an error for invalid run or rule setup
func ConfigurationError(code ErrorCode, setting string, cause error) *ValidatorError {
	msg := fmt.Sprintf("configuration error for '%s'", setting)
	return Wrap(cause, CategoryConfiguration, code, msg).
		WithContext("setting", setting)
}

// InvariantViolation creates the fatal error raised when a comparison
// request is neither dual-source nor period-over-period.
func InvariantViolation(message string) *ValidatorError {
	return New(CategoryConfiguration, CodeInvariantViolation, message).
		WithSuggestion("A comparison must differ in exactly one of source or process date")
}

// DataError creates an error for a missing or empty dataset
func DataError(code ErrorCode, dataset, fund, source, date string) *ValidatorError {
	msg := fmt.Sprintf("no %s data found for fund '%s', source '%s', date '%s'", dataset, fund, source, date)
	return New(CategoryData, code, msg).
		WithContext("dataset", dataset).
		WithContext("fund", fund).
		WithContext("source", source).
		WithContext("date", date)
}

// ValidationRunError creates an error for a failed validation run
func ValidationRunError(code ErrorCode, operation string, cause error) *ValidatorError {
	msg := fmt.Sprintf("validation run failed during %s", operation)
	return Wrap(cause, CategoryValidation, code, msg).
		WithContext("operation", operation)
}

// ComputationError creates an error for a failure inside a single
// classifier or ratio computation
func ComputationError(code ErrorCode, rule string, cause error) *ValidatorError {
	msg := fmt.Sprintf("computation failed in '%s'", rule)
	return Wrap(cause, CategoryComputation, code, msg).
		WithContext("rule", rule)
}

// ZeroDenominator creates the intentionally fatal error for denominators
// whose zero state indicates corrupt upstream data rather than a
// business condition.
func ZeroDenominator(rule, field string) *ValidatorError {
	msg := fmt.Sprintf("zero denominator in '%s' field '%s'", rule, field)
	return New(CategoryInternal, CodeZeroDenominator, msg).
		WithContext("rule", rule).
		WithContext("field", field).
		WithSuggestion("Check upstream data integrity; this denominator must never be zero")
}

// CacheError creates an error for result-cache failures
func CacheError(operation string, cause error) *ValidatorError {
	msg := fmt.Sprintf("cache %s failed", operation)
	return Wrap(cause, CategoryCache, CodeCacheFailure, msg).
		WithContext("operation", operation)
}

// FileError creates an error for filesystem problems with dataset files
func FileError(code ErrorCode, filePath string, cause error) *ValidatorError {
	msg := fmt.Sprintf("file operation failed for '%s'", filePath)
	return Wrap(cause, CategoryFile, code, msg).
		WithContext("file_path", filePath)
}

// ParseError creates an error for malformed dataset content
func ParseError(code ErrorCode, filePath string, line int, field, value string, cause error) *ValidatorError {
	msg := fmt.Sprintf("parse error at line %d", line)
	if field != "" {
		msg = fmt.Sprintf("parse error at line %d, field '%s'", line, field)
	}
	err := Wrap(cause, CategoryParse, code, msg).
		WithContext("file_path", filePath).
		WithContext("line", line)
	if field != "" {
		err.WithContext("field", field)
	}
	if value != "" {
		err.WithContext("value", value)
	}
	return err
}

// ValidationError creates an error for an invalid field value
func ValidationError(code ErrorCode, field string, value interface{}, cause error) *ValidatorError {
	msg := fmt.Sprintf("validation failed for field '%s'", field)
	return Wrap(cause, CategoryValidation, code, msg).
		WithContext("field", field).
		WithContext("value", value)
}

// InternalError creates an error for conditions that indicate a bug
func InternalError(code ErrorCode, component string, cause error) *ValidatorError {
	msg := fmt.Sprintf("internal error in %s", component)
	return Wrap(cause, CategoryInternal, code, msg).
		WithContext("component", component)
}

// IsNoData reports whether err (or anything it wraps) is a data-category
// error, the condition API callers translate to a 404-equivalent.
func IsNoData(err error) bool {
	ve := AsValidatorError(err)
	return ve != nil && ve.Category == CategoryData
}

// IsFatal reports whether err should abort the whole run rather than be
// captured into an error-status row.
func IsFatal(err error) bool {
	ve := AsValidatorError(err)
	if ve == nil {
		return false
	}
	return ve.Category == CategoryConfiguration || ve.Category == CategoryInternal
}

// AsValidatorError extracts a ValidatorError from an error chain, or
// returns nil when there is none
func AsValidatorError(err error) *ValidatorError {
	for err != nil {
		if ve, ok := err.(*ValidatorError); ok {
			return ve
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = unwrapper.Unwrap()
	}
	return nil
}

// WrapIfNeeded ensures an error is a ValidatorError, wrapping plain
// errors as internal errors
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ValidatorError {
	if err == nil {
		return nil
	}
	if ve := AsValidatorError(err); ve != nil {
		return ve
	}
	return Wrap(err, category, code, message)
}

// GetExitCode maps an error to a process exit code for the CLI
func GetExitCode(err error) int {
	ve := AsValidatorError(err)
	if ve == nil {
		if err != nil {
			return 1
		}
		return 0
	}
	switch ve.Category {
	case CategoryConfiguration:
		return 2
	case CategoryFile:
		return 3
	case CategoryParse:
		return 4
	case CategoryData:
		return 5
	case CategoryValidation:
		return 6
	case CategoryComputation:
		return 7
	case CategoryCache:
		return 8
	default:
		return 10
	}
}

// ErrorSummary aggregates errors collected across a run for reporting
type ErrorSummary struct {
	TotalErrors int                   `json:"total_errors"`
	Categories  map[ErrorCategory]int `json:"categories"`
	Codes       map[ErrorCode]int     `json:"codes"`
	Errors      []*ValidatorError     `json:"errors"`
}

// NewErrorSummary creates an empty summary
func NewErrorSummary() *ErrorSummary {
	return &ErrorSummary{
		Categories: make(map[ErrorCategory]int),
		Codes:      make(map[ErrorCode]int),
		Errors:     make([]*ValidatorError, 0),
	}
}

// AddError records an error in the summary, wrapping plain errors
func (s *ErrorSummary) AddError(err error) {
	if err == nil {
		return
	}
	ve := WrapIfNeeded(err, CategoryInternal, CodeUnexpectedError, "unclassified error")
	s.TotalErrors++
	s.Categories[ve.Category]++
	s.Codes[ve.Code]++
	s.Errors = append(s.Errors, ve)
}

// HasErrors reports whether any errors were recorded
func (s *ErrorSummary) HasErrors() bool {
	return s.TotalErrors > 0
}

// String returns a one-line summary suitable for logging
func (s *ErrorSummary) String() string {
	if s.TotalErrors == 0 {
		return "no errors"
	}
	var parts []string
	for category, count := range s.Categories {
		parts = append(parts, fmt.Sprintf("%s=%d", category, count))
	}
	return fmt.Sprintf("%d errors (%s)", s.TotalErrors, strings.Join(parts, ", "))
}
