package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents internal error codes for decomposition operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeJobNotFound     ErrorCode = 1001
	ErrCodeDataTooLarge    ErrorCode = 1002
	ErrCodeInvalidWindow   ErrorCode = 1003
	ErrCodeJobNotReady     ErrorCode = 1004

	// Server errors (5xx equivalent)
	ErrCodeInternal          ErrorCode = 2000
	ErrCodeUnavailable       ErrorCode = 2001
	ErrCodeFitFailed         ErrorCode = 2002
	ErrCodeClusteringFailed  ErrorCode = 2003
	ErrCodeArchiveFailed     ErrorCode = 2004
	ErrCodeCorruptedData     ErrorCode = 2005
	ErrCodeResourceExhausted ErrorCode = 2006
	ErrCodeChecksumFailed    ErrorCode = 2007
)

// DecompError represents a structured error with code and context
type DecompError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *DecompError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *DecompError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps internal error codes to HTTP status codes
func (e *DecompError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument, ErrCodeInvalidWindow:
		return http.StatusBadRequest
	case ErrCodeJobNotFound:
		return http.StatusNotFound
	case ErrCodeJobNotReady:
		return http.StatusConflict
	case ErrCodeDataTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeResourceExhausted:
		return http.StatusTooManyRequests
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewDecompError creates a new DecompError
func NewDecompError(code ErrorCode, message string, cause error) *DecompError {
	return &DecompError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *DecompError) WithDetail(key string, value interface{}) *DecompError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *DecompError {
	return NewDecompError(ErrCodeInvalidArgument, message, cause)
}

func JobNotFound(jobID string) *DecompError {
	return NewDecompError(ErrCodeJobNotFound, fmt.Sprintf("job not found: %s", jobID), nil).
		WithDetail("job_id", jobID)
}

func JobNotReady(jobID, state string) *DecompError {
	return NewDecompError(ErrCodeJobNotReady, fmt.Sprintf("job %s is not finished: state %s", jobID, state), nil).
		WithDetail("job_id", jobID).
		WithDetail("state", state)
}

func DataTooLarge(elements, maxElements int) *DecompError {
	return NewDecompError(ErrCodeDataTooLarge, fmt.Sprintf("data size %d exceeds maximum %d elements", elements, maxElements), nil).
		WithDetail("elements", elements).
		WithDetail("max_elements", maxElements)
}

func InvalidWindow(windowLength, stepSize, nTime int) *DecompError {
	return NewDecompError(ErrCodeInvalidWindow,
		fmt.Sprintf("window length %d with step %d does not fit %d time steps", windowLength, stepSize, nTime), nil).
		WithDetail("window_length", windowLength).
		WithDetail("step_size", stepSize).
		WithDetail("num_time", nTime)
}

func ChecksumFailed(expected, actual uint32) *DecompError {
	return NewDecompError(ErrCodeChecksumFailed, fmt.Sprintf("checksum validation failed: expected %d, got %d", expected, actual), nil).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func InternalError(message string, cause error) *DecompError {
	return NewDecompError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *DecompError {
	return NewDecompError(ErrCodeUnavailable, message, cause)
}

func FitFailed(message string, cause error) *DecompError {
	return NewDecompError(ErrCodeFitFailed, message, cause)
}

func ClusteringFailed(message string, cause error) *DecompError {
	return NewDecompError(ErrCodeClusteringFailed, message, cause)
}

func ArchiveFailed(message string, cause error) *DecompError {
	return NewDecompError(ErrCodeArchiveFailed, message, cause)
}

func CorruptedData(message string, cause error) *DecompError {
	return NewDecompError(ErrCodeCorruptedData, message, cause)
}

func ResourceExhausted(resource string, current, limit int) *DecompError {
	return NewDecompError(ErrCodeResourceExhausted, fmt.Sprintf("%s exhausted: %d/%d", resource, current, limit), nil).
		WithDetail("resource", resource).
		WithDetail("current", current).
		WithDetail("limit", limit)
}

// IsDecompError checks if an error is, or wraps, a DecompError
func IsDecompError(err error) bool {
	var de *DecompError
	return stderrors.As(err, &de)
}

// GetCode extracts the error code from an error, unwrapping as needed
func GetCode(err error) ErrorCode {
	var de *DecompError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// HTTPStatusFor returns the HTTP status for any error.
func HTTPStatusFor(err error) int {
	var de *DecompError
	if stderrors.As(err, &de) {
		return de.HTTPStatus()
	}
	return http.StatusInternalServerError
}
