// Package errors provides a structured error system for GalleryFS with error codes, categories, and context.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for GalleryFS operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Validation Errors — rejected before any network call
	ErrCodeInvalidAlbumID   ErrorCode = "INVALID_ALBUM_ID"
	ErrCodeDuplicateAlbumID ErrorCode = "DUPLICATE_ALBUM_ID"
	ErrCodeInvalidPayload   ErrorCode = "INVALID_PAYLOAD"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Not-Found Errors — "doesn't exist" as distinct from transient failure
	ErrCodeAlbumNotFound  ErrorCode = "ALBUM_NOT_FOUND"
	ErrCodeImageNotFound  ErrorCode = "IMAGE_NOT_FOUND"
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeIndexNotFound  ErrorCode = "INDEX_NOT_FOUND"

	// Authentication Errors
	ErrCodeAuthRequired         ErrorCode = "AUTH_REQUIRED"
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeTokenExpired         ErrorCode = "TOKEN_EXPIRED"
	ErrCodeCredentialsMissing   ErrorCode = "CREDENTIALS_MISSING"

	// Transient/Network Errors — retryable by the transport layer
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrCodeServerError       ErrorCode = "SERVER_ERROR"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"

	// Storage Backend Errors
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"
	ErrCodeQuotaExceeded  ErrorCode = "QUOTA_EXCEEDED"

	// Consistency Errors — detected mismatches between independently stored
	// documents; never auto-resolved silently
	ErrCodeMembershipDrift ErrorCode = "MEMBERSHIP_DRIFT"
	ErrCodePartialFailure  ErrorCode = "PARTIAL_FAILURE"
	ErrCodeRenameAborted   ErrorCode = "RENAME_ABORTED"

	// Operation Errors
	ErrCodeOperationFailed       ErrorCode = "OPERATION_FAILED"
	ErrCodeOperationCanceled     ErrorCode = "OPERATION_CANCELED"
	ErrCodeCapabilityUnsupported ErrorCode = "CAPABILITY_UNSUPPORTED"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "validation"
	CategoryNotFound    ErrorCategory = "not_found"
	CategoryAuth        ErrorCategory = "auth"
	CategoryNetwork     ErrorCategory = "network"
	CategoryStorage     ErrorCategory = "storage"
	CategoryConsistency ErrorCategory = "consistency"
	CategoryOperation   ErrorCategory = "operation"
	CategoryInternal    ErrorCategory = "internal"
)

// GalleryError represents a structured error with context and metadata.
type GalleryError struct {
	// Core error information
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Contextual information
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time         `json:"timestamp"`

	// Operational metadata
	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	// Target identifies the album or image id the operation was acting on.
	Target string `json:"target,omitempty"`

	// Error handling hints
	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`

	// RetryAfter carries a server-advertised backoff hint for rate-limit
	// errors; zero when the server gave none.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *GalleryError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *GalleryError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *GalleryError) Is(target error) bool {
	if galleryErr, ok := target.(*GalleryError); ok {
		return e.Code == galleryErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *GalleryError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Target != "" {
		parts = append(parts, fmt.Sprintf("Target=%s", e.Target))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("GalleryError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *GalleryError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new GalleryFS error with default values.
func NewError(code ErrorCode, message string) *GalleryError {
	return &GalleryError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Retryable:  IsRetryableByDefault(code),
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Wrap creates a new GalleryFS error with the given cause attached.
func Wrap(code ErrorCode, message string, cause error) *GalleryError {
	e := NewError(code, message)
	e.Cause = cause
	return e
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidAlbumID, ErrCodeDuplicateAlbumID, ErrCodeInvalidPayload, ErrCodeValidationFailed:
		return CategoryValidation
	case ErrCodeAlbumNotFound, ErrCodeImageNotFound, ErrCodeObjectNotFound, ErrCodeIndexNotFound:
		return CategoryNotFound
	case ErrCodeAuthRequired, ErrCodeAuthenticationFailed, ErrCodeTokenExpired, ErrCodeCredentialsMissing:
		return CategoryAuth
	case ErrCodeNetworkError, ErrCodeConnectionTimeout, ErrCodeRateLimited, ErrCodeServerError, ErrCodeRetryExhausted:
		return CategoryNetwork
	case ErrCodeStorageRead, ErrCodeStorageWrite, ErrCodeBucketNotFound, ErrCodeAccessDenied, ErrCodeQuotaExceeded:
		return CategoryStorage
	case ErrCodeMembershipDrift, ErrCodePartialFailure, ErrCodeRenameAborted:
		return CategoryConsistency
	case ErrCodeOperationFailed, ErrCodeOperationCanceled, ErrCodeCapabilityUnsupported:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeNetworkError:      true,
		ErrCodeConnectionTimeout: true,
		ErrCodeRateLimited:       true,
		ErrCodeServerError:       true,
	}
	return retryableCodes[code]
}

// GetDefaultHTTPStatus returns the default HTTP status for an error code.
func GetDefaultHTTPStatus(code ErrorCode) int {
	statusMap := map[ErrorCode]int{
		ErrCodeInvalidAlbumID:        400, // Bad Request
		ErrCodeInvalidPayload:        400,
		ErrCodeValidationFailed:      400,
		ErrCodeAuthRequired:          401, // Unauthorized
		ErrCodeAuthenticationFailed:  401,
		ErrCodeTokenExpired:          401,
		ErrCodeCredentialsMissing:    401,
		ErrCodeAccessDenied:          403, // Forbidden
		ErrCodeAlbumNotFound:         404, // Not Found
		ErrCodeImageNotFound:         404,
		ErrCodeObjectNotFound:        404,
		ErrCodeIndexNotFound:         404,
		ErrCodeBucketNotFound:        404,
		ErrCodeDuplicateAlbumID:      409, // Conflict
		ErrCodeMembershipDrift:       409,
		ErrCodeRenameAborted:         409,
		ErrCodeRateLimited:           429, // Too Many Requests
		ErrCodeQuotaExceeded:         429,
		ErrCodeCapabilityUnsupported: 501, // Not Implemented
		ErrCodeServerError:           502, // Bad Gateway
		ErrCodeConnectionTimeout:     504, // Gateway Timeout
	}

	if status, ok := statusMap[code]; ok {
		return status
	}
	return 500 // Default to Internal Server Error
}

// WithContext adds contextual information to an error.
func (e *GalleryError) WithContext(key, value string) *GalleryError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error.
func (e *GalleryError) WithComponent(component string) *GalleryError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error.
func (e *GalleryError) WithOperation(operation string) *GalleryError {
	e.Operation = operation
	return e
}

// WithTarget sets the album or image id the operation was acting on.
func (e *GalleryError) WithTarget(target string) *GalleryError {
	e.Target = target
	return e
}

// WithCause sets the underlying cause.
func (e *GalleryError) WithCause(cause error) *GalleryError {
	e.Cause = cause
	return e
}

// WithRetryAfter records a server-advertised backoff hint.
func (e *GalleryError) WithRetryAfter(d time.Duration) *GalleryError {
	e.RetryAfter = d
	return e
}
