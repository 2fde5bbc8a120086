package errors

import (
	stderr "errors"
)

// IsNotFound reports whether err carries a not-found error code, letting
// callers distinguish "doesn't exist" from transient failure.
func IsNotFound(err error) bool {
	return categoryOf(err) == CategoryNotFound
}

// IsAuthRequired reports whether err carries an authentication-category code.
func IsAuthRequired(err error) bool {
	return categoryOf(err) == CategoryAuth
}

// IsValidation reports whether err carries a validation-category code.
func IsValidation(err error) bool {
	return categoryOf(err) == CategoryValidation
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	return codeOf(err) == ErrCodeRateLimited
}

// IsRetryable reports whether err may succeed if retried.
func IsRetryable(err error) bool {
	var gerr *GalleryError
	if stderr.As(err, &gerr) {
		return gerr.Retryable
	}
	return false
}

// CodeOf extracts the error code, or ErrCodeUnknownError for foreign errors.
func CodeOf(err error) ErrorCode {
	return codeOf(err)
}

func codeOf(err error) ErrorCode {
	var gerr *GalleryError
	if stderr.As(err, &gerr) {
		return gerr.Code
	}
	return ErrCodeUnknownError
}

func categoryOf(err error) ErrorCategory {
	var gerr *GalleryError
	if stderr.As(err, &gerr) {
		return gerr.Category
	}
	return CategoryInternal
}

// AlbumNotFound builds the canonical not-found error for an album id.
func AlbumNotFound(id string) *GalleryError {
	return NewError(ErrCodeAlbumNotFound, "album does not exist").WithTarget(id)
}

// ImageNotFound builds the canonical not-found error for an image id.
func ImageNotFound(id string) *GalleryError {
	return NewError(ErrCodeImageNotFound, "image does not exist").WithTarget(id)
}
