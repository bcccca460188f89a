package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
// The retry coordinator keys its recovery actions off these codes.
const (
	ErrCodeTimeout      = "SCRAPE_TIMEOUT"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeExtraction   = "EXTRACTION_FAILED"
	ErrCodeProxy        = "PROXY_UNAVAILABLE"
	ErrCodeBotDetected  = "BOT_DETECTED"
	ErrCodeCaptcha      = "CAPTCHA_FAILED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf extracts the error code from err, walking the wrap chain.
// Context deadline/cancel errors report as SCRAPE_TIMEOUT; anything
// else unrecognised reports as INTERNAL_ERROR.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrCodeTimeout
	}
	return ErrCodeInternal
}

// IsTransient reports whether an error class is worth retrying within
// the same strategy. Extraction failures are included: a fresh
// navigation may yield different DOM timing.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case ErrCodeNavigation, ErrCodeProxy, ErrCodeBotDetected,
		ErrCodeRateLimited, ErrCodeExtraction, ErrCodeBrowserCrash:
		return true
	}
	return false
}
