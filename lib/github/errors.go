// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response from the GitHub REST API.
type APIError struct {
	StatusCode       int
	Message          string
	DocumentationURL string

	// Errors holds field-level failures from 422 responses.
	Errors []ValidationError
}

// ValidationError is one field-level failure in a 422 response.
type ValidationError struct {
	Resource string `json:"resource"`
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func (err *APIError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "github: HTTP %d: %s", err.StatusCode, err.Message)
	for _, validationError := range err.Errors {
		detail := validationError.Message
		if detail == "" {
			detail = validationError.Code
		}
		fmt.Fprintf(&builder, "; %s.%s: %s", validationError.Resource, validationError.Field, detail)
	}
	return builder.String()
}

// UnavailableError reports a request that kept failing transiently
// until the retry budget was spent, or whose rate-limit reset lies
// beyond the longest wait the client is configured to accept.
type UnavailableError struct {
	Method   string
	Path     string
	Attempts int

	// RetryAfter is how long GitHub asked the caller to wait, when the
	// last failure was a rate limit. Zero otherwise.
	RetryAfter time.Duration

	// Err is the last failure.
	Err error
}

func (err *UnavailableError) Error() string {
	message := fmt.Sprintf("github: %s %s unavailable after %d attempt(s)", err.Method, err.Path, err.Attempts)
	if err.RetryAfter > 0 {
		message += fmt.Sprintf(" (rate limited, retry after %s)", err.RetryAfter)
	}
	if err.Err != nil {
		message += ": " + err.Err.Error()
	}
	return message
}

func (err *UnavailableError) Unwrap() error {
	return err.Err
}

// IsUnavailable reports whether err is an [*UnavailableError].
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsValidationFailed reports whether err is a 422 response.
func IsValidationFailed(err error) bool {
	return hasStatus(err, http.StatusUnprocessableEntity)
}

// IsRateLimited reports whether err is a rate-limit response: 429, or
// 403 with a rate-limit message (GitHub uses 403 for the primary
// limit).
func IsRateLimited(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	return isRateLimitResponse(apiError.StatusCode, apiError.Message)
}

func hasStatus(err error, status int) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == status
}

func isRateLimitResponse(status int, message string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if status != http.StatusForbidden {
		return false
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection")
}

func isServerError(status int) bool {
	return status >= 500 && status <= 599
}
