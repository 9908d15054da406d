// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package apperr defines the centralized error handling framework for Tessera.

It provides a rich error type that bridges the gap between low-level
storage/scraper errors and the job queue's retry policy.

Architecture:

  - AppError: A struct containing a machine-readable Code and a Retryable flag.
  - Taxonomy: validation errors are fatal (logged and dropped), source and
    storage errors are transient (retried with backoff), overload is a
    degrade-and-shed signal rather than a crash.
  - Mapping: queue handlers translate fatal AppErrors to non-retryable
    task failures at the boundary; everything else follows backoff.

Every error that leaves a service layer should be wrapped as an [AppError]
so the worker can decide retry behavior without string matching.
*/
package apperr

import (
	"errors"
	"fmt"
)

// AppError is the canonical error type for the Tessera pipeline.
//
// # Logging
//
// The Cause field is for server-side logging only; Message must stay safe to
// surface in job results and ops tooling without leaking internals.
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "VALIDATION_ERROR").
	Code string
	// Message is a human-readable description of the failure.
	Message string
	// Retryable reports whether the job queue should retry the work.
	Retryable bool
	// Cause is the underlying error, used for server-side logging only.
	Cause error
	// Details holds per-field validation errors for VALIDATION_ERROR.
	Details []FieldError
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the payload field name that failed validation.
	Field string
	// Message is the human-readable description of the failure.
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Fatal Errors (never retried)

// Validation creates a fatal [AppError] for a malformed job payload.
// Validation failures are logged and dropped, never retried.
func Validation(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:      "VALIDATION_ERROR",
		Message:   msg,
		Retryable: false,
		Details:   details,
	}
}

// NotFound creates a fatal [AppError] for a missing named resource.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:      "NOT_FOUND",
		Message:   resource + " not found",
		Retryable: false,
	}
}

// Conflict creates a fatal [AppError] for invariant violations such as
// rebinding a source link to a different series.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:      "CONFLICT",
		Message:   msg,
		Retryable: false,
	}
}

// SourceBlocked creates a fatal [AppError] for upstream rate-limit or
// anti-bot responses. The poller converts it into an extended per-source
// cooldown instead of an immediate retry.
func SourceBlocked(source string, cause error) *AppError {
	return &AppError{
		Code:      "SOURCE_BLOCKED",
		Message:   "source " + source + " blocked the request",
		Retryable: false,
		Cause:     cause,
	}
}

// # Transient Errors (retried with backoff)

// SourceUnavailable creates a transient [AppError] for remote fetch failures.
func SourceUnavailable(source string, cause error) *AppError {
	return &AppError{
		Code:      "SOURCE_UNAVAILABLE",
		Message:   "source " + source + " is unavailable",
		Retryable: true,
		Cause:     cause,
	}
}

// Overloaded creates a transient [AppError] for delivery backlog shedding.
// The batch is retried later once backlog drains; this is policy, not failure.
func Overloaded(msg string) *AppError {
	return &AppError{
		Code:      "OVERLOADED",
		Message:   msg,
		Retryable: true,
	}
}

// Internal creates a transient [AppError] wrapping an unexpected error.
// Ingestion and canonicalization writes are transactional, so replay is safe.
func Internal(cause error) *AppError {
	return &AppError{
		Code:      "INTERNAL_ERROR",
		Message:   "An unexpected error occurred",
		Retryable: true,
		Cause:     cause,
	}
}

// # Helpers

// IsRetryable reports whether the job queue should retry after err.
// Unknown (non-AppError) errors default to retryable, matching the
// storage-failure policy.
func IsRetryable(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return true
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}
