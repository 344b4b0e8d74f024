// Package memerr defines the error taxonomy shared across the memory layer.
// Callers match on kind with errors.Is/As rather than string comparison.
package memerr

import (
	"fmt"
	"time"
)

// Sentinel errors for conditions without extra payload.
var (
	// ErrNoActiveContext is returned when an LLM call is intercepted without
	// a set tenant context in multi-instance mode.
	ErrNoActiveContext = fmt.Errorf("no active memory context")

	// ErrContextExpired is returned when the tenant context is older than
	// its lifetime or has been deactivated.
	ErrContextExpired = fmt.Errorf("memory context expired")
)

// InvalidTenantError indicates a search or list call with a missing or empty
// user id. Queries must fail closed rather than broaden scope.
type InvalidTenantError struct {
	Op string
}

func (e *InvalidTenantError) Error() string {
	return fmt.Sprintf("%s: user_id is required", e.Op)
}

// ValidationError indicates an invalid field value before any database access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DatabaseError wraps an underlying driver failure.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// ClassifierError indicates a model refusal, parse failure, or timeout during
// memory classification.
type ClassifierError struct {
	Attempt int
	Err     error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classification failed (attempt %d): %v", e.Attempt, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// RateLimitError indicates a per-tenant operation rate limit was hit.
type RateLimitError struct {
	UserID    string
	Operation string
	Limit     int
	Window    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for user %s on %s: %d per %s",
		e.UserID, e.Operation, e.Limit, e.Window)
}

// QuotaError indicates a cumulative storage, row-count, or API-call quota was
// exceeded.
type QuotaError struct {
	UserID  string
	Kind    string // storage_bytes, memory_count, api_calls
	Used    int64
	Limit   int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota %s exceeded for user %s: %d of %d",
		e.Kind, e.UserID, e.Used, e.Limit)
}
