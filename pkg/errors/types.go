// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"
	"time"
)

// NotFoundError represents a resource not found error.
// Use this when a requested entity (connector, integration, connection,
// session, sync, action) does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "connector", "connection")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// AlreadyExistsError represents a duplicate identifier on create.
type AlreadyExistsError struct {
	// Resource is the type of resource (e.g., "connection", "integration")
	Resource string

	// ID is the identifier that collided
	ID string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.ID)
}

// ValidationError represents user input validation failures.
// Use this for invalid user input, malformed data, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// RateLimitError represents an admission denial from the rate limiter.
// Denial is a normal outcome for the limiter itself; this error exists so
// callers up the stack can short-circuit retries and surface the reset time.
type RateLimitError struct {
	// Key is the rate-limit key that was denied
	Key string

	// ResetAt is when the current window expires and calls are admitted again
	ResetAt time.Time
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded for %s, reset at %s", e.Key, e.ResetAt.UTC().Format(time.RFC3339))
}

// TimeoutError represents operation timeouts.
// Use this when a handler exceeds its configured budget.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "action slack.post", "sync users")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// UpstreamError represents a non-2xx response from a third-party API.
type UpstreamError struct {
	// StatusCode is the HTTP status code returned by the upstream service
	StatusCode int

	// Status is the HTTP status text (e.g., "Unauthorized")
	Status string

	// Body is a truncated copy of the response body for diagnostics
	Body string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// FlowStepError represents a failed block execution inside a flow session.
// The session records the failure and becomes terminal; the error is returned
// to the caller as data, never raised across the API boundary.
type FlowStepError struct {
	// Block is the name of the block that failed
	Block string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *FlowStepError) Error() string {
	return fmt.Sprintf("flow step %q failed: %v", e.Block, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *FlowStepError) Unwrap() error {
	return e.Cause
}

// SessionExpiredError represents access to a flow session that was reaped by
// TTL or never existed. Both cases are indistinguishable to the caller.
type SessionExpiredError struct {
	// SessionID is the session that expired or was not found
	SessionID string
}

// Error implements the error interface.
func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("flow session expired or not found: %s", e.SessionID)
}
