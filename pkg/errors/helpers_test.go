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
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("connection", "conn-1")
	if got := err.Error(); got != "connection not found: conn-1" {
		t.Errorf("unexpected message: %q", got)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound = false, want true")
	}
	if IsNotFound(fmt.Errorf("plain")) {
		t.Error("IsNotFound matched a plain error")
	}
}

func TestIsNotFoundWrapped(t *testing.T) {
	err := Wrap(NewNotFound("sync", "users"), "dispatching job")
	if !IsNotFound(err) {
		t.Error("IsNotFound should see through wrapping")
	}
	if !strings.Contains(err.Error(), "dispatching job") {
		t.Errorf("wrapped message lost context: %q", err.Error())
	}
}

func TestRateLimitError(t *testing.T) {
	reset := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := &RateLimitError{Key: "slack:conn-1", ResetAt: reset}

	if !IsRateLimit(err) {
		t.Error("IsRateLimit = false, want true")
	}
	msg := err.Error()
	if !strings.Contains(msg, "Rate limit exceeded") {
		t.Errorf("message %q missing prefix", msg)
	}
	if !strings.Contains(msg, "2026-01-02T03:04:05Z") {
		t.Errorf("message %q missing ISO reset time", msg)
	}
}

func TestTimeoutErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("context deadline exceeded")
	err := &TimeoutError{Operation: "sync users", Duration: 100 * time.Millisecond, Cause: cause}

	if !IsTimeout(err) {
		t.Error("IsTimeout = false, want true")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap did not return cause")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "timed out") {
		t.Errorf("message %q should mention timeout", err.Error())
	}
}

func TestValidationErrorField(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "with field",
			err:  &ValidationError{Field: "externalId", Message: "is required"},
			want: "validation failed on externalId: is required",
		},
		{
			name: "without field",
			err:  &ValidationError{Message: "body must be JSON"},
			want: "validation failed: body must be JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpstreamError(t *testing.T) {
	err := &UpstreamError{StatusCode: 502, Status: "Bad Gateway"}
	if got := err.Error(); got != "HTTP 502: Bad Gateway" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestFlowStepErrorUnwrap(t *testing.T) {
	cause := &UpstreamError{StatusCode: 401, Status: "Unauthorized"}
	err := &FlowStepError{Block: "exchange", Cause: cause}

	var upstream *UpstreamError
	if !stderrors.As(err, &upstream) {
		t.Fatal("expected UpstreamError in tree")
	}
	if upstream.StatusCode != 401 {
		t.Errorf("StatusCode = %d, want 401", upstream.StatusCode)
	}
}

func TestSessionExpired(t *testing.T) {
	err := &SessionExpiredError{SessionID: "sess-1"}
	if !IsSessionExpired(err) {
		t.Error("IsSessionExpired = false, want true")
	}
	if IsNotFound(err) {
		t.Error("session expiry must not classify as NotFound")
	}
}
