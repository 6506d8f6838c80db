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

// Package ratelimit implements fixed-window admission control for connector
// handler invocations. Keys are derived from the connector's strategy: one
// window per integration, or one per connection.
package ratelimit

import (
	"sync"
	"time"

	"github.com/tombee/conduit/pkg/connector"
)

// window tracks the count for one admission key within the current window.
type window struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the call may proceed.
	Allowed bool

	// Remaining is the number of calls left in the current window.
	Remaining int

	// ResetAt is when the current window expires.
	ResetAt time.Time
}

// Limiter admits handler invocations against per-key fixed windows. The first
// call for a key opens a window; counts reset when the window elapses.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	// now is swappable for tests.
	now func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Key derives the admission key for a call. Per-connection strategies isolate
// each connection; per-integration strategies share one window across all of
// an integration's connections. Keys are namespaced by connector so two
// connectors never collide.
func Key(strategy connector.RateLimitStrategy, connectorID, integrationID, connectionID string) string {
	if strategy == connector.PerConnection {
		return connectorID + "/connection/" + connectionID
	}
	return connectorID + "/integration/" + integrationID
}

// Check admits or rejects one call under the given policy. A nil policy
// always admits. Check consumes from the window only when the call is
// admitted.
func (l *Limiter) Check(key string, policy *connector.RateLimitPolicy) Decision {
	if policy == nil {
		return Decision{Allowed: true, Remaining: -1}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[key]
	if !exists || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(policy.Window)}
		l.windows[key] = w
	}

	if w.count >= policy.Requests {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}

	w.count++
	return Decision{
		Allowed:   true,
		Remaining: policy.Requests - w.count,
		ResetAt:   w.resetAt,
	}
}

// Cleanup drops windows that expired before the cutoff. The scheduler calls
// this periodically so idle connections do not accumulate state.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	for key, w := range l.windows {
		if w.resetAt.Before(cutoff) {
			delete(l.windows, key)
		}
	}
}
