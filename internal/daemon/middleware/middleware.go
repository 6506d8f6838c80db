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

// Package middleware provides the daemon's HTTP hardening layer: CORS,
// security headers, per-client rate limits, body ceilings, and IP
// filtering.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/time/rate"

	"github.com/tombee/conduit/internal/daemon/httputil"
)

// Chain applies middleware right to left, so the first argument is the
// outermost wrapper.
func Chain(h http.Handler, wrappers ...func(http.Handler) http.Handler) http.Handler {
	for i := len(wrappers) - 1; i >= 0; i-- {
		h = wrappers[i](h)
	}
	return h
}

// SecurityHeaders sets baseline response headers. HSTS is opt-in since it
// is only meaningful over TLS.
func SecurityHeaders(hsts bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			if hsts {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allow-lists origins with doublestar wildcard patterns
// (e.g. "https://*.example.com"). An empty list disables cross-origin
// access entirely.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				if r.Method == http.MethodOptions {
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID, X-Request-ID")
					w.Header().Set("Access-Control-Max-Age", "300")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(patterns []string, origin string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, origin); err == nil && ok {
			return true
		}
	}
	return false
}

// BodyLimit caps request body size. Oversized bodies surface as decode
// errors in handlers, which map to 400s.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPFilter rejects clients on the deny list, and, when an allow list is
// configured, any client not on it.
func IPFilter(allowed, denied []string) func(http.Handler) http.Handler {
	allowSet := toSet(allowed)
	denySet := toSet(denied)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if _, deny := denySet[ip]; deny {
				httputil.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			if len(allowSet) > 0 {
				if _, ok := allowSet[ip]; !ok {
					httputil.WriteError(w, http.StatusForbidden, "forbidden")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimiter enforces separate per-client token buckets for read and
// write requests. GET/HEAD/OPTIONS count as reads; everything else as a
// write.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	readRPM  int
	writeRPM int
}

type clientLimiter struct {
	read     *rate.Limiter
	write    *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter allowing readRPM read and writeRPM write
// requests per minute per client IP, each with a burst of the full minute
// budget.
func NewRateLimiter(readRPM, writeRPM int) *RateLimiter {
	return &RateLimiter{
		clients:  make(map[string]*clientLimiter),
		readRPM:  readRPM,
		writeRPM: writeRPM,
	}
}

func (rl *RateLimiter) limiterFor(ip string) *clientLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{
			read:  rate.NewLimiter(rate.Limit(float64(rl.readRPM)/60.0), rl.readRPM),
			write: rate.NewLimiter(rate.Limit(float64(rl.writeRPM)/60.0), rl.writeRPM),
		}
		rl.clients[ip] = cl
	}
	cl.lastSeen = time.Now()
	return cl
}

// Allow reports whether a request of the given method from the given IP
// is admitted.
func (rl *RateLimiter) Allow(ip, method string) bool {
	cl := rl.limiterFor(ip)
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return cl.read.Allow()
	default:
		return cl.write.Allow()
	}
}

// Cleanup drops per-client state not seen within maxAge.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for ip, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Middleware wraps a handler with the rate limiter.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r), r.Method) {
			w.Header().Set("Retry-After", strconv.Itoa(60))
			httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
