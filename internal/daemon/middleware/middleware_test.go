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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(true)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestSecurityHeadersNoHSTS(t *testing.T) {
	h := SecurityHeaders(false)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://*.example.com"})(okHandler())

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"wildcard subdomain", "https://app.example.com", true},
		{"other host", "https://evil.test", false},
		{"scheme mismatch", "http://app.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/connectors", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if tt.allowed {
				assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/connections", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestBodyLimit(t *testing.T) {
	h := BodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		if _, err := r.Body.Read(buf); err != nil && err.Error() == "http: request body too large" {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/connections", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIPFilter(t *testing.T) {
	t.Run("deny list wins", func(t *testing.T) {
		h := IPFilter(nil, []string{"10.0.0.9"})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "10.0.0.9:5511"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("allow list excludes others", func(t *testing.T) {
		h := IPFilter([]string{"192.0.2.1"}, nil)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "192.0.2.1:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		req.RemoteAddr = "192.0.2.2:1000"
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(30, 2)
	h := rl.Middleware(okHandler())

	post := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/connections", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// The write bucket holds two tokens; the third request is refused.
	assert.Equal(t, http.StatusOK, post("10.1.1.1:9000"))
	assert.Equal(t, http.StatusOK, post("10.1.1.1:9000"))
	require.Equal(t, http.StatusTooManyRequests, post("10.1.1.1:9000"))

	// Reads use a separate bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/connections", nil)
	req.RemoteAddr = "10.1.1.1:9000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Other clients are unaffected.
	assert.Equal(t, http.StatusOK, post("10.1.1.2:9000"))
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<script>alert(1)</script>", "scriptalert(1)/script"},
		{"javascript:alert(1)", "alert(1)"},
		{"  JavaScript:alert(1)", "alert(1)"},
		{`x onclick=steal()`, "x steal()"},
		{`a onLoad = b`, "a  b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeString(tt.in), tt.in)
	}
}

func TestSanitizeMap(t *testing.T) {
	m := map[string]interface{}{
		"name": "<b>bold</b>",
		"nested": map[string]interface{}{
			"url": "javascript:run()",
		},
		"list":  []interface{}{"<i>", 42},
		"count": 3,
	}

	out := SanitizeMap(m)
	assert.Equal(t, "bbold/b", out["name"])
	assert.Equal(t, "run()", out["nested"].(map[string]interface{})["url"])
	assert.Equal(t, "i", out["list"].([]interface{})[0])
	assert.Equal(t, 42, out["list"].([]interface{})[1])
	assert.Equal(t, 3, out["count"])
}
