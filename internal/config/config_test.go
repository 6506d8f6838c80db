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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/conduit/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conduit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8640", cfg.Listen.TCPAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, int64(10*1024*1024), cfg.Security.MaxBodyBytes)
	assert.Equal(t, 30, cfg.Security.ReadRequestsPerMinute)
	assert.Equal(t, 5, cfg.Security.WriteRequestsPerMinute)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
listen:
  tcp_addr: "127.0.0.1:9100"
log:
  level: debug
  format: json
store:
  type: sqlite
  path: /tmp/conduit.db
security:
  allowed_origins:
    - "https://*.example.com"
  read_requests_per_minute: 60
sessions:
  ttl: 10m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.Listen.TCPAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "/tmp/conduit.db", cfg.Store.Path)
	assert.Equal(t, []string{"https://*.example.com"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, 60, cfg.Security.ReadRequestsPerMinute)
	// Unspecified fields keep their defaults.
	assert.Equal(t, 5, cfg.Security.WriteRequestsPerMinute)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.TTL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
`)
	t.Setenv("CONDUIT_LOG_LEVEL", "warn")
	t.Setenv("CONDUIT_STORE_TYPE", "sqlite")
	t.Setenv("CONDUIT_STORE_PATH", "/tmp/env.db")
	t.Setenv("CONDUIT_SESSION_TTL", "5m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "/tmp/env.db", cfg.Store.Path)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.TTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Log.Level = "loud" },
			field:  "log.level",
		},
		{
			name:   "bad log format",
			mutate: func(c *Config) { c.Log.Format = "xml" },
			field:  "log.format",
		},
		{
			name:   "bad store type",
			mutate: func(c *Config) { c.Store.Type = "etcd" },
			field:  "store.type",
		},
		{
			name:   "sqlite without path",
			mutate: func(c *Config) { c.Store.Type = "sqlite" },
			field:  "store.path",
		},
		{
			name:   "cert without key",
			mutate: func(c *Config) { c.Listen.TLSCert = "/tmp/cert.pem" },
			field:  "listen.tls_cert",
		},
		{
			name:   "remote bind without allow_remote",
			mutate: func(c *Config) { c.Listen.TCPAddr = "0.0.0.0:8640" },
			field:  "listen.tcp_addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			var verr *errors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateAllowRemote(t *testing.T) {
	cfg := Default()
	cfg.Listen.TCPAddr = "0.0.0.0:8640"
	cfg.Listen.AllowRemote = true
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
