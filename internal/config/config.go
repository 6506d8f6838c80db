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

// Package config provides daemon configuration loaded from YAML files and
// environment variables. Environment variables take precedence over the
// file, and the file over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/conduit/pkg/errors"
)

// Config represents the complete daemon configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Security SecurityConfig `yaml:"security"`
	Sessions SessionsConfig `yaml:"sessions"`

	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name,omitempty"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Environment: CONDUIT_SHUTDOWN_TIMEOUT
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// ListenConfig configures how the daemon listens for connections.
type ListenConfig struct {
	// TCPAddr is the TCP address to bind (e.g., ":8640", "127.0.0.1:8640").
	// Environment: CONDUIT_TCP_ADDR
	TCPAddr string `yaml:"tcp_addr,omitempty"`

	// AllowRemote must be true to bind to non-localhost addresses.
	AllowRemote bool `yaml:"allow_remote"`

	// TLSCert is the path to a TLS certificate for HTTPS.
	TLSCert string `yaml:"tls_cert,omitempty"`

	// TLSKey is the path to the matching TLS key.
	TLSKey string `yaml:"tls_key,omitempty"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	// Environment: CONDUIT_LOG_LEVEL
	Level string `yaml:"level,omitempty"`

	// Format is the log format (text, json).
	// Environment: CONDUIT_LOG_FORMAT
	Format string `yaml:"format,omitempty"`
}

// StoreConfig configures the connection store backend.
type StoreConfig struct {
	// Type is the backend type: "memory" or "sqlite".
	// Environment: CONDUIT_STORE_TYPE
	Type string `yaml:"type,omitempty"`

	// Path is the SQLite database path (for type=sqlite).
	// Environment: CONDUIT_STORE_PATH
	Path string `yaml:"path,omitempty"`
}

// SecurityConfig configures the daemon's HTTP hardening middleware.
type SecurityConfig struct {
	// AllowedOrigins lists CORS origin patterns. Doublestar wildcards are
	// supported (e.g., "https://*.example.com"). Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// AllowedIPs restricts clients to the listed addresses when non-empty.
	AllowedIPs []string `yaml:"allowed_ips,omitempty"`

	// DeniedIPs rejects the listed client addresses.
	DeniedIPs []string `yaml:"denied_ips,omitempty"`

	// MaxBodyBytes caps request body size. Default: 10MB.
	MaxBodyBytes int64 `yaml:"max_body_bytes,omitempty"`

	// ReadRequestsPerMinute rate-limits GET endpoints per client IP.
	ReadRequestsPerMinute int `yaml:"read_requests_per_minute,omitempty"`

	// WriteRequestsPerMinute rate-limits mutating endpoints per client IP.
	WriteRequestsPerMinute int `yaml:"write_requests_per_minute,omitempty"`

	// HSTS enables the Strict-Transport-Security header. Only meaningful
	// when serving TLS or behind a terminating proxy.
	HSTS bool `yaml:"hsts"`
}

// SessionsConfig configures auth-flow session handling.
type SessionsConfig struct {
	// TTL is how long an idle flow session survives before it is reaped.
	// Environment: CONDUIT_SESSION_TTL
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// Default returns a configuration with sensible defaults: a localhost
// listener, text logs at info, an in-memory store, and moderate rate limits.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			TCPAddr: "127.0.0.1:8640",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Type: "memory",
		},
		Security: SecurityConfig{
			MaxBodyBytes:           10 * 1024 * 1024,
			ReadRequestsPerMinute:  30,
			WriteRequestsPerMinute: 5,
		},
		Sessions: SessionsConfig{
			TTL: 30 * time.Minute,
		},
		ServiceName:     "conduit",
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads configuration from an optional YAML file, fills defaults, and
// applies environment overrides. An empty path uses defaults and environment
// only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyDefaults fills zero values so minimal config files work without
// restating every field.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Listen.TCPAddr == "" {
		c.Listen.TCPAddr = defaults.Listen.TCPAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Store.Type == "" {
		c.Store.Type = defaults.Store.Type
	}
	if c.Security.MaxBodyBytes == 0 {
		c.Security.MaxBodyBytes = defaults.Security.MaxBodyBytes
	}
	if c.Security.ReadRequestsPerMinute == 0 {
		c.Security.ReadRequestsPerMinute = defaults.Security.ReadRequestsPerMinute
	}
	if c.Security.WriteRequestsPerMinute == 0 {
		c.Security.WriteRequestsPerMinute = defaults.Security.WriteRequestsPerMinute
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = defaults.Sessions.TTL
	}
	if c.ServiceName == "" {
		c.ServiceName = defaults.ServiceName
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("CONDUIT_TCP_ADDR"); val != "" {
		c.Listen.TCPAddr = val
	}
	if val := os.Getenv("CONDUIT_ALLOW_REMOTE"); val != "" {
		c.Listen.AllowRemote = val == "1" || strings.EqualFold(val, "true")
	}
	if val := os.Getenv("CONDUIT_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("CONDUIT_LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("CONDUIT_STORE_TYPE"); val != "" {
		c.Store.Type = strings.ToLower(val)
	}
	if val := os.Getenv("CONDUIT_STORE_PATH"); val != "" {
		c.Store.Path = val
	}
	if val := os.Getenv("CONDUIT_SESSION_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Sessions.TTL = d
		}
	}
	if val := os.Getenv("CONDUIT_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.ShutdownTimeout = d
		}
	}
	if val := os.Getenv("CONDUIT_READ_RPM"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.Security.ReadRequestsPerMinute = n
		}
	}
	if val := os.Getenv("CONDUIT_WRITE_RPM"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.Security.WriteRequestsPerMinute = n
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return &errors.ValidationError{Field: "log.level",
			Message: fmt.Sprintf("unknown level %q (want debug, info, warn, or error)", c.Log.Level)}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return &errors.ValidationError{Field: "log.format",
			Message: fmt.Sprintf("unknown format %q (want text or json)", c.Log.Format)}
	}

	switch c.Store.Type {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return &errors.ValidationError{Field: "store.path",
				Message: "required when store.type is sqlite"}
		}
	default:
		return &errors.ValidationError{Field: "store.type",
			Message: fmt.Sprintf("unknown backend %q (want memory or sqlite)", c.Store.Type)}
	}

	if (c.Listen.TLSCert == "") != (c.Listen.TLSKey == "") {
		return &errors.ValidationError{Field: "listen.tls_cert",
			Message: "tls_cert and tls_key must be set together"}
	}

	if !c.Listen.AllowRemote && !isLocalAddr(c.Listen.TCPAddr) {
		return &errors.ValidationError{Field: "listen.tcp_addr",
			Message: fmt.Sprintf("binding %q requires listen.allow_remote", c.Listen.TCPAddr)}
	}

	if c.Sessions.TTL < 0 {
		return &errors.ValidationError{Field: "sessions.ttl", Message: "must not be negative"}
	}
	return nil
}

func isLocalAddr(addr string) bool {
	host := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
	}
	switch host {
	case "", "localhost", "127.0.0.1", "[::1]", "::1":
		return true
	}
	return strings.HasPrefix(host, "127.")
}
