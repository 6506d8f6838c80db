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

package connector

import (
	"context"
	"time"

	"github.com/tombee/conduit/pkg/schema"
)

// ActionHandler executes a one-shot operation against a connection.
// Handlers perform their own I/O; the execution core wraps them with
// retries, timeouts, and rate-limit admission.
type ActionHandler func(ctx context.Context, params map[string]interface{}, conn *Connection) (interface{}, error)

// SyncHandler executes a recurring data pull against a connection.
type SyncHandler func(ctx context.Context, conn *Connection) (interface{}, error)

// RefreshHandler returns a renewed connection config (e.g., refreshed OAuth
// tokens). It must not mutate the connection it receives.
type RefreshHandler func(ctx context.Context, conn *Connection) (map[string]interface{}, error)

// Action is a named one-shot operation declared by a connector.
type Action struct {
	// Name is the action identifier, unique within the connector
	Name string `json:"name"`

	// Description explains what the action does
	Description string `json:"description,omitempty"`

	// InputSchema validates the caller-supplied params
	InputSchema schema.Descriptor `json:"-"`

	// OutputSchema describes the handler's result shape
	OutputSchema schema.Descriptor `json:"-"`

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int `json:"maxRetries"`

	// Timeout is the per-attempt budget for the handler
	Timeout time.Duration `json:"-"`

	// Handler performs the operation
	Handler ActionHandler `json:"-"`
}

// Sync is a named recurring data-pull operation declared by a connector.
type Sync struct {
	// Name is the sync identifier, unique within the connector
	Name string `json:"name"`

	// Description explains what the sync pulls
	Description string `json:"description,omitempty"`

	// OutputSchema describes the handler's result shape
	OutputSchema schema.Descriptor `json:"-"`

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int `json:"maxRetries"`

	// Timeout is the per-attempt budget for the handler
	Timeout time.Duration `json:"-"`

	// Handler performs the pull
	Handler SyncHandler `json:"-"`
}

// RateLimitStrategy selects the admission key for a connector's rate limit.
type RateLimitStrategy string

const (
	// PerIntegration shares one window across all connections of an integration.
	PerIntegration RateLimitStrategy = "per-integration"

	// PerConnection gives every connection its own window.
	PerConnection RateLimitStrategy = "per-connection"
)

// RateLimitPolicy caps the number of handler invocations per time window.
type RateLimitPolicy struct {
	// Requests is the number of calls admitted per window
	Requests int `json:"requests"`

	// Window is the window length
	Window time.Duration `json:"-"`

	// Strategy selects the admission key (per-integration or per-connection)
	Strategy RateLimitStrategy `json:"strategy"`
}

// Connector is a static, authored bundle describing how to authenticate,
// sync, and act against one third-party service. Connectors are owned by the
// catalog and immutable at runtime.
type Connector struct {
	// ID uniquely identifies the connector (e.g., "slack")
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Version is the connector version string
	Version string `json:"version"`

	// Author identifies who wrote the connector
	Author string `json:"author,omitempty"`

	// Logo is a URL to the service logo
	Logo string `json:"logo,omitempty"`

	// DocURL links to the service API documentation
	DocURL string `json:"docUrl,omitempty"`

	// Description explains what the connector integrates with
	Description string `json:"description,omitempty"`

	// Categories and Tags classify the connector for catalog browsing
	Categories []string `json:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	// IntegrationConfig validates integration-level secrets
	// (typically OAuth client credentials or API base URLs)
	IntegrationConfig schema.Descriptor `json:"-"`

	// ConnectionConfig validates per-connection credentials
	// produced by the authentication flow
	ConnectionConfig schema.Descriptor `json:"-"`

	// AuthenticationFlow is the interactive flow that yields a connection config
	AuthenticationFlow *Flow `json:"-"`

	// Refresh returns a renewed connection config
	Refresh RefreshHandler `json:"-"`

	// Actions are the connector's one-shot operations by name
	Actions map[string]*Action `json:"-"`

	// Syncs are the connector's recurring operations by name
	Syncs map[string]*Sync `json:"-"`

	// RateLimit caps handler invocations; nil means unlimited
	RateLimit *RateLimitPolicy `json:"-"`
}

// Action returns the named action, or nil if the connector does not declare it.
func (c *Connector) Action(name string) *Action {
	if c.Actions == nil {
		return nil
	}
	return c.Actions[name]
}

// Sync returns the named sync, or nil if the connector does not declare it.
func (c *Connector) Sync(name string) *Sync {
	if c.Syncs == nil {
		return nil
	}
	return c.Syncs[name]
}

// HasSync reports whether the connector declares the named sync.
func (c *Connector) HasSync(name string) bool {
	return c.Sync(name) != nil
}
