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
	"time"
)

// Integration instantiates a connector with service-level configuration,
// typically OAuth app credentials or API base URLs. Created administratively;
// referenced by many connections.
type Integration struct {
	// ID uniquely identifies the integration
	ID string `json:"id"`

	// ConnectorID references the connector this integration instantiates
	ConnectorID string `json:"connectorId"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Config holds integration-level secrets, validated against the
	// connector's IntegrationConfig schema
	Config map[string]interface{} `json:"config"`
}

// Connection instantiates an integration for a particular end user or tenant.
// It holds refreshable credentials produced by the authentication flow and
// the set of syncs currently scheduled. The record must stay
// JSON-serializable end to end.
type Connection struct {
	// ID uniquely identifies the connection
	ID string `json:"id"`

	// ExternalID is the tenant-defined identifier
	ExternalID string `json:"externalId"`

	// IntegrationID references the parent integration
	IntegrationID string `json:"integrationId"`

	// ConnectorID is denormalized from the integration for fast dispatch.
	// It must always equal the integration's ConnectorID.
	ConnectorID string `json:"connectorId"`

	// Config holds per-connection secrets, validated against the
	// connector's ConnectionConfig schema
	Config map[string]interface{} `json:"config"`

	// SyncInterval is the default minutes between runs for this
	// connection's syncs
	SyncInterval int `json:"syncInterval,omitempty"`

	// ActiveSyncs names the syncs currently scheduled. Every element must
	// be a key in the connector's syncs map.
	ActiveSyncs []string `json:"activeSyncs,omitempty"`

	// Metadata is a mutable bag holding per-sync last-run records under
	// the "syncs" key. Leaves are primitives or small objects.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt and UpdatedAt are maintained by the store
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// HasActiveSync reports whether the named sync is in ActiveSyncs.
func (c *Connection) HasActiveSync(name string) bool {
	for _, s := range c.ActiveSyncs {
		if s == name {
			return true
		}
	}
	return false
}

// AddActiveSync adds the named sync to ActiveSyncs if not already present.
func (c *Connection) AddActiveSync(name string) {
	if !c.HasActiveSync(name) {
		c.ActiveSyncs = append(c.ActiveSyncs, name)
	}
}

// RemoveActiveSync removes the named sync from ActiveSyncs.
func (c *Connection) RemoveActiveSync(name string) {
	filtered := c.ActiveSyncs[:0]
	for _, s := range c.ActiveSyncs {
		if s != name {
			filtered = append(filtered, s)
		}
	}
	c.ActiveSyncs = filtered
}

// SyncRecord is the per-sync last-run record stored in connection metadata.
type SyncRecord struct {
	Success       bool        `json:"success"`
	LastRun       time.Time   `json:"lastRun"`
	ExecutionTime int64       `json:"executionTime"`
	LastResult    interface{} `json:"lastResult,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// SetSyncRecord writes the per-sync record into the metadata bag under
// metadata.syncs.<name>. The record is stored as a plain map so the bag
// survives JSON round trips unchanged.
func (c *Connection) SetSyncRecord(name string, rec SyncRecord) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]interface{})
	}
	syncs, ok := c.Metadata["syncs"].(map[string]interface{})
	if !ok {
		syncs = make(map[string]interface{})
		c.Metadata["syncs"] = syncs
	}

	entry := map[string]interface{}{
		"success":       rec.Success,
		"lastRun":       rec.LastRun.UTC().Format(time.RFC3339Nano),
		"executionTime": rec.ExecutionTime,
	}
	if rec.Error != "" {
		entry["error"] = rec.Error
	} else {
		entry["lastResult"] = rec.LastResult
	}
	syncs[name] = entry
}

// SyncRecordFor returns the stored per-sync record map, or nil if absent.
func (c *Connection) SyncRecordFor(name string) map[string]interface{} {
	syncs, ok := c.Metadata["syncs"].(map[string]interface{})
	if !ok {
		return nil
	}
	rec, _ := syncs[name].(map[string]interface{})
	return rec
}

// Clone returns a deep-enough copy for safe mutation by the execution core.
// Config and metadata maps are copied one level deep; leaf values are shared.
func (c *Connection) Clone() *Connection {
	copied := *c
	copied.Config = copyMap(c.Config)
	copied.Metadata = copyMapDeep(c.Metadata)
	copied.ActiveSyncs = append([]string(nil), c.ActiveSyncs...)
	return &copied
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyMapDeep(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = copyMapDeep(nested)
		} else {
			out[k] = v
		}
	}
	return out
}
