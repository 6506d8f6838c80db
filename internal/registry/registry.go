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

// Package registry holds the in-memory catalog of connectors and the set of
// registered integrations. It is a lookup layer only; referential integrity
// between connectors, integrations, and connections is enforced by the engine.
package registry

import (
	"sort"
	"sync"

	"github.com/tombee/conduit/pkg/connector"
)

// Registry indexes connectors and integrations by ID. Connectors are loaded
// once at startup and treated as immutable; integrations come and go at
// runtime.
type Registry struct {
	mu           sync.RWMutex
	connectors   map[string]*connector.Connector
	integrations map[string]*connector.Integration
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		connectors:   make(map[string]*connector.Connector),
		integrations: make(map[string]*connector.Integration),
	}
}

// RegisterConnector adds a connector to the catalog. Registering the same ID
// twice replaces the earlier entry; the loader treats that as a bug upstream.
func (r *Registry) RegisterConnector(c *connector.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.ID] = c
}

// Connector returns the connector by ID.
func (r *Registry) Connector(id string) (*connector.Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	return c, ok
}

// Connectors returns all connectors sorted by ID.
func (r *Registry) Connectors() []*connector.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*connector.Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddIntegration registers an integration. Returns false if the ID is taken.
func (r *Registry) AddIntegration(i *connector.Integration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.integrations[i.ID]; exists {
		return false
	}
	r.integrations[i.ID] = i
	return true
}

// Integration returns the integration by ID.
func (r *Registry) Integration(id string) (*connector.Integration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.integrations[id]
	return i, ok
}

// Integrations returns all integrations sorted by ID.
func (r *Registry) Integrations() []*connector.Integration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*connector.Integration, 0, len(r.integrations))
	for _, i := range r.integrations {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveIntegration deletes the integration. Returns false if unknown.
func (r *Registry) RemoveIntegration(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.integrations[id]; !exists {
		return false
	}
	delete(r.integrations, id)
	return true
}
