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

// Package engine binds the catalog, registry, store, scheduler, execution
// core, and flow sessions into one facade for the HTTP layer. It alone
// enforces referential integrity between connectors, integrations, and
// connections.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/conduit/internal/executor"
	"github.com/tombee/conduit/internal/flow"
	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/internal/ratelimit"
	"github.com/tombee/conduit/internal/registry"
	"github.com/tombee/conduit/internal/scheduler"
	"github.com/tombee/conduit/internal/secrets"
	"github.com/tombee/conduit/internal/store"
	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
)

// DefaultSyncIntervalMinutes is used when a connection does not declare its
// own interval.
const DefaultSyncIntervalMinutes = 60

// Config assembles an engine.
type Config struct {
	// Connectors is the immutable catalog.
	Connectors []*connector.Connector

	// Store persists connections; nil selects the in-memory store.
	Store store.ConnectionStore

	// Secrets resolves env:/keychain: references in configs; nil selects
	// the default resolver.
	Secrets *secrets.Resolver

	// SessionTTL bounds flow session lifetime; zero selects 30 minutes.
	SessionTTL time.Duration

	// Logger is the root logger.
	Logger *slog.Logger
}

// Stats is the engine's aggregate view for the status endpoint.
type Stats struct {
	Connectors    int `json:"connectors"`
	Integrations  int `json:"integrations"`
	Connections   int `json:"connections"`
	ScheduledJobs int `json:"scheduledJobs"`
}

// Engine is the runtime facade.
type Engine struct {
	registry  *registry.Registry
	store     store.ConnectionStore
	executor  *executor.Executor
	scheduler *scheduler.Scheduler
	flows     *flow.Manager
	secrets   *secrets.Resolver
	logger    *slog.Logger

	mu        sync.Mutex
	destroyed bool
}

// New assembles an engine from the config. The connector catalog is frozen
// at this point; nothing can register connectors afterwards.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(nil)
	}

	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}

	resolver := cfg.Secrets
	if resolver == nil {
		resolver = secrets.DefaultResolver()
	}

	reg := registry.New()
	for _, c := range cfg.Connectors {
		if _, exists := reg.Connector(c.ID); exists {
			return nil, &errors.AlreadyExistsError{Resource: "connector", ID: c.ID}
		}
		reg.RegisterConnector(c)
	}

	exec := executor.New(reg, st, ratelimit.New(), logger)

	e := &Engine{
		registry:  reg,
		store:     st,
		executor:  exec,
		scheduler: scheduler.New(exec, logger),
		flows:     flow.NewManager(flow.NewRunner(logger), logger, cfg.SessionTTL),
		secrets:   resolver,
		logger:    log.WithComponent(logger, "engine"),
	}
	return e, nil
}

// Connectors returns the catalog.
func (e *Engine) Connectors() []*connector.Connector {
	return e.registry.Connectors()
}

// Connector returns one catalog entry.
func (e *Engine) Connector(id string) (*connector.Connector, error) {
	c, ok := e.registry.Connector(id)
	if !ok {
		return nil, &errors.NotFoundError{Resource: "connector", ID: id}
	}
	return c, nil
}

// AddIntegration validates and registers an integration. Secret references
// in the config are resolved before schema validation, so a reference to a
// missing secret fails here rather than at first use.
func (e *Engine) AddIntegration(ctx context.Context, i *connector.Integration) error {
	if i.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "integration id is required"}
	}

	c, ok := e.registry.Connector(i.ConnectorID)
	if !ok {
		return &errors.NotFoundError{Resource: "connector", ID: i.ConnectorID}
	}

	resolved, err := e.secrets.ResolveConfig(ctx, i.Config)
	if err != nil {
		return &errors.ValidationError{Field: "config", Message: err.Error()}
	}

	if c.IntegrationConfig != nil {
		if _, err := c.IntegrationConfig.Parse(resolved); err != nil {
			return &errors.ValidationError{Field: "config", Message: err.Error()}
		}
	}

	stored := *i
	stored.Config = resolved
	if !e.registry.AddIntegration(&stored) {
		return &errors.AlreadyExistsError{Resource: "integration", ID: i.ID}
	}

	e.logger.Info("integration added", log.IntegrationKey, i.ID, log.ConnectorKey, i.ConnectorID)
	return nil
}

// Integration returns one integration.
func (e *Engine) Integration(id string) (*connector.Integration, error) {
	i, ok := e.registry.Integration(id)
	if !ok {
		return nil, &errors.NotFoundError{Resource: "integration", ID: id}
	}
	return i, nil
}

// Integrations returns all integrations.
func (e *Engine) Integrations() []*connector.Integration {
	return e.registry.Integrations()
}

// RemoveIntegration deletes an integration. It refuses while any connection
// still references it.
func (e *Engine) RemoveIntegration(ctx context.Context, id string) error {
	if _, ok := e.registry.Integration(id); !ok {
		return &errors.NotFoundError{Resource: "integration", ID: id}
	}

	referenced, err := e.anyConnectionReferences(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return &errors.ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("integration %q still has connections", id),
		}
	}

	e.registry.RemoveIntegration(id)
	e.logger.Info("integration removed", log.IntegrationKey, id)
	return nil
}

func (e *Engine) anyConnectionReferences(ctx context.Context, integrationID string) (bool, error) {
	for page := 1; ; page++ {
		p, err := e.store.ReadAll(ctx, page, store.MaxPageLimit)
		if err != nil {
			return false, err
		}
		for _, conn := range p.Data {
			if conn.IntegrationID == integrationID {
				return true, nil
			}
		}
		if !p.Pagination.HasNext {
			return false, nil
		}
	}
}

// AddConnection validates, persists, and schedules a connection. The store
// write happens first; if scheduling then fails, the already-armed jobs are
// rolled back and the error surfaces while the store stays consistent.
func (e *Engine) AddConnection(ctx context.Context, conn *connector.Connection) error {
	if conn.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "connection id is required"}
	}

	integration, ok := e.registry.Integration(conn.IntegrationID)
	if !ok {
		return &errors.NotFoundError{Resource: "integration", ID: conn.IntegrationID}
	}

	if conn.ConnectorID == "" {
		conn.ConnectorID = integration.ConnectorID
	} else if conn.ConnectorID != integration.ConnectorID {
		return &errors.ValidationError{
			Field:   "connectorId",
			Message: fmt.Sprintf("connection connector %q does not match integration connector %q", conn.ConnectorID, integration.ConnectorID),
		}
	}

	c, ok := e.registry.Connector(conn.ConnectorID)
	if !ok {
		return &errors.NotFoundError{Resource: "connector", ID: conn.ConnectorID}
	}

	resolved, err := e.secrets.ResolveConfig(ctx, conn.Config)
	if err != nil {
		return &errors.ValidationError{Field: "config", Message: err.Error()}
	}
	conn.Config = resolved

	if c.ConnectionConfig != nil {
		if _, err := c.ConnectionConfig.Parse(conn.Config); err != nil {
			return &errors.ValidationError{Field: "config", Message: err.Error()}
		}
	}

	for _, name := range conn.ActiveSyncs {
		if !c.HasSync(name) {
			return &errors.ValidationError{
				Field:   "activeSyncs",
				Message: fmt.Sprintf("connector %q declares no sync %q", c.ID, name),
			}
		}
	}

	if err := e.store.Create(ctx, conn); err != nil {
		return err
	}

	interval := e.syncInterval(conn)
	for idx, name := range conn.ActiveSyncs {
		if job := e.scheduler.Schedule(conn.ID, name, interval); job == nil {
			// Scheduler refused (destroyed); unwind the jobs armed so far.
			for _, armed := range conn.ActiveSyncs[:idx] {
				e.scheduler.Cancel(conn.ID, armed)
			}
			return fmt.Errorf("failed to schedule sync %q for connection %q", name, conn.ID)
		}
	}

	e.logger.Info("connection added",
		log.ConnectionKey, conn.ID,
		log.ConnectorKey, conn.ConnectorID,
		"active_syncs", len(conn.ActiveSyncs),
	)
	return nil
}

// Connection returns one connection.
func (e *Engine) Connection(ctx context.Context, id string) (*connector.Connection, error) {
	return e.store.Read(ctx, id)
}

// Connections returns one page of connections.
func (e *Engine) Connections(ctx context.Context, page, limit int) (*store.Page, error) {
	return e.store.ReadAll(ctx, page, limit)
}

// UpdateConnection validates and overwrites a connection. Integrity checks
// match AddConnection; schedules are re-armed to reflect the new active
// syncs and interval.
func (e *Engine) UpdateConnection(ctx context.Context, conn *connector.Connection) error {
	existing, err := e.store.Read(ctx, conn.ID)
	if err != nil {
		return err
	}

	integration, ok := e.registry.Integration(conn.IntegrationID)
	if !ok {
		return &errors.NotFoundError{Resource: "integration", ID: conn.IntegrationID}
	}
	if conn.ConnectorID == "" {
		conn.ConnectorID = integration.ConnectorID
	} else if conn.ConnectorID != integration.ConnectorID {
		return &errors.ValidationError{
			Field:   "connectorId",
			Message: fmt.Sprintf("connection connector %q does not match integration connector %q", conn.ConnectorID, integration.ConnectorID),
		}
	}

	c, ok := e.registry.Connector(conn.ConnectorID)
	if !ok {
		return &errors.NotFoundError{Resource: "connector", ID: conn.ConnectorID}
	}

	resolved, err := e.secrets.ResolveConfig(ctx, conn.Config)
	if err != nil {
		return &errors.ValidationError{Field: "config", Message: err.Error()}
	}
	conn.Config = resolved

	if c.ConnectionConfig != nil {
		if _, err := c.ConnectionConfig.Parse(conn.Config); err != nil {
			return &errors.ValidationError{Field: "config", Message: err.Error()}
		}
	}
	for _, name := range conn.ActiveSyncs {
		if !c.HasSync(name) {
			return &errors.ValidationError{
				Field:   "activeSyncs",
				Message: fmt.Sprintf("connector %q declares no sync %q", c.ID, name),
			}
		}
	}

	if err := e.store.Update(ctx, conn); err != nil {
		return err
	}

	// Reconcile schedules: drop jobs for syncs no longer active, then
	// (re)arm the current set.
	for _, name := range existing.ActiveSyncs {
		if !conn.HasActiveSync(name) {
			e.scheduler.Cancel(conn.ID, name)
		}
	}
	interval := e.syncInterval(conn)
	for _, name := range conn.ActiveSyncs {
		e.scheduler.Schedule(conn.ID, name, interval)
	}
	return nil
}

// DeleteConnection unschedules all of the connection's jobs, then removes
// the record.
func (e *Engine) DeleteConnection(ctx context.Context, id string) error {
	if _, err := e.store.Read(ctx, id); err != nil {
		return err
	}
	e.scheduler.CancelForConnection(id)
	return e.store.Delete(ctx, id)
}

func (e *Engine) syncInterval(conn *connector.Connection) time.Duration {
	minutes := conn.SyncInterval
	if minutes <= 0 {
		minutes = DefaultSyncIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}
