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

package engine

import (
	"context"
	"fmt"

	"github.com/tombee/conduit/internal/executor"
	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/internal/scheduler"
	"github.com/tombee/conduit/pkg/errors"
)

// SyncStatus describes one declared sync and whether it is scheduled.
type SyncStatus struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	IsActive    bool                   `json:"isActive"`
	LastRun     map[string]interface{} `json:"lastRun,omitempty"`
}

// ActivateSync adds a sync to the connection's active set and schedules it.
// The store write and the scheduler arm happen together: if scheduling is
// refused, the store change is rolled back.
func (e *Engine) ActivateSync(ctx context.Context, connectionID, syncName string, intervalMinutes int) error {
	conn, err := e.store.Read(ctx, connectionID)
	if err != nil {
		return err
	}
	c, ok := e.registry.Connector(conn.ConnectorID)
	if !ok {
		return &errors.NotFoundError{Resource: "connector", ID: conn.ConnectorID}
	}
	if !c.HasSync(syncName) {
		return &errors.NotFoundError{Resource: "sync", ID: c.ID + "." + syncName}
	}

	previous := conn.Clone()
	conn.AddActiveSync(syncName)
	if intervalMinutes > 0 {
		conn.SyncInterval = intervalMinutes
	}
	if err := e.store.Update(ctx, conn); err != nil {
		return err
	}

	if job := e.scheduler.Schedule(connectionID, syncName, e.syncInterval(conn)); job == nil {
		if rbErr := e.store.Update(ctx, previous); rbErr != nil {
			e.logger.Error("failed to roll back sync activation", log.Error(rbErr),
				log.ConnectionKey, connectionID, log.SyncKey, syncName)
		}
		return fmt.Errorf("failed to schedule sync %q for connection %q", syncName, connectionID)
	}
	return nil
}

// DeactivateSync cancels the sync's job and removes it from the active set.
func (e *Engine) DeactivateSync(ctx context.Context, connectionID, syncName string) error {
	conn, err := e.store.Read(ctx, connectionID)
	if err != nil {
		return err
	}
	if !conn.HasActiveSync(syncName) {
		return &errors.NotFoundError{Resource: "active sync", ID: scheduler.JobID(connectionID, syncName)}
	}

	conn.RemoveActiveSync(syncName)
	if err := e.store.Update(ctx, conn); err != nil {
		return err
	}
	e.scheduler.Cancel(connectionID, syncName)
	return nil
}

// ScheduleConnection (re)schedules syncs for a connection. With no names
// given, every sync in the connection's active set is armed; names given
// are activated first. A positive interval overrides the stored one.
func (e *Engine) ScheduleConnection(ctx context.Context, connectionID string, intervalMinutes int, syncNames []string) error {
	conn, err := e.store.Read(ctx, connectionID)
	if err != nil {
		return err
	}
	c, ok := e.registry.Connector(conn.ConnectorID)
	if !ok {
		return &errors.NotFoundError{Resource: "connector", ID: conn.ConnectorID}
	}

	for _, name := range syncNames {
		if !c.HasSync(name) {
			return &errors.NotFoundError{Resource: "sync", ID: c.ID + "." + name}
		}
	}

	changed := false
	for _, name := range syncNames {
		if !conn.HasActiveSync(name) {
			conn.AddActiveSync(name)
			changed = true
		}
	}
	if intervalMinutes > 0 && intervalMinutes != conn.SyncInterval {
		conn.SyncInterval = intervalMinutes
		changed = true
	}
	if changed {
		if err := e.store.Update(ctx, conn); err != nil {
			return err
		}
	}

	interval := e.syncInterval(conn)
	for _, name := range conn.ActiveSyncs {
		e.scheduler.Schedule(connectionID, name, interval)
	}
	return nil
}

// UnscheduleConnection cancels every job for the connection and clears its
// active set.
func (e *Engine) UnscheduleConnection(ctx context.Context, connectionID string) error {
	conn, err := e.store.Read(ctx, connectionID)
	if err != nil {
		return err
	}

	e.scheduler.CancelForConnection(connectionID)
	if len(conn.ActiveSyncs) > 0 {
		conn.ActiveSyncs = nil
		if err := e.store.Update(ctx, conn); err != nil {
			return err
		}
	}
	return nil
}

// ConnectionSyncs lists the connector's declared syncs for a connection,
// annotated with scheduling state and last-run records.
func (e *Engine) ConnectionSyncs(ctx context.Context, connectionID string) ([]SyncStatus, error) {
	conn, err := e.store.Read(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	c, ok := e.registry.Connector(conn.ConnectorID)
	if !ok {
		return nil, &errors.NotFoundError{Resource: "connector", ID: conn.ConnectorID}
	}

	summary := c.Summarize()
	statuses := make([]SyncStatus, 0, len(summary.Syncs))
	for _, s := range summary.Syncs {
		statuses = append(statuses, SyncStatus{
			Name:        s.Name,
			Description: s.Description,
			IsActive:    conn.HasActiveSync(s.Name),
			LastRun:     conn.SyncRecordFor(s.Name),
		})
	}
	return statuses, nil
}

// ExecuteSyncNow runs a sync immediately, bypassing its schedule.
func (e *Engine) ExecuteSyncNow(ctx context.Context, connectionID, syncName string) (*executor.SyncResult, error) {
	return e.scheduler.ExecuteNow(ctx, connectionID, syncName)
}

// ExecuteAction runs an action against a connection.
func (e *Engine) ExecuteAction(ctx context.Context, connectionID, actionName string, params map[string]interface{}) (*executor.ActionResult, error) {
	return e.executor.ExecuteAction(ctx, connectionID, actionName, params)
}

// Jobs returns snapshots of all scheduled jobs.
func (e *Engine) Jobs() []*scheduler.Job {
	return e.scheduler.Jobs()
}

// JobsForConnection returns snapshots of a connection's jobs.
func (e *Engine) JobsForConnection(connectionID string) []*scheduler.Job {
	return e.scheduler.JobsForConnection(connectionID)
}

// Stats aggregates entity counts for the status endpoint.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	page, err := e.store.ReadAll(ctx, 1, 1)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Connectors:    len(e.registry.Connectors()),
		Integrations:  len(e.registry.Integrations()),
		Connections:   page.Pagination.Total,
		ScheduledJobs: len(e.scheduler.Jobs()),
	}, nil
}

// Destroy shuts the engine down: no handler invocations start after it
// returns. Idempotent.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return
	}
	e.destroyed = true

	e.scheduler.Destroy()
	e.flows.Close()
	e.logger.Info("engine destroyed")
}
