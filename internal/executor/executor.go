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

// Package executor runs connector handlers inside a uniform envelope:
// rate-limit admission first, then per-attempt timeouts and exponential
// retry. Handlers never see the envelope; retry and timeout budgets come
// from the operation declaration.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/internal/ratelimit"
	"github.com/tombee/conduit/internal/registry"
	"github.com/tombee/conduit/internal/store"
	"github.com/tombee/conduit/pkg/connector"
	"github.com/tombee/conduit/pkg/errors"
)

// retryBaseDelay is the first retry backoff; attempt n waits base * 2^n.
const retryBaseDelay = time.Second

// ActionResult is the uniform outcome of an action execution.
type ActionResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`

	// ExecutionTime is the wall time of the execution in milliseconds,
	// including retries and backoff.
	ExecutionTime int64 `json:"executionTime"`
}

// SyncResult is the uniform outcome of a sync execution.
type SyncResult struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         string      `json:"error,omitempty"`
	ExecutionTime int64       `json:"executionTime"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Executor resolves the connection/connector chain and runs handlers.
type Executor struct {
	registry *registry.Registry
	store    store.ConnectionStore
	limiter  *ratelimit.Limiter
	logger   *slog.Logger

	// baseDelay is swappable so tests do not sleep for real seconds.
	baseDelay time.Duration

	// connMu serializes metadata read-modify-write per connection.
	mu     sync.Mutex
	connMu map[string]*sync.Mutex
}

// New creates an executor over the given registry, store, and limiter.
func New(reg *registry.Registry, st store.ConnectionStore, limiter *ratelimit.Limiter, logger *slog.Logger) *Executor {
	return &Executor{
		registry:  reg,
		store:     st,
		limiter:   limiter,
		logger:    log.WithComponent(logger, "executor"),
		baseDelay: retryBaseDelay,
		connMu:    make(map[string]*sync.Mutex),
	}
}

// resolve loads the connection and its connector, surfacing distinct
// not-found errors for each link in the chain.
func (e *Executor) resolve(ctx context.Context, connectionID string) (*connector.Connection, *connector.Connector, error) {
	conn, err := e.store.Read(ctx, connectionID)
	if err != nil {
		return nil, nil, err
	}

	c, ok := e.registry.Connector(conn.ConnectorID)
	if !ok {
		return nil, nil, &errors.NotFoundError{Resource: "connector", ID: conn.ConnectorID}
	}
	return conn, c, nil
}

// admit runs rate-limit admission for one handler invocation.
func (e *Executor) admit(c *connector.Connector, conn *connector.Connection) error {
	if c.RateLimit == nil {
		return nil
	}

	key := ratelimit.Key(c.RateLimit.Strategy, c.ID, conn.IntegrationID, conn.ID)
	decision := e.limiter.Check(key, c.RateLimit)
	if !decision.Allowed {
		rateLimitRejections.WithLabelValues(c.ID).Inc()
		return &errors.RateLimitError{Key: key, ResetAt: decision.ResetAt}
	}
	return nil
}

// ExecuteAction runs the named action against a connection. The result is
// always well-formed; handler failures surface as Success=false, not as an
// error return. An error return means the request itself was invalid.
func (e *Executor) ExecuteAction(ctx context.Context, connectionID, actionName string, params map[string]interface{}) (*ActionResult, error) {
	start := time.Now()

	conn, c, err := e.resolve(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	action := c.Action(actionName)
	if action == nil {
		return nil, &errors.NotFoundError{Resource: "action", ID: c.ID + "." + actionName}
	}

	if action.InputSchema != nil {
		if _, err := action.InputSchema.Parse(params); err != nil {
			return nil, &errors.ValidationError{Field: "params", Message: err.Error()}
		}
	}

	if err := e.admit(c, conn); err != nil {
		return &ActionResult{
			Success:       false,
			Error:         err.Error(),
			ExecutionTime: time.Since(start).Milliseconds(),
		}, nil
	}

	logger := e.logger.With(
		log.ConnectionKey, conn.ID,
		log.ConnectorKey, c.ID,
		log.ActionKey, actionName,
	)
	logger.Debug("executing action")

	data, runErr := e.run(ctx, c.ID, actionName, "action", action.MaxRetries, action.Timeout,
		func(ctx context.Context) (interface{}, error) {
			return action.Handler(ctx, params, conn.Clone())
		})

	elapsed := time.Since(start)
	recordExecution(c.ID, actionName, "action", elapsed.Seconds(), runErr == nil)

	result := &ActionResult{
		Success:       runErr == nil,
		Data:          data,
		ExecutionTime: elapsed.Milliseconds(),
	}
	if runErr != nil {
		result.Data = nil
		result.Error = runErr.Error()
		logger.Error("action failed", log.Error(runErr), log.DurationKey, elapsed.Milliseconds())
	} else {
		logger.Info("action completed", log.DurationKey, elapsed.Milliseconds())
	}
	return result, nil
}

// ExecuteSync runs the named sync against a connection and records the
// outcome under the connection's metadata. The sync does not need to be
// active; scheduling and on-demand execution share this path.
func (e *Executor) ExecuteSync(ctx context.Context, connectionID, syncName string) (*SyncResult, error) {
	start := time.Now()

	conn, c, err := e.resolve(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	op := c.Sync(syncName)
	if op == nil {
		return nil, &errors.NotFoundError{Resource: "sync", ID: c.ID + "." + syncName}
	}

	if err := e.admit(c, conn); err != nil {
		result := &SyncResult{
			Success:       false,
			Error:         err.Error(),
			ExecutionTime: time.Since(start).Milliseconds(),
			Timestamp:     start.UTC(),
		}
		e.recordSyncOutcome(ctx, connectionID, syncName, result)
		return result, nil
	}

	logger := e.logger.With(
		log.ConnectionKey, conn.ID,
		log.ConnectorKey, c.ID,
		log.SyncKey, syncName,
	)
	logger.Debug("executing sync")

	data, runErr := e.run(ctx, c.ID, syncName, "sync", op.MaxRetries, op.Timeout,
		func(ctx context.Context) (interface{}, error) {
			return op.Handler(ctx, conn.Clone())
		})

	elapsed := time.Since(start)
	recordExecution(c.ID, syncName, "sync", elapsed.Seconds(), runErr == nil)

	result := &SyncResult{
		Success:       runErr == nil,
		Data:          data,
		ExecutionTime: elapsed.Milliseconds(),
		Timestamp:     start.UTC(),
	}
	if runErr != nil {
		result.Data = nil
		result.Error = runErr.Error()
		logger.Error("sync failed", log.Error(runErr), log.DurationKey, elapsed.Milliseconds())
	} else {
		logger.Info("sync completed", log.DurationKey, elapsed.Milliseconds())
	}

	e.recordSyncOutcome(ctx, connectionID, syncName, result)
	return result, nil
}

// recordSyncOutcome writes the per-sync record into connection metadata.
// Concurrent syncs for the same connection serialize here so records are not
// lost to read-modify-write races.
func (e *Executor) recordSyncOutcome(ctx context.Context, connectionID, syncName string, result *SyncResult) {
	mu := e.lockFor(connectionID)
	mu.Lock()
	defer mu.Unlock()

	conn, err := e.store.Read(ctx, connectionID)
	if err != nil {
		// Connection deleted mid-run; nothing to record.
		return
	}

	conn.SetSyncRecord(syncName, connector.SyncRecord{
		Success:       result.Success,
		LastRun:       result.Timestamp,
		ExecutionTime: result.ExecutionTime,
		LastResult:    result.Data,
		Error:         result.Error,
	})

	if err := e.store.Update(ctx, conn); err != nil {
		e.logger.Error("failed to record sync outcome", log.Error(err),
			log.ConnectionKey, connectionID, log.SyncKey, syncName)
	}
}

func (e *Executor) lockFor(connectionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	mu, ok := e.connMu[connectionID]
	if !ok {
		mu = &sync.Mutex{}
		e.connMu[connectionID] = mu
	}
	return mu
}

// run executes fn under the retry/timeout envelope. A declared budget of
// maxRetries allows maxRetries+1 attempts; attempt n backs off for
// baseDelay * 2^n before retrying. Rate-limit errors from the handler are
// returned immediately, retrying against a closed window is pointless.
func (e *Executor) run(ctx context.Context, connectorID, operation, kind string, maxRetries int, timeout time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if timeout <= 0 {
		timeout = connector.DefaultTimeout
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			executionRetries.WithLabelValues(connectorID, operation, kind).Inc()

			delay := e.baseDelay * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		data, err := e.attempt(ctx, operation, timeout, fn)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if errors.IsRateLimit(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// attempt runs fn once with a hard per-attempt deadline. The handler races a
// timer; a handler that ignores cancellation is abandoned, not awaited.
func (e *Executor) attempt(ctx context.Context, operation string, timeout time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data interface{}
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		data, err := fn(attemptCtx)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		return out.data, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errors.TimeoutError{Operation: operation, Duration: timeout, Cause: attemptCtx.Err()}
	}
}
