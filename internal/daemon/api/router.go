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

// Package api provides the HTTP API for the daemon.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/conduit/internal/daemon/httputil"
	"github.com/tombee/conduit/internal/engine"
	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/internal/store"
	"github.com/tombee/conduit/internal/tracing"
	"github.com/tombee/conduit/pkg/errors"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version string
}

// Router wraps an http.ServeMux with correlation and request logging.
type Router struct {
	mux    *http.ServeMux
	engine *engine.Engine
	config RouterConfig
	logger *slog.Logger
}

// NewRouter creates an HTTP router with all API endpoints registered.
func NewRouter(eng *engine.Engine, logger *slog.Logger, cfg RouterConfig) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		engine: eng,
		config: cfg,
		logger: log.WithComponent(logger, "api"),
	}

	r.mux.HandleFunc("GET /api/connectors", r.handleListConnectors)
	r.mux.HandleFunc("GET /api/connectors/{id}", r.handleGetConnector)

	r.mux.HandleFunc("GET /api/integrations", r.handleListIntegrations)
	r.mux.HandleFunc("POST /api/integrations", r.handleCreateIntegration)
	r.mux.HandleFunc("GET /api/integrations/{id}", r.handleGetIntegration)
	r.mux.HandleFunc("DELETE /api/integrations/{id}", r.handleDeleteIntegration)

	r.mux.HandleFunc("GET /api/connections", r.handleListConnections)
	r.mux.HandleFunc("POST /api/connections", r.handleCreateConnection)
	r.mux.HandleFunc("GET /api/connections/{id}", r.handleGetConnection)
	r.mux.HandleFunc("PUT /api/connections/{id}", r.handleUpdateConnection)
	r.mux.HandleFunc("DELETE /api/connections/{id}", r.handleDeleteConnection)
	r.mux.HandleFunc("GET /api/connections/{id}/syncs", r.handleConnectionSyncs)
	r.mux.HandleFunc("POST /api/connections/{id}/syncs/{name}/activate", r.handleActivateSync)
	r.mux.HandleFunc("POST /api/connections/{id}/syncs/{name}/deactivate", r.handleDeactivateSync)

	r.mux.HandleFunc("POST /api/flows/start", r.handleStartFlow)
	r.mux.HandleFunc("POST /api/flows/{sessionId}/step", r.handleFlowStep)
	r.mux.HandleFunc("GET /api/flows/{sessionId}", r.handleGetFlowSession)
	r.mux.HandleFunc("DELETE /api/flows/{sessionId}", r.handleDeleteFlowSession)

	r.mux.HandleFunc("GET /api/sync/jobs", r.handleListJobs)
	r.mux.HandleFunc("GET /api/sync/jobs/{connectionId}", r.handleConnectionJobs)
	r.mux.HandleFunc("POST /api/sync/execute/{connectionId}/{syncName}", r.handleExecuteSync)
	r.mux.HandleFunc("POST /api/sync/schedule/{connectionId}", r.handleScheduleConnection)
	r.mux.HandleFunc("DELETE /api/sync/schedule/{connectionId}", r.handleUnscheduleConnection)

	r.mux.HandleFunc("GET /api/actions/{connectorId}", r.handleListActions)
	r.mux.HandleFunc("POST /api/actions/execute/{connectionId}/{actionName}", r.handleExecuteAction)

	r.mux.HandleFunc("GET /api/health", r.handleHealth)
	r.mux.HandleFunc("GET /api/status", r.handleStatus)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	return r
}

// ServeHTTP implements http.Handler. Requests pass through correlation and
// request-logging middleware before reaching the mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var handler http.Handler = r.mux

	inner := handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		correlationID := tracing.FromContextOrEmpty(req.Context())
		logger := log.WithCorrelationID(r.logger, string(correlationID))

		defer func() {
			logger.Info("request completed",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int64(log.DurationKey, time.Since(start).Milliseconds()),
			)
		}()

		inner.ServeHTTP(w, req)
	})

	handler = tracing.Middleware(handler)
	handler.ServeHTTP(w, req)
}

// Mux returns the underlying ServeMux for registering additional routes.
func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

// decodeJSON decodes a request body into v, translating malformed or
// oversized bodies into validation errors.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &errors.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

// pageParams reads ?page= and ?limit= with store defaults.
func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return store.ClampPage(page, limit)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) {
	stats, err := r.engine.Stats(req.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   r.config.Version,
		"stats": map[string]int{
			"connectors":    stats.Connectors,
			"integrations":  stats.Integrations,
			"connections":   stats.Connections,
			"scheduledJobs": stats.ScheduledJobs,
		},
	})
}
