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

// Package daemon owns the HTTP server lifecycle: listener setup, the
// hardening middleware chain, and graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tombee/conduit/internal/config"
	"github.com/tombee/conduit/internal/daemon/api"
	"github.com/tombee/conduit/internal/daemon/middleware"
	"github.com/tombee/conduit/internal/engine"
	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/internal/tracing"
)

// Daemon is the running conduitd process.
type Daemon struct {
	cfg     *config.Config
	engine  *engine.Engine
	logger  *slog.Logger
	tracer  *tracing.Provider
	server  *http.Server
	limiter *middleware.RateLimiter
}

// New assembles the daemon: router, middleware chain, and HTTP server.
// The engine is owned by the caller until Run is invoked; Run destroys it
// on shutdown.
func New(cfg *config.Config, eng *engine.Engine, logger *slog.Logger, version string) (*Daemon, error) {
	tracer, err := tracing.NewProvider(cfg.ServiceName, version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	limiter := middleware.NewRateLimiter(
		cfg.Security.ReadRequestsPerMinute,
		cfg.Security.WriteRequestsPerMinute,
	)

	router := api.NewRouter(eng, logger, api.RouterConfig{Version: version})

	handler := middleware.Chain(router,
		tracer.HTTPMiddleware,
		middleware.SecurityHeaders(cfg.Security.HSTS),
		middleware.CORS(cfg.Security.AllowedOrigins),
		middleware.IPFilter(cfg.Security.AllowedIPs, cfg.Security.DeniedIPs),
		limiter.Middleware,
		middleware.BodyLimit(cfg.Security.MaxBodyBytes),
	)

	return &Daemon{
		cfg:    cfg,
		engine: eng,
		logger: log.WithComponent(logger, "daemon"),
		tracer: tracer,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		limiter: limiter,
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (d *Daemon) Handler() http.Handler {
	return d.server.Handler
}

// Listen binds the configured TCP address.
func (d *Daemon) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", d.cfg.Listen.TCPAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", d.cfg.Listen.TCPAddr, err)
	}
	return ln, nil
}

// Run serves HTTP on the listener until ctx is cancelled, then drains the
// server and destroys the engine. Stale rate-limiter state is reaped
// periodically while serving.
func (d *Daemon) Run(ctx context.Context, ln net.Listener) error {
	d.logger.Info("daemon listening", slog.String("addr", ln.Addr().String()))

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	cleanupDone := make(chan struct{})
	go d.cleanupLoop(loopCtx, cleanupDone)

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if d.cfg.Listen.TLSCert != "" {
			err = d.server.ServeTLS(ln, d.cfg.Listen.TLSCert, d.cfg.Listen.TLSKey)
		} else {
			err = d.server.Serve(ln)
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			stopLoop()
			d.shutdownCleanup(cleanupDone)
			return err
		}
	case <-ctx.Done():
	}
	stopLoop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()

	d.logger.Info("shutting down")
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("http shutdown failed", log.Error(err))
	}
	d.shutdownCleanup(cleanupDone)
	return nil
}

func (d *Daemon) shutdownCleanup(cleanupDone chan struct{}) {
	<-cleanupDone
	d.engine.Destroy()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.tracer.Shutdown(flushCtx); err != nil {
		d.logger.Error("tracer shutdown failed", log.Error(err))
	}
	d.logger.Info("daemon stopped")
}

func (d *Daemon) cleanupLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.limiter.Cleanup(time.Hour)
		}
	}
}
