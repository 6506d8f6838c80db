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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/conduit/catalog"
	"github.com/tombee/conduit/internal/config"
	"github.com/tombee/conduit/internal/daemon"
	"github.com/tombee/conduit/internal/engine"
	"github.com/tombee/conduit/internal/log"
	"github.com/tombee/conduit/internal/store"
	"github.com/tombee/conduit/internal/store/sqlite"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config file")
		tcpAddr     = flag.String("tcp", "", "TCP address to listen on")
		storeType   = flag.String("store", "", "Storage backend (memory, sqlite)")
		storePath   = flag.String("store-path", "", "Path to the sqlite database file")
		tlsCert     = flag.String("tls-cert", "", "Path to TLS certificate file")
		tlsKey      = flag.String("tls-key", "", "Path to TLS private key file")
		allowRemote = flag.Bool("allow-remote", false, "Allow binding to non-localhost addresses (SECURITY WARNING)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("conduitd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Apply CLI flag overrides
	if *tcpAddr != "" {
		cfg.Listen.TCPAddr = *tcpAddr
	}
	if *storeType != "" {
		cfg.Store.Type = *storeType
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *tlsCert != "" {
		cfg.Listen.TLSCert = *tlsCert
	}
	if *tlsKey != "" {
		cfg.Listen.TLSKey = *tlsKey
	}
	if *allowRemote {
		cfg.Listen.AllowRemote = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := log.FromEnv()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = log.Format(cfg.Log.Format)
	logger := log.New(logCfg)
	slog.SetDefault(logger)

	if *allowRemote {
		logger.Warn("--allow-remote is enabled. The daemon will accept connections from any network address. Ensure you have proper authentication and TLS configured for production use.")
	}

	connectors, err := catalog.Connectors()
	if err != nil {
		logger.Error("Failed to build connector catalog", log.Error(err))
		os.Exit(1)
	}

	var backend store.ConnectionStore
	if cfg.Store.Type == "sqlite" {
		backend, err = sqlite.New(sqlite.Config{Path: cfg.Store.Path})
		if err != nil {
			logger.Error("Failed to open connection store", log.Error(err))
			os.Exit(1)
		}
	} else {
		backend = store.NewMemoryStore()
	}
	defer backend.Close()

	eng, err := engine.New(engine.Config{
		Connectors: connectors,
		Store:      backend,
		SessionTTL: cfg.Sessions.TTL,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("Failed to create engine", log.Error(err))
		os.Exit(1)
	}

	d, err := daemon.New(cfg, eng, logger, version)
	if err != nil {
		logger.Error("Failed to create daemon", log.Error(err))
		os.Exit(1)
	}

	ln, err := d.Listen()
	if err != nil {
		logger.Error("Failed to bind listener", log.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx, ln); err != nil {
		logger.Error("Daemon error", log.Error(err))
		os.Exit(1)
	}
}
