// Package server provides an HTTP server around the initialization
// orchestrator.
//
// The server exposes a REST API to trigger and monitor initialization runs,
// inspect per-stage results and logs, and reload configuration without a
// restart.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Consolidated status (run state, orchestrator stats, progress, next run)
//   - GET /api/progress - Current run's progress snapshot
//   - GET /api/results - Accumulated per-stage execution results
//   - GET /api/strategies - Available strategies and the configured default
//   - GET /api/stages/{stage}/logs - Captured log tail of one stage
//   - GET /history - History of completed runs
//   - GET /config - Current initialization configuration as YAML
//   - GET /metrics - Prometheus scrape endpoint
//   - POST /run - Triggers an initialization run
//   - POST /reload - Reloads the initialization configuration from disk
//   - POST /history/reload - Re-reads persisted run history from disk
//
// # Architecture
//
// Config-derived dependencies (the catalogue and the orchestrator built
// over it) are swapped atomically on reload. A run in flight keeps
// executing against the orchestrator it started on; the next run picks up
// the new one.
//
// # Example
//
//	srvCfg, err := serverconfig.LoadConfig("/etc/goinit/server.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(srvCfg, registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nomis52/goinit/buildinfo"
	"github.com/nomis52/goinit/cache"
	"github.com/nomis52/goinit/config"
	"github.com/nomis52/goinit/logging"
	"github.com/nomis52/goinit/metrics"
	"github.com/nomis52/goinit/orchestrator"
	"github.com/nomis52/goinit/resilience"
	serverconfig "github.com/nomis52/goinit/server/config"
	"github.com/nomis52/goinit/server/cron"
	"github.com/nomis52/goinit/server/handlers"
	"github.com/nomis52/goinit/server/runner"
	"github.com/nomis52/goinit/stage"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// serverDeps holds config-derived dependencies that are swapped atomically
// on reload.
type serverDeps struct {
	config       *config.Config
	orchestrator *orchestrator.Orchestrator
}

// Server is the HTTP server for the goinit REST API.
type Server struct {
	addr           string
	initConfigPath string
	logger         *slog.Logger
	logLevel       *slog.LevelVar
	registry       *stage.Registry
	collector      *logging.LogCollector
	initMetrics    *metrics.InitMetrics
	scrape         *metrics.ScrapeRegistry
	certLoader     *CertLoader

	deps        atomic.Pointer[serverDeps]
	httpServer  *http.Server
	runner      *runner.Runner
	store       runner.StateStore
	cronManager *cron.CronTriggerManager
	startedAt   time.Time
	hostname    string
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr overrides the address the server listens on.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithCron configures scheduled runs from a multi-trigger spec, e.g.
// "comprehensive:0 6 * * *;minimal:*/30 * * * *". Overrides any cron
// stanza in the server config.
func WithCron(spec string) Option {
	return func(s *Server) error {
		return s.setupCron(spec)
	}
}

// New creates a Server from the given runtime configuration and stage
// executor registry. It loads the initialization configuration and builds
// the orchestrator before returning.
func New(srvCfg *serverconfig.ServerConfig, registry *stage.Registry, opts ...Option) (*Server, error) {
	logLevel := &slog.LevelVar{}
	logLevel.Set(parseLogLevel(srvCfg.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	scrape, err := metrics.NewScrapeRegistry()
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	initMetrics, err := metrics.NewInitMetrics(scrape)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	hostname, _ := os.Hostname()
	s := &Server{
		addr:           srvCfg.Listener.Addr,
		initConfigPath: srvCfg.InitConfig,
		logger:         logger,
		logLevel:       logLevel,
		registry:       registry,
		collector:      logging.NewLogCollector(),
		initMetrics:    initMetrics,
		scrape:         scrape,
		startedAt:      time.Now(),
		hostname:       hostname,
	}

	if srvCfg.Listener.TLSCert != "" {
		loader, err := NewCertLoader(srvCfg.Listener.TLSCert, srvCfg.Listener.TLSKey, logger)
		if err != nil {
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
		s.certLoader = loader
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	if srvCfg.StateDir != "" {
		store, err := runner.NewDiskStore(srvCfg.StateDir, srvCfg.MaxHistory, logger)
		if err != nil {
			return nil, fmt.Errorf("opening state directory: %w", err)
		}
		s.store = store
	} else {
		s.store = runner.NewMemoryStore(srvCfg.MaxHistory)
	}
	s.runner = runner.New(s, s.store, logger)

	if srvCfg.Cron != "" {
		if err := s.setupCron(srvCfg.Cron); err != nil {
			return nil, err
		}
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogLevel changes the server's log level at runtime.
func (s *Server) SetLogLevel(level slog.Level) {
	s.logLevel.Set(level)
}

// Reload reads the initialization config from disk and rebuilds the
// orchestrator over it. A run in flight keeps executing against the
// orchestrator it started on.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.initConfigPath)
	if err != nil {
		return err
	}

	catalog, err := cfg.BuildCatalog()
	if err != nil {
		return fmt.Errorf("building stage catalogue: %w", err)
	}

	orch, err := orchestrator.New(catalog, s.registry,
		orchestrator.WithLogger(s.logger),
		orchestrator.WithResilience(resilience.NewManager(resilience.Config{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			RecoveryTimeout:  cfg.Resilience.RecoveryTimeout,
			Retry: resilience.RetryPolicy{
				MaxRetries: cfg.Resilience.MaxRetries,
				BaseDelay:  cfg.Resilience.BaseDelay,
				MaxDelay:   cfg.Resilience.MaxDelay,
			},
		})),
		orchestrator.WithCache(cache.New(cfg.Cache.TTL)),
		orchestrator.WithObserver(s.initMetrics),
		orchestrator.WithStageTimeout(cfg.Orchestrator.StageTimeout),
		orchestrator.WithLogHook(logging.NewCapturingLoggerHook(s.collector)),
	)
	if err != nil {
		return err
	}

	old := s.deps.Swap(&serverDeps{
		config:       &cfg,
		orchestrator: orch,
	})
	if old != nil {
		// The displaced orchestrator may still be executing a run; dispose
		// it only once the runner is idle again.
		if s.runner != nil {
			s.runner.NotifyIdle(old.orchestrator.Dispose)
		} else {
			old.orchestrator.Dispose()
		}
	}

	s.logger.Info("configuration loaded",
		"config_path", s.initConfigPath,
		"stages", catalog.Len(),
	)
	return nil
}

// Config returns the current initialization configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// Orchestrator returns the current orchestrator.
func (s *Server) Orchestrator() *orchestrator.Orchestrator {
	return s.deps.Load().orchestrator
}

// LogCollector returns the per-stage log collector.
func (s *Server) LogCollector() *logging.LogCollector {
	return s.collector
}

// RunTimeout returns the configured whole-run bound.
func (s *Server) RunTimeout() time.Duration {
	return s.Config().Orchestrator.RunTimeout
}

// MaxParallel returns the configured parallel group cap.
func (s *Server) MaxParallel() int {
	return s.Config().Orchestrator.MaxParallel
}

// StageLogs returns the captured log tail of a stage.
func (s *Server) StageLogs(id stage.ID) []logging.LogEntry {
	return s.collector.GetLogs(id)
}

// NextRun returns the next scheduled run time, or nil if no cron is
// configured.
func (s *Server) NextRun() *time.Time {
	if s.cronManager == nil {
		return nil
	}
	next := s.cronManager.NextRun()
	if next.IsZero() {
		return nil
	}
	return &next
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// ServerInfo returns static metadata about this server instance.
func (s *Server) ServerInfo() handlers.ServerProperties {
	return handlers.ServerProperties{
		Build:     buildinfo.Get(),
		StartedAt: s.startedAt,
		Hostname:  s.hostname,
	}
}

func (s *Server) setupCron(spec string) error {
	available := make(map[string]bool)
	for _, strategy := range orchestrator.Strategies() {
		available[string(strategy)] = true
	}
	mgr, err := cron.NewCronTriggerManager(spec, s.runner, s.logger, available)
	if err != nil {
		return fmt.Errorf("creating cron triggers: %w", err)
	}
	s.cronManager = mgr
	return nil
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then performs a graceful shutdown. Cron triggers, if configured, are
// started automatically.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		s.httpServer.TLSConfig = &tls.Config{
			GetCertificate: s.certLoader.GetCertificate,
		}
	}

	if s.cronManager != nil {
		s.logger.Info("starting cron triggers", "next_run", s.cronManager.NextRun())
		s.cronManager.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.addr,
			"config_path", s.initConfigPath,
			"tls", s.certLoader != nil,
		)
		var err error
		if s.certLoader != nil {
			// Cert and key come from the loader's GetCertificate callback.
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.Orchestrator().Dispose()
		return nil
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s.logger, s))
	mux.Handle("GET /api/progress", handlers.NewProgressHandler(s))
	mux.Handle("GET /api/results", handlers.NewResultsHandler(s))
	mux.Handle("GET /api/strategies", handlers.NewStrategiesHandler(s))
	mux.Handle("GET /api/stages/{stage}/logs", handlers.NewStageLogsHandler(s, s))
	mux.Handle("GET /api/run", handlers.NewRunStatusHandler(s.runner))
	mux.Handle("GET /history", handlers.NewHistoryHandler(s.runner))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("GET /metrics", s.scrape.Handler())
	mux.Handle("POST /run", handlers.NewRunHandler(s.runner, s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, s))

	if store, ok := s.store.(handlers.ReloadableStore); ok {
		mux.Handle("POST /history/reload", handlers.NewStoreReloadHandler(s.logger, store))
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
