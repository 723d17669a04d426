package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/internal/logger"
	"github.com/marmos91/stowd/internal/telemetry"
	"github.com/marmos91/stowd/pkg/api"
	"github.com/marmos91/stowd/pkg/bufpool"
	"github.com/marmos91/stowd/pkg/config"
	"github.com/marmos91/stowd/pkg/journal"
	"github.com/marmos91/stowd/pkg/metrics"
	"github.com/marmos91/stowd/pkg/server"
	"github.com/marmos91/stowd/pkg/store/backends"
)

var (
	startBind    string
	startStorage string
	startCleanup bool
)

var startCmd = &cobra.Command{
	Use:   "start [port]",
	Short: "Start the stowd server",
	Long: `Start the stowd server in the foreground.

The port argument overrides server.port from the configuration. It must be
between 1024 and 65535. Without a configuration file the server listens on
all interfaces and keeps files in a temporary directory removed on exit.

Examples:
  # Start on the configured port (default 9000)
  stowd start

  # Start on port 9100
  stowd start 9100

  # Keep files in a fixed directory
  stowd start --storage-dir /var/lib/stowd

  # Start with environment variable overrides
  STOWD_LOGGING_LEVEL=DEBUG stowd start`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startBind, "bind", "", "Address to listen on (default: all interfaces)")
	startCmd.Flags().StringVar(&startStorage, "storage-dir", "", "Directory for the fs backend (default: temporary)")
	startCmd.Flags().BoolVar(&startCleanup, "cleanup", false, "Remove stored files on shutdown")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := applyStartFlags(cmd, cfg, args); err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.TracingConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(cfg.ProfilerConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	fmt.Println("stowd - event-driven file server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(cfgFile))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	st, err := backends.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Store close error", logger.Err(err))
		}
	}()

	var (
		serverMetrics *metrics.ServerMetrics
		metricsServer *metrics.HTTPServer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		serverMetrics = metrics.NewServerMetrics(reg)
		st = backends.Instrument(st, cfg.Storage.Type, metrics.NewStoreMetrics(reg))
		if metricsServer, err = metrics.NewHTTPServer(cfg.Metrics.Port, reg); err != nil {
			return err
		}
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		if jrnl, err = journal.New(cfg.Journal); err != nil {
			return err
		}
		defer func() {
			if err := jrnl.Close(); err != nil {
				logger.Error("Journal close error", logger.Err(err))
			}
		}()
	}

	loopCfg, err := cfg.LoopConfig()
	if err != nil {
		return err
	}
	srv, err := server.New(loopCfg, st,
		server.WithMetrics(serverMetrics),
		server.WithJournal(jrnl),
		server.WithPool(bufpool.New(loopCfg.ChunkSize, loopCfg.InboundSize)),
	)
	if err != nil {
		return err
	}

	var apiServer *api.Server
	if cfg.API.IsEnabled() {
		apiServer, err = api.NewServer(cfg.API, api.Deps{Loop: srv, Store: st, Journal: jrnl})
		if err != nil {
			_ = srv.Stop(context.Background())
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", logger.Err(err))
			}
		}()
	}
	if apiServer != nil {
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				logger.Error("API server error", logger.Err(err))
			}
		}()
	}

	logger.Info("Server is running. Press Ctrl+C to stop.", "address", srv.Addr().String())

	var runErr error
	select {
	case runErr = <-serveErr:
		if runErr != nil {
			logger.Error("Server error", logger.Err(runErr))
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			runErr = err
		} else {
			runErr = <-serveErr
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if apiServer != nil {
		if err := apiServer.Stop(stopCtx); err != nil {
			logger.Warn("API server stop error", logger.Err(err))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Metrics server stop error", logger.Err(err))
		}
	}

	if runErr == nil {
		logger.Info("Server stopped gracefully")
	}
	return runErr
}

// applyStartFlags layers the positional port and start flags over cfg.
func applyStartFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	if len(args) == 1 {
		port, err := parsePort(args[0])
		if err != nil {
			return err
		}
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("bind") {
		cfg.Server.BindAddress = startBind
	}
	if cmd.Flags().Changed("storage-dir") {
		cfg.Storage.Type = backends.TypeFS
		cfg.Storage.FS.Path = startStorage
		if err := os.MkdirAll(startStorage, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	if cmd.Flags().Changed("cleanup") {
		cfg.Server.CleanupOnExit = startCleanup
	}
	return config.Validate(cfg)
}
