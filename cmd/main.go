package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/http/api"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/http/site"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/http/swagger"
	app "github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/app"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/config"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// HTTP server timeout constants. Writes are unbounded because job event
// streams stay open until the job ends.
const (
	readTimeout               = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// serveFlags override the loaded configuration when set.
type serveFlags struct {
	configFile string
	addr       string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "mindbreeze",
		Short: "Measurement-to-report pipeline service",
		Long: `mindbreeze gates biosignal measurement sessions on signal quality,
runs sealed sessions through an AI analysis engine and stores the rendered
reports, charging each analysis against the account's credit balance.

Configuration is read from defaults, the YAML file named by --config or
MINDBREEZE_CONFIG, then MINDBREEZE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.configFile, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "log format (text, json)")
	return cmd
}

// loadConfig layers the command flags over the file and environment config.
// --config takes the place of MINDBREEZE_CONFIG.
func loadConfig(ctx context.Context, cmd *cobra.Command, flags serveFlags) (*config.Config, error) {
	path := flags.configFile
	if path == "" {
		path = os.Getenv(config.EnvConfigFile)
	}
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = flags.addr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, flags serveFlags) error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, cmd, flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(cfg, app.WithLogger(log.Named("service")))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(cfg, svc, log),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
		svc.Stop(shutdownCtx)
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// newHandler mounts the API, its docs and the report pages on one router.
func newHandler(cfg *config.Config, svc *app.Service, log logger.Logger) http.Handler {
	return api.NewServer(svc,
		api.WithLogger(log.Named("http")),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
		api.WithMount(swagger.Register),
		api.WithMount(func(r chi.Router) { site.Register(r, svc) }),
	).Handler()
}

// startSystemMetricsUpdater periodically publishes runtime metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater periodically publishes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics mirrors the service stats onto queue, worker and
// gate gauges. GetStats itself refreshes the store gauges.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)
	if !stats.Started {
		return
	}
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateQueueCapacity(stats.QueueCapacity)
	if stats.QueueCapacity > 0 {
		metrics.UpdateQueueUtilization(float64(stats.QueueLength) / float64(stats.QueueCapacity))
	}
	metrics.UpdateWorkerCount(stats.Workers)
	metrics.UpdateWorkerActiveCount(stats.BusyWorkers)
	metrics.UpdateWorkerIdleCount(stats.Workers - stats.BusyWorkers)
	metrics.UpdateActiveGates(stats.ActiveGates)
	metrics.UpdateRegisteredEngines(stats.Engines)
}
