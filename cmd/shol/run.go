package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/config"
	"github.com/KarmveerSingh18/prototype-4/internal/metrics"
	"github.com/KarmveerSingh18/prototype-4/internal/service"
)

// RunFlags holds flags for the run command.
type RunFlags struct {
	MonitorOnly   bool
	MetricsListen string
}

func newRunCommand(global *GlobalFlags) *cobra.Command {
	flags := &RunFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the monitor and heal loops",
		Long: `Start sampling processes, detecting issues and healing them.
Runs in the foreground until interrupted, or under the Windows service
control manager when started as a service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global, config.CLIOverrides{
				MonitorOnly:   flags.MonitorOnly,
				MetricsListen: flags.MetricsListen,
			})
			if err != nil {
				return err
			}
			return runMonitor(cfg)
		},
	}

	cmd.Flags().BoolVar(&flags.MonitorOnly, "monitor-only", false, "detect and log issues without healing")
	cmd.Flags().StringVar(&flags.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (e.g. :9102)")
	return cmd
}

func runMonitor(cfg *config.Config) error {
	logger := initLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting shol",
		zap.String("version", version),
		zap.Bool("healing", cfg.Healer.Enabled),
		zap.String("whitelist", cfg.Whitelist.File),
		zap.String("ledger", cfg.Ledger.File))

	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		svc := service.New(logger, func(ctx context.Context) {
			if err := runLoops(ctx, cfg, logger); err != nil {
				logger.Error("Monitor failed", zap.Error(err))
			}
		})
		return svc.Run()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runLoops(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("shol stopped")
	return nil
}

// runLoops builds the components and blocks until ctx is cancelled.
func runLoops(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	m, err := buildMonitor(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("Closing event sinks", zap.Error(err))
		}
	}()

	if cfg.Metrics.Listen != "" {
		srv, err := startMetricsServer(cfg.Metrics.Listen, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("shol running",
		zap.Duration("monitor_interval", cfg.Monitor.Interval.Duration),
		zap.Duration("heal_interval", cfg.Healer.Interval.Duration))
	m.scheduler.Start(ctx)

	t := m.ledger.Total()
	logger.Info("Optimization totals",
		zap.Int("records", m.ledger.Len()),
		zap.Float64("cpu_gain", t.CPUGain),
		zap.Float64("mem_gain", t.MemGain),
		zap.Float64("score", t.Score))
	return nil
}

func startMetricsServer(addr string, logger *zap.Logger) (*http.Server, error) {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))
	return srv, nil
}
