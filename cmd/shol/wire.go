package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/collector"
	"github.com/KarmveerSingh18/prototype-4/internal/config"
	"github.com/KarmveerSingh18/prototype-4/internal/detector"
	"github.com/KarmveerSingh18/prototype-4/internal/eventlog"
	"github.com/KarmveerSingh18/prototype-4/internal/healer"
	"github.com/KarmveerSingh18/prototype-4/internal/history"
	"github.com/KarmveerSingh18/prototype-4/internal/ledger"
	"github.com/KarmveerSingh18/prototype-4/internal/platform"
	"github.com/KarmveerSingh18/prototype-4/internal/scheduler"
	"github.com/KarmveerSingh18/prototype-4/internal/whitelist"
)

// monitor bundles the running components so they can be closed together.
type monitor struct {
	scheduler *scheduler.Scheduler
	ledger    *ledger.Ledger
	events    *eventlog.Log
}

// buildMonitor wires every component from cfg.
func buildMonitor(cfg *config.Config, logger *zap.Logger) (*monitor, error) {
	sinks, err := buildSinks(cfg.Events, cfg.Logging, logger)
	if err != nil {
		return nil, err
	}
	events := eventlog.New(logger, sinks...)

	source := collector.NewProcessSource(cfg.Monitor.OpTimeout.Duration)
	controller := collector.NewProcessSource(cfg.Healer.OpTimeout.Duration)
	sampler := collector.NewHostSampler(cfg.Healer.CPUSampleWindow.Duration)

	hist := history.New(source, cfg.Monitor.HistorySize, logger.Named("history"))
	det := detector.New(hist, detectorThresholds(cfg.Detector))

	wl := whitelist.New(cfg.Whitelist.File, logger.Named("whitelist"))
	wl.Load()

	led := ledger.New(cfg.Ledger.File, cfg.Ledger.Capacity, logger.Named("ledger"))
	if err := led.Load(); err != nil {
		logger.Warn("Starting with an empty optimization ledger", zap.Error(err))
	}

	prio := platform.New()
	h := healer.New(healerConfig(cfg.Healer), healer.Deps{
		Controller:  controller,
		Sampler:     sampler,
		Prioritizer: prio,
		Whitelist:   wl,
		Ledger:      led,
		Events:      events,
		Launcher:    healer.NewExecLauncher(logger.Named("launcher")),
	}, logger)

	sched := scheduler.New(scheduler.Config{
		MonitorInterval: cfg.Monitor.Interval.Duration,
		HealInterval:    cfg.Healer.Interval.Duration,
		HealEnabled:     cfg.Healer.Enabled,
	}, scheduler.Deps{
		History:  hist,
		Detector: det,
		Healer:   h,
		System:   sampler,
		Events:   events,
	}, logger)

	logger.Info("Components ready",
		zap.String("priority", prio.Name()),
		zap.Strings("sinks", sinkNames(sinks)),
		zap.Int("whitelisted", len(wl.List())),
		zap.Int("ledger_records", led.Len()))

	return &monitor{scheduler: sched, ledger: led, events: events}, nil
}

func (m *monitor) Close() error {
	return m.events.Close()
}

// buildSinks opens every configured event sink. A sink that fails to open
// aborts startup so a misconfiguration is noticed; already opened sinks
// are closed.
func buildSinks(cfg config.EventsConfig, logCfg config.LoggingConfig, logger *zap.Logger) ([]eventlog.Sink, error) {
	var sinks []eventlog.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	if cfg.File != "" {
		sinks = append(sinks, eventlog.NewFileSink(cfg.File, eventlog.Rotation{
			MaxSizeMB:  logCfg.MaxSizeMB,
			MaxBackups: logCfg.MaxBackups,
			MaxAgeDays: logCfg.MaxAgeDays,
			Compress:   logCfg.Compress,
		}))
	}
	if cfg.SQLite != "" {
		s, err := eventlog.NewSQLiteSink(cfg.SQLite)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("opening sqlite event sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if cfg.NATSURL != "" {
		s, err := eventlog.NewNATSSink(cfg.NATSURL, cfg.NATSSubject, logger.Named("nats"))
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("connecting nats event sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func sinkNames(sinks []eventlog.Sink) []string {
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	return names
}

func detectorThresholds(cfg config.DetectorConfig) detector.Thresholds {
	return detector.Thresholds{
		UnresponsiveZeroSamples: cfg.UnresponsiveZeroSamples,
		HighMemoryPercent:       cfg.HighMemoryPercent,
		HighCPUPercent:          cfg.HighCPUPercent,
	}
}

// healerConfig converts the YAML settings. Configured protected names are
// added to the built-in list, never replace it.
func healerConfig(cfg config.HealerConfig) healer.Config {
	protected := append([]string{}, healer.DefaultProtected...)
	protected = append(protected, cfg.Protected...)
	return healer.Config{
		SoftImprovement:  cfg.SoftImprovement,
		SettleWait:       cfg.SettleWait.Duration,
		RecoverySettle:   cfg.RecoverySettle.Duration,
		TerminateTimeout: cfg.TerminateTimeout.Duration,
		KillTimeout:      cfg.KillTimeout.Duration,
		Protected:        protected,
		Restart:          cfg.Restart,
		RestartBurst:     cfg.RestartLimit.Burst,
		RestartPer:       cfg.RestartLimit.Per.Duration,
	}
}
