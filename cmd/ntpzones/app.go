package main

import (
	"context"
	"fmt"

	"github.com/ntpzones/ntpzones/internal/config"
	"github.com/ntpzones/ntpzones/internal/logger"
	"github.com/ntpzones/ntpzones/internal/metrics"
	"github.com/ntpzones/ntpzones/internal/registry"
	"github.com/ntpzones/ntpzones/internal/report"
	"github.com/ntpzones/ntpzones/internal/resource"
	"github.com/ntpzones/ntpzones/internal/sntp"
	"github.com/ntpzones/ntpzones/internal/zones"
	"github.com/ntpzones/ntpzones/pkg/health"
)

// App wires the registry, catalog, query client and builder together
type App struct {
	sources []registry.TimeSource
	zones   []registry.ZoneDefinition

	builder *report.Builder
	metrics *metrics.Recorder
	limiter *resource.Limiter
	health  *health.Monitor
	log     *logger.Logger
}

// NewApp builds the application from a loaded config
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Default()
	}

	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("zones: %w", err)
	}

	recorder := metrics.New()
	limiter := resource.DefaultLimiter()
	recorder.RegisterLimiter(limiter.GetStats)
	client := sntp.NewClient(cfg.SNTPConfig(), sntp.WithLogger(log.With("component", "sntp")))
	builder := report.NewBuilder(client, zones.NewProjector(), cfg.ReportConfig(),
		report.WithObserver(recorder),
		report.WithLogger(log.With("component", "report")))

	return &App{
		sources: reg.Sources(),
		zones:   catalog.Zones(),
		builder: builder,
		metrics: recorder,
		limiter: limiter,
		health:  health.NewMonitor(),
		log:     log,
	}, nil
}

// Snapshot builds one snapshot and grades it on the health monitor
func (a *App) Snapshot(ctx context.Context) report.Snapshot {
	snap := a.build(ctx)
	a.health.Observe(snap)
	return snap
}

// build is gated by the limiter; a caller that gives up while waiting still
// gets a document, with every source marked canceled
func (a *App) build(ctx context.Context) report.Snapshot {
	if err := a.limiter.Acquire(ctx); err != nil {
		a.log.Debug("Snapshot wait abandoned", "error", err)
		return a.builder.Build(ctx, a.sources, a.zones)
	}
	defer a.limiter.Release()

	return a.builder.Build(ctx, a.sources, a.zones)
}

// warmUp builds the first snapshot so readiness does not wait for a client
func (a *App) warmUp(ctx context.Context) {
	a.Snapshot(ctx)
	status := a.health.GetStatus()
	a.log.Info("Initial snapshot built",
		"sources_ok", status.SourcesOK,
		"sources", status.SourcesTotal,
		"level", status.Level)
}
