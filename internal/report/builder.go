// Package report fans NTP queries out across all sources and assembles snapshots.
package report

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ntpzones/ntpzones/internal/logger"
	"github.com/ntpzones/ntpzones/internal/registry"
	"github.com/ntpzones/ntpzones/internal/sntp"
	"github.com/ntpzones/ntpzones/internal/zones"
)

// Querier queries one time source; *sntp.Client in production
type Querier interface {
	Query(ctx context.Context, src registry.TimeSource) sntp.QueryResult
}

// Observer receives every result the builder produces; *metrics.Recorder in production
type Observer interface {
	ObserveQuery(result sntp.QueryResult)
	ObserveProjection(p zones.Projection)
	ObserveSnapshot(sourcesOK int)
}

// Config controls fan-out
type Config struct {
	// MaxConcurrency caps in-flight queries; 0 means one goroutine per source
	MaxConcurrency int

	// OverallTimeout bounds the whole fan-out; 0 leaves only the per-query timeout
	OverallTimeout time.Duration
}

// Builder assembles snapshots. It holds no per-request state and is safe for
// concurrent use.
type Builder struct {
	client    Querier
	projector *zones.Projector
	config    Config
	now       func() time.Time
	observer  Observer
	log       *logger.Logger
}

// Option customizes a Builder
type Option func(*Builder)

// WithClock replaces the wall clock used for queried_at and local zones
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithObserver attaches an observer such as a metrics recorder
func WithObserver(o Observer) Option {
	return func(b *Builder) {
		b.observer = o
	}
}

// WithLogger sets the builder logger
func WithLogger(l *logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBuilder creates a snapshot builder
func NewBuilder(client Querier, projector *zones.Projector, cfg Config, opts ...Option) *Builder {
	if projector == nil {
		projector = zones.NewProjector()
	}

	b := &Builder{
		client:    client,
		projector: projector,
		config:    cfg,
		now:       time.Now,
		log:       logger.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build queries every source concurrently and assembles a snapshot. Output
// order follows sources. Failures live in the per-source results; Build
// itself never fails.
func (b *Builder) Build(ctx context.Context, sources []registry.TimeSource, catalog []registry.ZoneDefinition) Snapshot {
	start := time.Now()
	queriedAt := b.now().UTC()

	queryCtx := ctx
	if b.config.OverallTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, b.config.OverallTimeout)
		defer cancel()
	}

	// Each goroutine writes only its own slot; Wait is the only synchronization
	results := make([]sntp.QueryResult, len(sources))
	g := new(errgroup.Group)
	if b.config.MaxConcurrency > 0 {
		g.SetLimit(b.config.MaxConcurrency)
	}
	for i, src := range sources {
		g.Go(func() error {
			results[i] = b.client.Query(queryCtx, src)
			return nil
		})
	}
	_ = g.Wait()

	snapshot := Snapshot{
		QueriedAt: queriedAt,
		Servers:   make([]SourceReport, 0, len(sources)),
	}

	for _, result := range results {
		sr := SourceReport{Result: result}

		if result.OK() {
			projection := b.projector.Project(*result.ServerUTC, catalog)
			sr.Converted = &projection
			b.observeProjection(projection)
		} else if result.Err != nil {
			b.log.Warn("NTP source failed",
				"source", result.SourceLabel,
				"server", result.Address,
				"kind", result.Err.Kind,
				"error", result.Err.Message)
		}

		if b.observer != nil {
			b.observer.ObserveQuery(result)
		}
		snapshot.Servers = append(snapshot.Servers, sr)
	}

	snapshot.LocalZones = b.projector.Project(b.now(), catalog)
	b.observeProjection(snapshot.LocalZones)

	if b.observer != nil {
		b.observer.ObserveSnapshot(snapshot.SourcesOK())
	}

	b.log.Debug("Snapshot built",
		"sources", len(sources),
		"sources_ok", snapshot.SourcesOK(),
		"duration", time.Since(start))

	return snapshot
}

func (b *Builder) observeProjection(p zones.Projection) {
	if b.observer != nil {
		b.observer.ObserveProjection(p)
	}
}
