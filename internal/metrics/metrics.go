// Package metrics exposes Prometheus collectors for NTP queries and zone projections.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ntpzones/ntpzones/internal/resource"
	"github.com/ntpzones/ntpzones/internal/sntp"
	"github.com/ntpzones/ntpzones/internal/zones"
)

const namespace = "ntpzones"

// Recorder holds the collectors and the registry they are registered in.
// Each Recorder owns its registry so tests can create isolated instances.
type Recorder struct {
	registry *prometheus.Registry

	queries         *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	offset          *prometheus.GaugeVec
	stratum         *prometheus.GaugeVec
	rtt             *prometheus.GaugeVec
	zoneFailures    *prometheus.CounterVec
	snapshots       prometheus.Counter
	snapshotSources prometheus.Gauge
}

// New creates a Recorder with all collectors registered
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ntp",
				Name:      "queries_total",
				Help:      "NTP queries by source and outcome (ok or an error kind)",
			},
			[]string{"source", "outcome"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ntp",
				Name:      "query_duration_seconds",
				Help:      "Wall time spent on each NTP query",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"source"},
		),
		offset: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ntp",
				Name:      "offset_seconds",
				Help:      "Last measured offset; positive means the server reads ahead of the local clock",
			},
			[]string{"source"},
		),
		stratum: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ntp",
				Name:      "stratum",
				Help:      "Last reported server stratum",
			},
			[]string{"source"},
		),
		rtt: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ntp",
				Name:      "round_trip_seconds",
				Help:      "Last measured round-trip delay",
			},
			[]string{"source"},
		),
		zoneFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "zones",
				Name:      "projection_failures_total",
				Help:      "Zone projections that could not be resolved",
			},
			[]string{"zone"},
		),
		snapshots: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "report",
				Name:      "snapshots_total",
				Help:      "Snapshots built",
			},
		),
		snapshotSources: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "report",
				Name:      "sources_ok",
				Help:      "Sources that answered in the last snapshot",
			},
		),
	}

	r.registry.MustRegister(
		r.queries,
		r.queryDuration,
		r.offset,
		r.stratum,
		r.rtt,
		r.zoneFailures,
		r.snapshots,
		r.snapshotSources,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// ObserveQuery records one query result
func (r *Recorder) ObserveQuery(result sntp.QueryResult) {
	if r == nil {
		return
	}

	outcome := "ok"
	if result.Err != nil {
		outcome = string(result.Err.Kind)
	}
	r.queries.WithLabelValues(result.SourceLabel, outcome).Inc()
	r.queryDuration.WithLabelValues(result.SourceLabel).Observe(result.Elapsed.Seconds())

	if result.OffsetSeconds != nil {
		r.offset.WithLabelValues(result.SourceLabel).Set(*result.OffsetSeconds)
	}
	if result.Stratum != nil {
		r.stratum.WithLabelValues(result.SourceLabel).Set(float64(*result.Stratum))
	}
	if result.RoundTripDelay != nil {
		r.rtt.WithLabelValues(result.SourceLabel).Set(*result.RoundTripDelay)
	}
}

// ObserveProjection records zones that failed to resolve
func (r *Recorder) ObserveProjection(p zones.Projection) {
	if r == nil {
		return
	}
	for _, zone := range p.Failed() {
		r.zoneFailures.WithLabelValues(zone).Inc()
	}
}

// ObserveSnapshot records a finished snapshot and how many sources answered
func (r *Recorder) ObserveSnapshot(sourcesOK int) {
	if r == nil {
		return
	}
	r.snapshots.Inc()
	r.snapshotSources.Set(float64(sourcesOK))
}

// RegisterLimiter exposes the snapshot limiter through stats. The values are
// read at scrape time.
func (r *Recorder) RegisterLimiter(stats func() resource.Stats) {
	if r == nil || stats == nil {
		return
	}

	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "limiter", Name: name, Help: help}
	}
	r.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts("capacity", "Snapshot builds allowed at once")),
			func() float64 { return float64(stats().MaxSnapshots) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts("in_use", "Snapshot builds currently holding a slot")),
			func() float64 { return float64(stats().InUse) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("acquired_total", "Snapshot builds that obtained a slot")),
			func() float64 { return float64(stats().AcquireCount) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("abandoned_total", "Callers that gave up waiting for a slot")),
			func() float64 { return float64(stats().RejectCount) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("wait_seconds_total", "Time spent waiting for a slot")),
			func() float64 { return stats().TotalWaitTime.Seconds() }),
	)
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
