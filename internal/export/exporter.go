package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ntpzones/ntpzones/internal/logger"
	"github.com/ntpzones/ntpzones/internal/report"
)

// LatestName is overwritten on every export
const LatestName = "latest.json"

// SnapshotFunc produces the snapshot to export
type SnapshotFunc func(ctx context.Context) report.Snapshot

// Exporter uploads snapshot documents: one timestamped copy per run plus latest.json
type Exporter struct {
	client   Client
	snapshot SnapshotFunc
	log      *logger.Logger
}

// NewExporter creates an exporter
func NewExporter(client Client, snapshot SnapshotFunc, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Default()
	}
	return &Exporter{
		client:   client,
		snapshot: snapshot,
		log:      log,
	}
}

// SnapshotName returns the archive file name for a snapshot taken at t
func SnapshotName(t time.Time) string {
	return "snapshots/snapshot-" + t.UTC().Format("20060102T150405Z") + ".json"
}

// Export builds one snapshot and uploads it. It returns the remote paths written.
func (e *Exporter) Export(ctx context.Context) ([]string, error) {
	snap := e.snapshot(ctx)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	var written []string
	for _, name := range []string{SnapshotName(snap.QueriedAt), LatestName} {
		if err := e.client.Upload(name, data); err != nil {
			return written, err
		}
		written = append(written, name)
	}

	e.log.Info("Snapshot exported",
		"files", written,
		"bytes", len(data),
		"sources_ok", snap.SourcesOK())

	return written, nil
}

// Run exports immediately and then on every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	e.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runOnce(ctx)
		}
	}
}

func (e *Exporter) runOnce(ctx context.Context) {
	if _, err := e.Export(ctx); err != nil {
		e.log.Error("Snapshot export failed", "error", err)
	}
}
