// Package health grades snapshots by source availability and clock offset and
// serves the result on liveness and readiness endpoints.
package health

import (
	"encoding/json"
	"math"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/ntpzones/ntpzones/internal/report"
)

// Level represents a health status level
type Level string

const (
	LevelHealthy  Level = "healthy"  // every source answered close to the local clock
	LevelWarning  Level = "warning"  // some sources failed or drifted
	LevelCritical Level = "critical" // no source answered, or the offset is unusable
	LevelUnknown  Level = "unknown"  // nothing graded yet
)

// Thresholds for health levels
const (
	SourceFailWarningPercent  = 1.0
	SourceFailCriticalPercent = 100.0
	OffsetWarningSeconds      = 1.0
	OffsetCriticalSeconds     = 5.0
)

// Status is the graded view of the last observed snapshot
type Status struct {
	Level        Level `json:"level"`
	SourcesLevel Level `json:"sources_level"`
	OffsetLevel  Level `json:"offset_level"`

	SourcesOK           int        `json:"sources_ok"`
	SourcesTotal        int        `json:"sources_total"`
	FailedPercent       float64    `json:"failed_percent"`
	MaxAbsOffsetSeconds *float64   `json:"max_abs_offset_seconds,omitempty"`
	LastSnapshot        *time.Time `json:"last_snapshot,omitempty"`

	NumGoroutines int     `json:"num_goroutines"`
	HeapAllocMB   float64 `json:"heap_alloc_mb"`
	Uptime        string  `json:"uptime"`
}

// Monitor keeps the status of the most recent snapshot
type Monitor struct {
	mu        sync.RWMutex
	startTime time.Time
	current   Status
	observed  bool
}

// NewMonitor creates a monitor with no snapshot observed yet
func NewMonitor() *Monitor {
	return &Monitor{
		startTime: time.Now(),
		current: Status{
			Level:        LevelUnknown,
			SourcesLevel: LevelUnknown,
			OffsetLevel:  LevelUnknown,
		},
	}
}

// Observe grades a snapshot and makes it the current status
func (m *Monitor) Observe(s report.Snapshot) Status {
	status := Evaluate(s)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = status
	m.observed = true
	return status
}

// Ready reports whether at least one snapshot has been observed
func (m *Monitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.observed
}

// GetStatus returns the current status with fresh runtime figures
func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	status := m.current
	m.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	status.NumGoroutines = runtime.NumGoroutine()
	status.HeapAllocMB = float64(memStats.HeapAlloc) / (1024 * 1024)
	status.Uptime = time.Since(m.startTime).Round(time.Second).String()
	return status
}

// Evaluate grades one snapshot
func Evaluate(s report.Snapshot) Status {
	status := Status{
		SourcesOK:    s.SourcesOK(),
		SourcesTotal: len(s.Servers),
	}
	if !s.QueriedAt.IsZero() {
		t := s.QueriedAt
		status.LastSnapshot = &t
	}

	if status.SourcesTotal > 0 {
		failed := status.SourcesTotal - status.SourcesOK
		status.FailedPercent = float64(failed) / float64(status.SourcesTotal) * 100
	}
	status.SourcesLevel = getLevelFromValue(status.FailedPercent, SourceFailWarningPercent, SourceFailCriticalPercent)

	for _, sr := range s.Servers {
		if sr.Result.OffsetSeconds == nil {
			continue
		}
		abs := math.Abs(*sr.Result.OffsetSeconds)
		if status.MaxAbsOffsetSeconds == nil || abs > *status.MaxAbsOffsetSeconds {
			status.MaxAbsOffsetSeconds = &abs
		}
	}
	status.OffsetLevel = LevelHealthy
	if status.MaxAbsOffsetSeconds != nil {
		status.OffsetLevel = getLevelFromValue(*status.MaxAbsOffsetSeconds, OffsetWarningSeconds, OffsetCriticalSeconds)
	}

	status.Level = worstLevel(status.SourcesLevel, status.OffsetLevel)
	return status
}

// HealthHandler reports liveness along with the current status
func (m *Monitor) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"health": m.GetStatus(),
	})
}

// ReadyHandler returns 503 until the first snapshot has been observed
func (m *Monitor) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if !m.Ready() {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// getLevelFromValue returns a health level based on value and thresholds
func getLevelFromValue(value, warningThreshold, criticalThreshold float64) Level {
	switch {
	case value >= criticalThreshold:
		return LevelCritical
	case value >= warningThreshold:
		return LevelWarning
	default:
		return LevelHealthy
	}
}

// worstLevel returns the worst (most critical) level from the given levels
func worstLevel(levels ...Level) Level {
	worst := LevelHealthy
	for _, l := range levels {
		if l == LevelCritical {
			return LevelCritical
		}
		if l == LevelWarning && worst == LevelHealthy {
			worst = LevelWarning
		}
	}
	return worst
}
