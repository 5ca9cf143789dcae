package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ntpzones/ntpzones/internal/report"
	"github.com/ntpzones/ntpzones/internal/sntp"
)

func TestGetLevelFromValue(t *testing.T) {
	tests := []struct {
		name              string
		value             float64
		warningThreshold  float64
		criticalThreshold float64
		want              Level
	}{
		{"healthy - well below warning", 0.2, 1, 5, LevelHealthy},
		{"healthy - just below warning", 0.999, 1, 5, LevelHealthy},
		{"warning - at threshold", 1, 1, 5, LevelWarning},
		{"warning - just below critical", 4.99, 1, 5, LevelWarning},
		{"critical - at threshold", 5, 1, 5, LevelCritical},
		{"critical - above threshold", 3600, 1, 5, LevelCritical},
		{"healthy - zero", 0, 1, 5, LevelHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getLevelFromValue(tt.value, tt.warningThreshold, tt.criticalThreshold)
			if got != tt.want {
				t.Errorf("getLevelFromValue(%v, %v, %v) = %v, want %v",
					tt.value, tt.warningThreshold, tt.criticalThreshold, got, tt.want)
			}
		})
	}
}

func TestWorstLevel(t *testing.T) {
	tests := []struct {
		name   string
		levels []Level
		want   Level
	}{
		{"all healthy", []Level{LevelHealthy, LevelHealthy}, LevelHealthy},
		{"one warning", []Level{LevelHealthy, LevelWarning}, LevelWarning},
		{"one critical", []Level{LevelCritical, LevelHealthy}, LevelCritical},
		{"warning and critical", []Level{LevelWarning, LevelCritical}, LevelCritical},
		{"empty levels", []Level{}, LevelHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := worstLevel(tt.levels...); got != tt.want {
				t.Errorf("worstLevel(%v) = %v, want %v", tt.levels, got, tt.want)
			}
		})
	}
}

func ok(offset float64) report.SourceReport {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return report.SourceReport{Result: sntp.QueryResult{ServerUTC: &now, OffsetSeconds: &offset}}
}

func failed() report.SourceReport {
	return report.SourceReport{Result: sntp.QueryResult{
		Err: &sntp.QueryError{Kind: sntp.KindTimeout, Message: "i/o timeout"},
	}}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		servers    []report.SourceReport
		wantLevel  Level
		wantOK     int
		wantMaxAbs float64
	}{
		{
			name:       "all sources close",
			servers:    []report.SourceReport{ok(0.01), ok(-0.2)},
			wantLevel:  LevelHealthy,
			wantOK:     2,
			wantMaxAbs: 0.2,
		},
		{
			name:       "one source failed",
			servers:    []report.SourceReport{ok(0.01), failed()},
			wantLevel:  LevelWarning,
			wantOK:     1,
			wantMaxAbs: 0.01,
		},
		{
			name:      "all sources failed",
			servers:   []report.SourceReport{failed(), failed()},
			wantLevel: LevelCritical,
		},
		{
			name:       "large negative offset",
			servers:    []report.SourceReport{ok(-7.5), ok(0)},
			wantLevel:  LevelCritical,
			wantOK:     2,
			wantMaxAbs: 7.5,
		},
		{
			name:      "no sources registered",
			wantLevel: LevelHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(report.Snapshot{Servers: tt.servers})
			if got.Level != tt.wantLevel {
				t.Errorf("Level = %v, want %v", got.Level, tt.wantLevel)
			}
			if got.SourcesOK != tt.wantOK {
				t.Errorf("SourcesOK = %d, want %d", got.SourcesOK, tt.wantOK)
			}
			if tt.wantOK == 0 {
				if got.MaxAbsOffsetSeconds != nil {
					t.Errorf("MaxAbsOffsetSeconds = %v, want nil", *got.MaxAbsOffsetSeconds)
				}
				return
			}
			if got.MaxAbsOffsetSeconds == nil || *got.MaxAbsOffsetSeconds != tt.wantMaxAbs {
				t.Errorf("MaxAbsOffsetSeconds = %v, want %v", got.MaxAbsOffsetSeconds, tt.wantMaxAbs)
			}
		})
	}
}

func TestMonitor_Readiness(t *testing.T) {
	m := NewMonitor()
	if got := m.GetStatus().Level; got != LevelUnknown {
		t.Errorf("level before first snapshot = %v, want unknown", got)
	}

	w := httptest.NewRecorder()
	m.ReadyHandler(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("before first snapshot: status = %d, want 503", w.Code)
	}

	m.Observe(report.Snapshot{
		QueriedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Servers:   []report.SourceReport{failed()},
	})

	w = httptest.NewRecorder()
	m.ReadyHandler(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("after snapshot: status = %d, want 200", w.Code)
	}
	if got := m.GetStatus().Level; got != LevelCritical {
		t.Errorf("level after all-failed snapshot = %v, want critical", got)
	}
}

func TestMonitor_HealthHandler(t *testing.T) {
	m := NewMonitor()
	m.Observe(report.Snapshot{Servers: []report.SourceReport{ok(0.5), failed()}})

	w := httptest.NewRecorder()
	m.HealthHandler(w, httptest.NewRequest("GET", "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Status string `json:"status"`
		Health Status `json:"health"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Health.Level != LevelWarning {
		t.Errorf("health.level = %v, want warning", body.Health.Level)
	}
	if body.Health.SourcesTotal != 2 || body.Health.FailedPercent != 50 {
		t.Errorf("health = %+v, want 2 sources, 50%% failed", body.Health)
	}
	if body.Health.Uptime == "" {
		t.Error("uptime is empty")
	}
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				m.Observe(report.Snapshot{Servers: []report.SourceReport{ok(0.1)}})
				_ = m.GetStatus()
			}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	if !m.Ready() {
		t.Error("Ready() = false after observations")
	}
}
