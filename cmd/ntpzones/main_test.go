package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/ntpzones/ntpzones/internal/config"
	"github.com/ntpzones/ntpzones/internal/export"
	"github.com/ntpzones/ntpzones/internal/logger"
	"github.com/ntpzones/ntpzones/internal/registry"
	"github.com/ntpzones/ntpzones/internal/report"
	"github.com/ntpzones/ntpzones/internal/sntp"
	"github.com/ntpzones/ntpzones/internal/zones"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func sampleSnapshot() report.Snapshot {
	server := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	local := server.Add(-2 * time.Second)
	offset := 2.0
	stratum := uint8(1)
	delay := 0.042

	catalog := []registry.ZoneDefinition{
		{Identifier: "America/Sao_Paulo", Label: "São Paulo"},
		{Identifier: "Asia/Tokyo", Label: "Tokyo"},
	}
	projector := zones.NewProjector()
	converted := projector.Project(server, catalog)

	return report.Snapshot{
		QueriedAt: local,
		Servers: []report.SourceReport{
			{
				Result: sntp.QueryResult{
					SourceLabel:       "Brasil",
					Address:           "a.st1.ntp.br",
					ServerUTC:         &server,
					LocalReferenceUTC: local,
					OffsetSeconds:     &offset,
					Stratum:           &stratum,
					RoundTripDelay:    &delay,
				},
				Converted: &converted,
			},
			{
				Result: sntp.QueryResult{
					SourceLabel:       "Japão",
					Address:           "ntp.nict.jp",
					LocalReferenceUTC: local,
					Err:               &sntp.QueryError{Kind: sntp.KindTimeout, Message: "NTP query failed: i/o timeout"},
				},
			},
		},
		LocalZones: projector.Project(local, catalog),
	}
}

func TestRenderSnapshot(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	out, err := renderSnapshot(sampleSnapshot())
	if err != nil {
		t.Fatalf("renderSnapshot() error = %v", err)
	}

	for _, want := range []string{
		"Queried at (UTC): 2023-12-31 23:59:58",
		"Brasil",
		"2.000",
		"0.042",
		"timeout: NTP query failed: i/o timeout",
		"Brasil (a.st1.ntp.br)",
		"2023-12-31 21:00:00 -03-0300",
		"2024-01-01 09:00:00 JST+0900",
		"Local clock",
		"2023-12-31 20:59:58 -03-0300",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// The failed source gets no zone table of its own
	if strings.Contains(out, "Japão (ntp.nict.jp)") {
		t.Errorf("failed source rendered a zone table:\n%s", out)
	}
}

func TestSummaryRow_Failure(t *testing.T) {
	row := summaryRow(sampleSnapshot().Servers[1])
	want := []string{"Japão", "ntp.nict.jp", "-", "-", "-", "-", "timeout: NTP query failed: i/o timeout"}
	if strings.Join(row, "|") != strings.Join(want, "|") {
		t.Errorf("summaryRow() = %v, want %v", row, want)
	}
}

func TestShowCommand_JSON(t *testing.T) {
	path := writeConfig(t, `{"sources": [], "zones": [{"id": "UTC"}]}`)

	out, err := runCmd(t, "show", "--json", "--config", path)
	if err != nil {
		t.Fatalf("show --json error = %v", err)
	}

	var doc struct {
		Servers    []json.RawMessage `json:"servers"`
		LocalZones map[string]string `json:"local_zones"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if doc.Servers == nil || len(doc.Servers) != 0 {
		t.Errorf("servers = %v, want []", doc.Servers)
	}
	if !strings.HasSuffix(doc.LocalZones["UTC"], "UTC+0000") {
		t.Errorf("local_zones[UTC] = %q, want UTC+0000 suffix", doc.LocalZones["UTC"])
	}
}

func TestShowCommand_Table(t *testing.T) {
	path := writeConfig(t, `{"sources": [], "zones": [{"id": "Europe/Berlin", "label": "Berlin"}]}`)

	out, err := runCmd(t, "show", "--no-color", "--config", path)
	defer pterm.EnableStyling()
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "Local clock") || !strings.Contains(out, "Berlin") {
		t.Errorf("table output missing local zones:\n%s", out)
	}
}

func TestShowCommand_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `{"ntp": {"offset_mode": "median"}}`)

	if _, err := runCmd(t, "show", "--config", path); err == nil {
		t.Error("show with invalid config: error = nil, want error")
	}
}

func TestExportCommand_NotConfigured(t *testing.T) {
	path := writeConfig(t, `{"sources": []}`)

	_, err := runCmd(t, "export", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Errorf("export error = %v, want host is required", err)
	}
}

func TestNewApp_InvalidSources(t *testing.T) {
	cfg := config.Default()
	cfg.Sources = []registry.TimeSource{
		{Label: "A", Address: "a.example"},
		{Label: "A", Address: "b.example"},
	}

	if _, err := NewApp(cfg, logger.Default()); err == nil {
		t.Error("NewApp() error = nil, want duplicate label error")
	}
}

func TestApp_Snapshot(t *testing.T) {
	cfg := config.Default()
	cfg.Sources = []registry.TimeSource{}

	app, err := NewApp(cfg, logger.Default())
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	snap := app.Snapshot(context.Background())
	if len(snap.Servers) != 0 {
		t.Errorf("len(Servers) = %d, want 0", len(snap.Servers))
	}
	if snap.LocalZones.Len() != 9 {
		t.Errorf("LocalZones.Len() = %d, want 9", snap.LocalZones.Len())
	}

	stats := app.limiter.GetStats()
	if stats.AcquireCount != 1 || stats.InUse != 0 {
		t.Errorf("limiter stats = %+v, want one acquire and no slot held", stats)
	}
}

func TestConsole_ReadyAfterWarmUp(t *testing.T) {
	cfg := config.Default()
	cfg.Sources = []registry.TimeSource{}

	app, err := NewApp(cfg, logger.Default())
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	mux := newConsole(cfg, app, logger.Default()).GetMux()

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		return w
	}

	if code := get("/readyz").Code; code != http.StatusServiceUnavailable {
		t.Errorf("readyz before warm-up = %d, want 503", code)
	}

	app.warmUp(context.Background())

	if code := get("/readyz").Code; code != http.StatusOK {
		t.Errorf("readyz after warm-up = %d, want 200", code)
	}
	if body := get("/metrics").Body.String(); !strings.Contains(body, "ntpzones_limiter_acquired_total 1") {
		t.Errorf("metrics missing limiter acquisitions:\n%s", body)
	}
}

func TestApp_SnapshotFeedsHealth(t *testing.T) {
	cfg := config.Default()
	cfg.Sources = []registry.TimeSource{}

	app, err := NewApp(cfg, logger.Default())
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	if app.health.Ready() {
		t.Fatal("monitor ready before any snapshot")
	}

	// The exporter builds through the same function
	exportSnapshot := export.SnapshotFunc(app.Snapshot)
	exportSnapshot(context.Background())

	if !app.health.Ready() {
		t.Error("monitor not ready after an export build")
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "show", "export"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
}
