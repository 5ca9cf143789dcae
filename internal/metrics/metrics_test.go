package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ntpzones/ntpzones/internal/registry"
	"github.com/ntpzones/ntpzones/internal/resource"
	"github.com/ntpzones/ntpzones/internal/sntp"
	"github.com/ntpzones/ntpzones/internal/zones"
)

func okResult(label string, offset float64, stratum uint8) sntp.QueryResult {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	delay := 0.02
	return sntp.QueryResult{
		SourceLabel:       label,
		ServerUTC:         &now,
		LocalReferenceUTC: now,
		OffsetSeconds:     &offset,
		Stratum:           &stratum,
		RoundTripDelay:    &delay,
		Elapsed:           20 * time.Millisecond,
	}
}

func TestRecorder_ObserveQuery(t *testing.T) {
	r := New()

	r.ObserveQuery(okResult("Brasil", 0.25, 1))
	r.ObserveQuery(okResult("Brasil", -0.5, 1))
	r.ObserveQuery(sntp.QueryResult{
		SourceLabel: "Japão",
		Err:         &sntp.QueryError{Kind: sntp.KindTimeout, Message: "i/o timeout"},
	})

	if got := testutil.ToFloat64(r.queries.WithLabelValues("Brasil", "ok")); got != 2 {
		t.Errorf("queries{Brasil,ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.queries.WithLabelValues("Japão", "timeout")); got != 1 {
		t.Errorf("queries{Japão,timeout} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.offset.WithLabelValues("Brasil")); got != -0.5 {
		t.Errorf("offset{Brasil} = %v, want -0.5", got)
	}
	if got := testutil.ToFloat64(r.stratum.WithLabelValues("Brasil")); got != 1 {
		t.Errorf("stratum{Brasil} = %v, want 1", got)
	}
	// Failed sources leave no offset sample behind
	if got := testutil.CollectAndCount(r.offset); got != 1 {
		t.Errorf("offset series = %d, want 1", got)
	}
}

func TestRecorder_ObserveProjection(t *testing.T) {
	r := New()
	catalog := []registry.ZoneDefinition{
		{Identifier: "Asia/Tokyo", Label: "Tokyo"},
		{Identifier: "Mars/Olympus_Mons", Label: "Mars"},
	}

	r.ObserveProjection(zones.NewProjector().Project(time.Now(), catalog))

	if got := testutil.ToFloat64(r.zoneFailures.WithLabelValues("Mars/Olympus_Mons")); got != 1 {
		t.Errorf("failures{Mars} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.zoneFailures); got != 1 {
		t.Errorf("failure series = %d, want 1", got)
	}
}

func TestRecorder_ObserveSnapshot(t *testing.T) {
	r := New()
	r.ObserveSnapshot(4)
	r.ObserveSnapshot(3)

	if got := testutil.ToFloat64(r.snapshots); got != 2 {
		t.Errorf("snapshots = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.snapshotSources); got != 3 {
		t.Errorf("sources_ok = %v, want 3", got)
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.ObserveQuery(okResult("X", 0, 1))
	r.ObserveProjection(zones.Projection{})
	r.ObserveSnapshot(0)
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveQuery(okResult("EUA", 0.1, 1))

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(w.Body)
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(string(body), `ntpzones_ntp_offset_seconds{source="EUA"} 0.1`) {
		t.Errorf("exposition missing offset sample:\n%s", body)
	}
}

func TestRecorder_RegisterLimiter(t *testing.T) {
	r := New()
	stats := resource.Stats{
		MaxSnapshots:  2,
		InUse:         1,
		AcquireCount:  7,
		RejectCount:   3,
		TotalWaitTime: 1500 * time.Millisecond,
	}
	r.RegisterLimiter(func() resource.Stats { return stats })

	scrape := func() string {
		w := httptest.NewRecorder()
		r.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
		body, _ := io.ReadAll(w.Body)
		return string(body)
	}

	body := scrape()
	for _, want := range []string{
		"ntpzones_limiter_capacity 2",
		"ntpzones_limiter_in_use 1",
		"ntpzones_limiter_acquired_total 7",
		"ntpzones_limiter_abandoned_total 3",
		"ntpzones_limiter_wait_seconds_total 1.5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}

	// Values are read on every scrape
	stats.AcquireCount = 8
	if !strings.Contains(scrape(), "ntpzones_limiter_acquired_total 8") {
		t.Error("acquired_total did not follow the limiter")
	}
}
