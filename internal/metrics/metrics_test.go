package metrics_test

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/rkill/internal/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRegistryExposesMetrics(t *testing.T) {
	metrics.EmitBuildInfo()
	metrics.AddTargets(3)
	metrics.AddVictims(2)
	metrics.AddSurvivors(1)
	metrics.ObserveSignal("terminate", "stopped")
	metrics.ObserveStop("stopped", 20*time.Millisecond)

	body := scrape(t)

	for _, want := range []string{
		"rkill_targets_total ",
		"rkill_victims_total ",
		"rkill_survivors_total ",
		`rkill_signals_total{outcome="stopped",signal="terminate"}`,
		`rkill_stop_duration_seconds_count{outcome="stopped"}`,
		"rkill_build_info{",
		"go_version=",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in body:\n%s", want, body)
		}
	}
}

func TestNonPositiveCountsAreIgnored(t *testing.T) {
	before := scrape(t)
	metrics.AddTargets(0)
	metrics.AddVictims(-1)
	metrics.ObserveSignal("", "stopped")
	after := scrape(t)

	if before != after {
		t.Fatalf("expected no change for ignored observations:\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rkill.prom")
	metrics.AddTargets(1)

	if err := metrics.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "rkill_targets_total") {
		t.Fatalf("expected targets counter in textfile, got:\n%s", data)
	}

	if err := metrics.WriteTextfile(""); err != nil {
		t.Fatalf("expected empty path to be a no-op, got %v", err)
	}
}

func TestBuildInfoReturnsCopy(t *testing.T) {
	info := metrics.BuildInfo()
	if info["go_version"] == "" {
		t.Fatalf("expected go_version label, got %v", info)
	}
	info["go_version"] = "mutated"
	if metrics.BuildInfo()["go_version"] == "mutated" {
		t.Fatalf("expected BuildInfo to return a copy")
	}
}
