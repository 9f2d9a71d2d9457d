package metrics_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Paintersrp/jobsh/internal/metrics"
)

func TestRegistryExposesMetrics(t *testing.T) {
	metrics.EmitBuildInfo()
	metrics.JobStarted(true)
	metrics.JobStarted(false)
	metrics.ProcessSpawned()
	metrics.JobStopped()
	metrics.JobFinished(metrics.OutcomeKilled, 250*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}

	body := rec.Body.String()
	for _, line := range []string{
		`jobsh_jobs_started_total{mode="background"}`,
		`jobsh_jobs_started_total{mode="foreground"}`,
		`jobsh_jobs_finished_total{outcome="killed"}`,
		"jobsh_jobs_stopped_total",
		"jobsh_processes_spawned_total",
		"jobsh_job_duration_seconds_bucket",
		"jobsh_build_info{",
		"go_version=",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in body:\n%s", line, body)
		}
	}
}

func TestJobFinishedDefaultsOutcome(t *testing.T) {
	before, err := testutil.GatherAndCount(metrics.Registry(), "jobsh_jobs_finished_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	metrics.JobFinished("", 0)
	after, err := testutil.GatherAndCount(metrics.Registry(), "jobsh_jobs_finished_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if after < before || after == 0 {
		t.Fatalf("expected exited series to exist, before=%d after=%d", before, after)
	}
}

func TestServeListenerStopsOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- metrics.ServeListener(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("unexpected healthz response %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}
