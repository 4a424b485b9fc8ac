package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.SetDaemonStatus("ready")
	pr.SetDaemonStatus("code_running")
	pr.SetRegisteredDrives(2)
	pr.IncUsercodeOutcome("finished")
	pr.IncUsercodeOutcome("finished")
	pr.IncDeviceJob("filesystem-mount", JobRegistered)

	if got := testutil.ToFloat64(pr.daemonStatus.WithLabelValues("code_running")); got != 1 {
		t.Fatalf("expected active status gauge 1, got %v", got)
	}
	if got := testutil.CollectAndCount(pr.daemonStatus); got != 1 {
		t.Fatalf("expected only the current status series, got %d", got)
	}
	if got := testutil.ToFloat64(pr.registeredDrives); got != 2 {
		t.Fatalf("expected 2 registered drives, got %v", got)
	}
	if got := testutil.ToFloat64(pr.usercodeOutcomes.WithLabelValues("finished")); got != 2 {
		t.Fatalf("expected 2 finished executions, got %v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatal("expected metrics, got none")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.SetDaemonStatus("ready")
	pr.SetRegisteredDrives(1)
	pr.IncUsercodeOutcome("crashed")
	pr.IncDeviceJob("cleanup", JobRemoved)
	if pr.Registry() != nil {
		t.Fatal("expected nil registry")
	}
	var _ Recorder = NoopRecorder{}
	var _ Recorder = pr
}

func TestServerExposesMetrics(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.SetRegisteredDrives(3)

	srv, err := Listen("127.0.0.1:0", pr.Registry())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "pepper_registered_drives 3") {
		t.Fatalf("expected registered drives gauge in output:\n%s", body)
	}
}
