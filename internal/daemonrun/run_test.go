package daemonrun

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pepper/internal/devices"
	"pepper/internal/ipc"
	"pepper/internal/logging"
	"pepper/internal/metrics"
	"pepper/internal/testsupport"
)

func TestRunServesIPCAndStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPythonCommand("/bin/sh", "-c", "sleep 30"))
	source := testsupport.NewFakeSource()
	source.AddVolume(devices.Volume{
		ID:          "RUN-0001",
		Object:      "/dev/sdb1",
		MountPoints: []string{testsupport.NewMountDir(t, "code", "main.py")},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{LogLevel: "error", Version: "1.2.3", Source: source, Ready: ready})
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not become ready")
	}

	pidData, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(pidData)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", pidData)
	}

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	version, err := client.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "1.2.3" {
		t.Fatalf("unexpected version %q", version)
	}
	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Source != "fake" || status.LockPath != cfg.LockPath() {
		t.Fatalf("unexpected status %+v", status)
	}
	driveID, err := client.UsercodeDrive()
	if err != nil {
		t.Fatalf("UsercodeDrive: %v", err)
	}
	if driveID != "RUN-0001" {
		t.Fatalf("unexpected usercode drive %q", driveID)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	if !source.Closed() {
		t.Fatal("expected device source closed")
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err=%v", err)
	}
}

func TestRunRejectsUnknownSource(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSource("carrier-pigeon"))
	if err := Run(context.Background(), cfg, Options{LogLevel: "error"}); err == nil {
		t.Fatal("expected error for unknown device source")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestWritePIDFile(t *testing.T) {
	path := t.TempDir() + "/pepperd.pid"
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid())+"\n" {
		t.Fatalf("unexpected contents %q", data)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}

func TestStartMetricsServesRegistry(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMetricsBind("127.0.0.1:0"))
	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)
	recorder.SetRegisteredDrives(3)

	server, err := startMetrics(cfg.Metrics.Bind, registry, logging.NewNop())
	if err != nil {
		t.Fatalf("startMetrics: %v", err)
	}
	defer stopMetrics(server, logging.NewNop())

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "registered_drives 3") {
		t.Fatalf("expected registered drive gauge, got:\n%s", body)
	}

	if server, err := startMetrics("", registry, logging.NewNop()); err != nil || server != nil {
		t.Fatalf("empty bind should disable metrics, got %v %v", server, err)
	}
}
