package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pepper"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry         *prom.Registry
	daemonStatus     *prom.GaugeVec
	registeredDrives prom.Gauge
	usercodeOutcomes *prom.CounterVec
	deviceJobs       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		daemonStatus: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "daemon_status",
			Help:      "Current daemon status; the active status label is 1",
		}, []string{"status"}),
		registeredDrives: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_drives",
			Help:      "Number of drives currently registered",
		}),
		usercodeOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "usercode_executions_total",
			Help:      "Finished usercode executions by outcome",
		}, []string{"outcome"}),
		deviceJobs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "device_jobs_total",
			Help:      "Device manager jobs by operation and result",
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(pr.daemonStatus, pr.registeredDrives, pr.usercodeOutcomes, pr.deviceJobs)
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return pr
}

// Registry returns the registry the recorder's collectors live on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

func (p *PrometheusRecorder) SetDaemonStatus(status string) {
	if p == nil || p.daemonStatus == nil {
		return
	}
	p.daemonStatus.Reset()
	p.daemonStatus.WithLabelValues(status).Set(1)
}

func (p *PrometheusRecorder) SetRegisteredDrives(n int) {
	if p == nil || p.registeredDrives == nil {
		return
	}
	p.registeredDrives.Set(float64(n))
}

func (p *PrometheusRecorder) IncUsercodeOutcome(outcome string) {
	if p == nil || p.usercodeOutcomes == nil {
		return
	}
	p.usercodeOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncDeviceJob(operation, result string) {
	if p == nil || p.deviceJobs == nil {
		return
	}
	p.deviceJobs.WithLabelValues(operation, result).Inc()
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Server serves /metrics for a registry.
type Server struct {
	listener net.Listener
	server   *http.Server
}

// Listen binds addr and prepares a metrics server.
func Listen(addr string, reg *prom.Registry) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", HTTPHandler(reg))
	return &Server{
		listener: listener,
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks until the server is shut down.
func (s *Server) Serve() error {
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
