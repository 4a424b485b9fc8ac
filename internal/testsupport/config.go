package testsupport

import (
	"path/filepath"
	"testing"

	"pepper/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with a unique runtime directory per test.
// Journal forwarding is off and device jobs are handled without a settle
// delay.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RuntimeDir = filepath.Join(base, "run")
	cfgVal.Devices.SettleDelayMS = 0
	cfgVal.Usercode.Journal = false
	cfgVal.Metrics.Bind = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithSource selects the device source backend.
func WithSource(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Devices.Source = name
	}
}

// WithPythonCommand replaces the usercode command, typically with a shell
// script so tests do not depend on a Python interpreter.
func WithPythonCommand(command ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Usercode.PythonCommand = append([]string(nil), command...)
	}
}

// WithGracePeriod sets the usercode grace period in seconds.
func WithGracePeriod(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Usercode.GracePeriodSeconds = seconds
	}
}

// WithMetricsBind enables the metrics listener.
func WithMetricsBind(addr string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.Bind = addr
	}
}
