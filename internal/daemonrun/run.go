package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"pepper/internal/config"
	"pepper/internal/daemon"
	"pepper/internal/devices"
	"pepper/internal/drives"
	"pepper/internal/ipc"
	"pepper/internal/logging"
	"pepper/internal/metrics"
	"pepper/internal/netlinkdev"
	"pepper/internal/preflight"
	"pepper/internal/udisks"
	"pepper/internal/usercode"
)

const metricsShutdownTimeout = 5 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	Version  string
	// SocketPath overrides the socket location derived from the runtime dir.
	SocketPath string
	// Source overrides the device source selected by configuration.
	Source devices.Source
	// Ready, when set, is closed once the daemon accepts IPC connections.
	Ready chan<- struct{}
}

// Run starts the pepper daemon and blocks until a termination signal arrives,
// ctx is cancelled or the device source fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	runCfg := *cfg
	if opts.LogLevel != "" {
		runCfg.Logging.Level = opts.LogLevel
	}
	if err := runCfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessionID := uuid.NewString()
	logger, err := logging.NewFromConfig(&runCfg, sessionID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logPreflightSnapshot(signalCtx, logger, &runCfg)

	pidPath := runCfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)
	metricsServer, err := startMetrics(runCfg.Metrics.Bind, registry, logger)
	if err != nil {
		return err
	}
	defer stopMetrics(metricsServer, logger)

	drivers := usercode.DefaultDrivers(runCfg.Usercode.PythonCommand)
	ctrl, err := daemon.NewController(daemon.ControllerOptions{
		Types:       drives.DefaultTable(drivers),
		Logger:      logger,
		Metrics:     recorder,
		Version:     opts.Version,
		LogFileName: runCfg.Usercode.LogFileName,
		GracePeriod: runCfg.GracePeriod(),
		Sink:        usercode.SystemSink(runCfg.Usercode.Journal, runCfg.Usercode.JournalIdentifier, logger),
	})
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	source := opts.Source
	if source == nil {
		source, err = openSource(&runCfg, logger)
		if err != nil {
			return err
		}
	}

	d, err := daemon.New(daemon.Options{
		LockPath:    runCfg.LockPath(),
		Controller:  ctrl,
		Source:      source,
		SettleDelay: runCfg.SettleDelay(),
		Logger:      logger,
		Metrics:     recorder,
	})
	if err != nil {
		source.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		source.Close()
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Close()

	socketPath := runCfg.SocketPath()
	if strings.TrimSpace(opts.SocketPath) != "" {
		socketPath = opts.SocketPath
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, ctrl, ipc.ServerOptions{
		LockPath:        runCfg.LockPath(),
		SourceName:      source.Name(),
		DaemonLogPath:   runCfg.DaemonLogPath(),
		UsercodeLogName: runCfg.Usercode.LogFileName,
	}, logger)
	if err != nil {
		d.Stop()
		return fmt.Errorf("start IPC server: %w", err)
	}
	ipcServer.Serve()

	notifySystemd(logger, sddaemon.SdNotifyReady)
	if opts.Ready != nil {
		close(opts.Ready)
	}
	logger.Info("pepper daemon ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", ipcServer.Path()),
		logging.String("source", source.Name()),
		logging.String("metrics", metricsServer.Addr()),
	)

	var runErr error
	select {
	case <-signalCtx.Done():
	case <-d.Done():
		runErr = d.Err()
	}

	logger.Info("pepper daemon shutting down")
	notifySystemd(logger, sddaemon.SdNotifyStopping)
	d.Stop()
	ipcServer.Close()
	return runErr
}

func openSource(cfg *config.Config, logger *slog.Logger) (devices.Source, error) {
	switch cfg.Devices.Source {
	case config.SourceNetlink:
		return netlinkdev.New(netlinkdev.Options{
			Logger:     logger,
			MountRoots: cfg.Devices.MountRoots,
		}), nil
	case config.SourceUDisks, "":
		source, err := udisks.New(logger)
		if err != nil {
			return nil, fmt.Errorf("connect to udisks: %w", err)
		}
		return source, nil
	default:
		return nil, fmt.Errorf("unknown device source %q", cfg.Devices.Source)
	}
}

func startMetrics(bind string, registry *prometheus.Registry, logger *slog.Logger) (*metrics.Server, error) {
	if bind == "" {
		return nil, nil
	}
	server, err := metrics.Listen(bind, registry)
	if err != nil {
		return nil, fmt.Errorf("start metrics listener: %w", err)
	}
	go func() {
		if err := server.Serve(); err != nil {
			logger.Warn("metrics server stopped", logging.Error(err))
		}
	}()
	return server, nil
}

func stopMetrics(server *metrics.Server, logger *slog.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("metrics server shutdown failed", logging.Error(err))
	}
}

// notifySystemd reports state to the service manager when running under
// systemd with Type=notify. It is a no-op otherwise.
func notifySystemd(logger *slog.Logger, state string) {
	if _, err := sddaemon.SdNotify(false, state); err != nil {
		logger.Debug("sd_notify failed", logging.Error(err), logging.String("state", state))
	}
}

func logPreflightSnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		attrs := []logging.Attr{
			logging.String("check", r.Name),
			logging.Bool("passed", r.Passed),
			logging.String("detail", r.Detail),
		}
		switch {
		case r.Passed:
			logger.Debug("preflight check passed", logging.Args(attrs...)...)
		case r.Optional:
			logger.Info("optional preflight check failed", logging.Args(attrs...)...)
		default:
			logging.WarnWithContext(logger, "preflight check failed", "preflight_check_failed",
				append(attrs,
					logging.String(logging.FieldImpact, "the daemon may not detect drives or run usercode"),
					logging.String(logging.FieldErrorHint, "run `pepper check` for details"),
				)...)
		}
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
