package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"pepper/internal/devices"
	"pepper/internal/logging"
	"pepper/internal/metrics"
)

// Options configures a Daemon.
type Options struct {
	LockPath    string
	Controller  *Controller
	Source      devices.Source
	SettleDelay time.Duration
	Logger      *slog.Logger
	Metrics     metrics.Recorder
}

// Daemon binds a controller to a device source and enforces single-instance
// execution.
type Daemon struct {
	controller *Controller
	source     devices.Source
	adapter    *Adapter
	logger     *slog.Logger

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	errMu  sync.Mutex
	runErr error
}

// New constructs a daemon.
func New(opts Options) (*Daemon, error) {
	if opts.Controller == nil || opts.Source == nil {
		return nil, errors.New("daemon requires a controller and a device source")
	}
	if opts.LockPath == "" {
		return nil, errors.New("daemon requires a lock path")
	}
	logger := logging.NewComponentLogger(opts.Logger, "daemon")
	return &Daemon{
		controller: opts.Controller,
		source:     opts.Source,
		adapter:    NewAdapter(opts.Controller, opts.Source, opts.SettleDelay, opts.Logger, opts.Metrics),
		logger:     logger,
		lockPath:   opts.LockPath,
		lock:       flock.New(opts.LockPath),
	}, nil
}

// Controller returns the daemon's controller.
func (d *Daemon) Controller() *Controller { return d.controller }

// LockPath returns the single-instance lock file path.
func (d *Daemon) LockPath() string { return d.lockPath }

// Start acquires the daemon lock, registers drives that are already mounted
// and begins consuming device jobs. The daemon is Ready when Start returns.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another pepper daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.adapter.DetectInitialDrives(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "initial drive scan failed", "initial_scan_failed",
			logging.Error(err),
			logging.String("source", d.source.Name()),
			logging.String(logging.FieldImpact, "drives already mounted are not registered"),
			logging.String(logging.FieldErrorHint, "re-insert drives once the device manager is available"),
		)
	}
	d.controller.MarkReady()

	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(runCtx)

	d.running.Store(true)
	d.logger.Info("pepper daemon started",
		logging.String("lock", d.lockPath),
		logging.String("source", d.source.Name()),
		logging.String(logging.FieldDaemonStatus, string(d.controller.GetStatus())),
	)
	return nil
}

func (d *Daemon) run(ctx context.Context) {
	defer close(d.done)
	if err := d.adapter.Run(ctx); err != nil {
		logging.ErrorWithContext(d.logger, "device event loop stopped", "device_source_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the device manager is running"),
		)
		d.errMu.Lock()
		d.runErr = err
		d.errMu.Unlock()
	}
}

// Done is closed when the device event loop exits.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Err returns the error that ended the device event loop, if any.
func (d *Daemon) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// Stop disconnects from the device source, marks the daemon Stopping and
// terminates any usercode process. The lock stays held until Close.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	<-d.done
	if err := d.source.Close(); err != nil {
		d.logger.Warn("failed to close device source", logging.Error(err))
	}
	d.controller.Shutdown()
	d.logger.Info("pepper daemon stopped")
}

// Close stops the daemon if needed and releases the lock.
func (d *Daemon) Close() error {
	d.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
		return err
	}
	return nil
}
