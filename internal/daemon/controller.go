package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pepper/internal/drives"
	"pepper/internal/logging"
	"pepper/internal/metrics"
	"pepper/internal/usercode"
)

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Types   *drives.Table
	Logger  *slog.Logger
	Metrics metrics.Recorder
	Version string

	// Supervisor settings applied to every usercode execution.
	LogFileName string
	GracePeriod time.Duration
	Sink        usercode.LineSink
}

// Controller owns the daemon status, the drive registry and the usercode
// supervisor. All methods are safe for concurrent use.
type Controller struct {
	types       *drives.Table
	logger      *slog.Logger
	metrics     metrics.Recorder
	version     string
	logFileName string
	grace       time.Duration
	sink        usercode.LineSink

	broadcaster *statusBroadcaster

	mu     sync.Mutex
	status Status
	drives map[string]drives.Drive
	// owner is the drive reserved for usercode. It is set at registration,
	// before any process exists, so a second usercode drive is downgraded
	// atomically. It outlives the drive's registry entry until the
	// supervisor is detached.
	owner drives.Drive
	sup   *usercode.Supervisor
	// detaching is set while the owner's supervisor is being stopped.
	detaching bool
}

// NewController constructs a controller in the Starting state.
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Types == nil {
		return nil, errors.New("drive type table is required")
	}
	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	c := &Controller{
		types:       opts.Types,
		logger:      logging.NewComponentLogger(opts.Logger, "controller"),
		metrics:     recorder,
		version:     version,
		logFileName: opts.LogFileName,
		grace:       opts.GracePeriod,
		sink:        opts.Sink,
		broadcaster: newStatusBroadcaster(),
		status:      StatusStarting,
		drives:      make(map[string]drives.Drive),
	}
	recorder.SetDaemonStatus(string(StatusStarting))
	recorder.SetRegisteredDrives(0)
	return c, nil
}

// Version returns the daemon version string.
func (c *Controller) Version() string { return c.version }

// Types returns the drive type table.
func (c *Controller) Types() *drives.Table { return c.types }

// Logger implements drives.Host.
func (c *Controller) Logger() *slog.Logger { return c.logger }

// GetStatus returns the current daemon status.
func (c *Controller) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ListDrives returns the identities of all registered drives in sorted order.
func (c *Controller) ListDrives() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.drives))
	for id := range c.drives {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetDrive returns a registered drive.
func (c *Controller) GetDrive(id string) (drives.Drive, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drives[id]
	if !ok {
		return drives.Drive{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// TypeIndex returns the position of d's type in the table, or -1.
func (c *Controller) TypeIndex(d drives.Drive) int {
	return c.types.Index(d.TypeName())
}

// RegisterDrive adds d to the registry and returns the drive as stored. A
// usercode drive arriving while another drive owns usercode is stored with
// the catch-all type instead.
func (c *Controller) RegisterDrive(d drives.Drive) (drives.Drive, error) {
	if d.ID == "" {
		return drives.Drive{}, errors.New("drive identity is empty")
	}
	if d.Type == nil {
		return drives.Drive{}, fmt.Errorf("drive %s: %w", d.ID, drives.ErrClassification)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.drives[d.ID]; exists {
		return drives.Drive{}, fmt.Errorf("%w: %s", ErrDuplicateIdentity, d.ID)
	}
	if d.Type.StartsUsercode {
		if c.owner.ID != "" {
			attrs := logging.DecisionAttrs("usercode_attach", "denied", "usercode already active on "+c.owner.ID)
			attrs = append(attrs,
				logging.String(logging.FieldDriveType, c.types.CatchAll().Name),
				logging.String(logging.FieldErrorHint, "remove the other usercode drive first"),
				logging.String(logging.FieldImpact, "code on this drive will not run"),
			)
			logging.WarnWithContext(logging.ForDrive(c.logger, d.ID, d.MountPath), "second usercode drive downgraded", "usercode_drive_downgraded", attrs...)
			d.Type = c.types.CatchAll()
		} else {
			c.owner = d
		}
	}
	c.drives[d.ID] = d
	c.metrics.SetRegisteredDrives(len(c.drives))
	c.logger.Info("drive registered",
		logging.String(logging.FieldDriveID, d.ID),
		logging.String(logging.FieldMountPath, d.MountPath),
		logging.String(logging.FieldDriveType, d.TypeName()),
		logging.String(logging.FieldEventType, "drive_registered"),
	)
	return d, nil
}

// UnregisterDrive removes a drive and returns it. Unknown identities are
// ignored.
func (c *Controller) UnregisterDrive(id string) (drives.Drive, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drives[id]
	if !ok {
		return drives.Drive{}, false
	}
	delete(c.drives, id)
	c.metrics.SetRegisteredDrives(len(c.drives))
	c.logger.Info("drive unregistered",
		logging.String(logging.FieldDriveID, d.ID),
		logging.String(logging.FieldMountPath, d.MountPath),
		logging.String(logging.FieldDriveType, d.TypeName()),
		logging.String(logging.FieldEventType, "drive_unregistered"),
	)
	return d, true
}

// AttachUsercode implements drives.Host. It creates the supervisor for d and
// starts the first execution.
func (c *Controller) AttachUsercode(d drives.Drive, driver usercode.Driver) error {
	c.mu.Lock()
	if c.owner.ID != d.ID || c.sup != nil || c.status == StatusStopping {
		c.mu.Unlock()
		return fmt.Errorf("%w: drive %s", ErrAlreadyRunning, d.ID)
	}
	var sup *usercode.Supervisor
	sup = usercode.NewSupervisor(usercode.Options{
		Driver:      driver,
		WorkDir:     d.MountPath,
		LogFileName: c.logFileName,
		GracePeriod: c.grace,
		Sink:        c.sink,
		Logger:      logging.ForDrive(c.logger, d.ID, d.MountPath),
		OnStatus: func(st usercode.Status) {
			c.codeStatusChanged(sup, st)
		},
	})
	c.sup = sup
	c.setStatusLocked(mustCodeStatus(sup.Status()))
	c.mu.Unlock()

	attrs := logging.DecisionAttrs("usercode_attach", driver.Name, "no usercode active")
	attrs = append(attrs, logging.String(logging.FieldDriveID, d.ID), logging.String("driver", driver.Name))
	c.logger.Info("usercode attached", logging.Args(attrs...)...)
	if err := sup.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	return nil
}

// ReleaseUsercode implements drives.Host. It drops d's usercode reservation
// when no supervisor was ever attached, so another drive can take over.
func (c *Controller) ReleaseUsercode(d drives.Drive) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner.ID != d.ID || c.sup != nil {
		return
	}
	c.owner = drives.Drive{}
	c.logger.Info("usercode reservation released",
		logging.String(logging.FieldDriveID, d.ID),
		logging.String(logging.FieldEventType, "usercode_released"),
	)
}

// DetachUsercode implements drives.Host. It stops and clears the supervisor
// when d owns it. The supervisor stays attached while it stops, so status
// and usercode queries move to Ready together.
func (c *Controller) DetachUsercode(d drives.Drive) {
	c.mu.Lock()
	if c.owner.ID != d.ID {
		c.mu.Unlock()
		return
	}
	sup := c.sup
	if sup == nil {
		c.owner = drives.Drive{}
		c.mu.Unlock()
		return
	}
	c.detaching = true
	c.mu.Unlock()

	sup.Stop()

	c.mu.Lock()
	if c.sup == sup {
		c.sup = nil
		c.owner = drives.Drive{}
		c.detaching = false
		if c.status != StatusStopping {
			c.setStatusLocked(StatusReady)
		}
	}
	c.mu.Unlock()
	c.logger.Info("usercode detached",
		logging.String(logging.FieldDriveID, d.ID),
		logging.String(logging.FieldEventType, "usercode_detached"),
	)
}

// StartUsercode starts a new execution on the registered usercode drive.
func (c *Controller) StartUsercode() error {
	c.mu.Lock()
	sup := c.sup
	stopping := c.status == StatusStopping
	detaching := c.detaching
	c.mu.Unlock()
	switch {
	case stopping:
		return fmt.Errorf("%w: daemon stopping", ErrStartFailed)
	case sup == nil || detaching:
		return ErrNoEligibleDrive
	case !sup.Idle():
		return ErrAlreadyRunning
	}
	if err := sup.Start(); err != nil {
		if errors.Is(err, usercode.ErrAlreadyActive) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	return nil
}

// KillUsercode stops the running execution. The call returns once the
// process has exited. ErrNoActiveProcess is returned when the process ended
// on its own before it could be signaled.
func (c *Controller) KillUsercode() error {
	c.mu.Lock()
	sup := c.sup
	c.mu.Unlock()
	if sup == nil || sup.Status() != usercode.StatusRunning {
		return ErrNoActiveProcess
	}
	if !sup.Stop() {
		return ErrNoActiveProcess
	}
	return nil
}

// UsercodeDrive returns the drive owning the supervisor, if any.
func (c *Controller) UsercodeDrive() (drives.Drive, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sup == nil {
		return drives.Drive{}, false
	}
	return c.owner, true
}

// UsercodeDriverName returns the driver name of the supervisor, or "".
func (c *Controller) UsercodeDriverName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sup == nil {
		return ""
	}
	return c.sup.Name()
}

// MarkReady moves the daemon out of Starting. Later calls are no-ops.
func (c *Controller) MarkReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusStarting {
		c.setStatusLocked(StatusReady)
	}
}

// Shutdown marks the daemon Stopping and terminates any usercode process.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.setStatusLocked(StatusStopping)
	sup := c.sup
	c.sup = nil
	c.owner = drives.Drive{}
	c.detaching = false
	c.mu.Unlock()
	if sup != nil {
		c.logger.Info("stopping usercode for shutdown", logging.String("driver", sup.Name()))
		sup.Stop()
	}
}

// Subscribe returns a channel of status changes and a function releasing it.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	return c.broadcaster.subscribe()
}

// WaitStatus blocks until the status differs from last or ctx is done, and
// returns the status at that point.
func (c *Controller) WaitStatus(ctx context.Context, last Status) Status {
	updates, cancel := c.Subscribe()
	defer cancel()
	if current := c.GetStatus(); current != last {
		return current
	}
	for {
		select {
		case <-ctx.Done():
			return c.GetStatus()
		case st := <-updates:
			if st != last {
				return st
			}
		}
	}
}

// codeStatusChanged receives supervisor transitions. Reports from a
// supervisor that is no longer attached are dropped.
func (c *Controller) codeStatusChanged(sup *usercode.Supervisor, st usercode.Status) {
	mapped := mustCodeStatus(st)
	if st.Terminal() {
		c.metrics.IncUsercodeOutcome(string(st))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sup == nil || c.sup != sup || c.status == StatusStopping {
		return
	}
	c.setStatusLocked(mapped)
}

func (c *Controller) setStatusLocked(st Status) {
	if c.status == st {
		return
	}
	prev := c.status
	c.status = st
	c.metrics.SetDaemonStatus(string(st))
	c.logger.Info("daemon status changed",
		logging.String(logging.FieldDaemonStatus, string(st)),
		logging.String("previous_status", string(prev)),
		logging.String(logging.FieldEventType, "daemon_status_changed"),
	)
	c.broadcaster.publish(st)
}

// mustCodeStatus maps a supervisor status. An unmapped value is a
// programming error.
func mustCodeStatus(st usercode.Status) Status {
	mapped, err := FromCodeStatus(st)
	if err != nil {
		panic(err)
	}
	return mapped
}
