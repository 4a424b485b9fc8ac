package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pepper/internal/devices"
	"pepper/internal/drives"
	"pepper/internal/logging"
	"pepper/internal/metrics"
)

const jobQueueSize = 16

// Adapter translates device source enumeration and jobs into registry
// updates and drive type hooks. Jobs are handled one at a time.
type Adapter struct {
	controller *Controller
	source     devices.Source
	settle     time.Duration
	logger     *slog.Logger
	metrics    metrics.Recorder
}

// NewAdapter constructs an adapter feeding controller from source. settle is
// the delay applied before acting on each job.
func NewAdapter(controller *Controller, source devices.Source, settle time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Adapter {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Adapter{
		controller: controller,
		source:     source,
		settle:     settle,
		logger:     logging.NewComponentLogger(logger, "device-adapter"),
		metrics:    recorder,
	}
}

// DetectInitialDrives registers every volume that is already mounted and
// runs its type's startup hook.
func (a *Adapter) DetectInitialDrives(ctx context.Context) error {
	volumes, err := a.source.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("enumerate %s volumes: %w", a.source.Name(), err)
	}
	a.logger.Info("initial drive scan",
		logging.String("source", a.source.Name()),
		logging.Int("volumes", len(volumes)),
	)
	for _, volume := range volumes {
		a.addVolume(volume, devices.Volume.MountPath, (*drives.Type).Startup, "startup")
	}
	return nil
}

// Run consumes jobs from the source until ctx is cancelled or the source
// fails.
func (a *Adapter) Run(ctx context.Context) error {
	jobs := make(chan devices.Job, jobQueueSize)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- a.source.Watch(ctx, jobs)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-jobs:
			a.HandleJob(ctx, job)
		case err := <-watchErr:
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errors.New("watch ended")
			}
			return fmt.Errorf("%s device source: %w", a.source.Name(), err)
		}
	}
}

// HandleJob processes one device job.
func (a *Adapter) HandleJob(ctx context.Context, job devices.Job) {
	switch job.Operation {
	case devices.OperationMount:
		if !a.wait(ctx) {
			return
		}
		a.handleMount(ctx, job)
	case devices.OperationCleanup:
		if !a.wait(ctx) {
			return
		}
		a.handleCleanup(job)
	default:
		a.metrics.IncDeviceJob(string(job.Operation), metrics.JobIgnored)
		a.logger.Debug("ignoring device job",
			logging.String("operation", string(job.Operation)),
			logging.String("job", job.Path),
		)
	}
}

func (a *Adapter) handleMount(ctx context.Context, job devices.Job) {
	if len(job.Objects) == 0 {
		a.metrics.IncDeviceJob(string(job.Operation), metrics.JobDropped)
		logging.WarnWithContext(a.logger, "mount job carries no device", "mount_job_without_device",
			logging.String("job", job.Path),
			logging.String(logging.FieldImpact, "drive not registered"),
			logging.String(logging.FieldErrorHint, "re-insert the drive"),
		)
		return
	}
	volume, err := a.source.Resolve(ctx, job.Objects[0])
	if err != nil {
		a.metrics.IncDeviceJob(string(job.Operation), metrics.JobDropped)
		logging.WarnWithContext(a.logger, "mounted device could not be resolved", "mount_resolve_failed",
			logging.Error(err),
			logging.String("object", job.Objects[0]),
			logging.String(logging.FieldImpact, "drive not registered"),
			logging.String(logging.FieldErrorHint, "check that the device manager mounted the filesystem"),
		)
		return
	}
	if a.addVolume(volume, devices.Volume.PrimaryMountPath, (*drives.Type).Mount, "mount") {
		a.metrics.IncDeviceJob(string(job.Operation), metrics.JobRegistered)
	} else {
		a.metrics.IncDeviceJob(string(job.Operation), metrics.JobDropped)
	}
}

// handleCleanup removes the drive a cleanup job names, then every drive
// whose mount path no longer exists.
func (a *Adapter) handleCleanup(job devices.Job) {
	removed := 0
	if job.DriveID != "" {
		if d, ok := a.controller.UnregisterDrive(job.DriveID); ok {
			d.Type.Unmount(a.controller, d)
			removed++
		}
	}
	for _, id := range a.controller.ListDrives() {
		d, err := a.controller.GetDrive(id)
		if err != nil || devices.PathExists(d.MountPath) {
			continue
		}
		if gone, ok := a.controller.UnregisterDrive(id); ok {
			gone.Type.Unmount(a.controller, gone)
			removed++
		}
	}
	result := metrics.JobRemoved
	if removed == 0 {
		result = metrics.JobIgnored
	}
	a.metrics.IncDeviceJob(string(job.Operation), result)
	a.logger.Debug("cleanup processed",
		logging.String("job", job.Path),
		logging.Int("removed", removed),
	)
}

// addVolume classifies and registers volume at the path pick selects, then
// runs hook for it.
func (a *Adapter) addVolume(volume devices.Volume, pick func(devices.Volume) (string, bool), hook func(*drives.Type, drives.Host, drives.Drive), phase string) bool {
	logger := a.logger.With(logging.String("object", volume.Object), logging.String("phase", phase))
	if volume.ID == "" {
		logger.Debug("skipping volume without filesystem uuid")
		return false
	}
	mountPath, ok := pick(volume)
	if !ok {
		logger.Debug("skipping volume without mount point", logging.String(logging.FieldDriveID, volume.ID))
		return false
	}
	logger = logging.ForDrive(logger, volume.ID, mountPath)
	typ, err := a.controller.Types().Classify(mountPath)
	if err != nil {
		logging.ErrorWithContext(logger, "drive classification failed", "drive_classification_failed", logging.Error(err))
		return false
	}
	d, err := a.controller.RegisterDrive(drives.Drive{ID: volume.ID, MountPath: mountPath, Type: typ})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			logger.Debug("drive already registered")
		} else {
			logging.WarnWithContext(logger, "drive registration failed", "drive_register_failed", logging.Error(err))
		}
		return false
	}
	attrs := logging.DecisionAttrs("drive_classification", d.TypeName(), "")
	attrs = append(attrs, logging.Int("type_index", a.controller.TypeIndex(d)))
	logger.Info("drive classified", logging.Args(attrs...)...)
	hook(d.Type, a.controller, d)
	return true
}

func (a *Adapter) wait(ctx context.Context) bool {
	if a.settle <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(a.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
