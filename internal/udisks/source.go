// Package udisks is a device source backed by the UDisks2 service on the
// system bus. UDisks2 does the mounting; pepper follows its jobs.
package udisks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"pepper/internal/devices"
	"pepper/internal/logging"
)

const (
	busName            = "org.freedesktop.UDisks2"
	rootPath           = dbus.ObjectPath("/org/freedesktop/UDisks2")
	blockDevicesPrefix = "/org/freedesktop/UDisks2/block_devices/"
	jobsPrefix         = "/org/freedesktop/UDisks2/jobs/"

	blockIface         = "org.freedesktop.UDisks2.Block"
	filesystemIface    = "org.freedesktop.UDisks2.Filesystem"
	jobIface           = "org.freedesktop.UDisks2.Job"
	objectManagerIface = "org.freedesktop.DBus.ObjectManager"
	interfacesAdded    = objectManagerIface + ".InterfacesAdded"
)

// Source implements devices.Source over UDisks2.
type Source struct {
	bus    Bus
	logger *slog.Logger

	mu   sync.Mutex
	quit chan struct{}
}

// New connects to the system bus.
func New(logger *slog.Logger) (*Source, error) {
	bus, err := ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	return NewWithBus(bus, logger), nil
}

// NewWithBus wraps an existing bus connection. The source owns bus and
// closes it on Close.
func NewWithBus(bus Bus, logger *slog.Logger) *Source {
	return &Source{
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "udisks-source"),
	}
}

// Name implements devices.Source.
func (s *Source) Name() string { return "udisks" }

// Enumerate lists block devices with a mounted filesystem.
func (s *Source) Enumerate(ctx context.Context) ([]devices.Volume, error) {
	objects, err := s.bus.ManagedObjects(ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(objects))
	for path := range objects {
		if strings.HasPrefix(string(path), blockDevicesPrefix) {
			paths = append(paths, string(path))
		}
	}
	sort.Strings(paths)

	var out []devices.Volume
	for _, path := range paths {
		ifaces := objects[dbus.ObjectPath(path)]
		vol, ok := volumeFromProperties(path, ifaces[blockIface], ifaces[filesystemIface])
		if !ok {
			s.logger.Debug("skipping block device without mounted filesystem", logging.String("object", path))
			continue
		}
		out = append(out, vol)
	}
	return out, nil
}

// Resolve reads the current filesystem and block properties of a block
// device object.
func (s *Source) Resolve(ctx context.Context, object string) (devices.Volume, error) {
	path := dbus.ObjectPath(object)
	if !path.IsValid() {
		return devices.Volume{}, fmt.Errorf("invalid object path %q", object)
	}
	fs, err := s.bus.Properties(ctx, path, filesystemIface)
	if err != nil {
		return devices.Volume{}, err
	}
	block, err := s.bus.Properties(ctx, path, blockIface)
	if err != nil {
		return devices.Volume{}, err
	}
	vol, ok := volumeFromProperties(object, block, fs)
	if !ok {
		return devices.Volume{}, fmt.Errorf("%s: %w", object, devices.ErrNoMountPoint)
	}
	return vol, nil
}

// Watch follows UDisks2 job objects until ctx is cancelled or Close is
// called.
func (s *Source) Watch(ctx context.Context, jobs chan<- devices.Job) error {
	signals, cancel, err := s.bus.InterfacesAdded()
	if err != nil {
		return err
	}
	defer cancel()

	s.mu.Lock()
	if s.quit != nil {
		s.mu.Unlock()
		return errors.New("udisks source already watching")
	}
	quit := make(chan struct{})
	s.quit = quit
	s.mu.Unlock()

	s.logger.Info("udisks job monitor started",
		logging.String(logging.FieldEventType, "udisks_monitor_started"),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return nil
		case sig, ok := <-signals:
			if !ok {
				return errors.New("system bus connection closed")
			}
			job, ok := jobFromSignal(sig)
			if !ok {
				continue
			}
			s.logger.Debug("udisks job observed",
				logging.String("job", job.Path),
				logging.String("operation", string(job.Operation)),
			)
			select {
			case jobs <- job:
			case <-ctx.Done():
				return nil
			case <-quit:
				return nil
			}
		}
	}
}

// Close stops an active Watch and closes the bus connection.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.quit != nil {
		close(s.quit)
		s.quit = nil
	}
	s.mu.Unlock()
	return s.bus.Close()
}

// jobFromSignal extracts a job from an InterfacesAdded signal for a job
// object. Other signals are rejected.
func jobFromSignal(sig *dbus.Signal) (devices.Job, bool) {
	if sig == nil || sig.Name != interfacesAdded || len(sig.Body) < 2 {
		return devices.Job{}, false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok || !strings.HasPrefix(string(path), jobsPrefix) {
		return devices.Job{}, false
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return devices.Job{}, false
	}
	props, ok := ifaces[jobIface]
	if !ok {
		return devices.Job{}, false
	}
	operation, ok := props["Operation"].Value().(string)
	if !ok {
		return devices.Job{}, false
	}
	job := devices.Job{Operation: devices.Operation(operation), Path: string(path)}
	if objects, ok := props["Objects"].Value().([]dbus.ObjectPath); ok {
		for _, object := range objects {
			job.Objects = append(job.Objects, string(object))
		}
	}
	return job, true
}

func volumeFromProperties(object string, block, fs map[string]dbus.Variant) (devices.Volume, bool) {
	if fs == nil || block == nil {
		return devices.Volume{}, false
	}
	mountPoints := decodeMountPoints(fs["MountPoints"])
	if len(mountPoints) == 0 {
		return devices.Volume{}, false
	}
	uuid, _ := block["IdUUID"].Value().(string)
	return devices.Volume{ID: uuid, Object: object, MountPoints: mountPoints}, true
}

// decodeMountPoints converts an aay property of NUL-terminated paths.
func decodeMountPoints(v dbus.Variant) []string {
	raw, ok := v.Value().([][]byte)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		path := strings.TrimRight(string(b), "\x00")
		if path != "" {
			out = append(out, path)
		}
	}
	return out
}
