// Package netlinkdev is a device source built on kernel uevents and the
// mount table. It needs no device manager on the bus: udev announces block
// devices over netlink and mountinfo reports where they were mounted.
package netlinkdev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/mountinfo"
	"github.com/pilebones/go-udev/netlink"

	"pepper/internal/devices"
	"pepper/internal/logging"
)

const (
	defaultByUUIDDir      = "/dev/disk/by-uuid"
	defaultResolveTimeout = 3 * time.Second
	defaultPollInterval   = 250 * time.Millisecond
)

// MountLister reads the mount table. mountinfo.GetMounts satisfies it.
type MountLister func(mountinfo.FilterFunc) ([]*mountinfo.Info, error)

// Options configures a Source. Zero values select the system defaults.
type Options struct {
	Logger *slog.Logger
	// MountRoots limits enumeration to mount points below these directories.
	// An empty list accepts every mount of a /dev block device.
	MountRoots []string
	// ResolveTimeout bounds how long Resolve waits for a device announced by
	// udev to appear in the mount table.
	ResolveTimeout time.Duration
	PollInterval   time.Duration
	ByUUIDDir      string
	Mounts         MountLister
}

// Source implements devices.Source over udev netlink events.
type Source struct {
	logger         *slog.Logger
	mountRoots     []string
	resolveTimeout time.Duration
	pollInterval   time.Duration
	byUUIDDir      string
	mounts         MountLister

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	// known maps device nodes to the filesystem UUID udev reported for them,
	// so a removal can name the drive it took away.
	known map[string]string
}

// New constructs a source. It does not open the netlink socket until Watch.
func New(opts Options) *Source {
	s := &Source{
		logger:         logging.NewComponentLogger(opts.Logger, "netlink-source"),
		mountRoots:     cleanRoots(opts.MountRoots),
		resolveTimeout: opts.ResolveTimeout,
		pollInterval:   opts.PollInterval,
		byUUIDDir:      opts.ByUUIDDir,
		mounts:         opts.Mounts,
		known:          make(map[string]string),
	}
	if s.resolveTimeout <= 0 {
		s.resolveTimeout = defaultResolveTimeout
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.byUUIDDir == "" {
		s.byUUIDDir = defaultByUUIDDir
	}
	if s.mounts == nil {
		s.mounts = mountinfo.GetMounts
	}
	return s
}

// Name implements devices.Source.
func (s *Source) Name() string { return "netlink" }

// Enumerate lists block devices currently mounted below the mount roots.
func (s *Source) Enumerate(context.Context) ([]devices.Volume, error) {
	infos, err := s.mounts(s.enumerateFilter)
	if err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}
	uuids, err := s.uuidsByDevice()
	if err != nil {
		s.logger.Debug("filesystem uuid links unavailable", logging.Error(err))
	}

	byDevice := make(map[string]*devices.Volume)
	var order []string
	for _, info := range infos {
		vol, ok := byDevice[info.Source]
		if !ok {
			vol = &devices.Volume{ID: uuids[canonicalDevice(info.Source)], Object: info.Source}
			byDevice[info.Source] = vol
			order = append(order, info.Source)
		}
		vol.MountPoints = append(vol.MountPoints, info.Mountpoint)
	}

	out := make([]devices.Volume, 0, len(order))
	for _, device := range order {
		vol := byDevice[device]
		s.remember(vol.Object, vol.ID)
		out = append(out, *vol)
	}
	return out, nil
}

// Resolve waits for object (a device node) to show up in the mount table
// and returns its mount points and filesystem UUID.
func (s *Source) Resolve(ctx context.Context, object string) (devices.Volume, error) {
	ctx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		vol, err := s.lookup(object)
		if err == nil {
			return vol, nil
		}
		if !errors.Is(err, devices.ErrNoMountPoint) {
			return devices.Volume{}, err
		}
		select {
		case <-ctx.Done():
			return devices.Volume{}, fmt.Errorf("%s: %w", object, devices.ErrNoMountPoint)
		case <-ticker.C:
		}
	}
}

func (s *Source) lookup(object string) (devices.Volume, error) {
	device := canonicalDevice(object)
	infos, err := s.mounts(func(info *mountinfo.Info) (skip, stop bool) {
		return canonicalDevice(info.Source) != device, false
	})
	if err != nil {
		return devices.Volume{}, fmt.Errorf("read mount table: %w", err)
	}
	if len(infos) == 0 {
		return devices.Volume{}, devices.ErrNoMountPoint
	}
	vol := devices.Volume{Object: object}
	for _, info := range infos {
		vol.MountPoints = append(vol.MountPoints, info.Mountpoint)
	}
	vol.ID = s.uuidFor(object)
	return vol, nil
}

// Watch connects to the udev netlink group and translates block device
// uevents into jobs until ctx is cancelled or Close is called.
func (s *Source) Watch(ctx context.Context, jobs chan<- devices.Job) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("netlink source already watching")
	}
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("connect netlink socket: %w", err)
	}
	s.conn = conn
	s.quit = make(chan struct{})
	s.running = true
	quit := s.quit
	s.mu.Unlock()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	s.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
	)

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return nil
		case <-quit:
			close(monitorQuit)
			return nil
		case uevent := <-queue:
			job, ok := s.jobFromEvent(uevent)
			if !ok {
				continue
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				close(monitorQuit)
				return nil
			}
		case err := <-errs:
			s.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "drive detection may be affected"),
			)
		}
	}
}

// Close stops an active Watch and releases the netlink socket.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	if s.quit != nil {
		close(s.quit)
		s.quit = nil
	}
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	s.running = false

	s.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
	return err
}

// buildMatcher accepts filesystem-bearing block devices being added or
// changed, and any block device removal.
func buildMatcher() netlink.Matcher {
	addOrChange := "change|add"
	remove := "remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &addOrChange,
		Env: map[string]string{
			"SUBSYSTEM":  "block",
			"ID_FS_UUID": ".+",
		},
	})
	rules.AddRule(netlink.RuleDefinition{
		Action: &remove,
		Env: map[string]string{
			"SUBSYSTEM": "block",
		},
	})
	return rules
}

func (s *Source) jobFromEvent(uevent netlink.UEvent) (devices.Job, bool) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		s.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return devices.Job{}, false
	}

	switch uevent.Action {
	case netlink.ADD, netlink.CHANGE:
		uuid := uevent.Env["ID_FS_UUID"]
		if uevent.Action == netlink.CHANGE && s.knows(devname, uuid) {
			// Already announced with the same filesystem.
			s.logger.Debug("ignoring change for known device", logging.String("device", devname))
			return devices.Job{}, false
		}
		s.remember(devname, uuid)
		s.logger.Debug("block device announced",
			logging.String("device", devname),
			logging.String("action", string(uevent.Action)),
		)
		return devices.Job{
			Operation: devices.OperationMount,
			Path:      uevent.KObj,
			Objects:   []string{devname},
		}, true
	case netlink.REMOVE:
		driveID := uevent.Env["ID_FS_UUID"]
		s.mu.Lock()
		if driveID == "" {
			driveID = s.known[devname]
		}
		delete(s.known, devname)
		s.mu.Unlock()
		return devices.Job{
			Operation: devices.OperationCleanup,
			Path:      uevent.KObj,
			Objects:   []string{devname},
			DriveID:   driveID,
		}, true
	default:
		return devices.Job{}, false
	}
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			return "/dev/" + devname
		}
		return devname
	}

	// Try to construct from DEVPATH (e.g., /devices/pci.../block/sdb/sdb1)
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}

	parts := strings.Split(devpath, "/")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}

func (s *Source) enumerateFilter(info *mountinfo.Info) (skip, stop bool) {
	if !strings.HasPrefix(info.Source, "/dev/") {
		return true, false
	}
	if len(s.mountRoots) == 0 {
		return false, false
	}
	for _, root := range s.mountRoots {
		if info.Mountpoint == root || strings.HasPrefix(info.Mountpoint, root+"/") {
			return false, false
		}
	}
	return true, false
}

func (s *Source) remember(device, uuid string) {
	if device == "" || uuid == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[device] = uuid
}

func (s *Source) knows(device, uuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	known, ok := s.known[device]
	return ok && known == uuid
}

func (s *Source) uuidFor(device string) string {
	s.mu.Lock()
	uuid := s.known[device]
	s.mu.Unlock()
	if uuid != "" {
		return uuid
	}
	uuids, err := s.uuidsByDevice()
	if err != nil {
		return ""
	}
	uuid = uuids[canonicalDevice(device)]
	s.remember(device, uuid)
	return uuid
}

// uuidsByDevice reads the by-uuid symlink directory into a map from
// resolved device node to UUID.
func (s *Source) uuidsByDevice() (map[string]string, error) {
	entries, err := os.ReadDir(s.byUUIDDir)
	if err != nil {
		return map[string]string{}, err
	}
	out := make(map[string]string, len(entries))
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		target, err := filepath.EvalSymlinks(filepath.Join(s.byUUIDDir, name))
		if err != nil {
			continue
		}
		if _, exists := out[target]; !exists {
			out[target] = name
		}
	}
	return out, nil
}

func canonicalDevice(device string) string {
	if resolved, err := filepath.EvalSymlinks(device); err == nil {
		return resolved
	}
	return filepath.Clean(device)
}

func cleanRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		out = append(out, strings.TrimRight(filepath.Clean(root), "/"))
	}
	return out
}
