package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	"pepper/internal/config"
	"pepper/internal/udisks"
)

const busCheckTimeout = 3 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDeviceSource verifies the configured device backend can be reached.
func CheckDeviceSource(ctx context.Context, cfg *config.Config) Result {
	switch cfg.Devices.Source {
	case config.SourceUDisks:
		return checkUDisks(ctx, udisks.ConnectSystemBus)
	case config.SourceNetlink:
		return checkMountTable(mountinfo.GetMounts)
	default:
		return Result{Name: "Device source", Detail: fmt.Sprintf("unknown source %q", cfg.Devices.Source)}
	}
}

func checkUDisks(ctx context.Context, connect func() (udisks.Bus, error)) Result {
	const name = "UDisks2"
	bus, err := connect()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("system bus unavailable (%v)", err)}
	}
	defer bus.Close()

	checkCtx, cancel := context.WithTimeout(ctx, busCheckTimeout)
	defer cancel()
	objects, err := bus.ManagedObjects(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("service not responding (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d objects)", len(objects))}
}

func checkMountTable(list func(mountinfo.FilterFunc) ([]*mountinfo.Info, error)) Result {
	const name = "Mount table"
	mounts, err := list(nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreadable (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("readable (%d mounts)", len(mounts))}
}

// CheckJournal reports whether usercode output can reach the systemd journal.
func CheckJournal(enabled bool) Result {
	const name = "Journal"
	if !enabled {
		return Result{Name: name, Passed: true, Optional: true, Detail: "disabled (usercode output goes to the daemon log)"}
	}
	if !journal.Enabled() {
		return Result{Name: name, Optional: true, Detail: "socket unavailable (usercode output goes to the daemon log)"}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: "connected"}
}
