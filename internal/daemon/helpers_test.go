package daemon_test

import (
	"testing"
	"time"

	"pepper/internal/daemon"
	"pepper/internal/drives"
	"pepper/internal/usercode"
)

const shellDriverName = "ShellDriver"

func shellDrivers(script string) usercode.Drivers {
	return usercode.Drivers{{
		Name:       shellDriverName,
		Entrypoint: "main.py",
		Command:    []string{"/bin/sh", "-c", script},
	}}
}

func newController(t *testing.T, drivers usercode.Drivers) *daemon.Controller {
	t.Helper()
	ctrl, err := daemon.NewController(daemon.ControllerOptions{
		Types:       drives.DefaultTable(drivers),
		Version:     "test",
		GracePeriod: time.Second,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(ctrl.Shutdown)
	return ctrl
}

// mountDrive registers a drive for dir and runs its mount hook, the way the
// device adapter does.
func mountDrive(t *testing.T, ctrl *daemon.Controller, id, dir string) drives.Drive {
	t.Helper()
	typ, err := ctrl.Types().Classify(dir)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	d, err := ctrl.RegisterDrive(drives.Drive{ID: id, MountPath: dir, Type: typ})
	if err != nil {
		t.Fatalf("RegisterDrive: %v", err)
	}
	d.Type.Mount(ctrl, d)
	return d
}

func unmountDrive(t *testing.T, ctrl *daemon.Controller, id string) {
	t.Helper()
	d, ok := ctrl.UnregisterDrive(id)
	if !ok {
		t.Fatalf("drive %s was not registered", id)
	}
	d.Type.Unmount(ctrl, d)
}

func waitForStatus(t *testing.T, ctrl *daemon.Controller, want daemon.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.GetStatus() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q, have %q", want, ctrl.GetStatus())
}
