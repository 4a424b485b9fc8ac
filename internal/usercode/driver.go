package usercode

import (
	"os"
	"path/filepath"
)

// PythonDriverName identifies the built-in Python driver.
const PythonDriverName = "PythonUnixProcessDriver"

// Driver describes how to execute one flavour of usercode. Entrypoint is the
// file whose presence on a drive selects the driver; Command runs with the
// drive's mount path as working directory.
type Driver struct {
	Name       string
	Entrypoint string
	Command    []string
}

// Drivers is an ordered driver table. Earlier entries win when a drive holds
// more than one entrypoint.
type Drivers []Driver

// DefaultDrivers returns the built-in driver table.
func DefaultDrivers(pythonCommand []string) Drivers {
	command := pythonCommand
	if len(command) == 0 {
		command = []string{"python3", "-u", "main.py"}
	}
	return Drivers{
		{Name: PythonDriverName, Entrypoint: "main.py", Command: append([]string(nil), command...)},
	}
}

// Entrypoints lists the entrypoint filenames in priority order.
func (d Drivers) Entrypoints() []string {
	names := make([]string, 0, len(d))
	for _, driver := range d {
		names = append(names, driver.Entrypoint)
	}
	return names
}

// ForPath returns the first driver whose entrypoint exists under dir.
func (d Drivers) ForPath(dir string) (Driver, bool) {
	for _, driver := range d {
		if driver.Entrypoint == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, driver.Entrypoint)); err == nil {
			return driver, true
		}
	}
	return Driver{}, false
}
