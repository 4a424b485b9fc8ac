// Package deps checks that external executables pepper launches are present
// on PATH.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"pepper/internal/usercode"
)

// Requirement defines an external executable pepper relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	// Path is the resolved executable when Available.
	Path   string
	Detail string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// UsercodeRequirements lists the program each usercode driver executes,
// in driver priority order.
func UsercodeRequirements(drivers usercode.Drivers) []Requirement {
	reqs := make([]Requirement, 0, len(drivers))
	for _, driver := range drivers {
		req := Requirement{
			Name:        driver.Name,
			Description: fmt.Sprintf("Runs %s from usercode drives", driver.Entrypoint),
		}
		if len(driver.Command) > 0 {
			req.Command = driver.Command[0]
		}
		reqs = append(reqs, req)
	}
	return reqs
}
