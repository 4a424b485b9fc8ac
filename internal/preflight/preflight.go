package preflight

import (
	"context"

	"pepper/internal/config"
	"pepper/internal/deps"
	"pepper/internal/usercode"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Runtime directory", cfg.Paths.RuntimeDir)}

	for _, status := range deps.CheckBinaries(deps.UsercodeRequirements(usercode.DefaultDrivers(cfg.Usercode.PythonCommand))) {
		results = append(results, fromDependency(status))
	}

	results = append(results, CheckDeviceSource(ctx, cfg))
	results = append(results, CheckJournal(cfg.Usercode.Journal))
	return results
}

func fromDependency(status deps.Status) Result {
	detail := status.Detail
	if status.Available {
		detail = status.Path
	}
	return Result{
		Name:     status.Name,
		Passed:   status.Available,
		Optional: status.Optional,
		Detail:   detail,
	}
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}
