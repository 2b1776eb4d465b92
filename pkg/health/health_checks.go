package health

import (
	"context"
	"os"
	"path/filepath"
)

// Common health check functions

// PingCheck creates a check that is healthy when ping succeeds
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{}

		if err := ping(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Available"
		}

		return check
	}
}

// WritableDirCheck creates a check for a directory the run writes into.
// The directory is created if missing.
func WritableDirCheck(dir string) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{
			Details: map[string]any{"dir": dir},
		}

		if err := os.MkdirAll(dir, 0755); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}

		probe, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}
		probe.Close()
		os.Remove(filepath.Clean(probe.Name()))

		check.Status = StatusHealthy
		check.Message = "Writable"
		return check
	}
}
