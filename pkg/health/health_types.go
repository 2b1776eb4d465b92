package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the availability of a dependency
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents the outcome of one availability check
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ms"`
}

// CheckFunc probes one dependency. It must honour ctx cancellation.
type CheckFunc func(ctx context.Context) Check

// HealthChecker runs the registered checks before a pipeline run
type HealthChecker struct {
	mu      sync.RWMutex
	names   []string
	checks  map[string]CheckFunc
	timeout time.Duration
}

// Response represents the overall availability report
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Order     []string         `json:"-"`
}
