package health

import (
	"context"
	"time"
)

// DefaultTimeout bounds each individual check.
const DefaultTimeout = 10 * time.Second

// NewHealthChecker creates a health checker. timeout bounds each check;
// zero selects DefaultTimeout.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HealthChecker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
	}
}

// RegisterCheck registers a check. Re-registering a name replaces it in place.
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if _, exists := hc.checks[name]; !exists {
		hc.names = append(hc.names, name)
	}
	hc.checks[name] = check
}

// Check performs all checks in registration order
func (hc *HealthChecker) Check(ctx context.Context) Response {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(hc.checks)),
		Order:     append([]string(nil), hc.names...),
	}

	for _, name := range hc.names {
		checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
		start := time.Now()
		check := hc.checks[name](checkCtx)
		cancel()

		check.Name = name
		check.Duration = time.Since(start)
		check.LastChecked = start
		response.Checks[name] = check

		// Worst status wins
		if check.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if check.Status == StatusDegraded && response.Status != StatusUnhealthy {
			response.Status = StatusDegraded
		}
	}

	return response
}

// Failed returns the names of unhealthy checks in registration order.
func (r Response) Failed() []string {
	var failed []string
	for _, name := range r.Order {
		if r.Checks[name].Status == StatusUnhealthy {
			failed = append(failed, name)
		}
	}
	return failed
}
