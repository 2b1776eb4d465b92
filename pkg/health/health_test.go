package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestNewHealthChecker(t *testing.T) {
	hc := NewHealthChecker(0)

	if hc == nil {
		t.Fatal("NewHealthChecker returned nil")
	}
	if hc.checks == nil {
		t.Error("checks map not initialized")
	}
	if hc.timeout != DefaultTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultTimeout, hc.timeout)
	}
}

func TestRegisterCheck(t *testing.T) {
	hc := NewHealthChecker(time.Second)

	called := false
	hc.RegisterCheck("opensearch", func(ctx context.Context) Check {
		called = true
		return Check{Status: StatusHealthy}
	})

	resp := hc.Check(context.Background())
	if !called {
		t.Error("registered check was not called")
	}
	check, exists := resp.Checks["opensearch"]
	if !exists {
		t.Fatal("check result not in response")
	}
	if check.Name != "opensearch" {
		t.Errorf("expected name 'opensearch', got %s", check.Name)
	}
}

func TestCheckOrder(t *testing.T) {
	hc := NewHealthChecker(time.Second)
	var ran []string
	for _, name := range []string{"opensearch", "tip", "store"} {
		n := name
		hc.RegisterCheck(n, func(ctx context.Context) Check {
			ran = append(ran, n)
			return Check{Status: StatusHealthy}
		})
	}
	// Re-registering keeps the original position
	hc.RegisterCheck("opensearch", func(ctx context.Context) Check {
		ran = append(ran, "opensearch")
		return Check{Status: StatusUnhealthy}
	})

	resp := hc.Check(context.Background())
	want := []string{"opensearch", "tip", "store"}
	if !reflect.DeepEqual(ran, want) {
		t.Errorf("expected run order %v, got %v", want, ran)
	}
	if !reflect.DeepEqual(resp.Order, want) {
		t.Errorf("expected response order %v, got %v", want, resp.Order)
	}
	if failed := resp.Failed(); !reflect.DeepEqual(failed, []string{"opensearch"}) {
		t.Errorf("expected failed [opensearch], got %v", failed)
	}
}

func TestCheckStatusAggregation(t *testing.T) {
	tests := []struct {
		name           string
		checkStatuses  []Status
		expectedStatus Status
	}{
		{
			name:           "all healthy",
			checkStatuses:  []Status{StatusHealthy, StatusHealthy, StatusHealthy},
			expectedStatus: StatusHealthy,
		},
		{
			name:           "one degraded",
			checkStatuses:  []Status{StatusHealthy, StatusDegraded, StatusHealthy},
			expectedStatus: StatusDegraded,
		},
		{
			name:           "one unhealthy",
			checkStatuses:  []Status{StatusHealthy, StatusUnhealthy, StatusHealthy},
			expectedStatus: StatusUnhealthy,
		},
		{
			name:           "degraded and unhealthy",
			checkStatuses:  []Status{StatusDegraded, StatusUnhealthy, StatusHealthy},
			expectedStatus: StatusUnhealthy,
		},
		{
			name:           "no checks",
			checkStatuses:  []Status{},
			expectedStatus: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker(time.Second)

			for i, status := range tt.checkStatuses {
				s := status // capture
				hc.RegisterCheck(string(rune('a'+i)), func(ctx context.Context) Check {
					return Check{Status: s}
				})
			}

			resp := hc.Check(context.Background())
			if resp.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, resp.Status)
			}
		})
	}
}

func TestCheckTimeout(t *testing.T) {
	hc := NewHealthChecker(20 * time.Millisecond)
	hc.RegisterCheck("tip", PingCheck(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	resp := hc.Check(context.Background())
	check := resp.Checks["tip"]
	if check.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", check.Status)
	}
	if check.Message != context.DeadlineExceeded.Error() {
		t.Errorf("expected deadline message, got %q", check.Message)
	}
	if check.Duration < 20*time.Millisecond {
		t.Errorf("duration %v shorter than timeout", check.Duration)
	}
}

func TestPingCheck(t *testing.T) {
	tests := []struct {
		name           string
		pingErr        error
		expectedStatus Status
		expectedMsg    string
	}{
		{
			name:           "available",
			pingErr:        nil,
			expectedStatus: StatusHealthy,
			expectedMsg:    "Available",
		},
		{
			name:           "connection error",
			pingErr:        errors.New("connection refused"),
			expectedStatus: StatusUnhealthy,
			expectedMsg:    "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkFunc := PingCheck(func(ctx context.Context) error {
				return tt.pingErr
			})

			check := checkFunc(context.Background())

			if check.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, check.Status)
			}
			if check.Message != tt.expectedMsg {
				t.Errorf("expected message %q, got %q", tt.expectedMsg, check.Message)
			}
		})
	}
}

func TestWritableDirCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")

	check := WritableDirCheck(dir)(context.Background())
	if check.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s: %s", check.Status, check.Message)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory not created: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	check = WritableDirCheck(file)(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy for a file path, got %s", check.Status)
	}
}

func TestConcurrentCheckRegistration(t *testing.T) {
	hc := NewHealthChecker(time.Second)

	// Register checks concurrently
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			hc.RegisterCheck(string(rune('a'+id)), func(ctx context.Context) Check {
				return Check{Status: StatusHealthy}
			})
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	resp := hc.Check(context.Background())
	if len(resp.Checks) != 10 {
		t.Errorf("expected 10 checks, got %d", len(resp.Checks))
	}
	if len(resp.Order) != 10 {
		t.Errorf("expected 10 ordered names, got %d", len(resp.Order))
	}
}
