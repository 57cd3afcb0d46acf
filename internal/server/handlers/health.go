// Package handlers implements the HTTP handlers served by mesosproxy.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds each health check.
const DefaultCheckTimeout = 5 * time.Second

// Check statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
	StatusTimeout   = "timeout"
)

// HealthChecker reports the health of one dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

// CheckHealth calls f.
func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body of a successful health reply.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered readiness checks.
type HealthManager struct {
	version string
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager reporting version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		timeout:  DefaultCheckTimeout,
		checkers: make(map[string]HealthChecker),
	}
}

// SetCheckTimeout overrides the per-check timeout.
func (m *HealthManager) SetCheckTimeout(d time.Duration) {
	if d > 0 {
		m.timeout = d
	}
}

// RegisterChecker adds or replaces a named check.
func (m *HealthManager) RegisterChecker(name string, c HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

// Names returns the registered check names in order.
func (m *HealthManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LivenessHandler reports that the process is serving.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
	})
}

// HealthHandler runs every check. Any unhealthy or timed out check turns the
// reply into a 503 error.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)
	if status == StatusHealthy {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:    status,
			Version:   m.version,
			Timestamp: time.Now().UTC(),
			Checks:    checks,
		})
		return
	}

	details := make(map[string]any, len(checks))
	for name, s := range checks {
		details[name] = s
	}
	RespondWithError(w, http.StatusServiceUnavailable, ErrorBody{
		Code:    CodeServiceUnavailable,
		Message: "service is " + status,
		Details: map[string]any{"status": status, "checks": details},
	})
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]string, len(checkers))
	)
	for name, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			status := StatusHealthy
			if err := c.CheckHealth(cctx); err != nil {
				status = StatusUnhealthy
				if errors.Is(err, context.DeadlineExceeded) {
					status = StatusTimeout
				}
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	overall := StatusHealthy
	for _, s := range checks {
		switch s {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusTimeout:
			overall = StatusDegraded
		}
	}
	return overall
}
