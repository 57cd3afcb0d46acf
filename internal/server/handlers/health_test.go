package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("ok", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, StatusHealthy, resp.Checks["ok"])
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("ok", stubChecker{})
	manager.RegisterChecker("mesos_master", stubChecker{err: errors.New("down")})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, CodeServiceUnavailable, resp.Error.Code)

	checks, ok := resp.Error.Details["checks"].(map[string]any)
	require.True(t, ok, "expected checks in error details")
	assert.Equal(t, StatusUnhealthy, checks["mesos_master"])
	assert.Equal(t, StatusHealthy, checks["ok"])
}

func TestHealthCheckTimeoutIsDegraded(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.SetCheckTimeout(10 * time.Millisecond)
	manager.RegisterChecker("slow", CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusDegraded, resp.Error.Details["status"])
}

func TestDetermineOverallStatus(t *testing.T) {
	manager := NewHealthManager("dev")

	assert.Equal(t, StatusHealthy, manager.determineOverallStatus(nil))
	assert.Equal(t, StatusDegraded, manager.determineOverallStatus(map[string]string{"db": StatusTimeout}))
	assert.Equal(t, StatusUnhealthy, manager.determineOverallStatus(map[string]string{
		"a": StatusTimeout,
		"b": StatusUnhealthy,
	}))
}

func TestLivenessIgnoresCheckers(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("broken", stubChecker{err: errors.New("down")})

	rec := httptest.NewRecorder()
	manager.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"broken"}, manager.Names())
}
