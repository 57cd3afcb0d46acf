package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mesosproxy/internal/server/handlers"
	"github.com/3leaps/mesosproxy/pkg/processproxy"
	"github.com/3leaps/mesosproxy/pkg/sessionstore"
)

func serve(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServerUsesJSONErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	t.Run("not found", func(t *testing.T) {
		rec := serve(t, srv, http.MethodGet, "/does-not-exist")
		require.Equal(t, http.StatusNotFound, rec.Code)

		var body handlers.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, handlers.CodeNotFound, body.Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := serve(t, srv, http.MethodPost, "/version")
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

		var body handlers.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, handlers.CodeMethodNotAllowed, body.Error.Code)
	})
}

func TestServer_Port(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"default port", 8080},
		{"custom port", 9000},
		{"zero port", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New("127.0.0.1", tt.port)
			assert.Equal(t, tt.port, srv.Port())
		})
	}
	assert.Equal(t, "127.0.0.1:9000", New("127.0.0.1", 9000).Addr())
}

func TestServer_RoutesRegistered(t *testing.T) {
	srv := New("127.0.0.1", 0, WithMetricsRegistry(prometheus.NewRegistry()))

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/version", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, serve(t, srv, http.MethodGet, path).Code)
		})
	}
}

func TestServer_MetricsDisabledWithoutRegistry(t *testing.T) {
	srv := New("127.0.0.1", 0)
	assert.Equal(t, http.StatusNotFound, serve(t, srv, http.MethodGet, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, srv, http.MethodGet, "/v1/sessions").Code)
}

func TestServer_Version(t *testing.T) {
	srv := New("127.0.0.1", 0, WithVersion(VersionInfo{Version: "1.2.3", Commit: "abc"}))

	rec := serve(t, srv, http.MethodGet, "/version")
	require.Equal(t, http.StatusOK, rec.Code)

	var v VersionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	assert.Equal(t, "1.2.3", v.Version)
	assert.Equal(t, "abc", v.Commit)
}

func TestServer_ReadinessReflectsCheckers(t *testing.T) {
	hm := handlers.NewHealthManager("test")
	hm.RegisterChecker("mesos_master", handlers.CheckerFunc(func(context.Context) error {
		return assert.AnError
	}))
	srv := New("127.0.0.1", 0, WithHealthManager(hm))

	assert.Equal(t, http.StatusOK, serve(t, srv, http.MethodGet, "/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, srv, http.MethodGet, "/health/ready").Code)
}

func TestServer_Sessions(t *testing.T) {
	store := sessionstore.NewFileStore(t.TempDir())
	require.NoError(t, store.Save(context.Background(), &sessionstore.Record{
		ProcessInfo: processproxy.ProcessInfo{KernelID: "k1", ApplicationID: "fw-1"},
		State:       "RUNNING",
	}))
	srv := New("127.0.0.1", 0, WithSessionStore(store))

	t.Run("list", func(t *testing.T) {
		rec := serve(t, srv, http.MethodGet, "/v1/sessions")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Sessions []sessionstore.Record `json:"sessions"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Sessions, 1)
		assert.Equal(t, "k1", body.Sessions[0].KernelID)
	})

	t.Run("get", func(t *testing.T) {
		rec := serve(t, srv, http.MethodGet, "/v1/sessions/k1")
		require.Equal(t, http.StatusOK, rec.Code)

		var got sessionstore.Record
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "fw-1", got.ApplicationID)
	})

	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(t, srv, http.MethodGet, "/v1/sessions/nope").Code)
	})
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New("127.0.0.1", 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + ln.Addr().String() + "/health/live")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 10*time.Millisecond)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
