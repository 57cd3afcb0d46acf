// Package server exposes health, version, session and metrics endpoints
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/internal/server/handlers"
	"github.com/3leaps/mesosproxy/internal/server/middleware"
	"github.com/3leaps/mesosproxy/pkg/sessionstore"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// VersionInfo is served on /version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Server is the mesosproxy HTTP server.
type Server struct {
	host string
	port int

	health   *handlers.HealthManager
	registry *prometheus.Registry
	sessions sessionstore.Store
	version  VersionInfo
	logger   *zap.Logger

	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithHealthManager sets the manager behind /health and /health/ready.
func WithHealthManager(m *handlers.HealthManager) Option {
	return func(s *Server) { s.health = m }
}

// WithMetricsRegistry serves reg on /metrics.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithSessionStore serves store under /v1/sessions.
func WithSessionStore(store sessionstore.Store) Option {
	return func(s *Server) { s.sessions = store }
}

// WithVersion sets the build info served on /version.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeouts sets the read, write and shutdown timeouts. Zero keeps the
// current value.
func WithTimeouts(read, write, shutdown time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// New creates a server bound to host:port once started.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:            host,
		port:            port,
		version:         VersionInfo{Version: "dev"},
		logger:          zap.NewNop(),
		readTimeout:     30 * time.Second,
		writeTimeout:    30 * time.Second,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = handlers.NewHealthManager(s.version.Version)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.RequestLogger(s.logger))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", s.health.HealthHandler)
	r.Get("/health/live", s.health.LivenessHandler)
	r.Get("/health/ready", s.health.HealthHandler)
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, s.version)
	})

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	if s.sessions != nil {
		sh := handlers.NewSessionsHandler(s.sessions)
		r.Route("/v1/sessions", func(r chi.Router) {
			r.Get("/", sh.List)
			r.Get("/{kernelID}", sh.Get)
		})
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe listens on Addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}
