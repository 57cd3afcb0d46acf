package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/internal/monitor"
	"github.com/3leaps/mesosproxy/internal/observability"
	"github.com/3leaps/mesosproxy/internal/server"
	"github.com/3leaps/mesosproxy/internal/server/handlers"
	"github.com/3leaps/mesosproxy/pkg/mesos"
	"github.com/3leaps/mesosproxy/pkg/metrics"
	"github.com/3leaps/mesosproxy/pkg/sessionstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health, sessions and metrics, and reconcile kernel sessions",
	Long: `Start the HTTP server and the session monitor.

Endpoints:
  GET /health/live          process liveness
  GET /health/ready         Mesos master GET_HEALTH and session store checks
  GET /version              build info
  GET /metrics              Prometheus metrics (when metrics.enabled)
  GET /v1/sessions          persisted kernel sessions
  GET /v1/sessions/{id}     one kernel session

The monitor polls every RUNNING session's framework and marks completed ones
TERMINATED.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost      string
	servePort      int
	serveInterval  time.Duration
	serveRetention time.Duration
	serveNoMonitor bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
	serveCmd.Flags().DurationVar(&serveInterval, "monitor-interval", monitor.DefaultInterval, "Session monitor sweep interval")
	serveCmd.Flags().DurationVar(&serveRetention, "retention", 0, "Delete terminated sessions older than this (0 keeps them)")
	serveCmd.Flags().BoolVar(&serveNoMonitor, "no-monitor", false, "Disable the session monitor")
}

// masterHealthChecker reports the master unhealthy when GET_HEALTH fails or
// says so.
type masterHealthChecker struct {
	master *mesos.Master
}

func (c masterHealthChecker) CheckHealth(ctx context.Context) error {
	healthy, err := c.master.Health(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("master reports unhealthy")
	}
	return nil
}

// storeHealthChecker reports the session store unhealthy when it cannot list.
type storeHealthChecker struct {
	store sessionstore.Store
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	_, err := c.store.List(ctx)
	return err
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := currentConfig()
	logger := observability.CLILogger

	var opts []depsOption
	var serverOpts []server.Option
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
		opts = append(opts, withRequestObserver(collector), withProxyObserver(collector))
		serverOpts = append(serverOpts, server.WithMetricsRegistry(collector.Registry()))
	}

	deps, err := newRuntimeDeps(ctx, cfg, "", opts...)
	if err != nil {
		return err
	}

	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("mesos_master", masterHealthChecker{master: deps.master})
	health.RegisterChecker("session_store", storeHealthChecker{store: deps.store})

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}

	serverOpts = append(serverOpts,
		server.WithHealthManager(health),
		server.WithSessionStore(deps.store),
		server.WithLogger(logger),
		server.WithVersion(server.VersionInfo(versionInfo)),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout))
	srv := server.New(host, port, serverOpts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monitorDone := make(chan struct{})
	if serveNoMonitor {
		close(monitorDone)
	} else {
		monOpts := []monitor.Option{
			monitor.WithInterval(serveInterval),
			monitor.WithRetention(serveRetention),
			monitor.WithLogger(logger.Named("monitor")),
		}
		if collector != nil {
			monOpts = append(monOpts, monitor.WithSweepObserver(func(res monitor.Result, err error) {
				collector.ObserveSweep(res.Running, err)
			}))
		}
		mon := monitor.New(deps.store, deps.proxyFor, monOpts...)
		go func() {
			defer close(monitorDone)
			_ = mon.Run(ctx)
		}()
	}

	logger.Info("Starting server",
		zap.String("addr", srv.Addr()),
		zap.String("endpoint", deps.endpoint),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	err = srv.ListenAndServe(ctx)
	cancel()
	<-monitorDone
	if err != nil {
		return exitError(exitServiceUnavailable, "Server failed", fmt.Errorf("%s: %w", srv.Addr(), err))
	}
	return nil
}
