package cmd

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/internal/config"
	"github.com/3leaps/mesosproxy/internal/observability"
	"github.com/3leaps/mesosproxy/pkg/launcher"
	"github.com/3leaps/mesosproxy/pkg/mesos"
	"github.com/3leaps/mesosproxy/pkg/processproxy"
	"github.com/3leaps/mesosproxy/pkg/sessionstore"
)

// runtimeDeps are the collaborators shared by the kernel commands.
type runtimeDeps struct {
	cfg      *config.Config
	endpoint string
	master   *mesos.Master
	store    sessionstore.Store
	executor *launcher.Executor
	resolver *launcher.LogResolver
	logger   *zap.Logger

	resourceOpts []mesos.ResourceOption
	observer     processproxy.Observer
}

type depsOption func(*runtimeDeps)

func withRequestObserver(o mesos.RequestObserver) depsOption {
	return func(d *runtimeDeps) {
		d.resourceOpts = append(d.resourceOpts, mesos.WithRequestObserver(o))
	}
}

func withProxyObserver(o processproxy.Observer) depsOption {
	return func(d *runtimeDeps) { d.observer = o }
}

// newRuntimeDeps wires the master client, session store and local launcher
// from cfg. endpoint overrides cfg.Mesos.Endpoint when non-empty.
func newRuntimeDeps(ctx context.Context, cfg *config.Config, endpoint string, opts ...depsOption) (*runtimeDeps, error) {
	d := &runtimeDeps{cfg: cfg, logger: observability.CLILogger}
	for _, opt := range opts {
		opt(d)
	}

	if strings.TrimSpace(endpoint) == "" {
		endpoint = cfg.Mesos.Endpoint
	}
	master, err := newMaster(cfg, endpoint, observability.CLILogger, d.resourceOpts...)
	if err != nil {
		return nil, exitError(exitInvalidArgument, "Invalid Mesos endpoint", err)
	}
	d.endpoint = endpoint
	d.master = master

	store, err := newSessionStore(ctx, cfg)
	if err != nil {
		return nil, exitError(exitServiceUnavailable, "Failed to open session store", err)
	}
	d.store = store

	d.executor = launcher.NewExecutor(cfg.Sessions.Dir, localIP(cfg.Proxy.LocalIP),
		launcher.WithLogger(observability.CLILogger))
	d.resolver = launcher.NewLogResolver(d.executor)
	return d, nil
}

func newMaster(cfg *config.Config, endpoint string, logger *zap.Logger, extra ...mesos.ResourceOption) (*mesos.Master, error) {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = cfg.Mesos.Endpoint
	}
	opts := append(cfg.ResourceOptions(), mesos.WithLogger(logger))
	opts = append(opts, extra...)
	res, err := mesos.NewResource(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	return mesos.NewMaster(res), nil
}

func newSessionStore(ctx context.Context, cfg *config.Config) (sessionstore.Store, error) {
	switch cfg.Sessions.Backend {
	case config.BackendS3:
		store, err := sessionstore.NewS3Store(ctx, cfg.SessionS3())
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendFile, "":
		return sessionstore.NewFileStore(cfg.Sessions.Dir), nil
	default:
		return nil, fmt.Errorf("unknown sessions backend %q", cfg.Sessions.Backend)
	}
}

// masterFor returns a master client for endpoint, reusing the configured one
// when the endpoint matches.
func (d *runtimeDeps) masterFor(endpoint string) (*mesos.Master, error) {
	if endpoint == "" || strings.TrimRight(endpoint, "/") == strings.TrimRight(d.endpoint, "/") {
		return d.master, nil
	}
	return newMaster(d.cfg, endpoint, d.logger, d.resourceOpts...)
}

// newProxy builds a proxy for kernelID using pcfg. The proxy queries the
// master at pcfg.Endpoint.
func (d *runtimeDeps) newProxy(kernelID string, pcfg processproxy.Config) (*processproxy.MesosProxy, error) {
	master, err := d.masterFor(pcfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return processproxy.NewMesosProxy(kernelID, pcfg, d.executor, d.resolver, master,
		processproxy.WithLogger(d.logger),
		processproxy.WithObserver(d.observer))
}

// proxyFor builds a proxy for rec that queries the master rec was launched
// against.
func (d *runtimeDeps) proxyFor(rec *sessionstore.Record) (*processproxy.MesosProxy, error) {
	pcfg := d.cfg.ProcessProxy()
	if rec.Endpoint != "" {
		pcfg.Endpoint = rec.Endpoint
	}
	return d.newProxy(rec.KernelID, pcfg)
}

// restoreProxy loads the persisted record for kernelID and restores a proxy
// from it.
func (d *runtimeDeps) restoreProxy(ctx context.Context, kernelID string) (*processproxy.MesosProxy, *sessionstore.Record, error) {
	rec, err := d.store.Load(ctx, kernelID)
	if err != nil {
		if sessionstore.IsNotFound(err) {
			return nil, nil, exitError(exitFileNotFound, "Unknown kernel", err)
		}
		return nil, nil, exitError(exitFileReadError, "Failed to load kernel session", err)
	}

	proxy, err := d.proxyFor(rec)
	if err != nil {
		return nil, nil, exitError(exitInvalidArgument, "Invalid proxy configuration", err)
	}
	if err := proxy.Deserialize(rec.ProcessInfo); err != nil {
		return nil, nil, exitError(exitFileReadError, "Corrupt kernel session", err)
	}
	return proxy, rec, nil
}

// saveSession persists the proxy's current record.
func (d *runtimeDeps) saveSession(ctx context.Context, proxy *processproxy.MesosProxy, endpoint string) (*sessionstore.Record, error) {
	rec := &sessionstore.Record{
		ProcessInfo: proxy.Serialize(),
		State:       proxy.State().String(),
		Endpoint:    endpoint,
	}
	if err := d.store.Save(ctx, rec); err != nil {
		return nil, exitError(exitFileWriteError, "Failed to save kernel session", err)
	}
	return rec, nil
}

// localIP returns configured if set, else the first non-loopback IPv4
// address, else 127.0.0.1.
func localIP(configured string) string {
	if ip := strings.TrimSpace(configured); ip != "" {
		return ip
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return "127.0.0.1"
}
