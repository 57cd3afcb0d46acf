// Package monitor reconciles persisted kernel sessions with the scheduler.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/pkg/processproxy"
	"github.com/3leaps/mesosproxy/pkg/sessionstore"
)

// DefaultInterval is the time between sweeps.
const DefaultInterval = 30 * time.Second

// ProxyFactory builds a proxy able to restore rec. It must query the master
// the record was launched against.
type ProxyFactory func(rec *sessionstore.Record) (*processproxy.MesosProxy, error)

// SweepObserver is told the outcome of every sweep.
type SweepObserver func(res Result, err error)

// Result summarizes one sweep.
type Result struct {
	Checked    int `json:"checked"`
	Running    int `json:"running"`
	Terminated int `json:"terminated"`
	Pruned     int `json:"pruned"`
	Errors     int `json:"errors"`
}

// Monitor polls every live session record and marks finished applications
// TERMINATED. Terminated records older than the retention are deleted.
type Monitor struct {
	store     sessionstore.Store
	newProxy  ProxyFactory
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
	observe   SweepObserver
	now       func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the sweep interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRetention deletes terminated records older than d. Zero keeps them.
func WithRetention(d time.Duration) Option {
	return func(m *Monitor) { m.retention = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSweepObserver registers fn to receive every sweep result.
func WithSweepObserver(fn SweepObserver) Option {
	return func(m *Monitor) { m.observe = fn }
}

// New creates a Monitor.
func New(store sessionstore.Store, newProxy ProxyFactory, opts ...Option) *Monitor {
	m := &Monitor{
		store:    store,
		newProxy: newProxy,
		interval: DefaultInterval,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run sweeps immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		res, err := m.Sweep(ctx)
		if m.observe != nil {
			m.observe(res, err)
		}
		if err != nil {
			m.logger.Warn("Session sweep failed", zap.Error(err))
		} else {
			m.logger.Debug("Session sweep complete",
				zap.Int("checked", res.Checked),
				zap.Int("running", res.Running),
				zap.Int("terminated", res.Terminated),
				zap.Int("pruned", res.Pruned),
				zap.Int("errors", res.Errors))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep reconciles every record once. Per-record failures are counted, not
// returned; only a failure to list records is an error.
func (m *Monitor) Sweep(ctx context.Context) (Result, error) {
	var res Result
	records, err := m.store.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list sessions: %w", err)
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec := &records[i]
		if rec.State == processproxy.StateTerminated.String() || rec.State == processproxy.StateFailed.String() {
			if m.expired(rec) {
				if err := m.store.Delete(ctx, rec.KernelID); err != nil {
					m.logger.Warn("Prune session failed", zap.String("kernel_id", rec.KernelID), zap.Error(err))
					res.Errors++
					continue
				}
				res.Pruned++
			}
			continue
		}
		if rec.ApplicationID == "" {
			continue
		}

		res.Checked++
		terminated, err := m.check(ctx, rec)
		if err != nil {
			m.logger.Warn("Session check failed", zap.String("kernel_id", rec.KernelID), zap.Error(err))
			res.Errors++
			continue
		}
		if terminated {
			res.Terminated++
		} else {
			res.Running++
		}
	}
	return res, nil
}

func (m *Monitor) check(ctx context.Context, rec *sessionstore.Record) (bool, error) {
	proxy, err := m.newProxy(rec)
	if err != nil {
		return false, err
	}
	if err := proxy.Deserialize(rec.ProcessInfo); err != nil {
		return false, err
	}
	alive, err := proxy.Poll(ctx)
	if err != nil {
		return false, err
	}
	if alive {
		return false, nil
	}

	rec.State = proxy.State().String()
	rec.SavedAt = m.now().UTC()
	if err := m.store.Save(ctx, rec); err != nil {
		return false, err
	}
	m.logger.Info("Kernel application completed",
		zap.String("kernel_id", rec.KernelID),
		zap.String("application_id", rec.ApplicationID))
	return true, nil
}

func (m *Monitor) expired(rec *sessionstore.Record) bool {
	return m.retention > 0 && m.now().Sub(rec.SavedAt) > m.retention
}
