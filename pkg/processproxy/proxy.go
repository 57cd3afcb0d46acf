package processproxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/pkg/mesos"
)

// MesosProxy manages the lifecycle of a kernel whose workload runs as a
// Mesos framework while a local launcher process drives the submission.
//
// Confirmation and polling run on the caller's goroutine. The mutex only
// guards fields read by status queries from other goroutines.
type MesosProxy struct {
	kernelID string
	cfg      Config

	launcher Launcher
	resolver IDResolver
	query    StateQuery
	base     Base
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	mu            sync.Mutex
	state         State
	applicationID string
	process       Process
	startTime     time.Time
	cleaned       bool
}

var _ ProcessProxy = (*MesosProxy)(nil)

// Option configures a MesosProxy.
type Option func(*MesosProxy)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *MesosProxy) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(p *MesosProxy) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithBase overrides the default LocalBase.
func WithBase(b Base) Option {
	return func(p *MesosProxy) {
		if b != nil {
			p.base = b
		}
	}
}

// WithClock overrides the time source used for the launch budget.
func WithClock(now func() time.Time) Option {
	return func(p *MesosProxy) {
		if now != nil {
			p.now = now
		}
	}
}

// NewMesosProxy creates a proxy for kernelID. Zero config fields take
// defaults.
func NewMesosProxy(kernelID string, cfg Config, launcher Launcher, resolver IDResolver, query StateQuery, opts ...Option) (*MesosProxy, error) {
	kernelID = strings.TrimSpace(kernelID)
	if kernelID == "" {
		return nil, fmt.Errorf("kernel id is required")
	}
	if launcher == nil || resolver == nil || query == nil {
		return nil, fmt.Errorf("launcher, id resolver and state query are required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &MesosProxy{
		kernelID: kernelID,
		cfg:      cfg,
		launcher: launcher,
		resolver: resolver,
		query:    query,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
		state:    StateLaunching,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.base == nil {
		p.base = NewLocalBase(kernelID)
	}
	p.logger = p.logger.With(zap.String("kernel_id", kernelID))
	return p, nil
}

// KernelID returns the kernel id.
func (p *MesosProxy) KernelID() string { return p.kernelID }

// Config returns the proxy configuration.
func (p *MesosProxy) Config() Config { return p.cfg }

// State returns the current lifecycle state.
func (p *MesosProxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ApplicationID returns the resolved application id, or "".
func (p *MesosProxy) ApplicationID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applicationID
}

// ShutdownWaitTime returns the configured shutdown wait raised to the floor.
func (p *MesosProxy) ShutdownWaitTime() time.Duration {
	return p.cfg.EffectiveShutdownWaitTime()
}

// transition moves to next if the table allows it. Refused transitions are
// logged and leave the state unchanged.
func (p *MesosProxy) transition(next State) bool {
	p.mu.Lock()
	prev := p.state
	if prev == next {
		p.mu.Unlock()
		return true
	}
	if !CanTransition(prev, next) {
		p.mu.Unlock()
		p.logger.Warn("Refusing invalid state transition",
			zap.Stringer("from", prev), zap.Stringer("to", next))
		return false
	}
	p.state = next
	p.mu.Unlock()

	p.logger.Debug("State transition", zap.Stringer("from", prev), zap.Stringer("to", next))
	p.observer.ObserveTransition(prev, next)
	return true
}

// Launch starts the local launcher and blocks until the application is
// confirmed running or startup fails.
func (p *MesosProxy) Launch(ctx context.Context, cmd Command) error {
	if len(cmd.Argv) == 0 {
		return fmt.Errorf("launch command is empty")
	}
	if cmd.KernelID == "" {
		cmd.KernelID = p.kernelID
	}

	p.mu.Lock()
	p.state = StateLaunching
	p.applicationID = ""
	p.cleaned = false
	p.startTime = p.now()
	p.mu.Unlock()

	proc, err := p.launcher.Launch(ctx, cmd)
	if err != nil {
		p.transition(StateTerminated)
		err = fmt.Errorf("launch kernel %s: %w", p.kernelID, err)
		p.observer.ObserveStartup(p.now().Sub(p.startTime), err)
		return err
	}

	p.mu.Lock()
	p.process = proc
	p.mu.Unlock()
	p.base.Attach(proc)

	p.logger.Debug("Mesos cluster kernel launched",
		zap.String("endpoint", p.cfg.Endpoint),
		zap.Int("pid", proc.Pid()),
		zap.String("ip", proc.Host()),
		zap.Strings("cmd", cmd.Argv))

	p.transition(StateAwaitingApplicationID)
	return p.ConfirmStartup(ctx)
}

// ConfirmStartup polls until the application id is resolved and the
// scheduler reports it active. A completed application, an exited launcher,
// an exhausted launch budget or a cancelled ctx all fail startup.
func (p *MesosProxy) ConfirmStartup(ctx context.Context) error {
	p.mu.Lock()
	if p.startTime.IsZero() {
		p.startTime = p.now()
	}
	p.mu.Unlock()

	err := p.confirmStartup(ctx)
	p.observer.ObserveStartup(p.now().Sub(p.startTime), err)
	if err != nil {
		p.transition(StateFailed)
		p.logger.Error("Kernel startup failed", zap.Error(err))
		return err
	}
	p.transition(StateRunning)
	p.logger.Info("Kernel started",
		zap.String("application_id", p.ApplicationID()),
		zap.Duration("elapsed", p.now().Sub(p.startTime)))
	return nil
}

func (p *MesosProxy) confirmStartup(ctx context.Context) error {
	for i := 1; ; i++ {
		elapsed := p.now().Sub(p.startTime)
		if elapsed > p.cfg.LaunchTimeout {
			return &TimeoutError{
				KernelID:      p.kernelID,
				ApplicationID: p.ApplicationID(),
				Timeout:       p.cfg.LaunchTimeout,
				Elapsed:       elapsed,
			}
		}

		appID := p.ApplicationID()
		if appID == "" {
			if err := p.detectLaunchFailure(); err != nil {
				return err
			}
			appID = p.resolveApplicationID(ctx)
		}

		if appID != "" {
			state, err := p.query.FrameworkState(ctx, appID)
			switch {
			case err != nil:
				p.logger.Warn("Framework state query failed", zap.String("application_id", appID), zap.Error(err))
			case state == mesos.FrameworkCompleted:
				return &StartupError{KernelID: p.kernelID, ApplicationID: appID, State: state.String()}
			case state == mesos.FrameworkActive:
				return nil
			}
			p.logger.Debug("Awaiting framework", zap.Int("attempt", i),
				zap.String("application_id", appID), zap.Stringer("state", state))
		}

		if err := sleepContext(ctx, p.cfg.PollInterval); err != nil {
			return fmt.Errorf("confirm startup of kernel %s: %w", p.kernelID, err)
		}
	}
}

// resolveApplicationID asks the resolver once and records a found id.
func (p *MesosProxy) resolveApplicationID(ctx context.Context) string {
	id, err := p.resolver.ResolveApplicationID(ctx, p.kernelID)
	if err != nil {
		p.logger.Debug("Application id not resolved", zap.Error(err))
		return ""
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}

	p.mu.Lock()
	p.applicationID = id
	p.mu.Unlock()
	p.logger.Info("Resolved application id", zap.String("application_id", id))
	p.transition(StateConfirmingStartup)
	return id
}

// detectLaunchFailure fails startup when the launcher exited non-zero before
// the application id was known.
func (p *MesosProxy) detectLaunchFailure() error {
	p.mu.Lock()
	proc := p.process
	p.mu.Unlock()
	if proc == nil {
		return nil
	}
	code, exited := proc.ExitCode()
	if !exited || code == 0 {
		return nil
	}
	return &StartupError{KernelID: p.kernelID, State: StateAwaitingApplicationID.String(), ExitCode: &code}
}

// Poll reports whether the application is still alive. Before the id is
// resolved the application counts as alive without asking the scheduler.
// A query failure also reports alive, with the error.
func (p *MesosProxy) Poll(ctx context.Context) (bool, error) {
	appID := p.ApplicationID()
	if appID == "" {
		return true, nil
	}
	state, err := p.query.FrameworkState(ctx, appID)
	if err != nil {
		return true, fmt.Errorf("poll application %s: %w", appID, err)
	}
	if state == mesos.FrameworkCompleted {
		if p.State() == StateRunning {
			p.transition(StateTerminated)
		}
		return false, nil
	}
	return true, nil
}

// SendSignal delivers sig. Zero polls, SIGKILL kills, and anything else is
// forwarded to the local launcher on a best-effort basis.
func (p *MesosProxy) SendSignal(ctx context.Context, sig syscall.Signal) error {
	switch sig {
	case 0:
		alive, err := p.Poll(ctx)
		if err != nil {
			return err
		}
		if !alive {
			return ErrProcessExited
		}
		return nil
	case syscall.SIGKILL:
		return p.Kill(ctx)
	default:
		if err := p.base.SendSignal(sig); err != nil {
			p.logger.Warn("Signal not delivered to local launcher",
				zap.Stringer("signal", sig), zap.Error(err))
		}
		return nil
	}
}

// Kill tears the application down through the scheduler and waits for it
// to be reported completed. A kernel with no application id only has its
// local launcher terminated.
func (p *MesosProxy) Kill(ctx context.Context) error {
	appID := p.ApplicationID()
	if appID == "" {
		if err := p.terminateLauncher(ctx); err != nil {
			return fmt.Errorf("kill kernel %s: %w: %w", p.kernelID, ErrTerminationFailed, err)
		}
		p.transition(StateTerminated)
		return nil
	}

	prev := p.State()
	p.transition(StateTerminating)

	teardownErr := p.query.Teardown(ctx, appID)
	if teardownErr != nil {
		p.logger.Warn("Framework teardown request failed", zap.String("application_id", appID), zap.Error(teardownErr))
	}

	for i := 0; i < p.cfg.MaxPollAttempts; i++ {
		alive, err := p.Poll(ctx)
		if err != nil {
			p.logger.Debug("Poll during kill failed", zap.Error(err))
		} else if !alive {
			p.transition(StateTerminated)
			return nil
		}
		if err := sleepContext(ctx, p.cfg.PollInterval); err != nil {
			break
		}
	}

	if p.State() == StateTerminating && prev == StateRunning {
		p.transition(StateRunning)
	}
	if teardownErr != nil {
		return fmt.Errorf("kill application %s: %w: %w", appID, ErrTerminationFailed, teardownErr)
	}
	return fmt.Errorf("kill application %s: %w", appID, ErrTerminationFailed)
}

// Cleanup releases the local launcher and clears the application id. It is
// idempotent and never fails; errors are logged.
func (p *MesosProxy) Cleanup(ctx context.Context) {
	p.mu.Lock()
	if p.cleaned {
		p.mu.Unlock()
		return
	}
	p.cleaned = true
	p.mu.Unlock()

	p.terminateLocal(ctx)

	p.mu.Lock()
	p.applicationID = ""
	terminal := p.state.IsTerminal()
	p.mu.Unlock()
	if !terminal {
		p.transition(StateTerminated)
	}

	if err := p.base.Cleanup(ctx); err != nil {
		p.logger.Warn("Base cleanup failed", zap.Error(err))
	}
}

// terminateLauncher stops the local launcher through its handle, or through
// the recorded pid when the proxy was restored and holds no handle.
func (p *MesosProxy) terminateLauncher(ctx context.Context) error {
	p.mu.Lock()
	attached := p.process != nil
	p.mu.Unlock()
	if attached {
		p.terminateLocal(ctx)
		return nil
	}

	err := p.base.SendSignal(syscall.SIGTERM)
	if processGone(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("signal launcher: %w", err)
	}
	wait := p.ShutdownWaitTime()
	for waited := time.Duration(0); waited < wait; waited += p.cfg.PollInterval {
		if processGone(p.base.SendSignal(0)) {
			return nil
		}
		if sleepContext(ctx, p.cfg.PollInterval) != nil {
			break
		}
	}
	p.logger.Warn("Launcher ignored SIGTERM, sending SIGKILL", zap.Duration("waited", wait))
	if err := p.base.SendSignal(syscall.SIGKILL); err != nil && !processGone(err) {
		return fmt.Errorf("kill launcher: %w", err)
	}
	return nil
}

// processGone reports whether err means there is no process left to signal.
func processGone(err error) bool {
	return errors.Is(err, ErrNoProcess) || errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}

// terminateLocal stops and reaps the local launcher, then drops the handle.
func (p *MesosProxy) terminateLocal(ctx context.Context) {
	p.mu.Lock()
	proc := p.process
	p.process = nil
	p.mu.Unlock()
	if proc == nil {
		return
	}

	if proc.Alive() {
		if err := proc.Terminate(ctx, p.ShutdownWaitTime()); err != nil {
			p.logger.Warn("Local launcher did not terminate", zap.Int("pid", proc.Pid()), zap.Error(err))
		}
	}
	if err := proc.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Debug("Local launcher wait", zap.Int("pid", proc.Pid()), zap.Error(err))
	}
}

// Serialize returns the base record with the application id merged in.
func (p *MesosProxy) Serialize() ProcessInfo {
	info := p.base.Serialize()
	info.KernelID = p.kernelID
	info.ApplicationID = p.ApplicationID()
	return info
}

// Deserialize restores a persisted record. A record with an application id
// restores as RUNNING, one without as LAUNCHING.
func (p *MesosProxy) Deserialize(info ProcessInfo) error {
	if info.KernelID != "" && info.KernelID != p.kernelID {
		return fmt.Errorf("record for kernel %s cannot restore kernel %s", info.KernelID, p.kernelID)
	}
	if err := p.base.Deserialize(info); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.applicationID = info.ApplicationID
	p.cleaned = false
	if info.ApplicationID != "" {
		p.state = StateRunning
	} else {
		p.state = StateLaunching
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
