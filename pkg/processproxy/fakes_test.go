package processproxy

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/3leaps/mesosproxy/pkg/mesos"
)

type fakeProcess struct {
	mu         sync.Mutex
	pid        int
	host       string
	alive      bool
	exitCode   *int
	signals    []syscall.Signal
	signalErr  error
	terminates int
	waits      int
	grace      time.Duration
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, host: "10.0.0.5", alive: true}
}

func (f *fakeProcess) Pid() int     { return f.pid }
func (f *fakeProcess) Host() string { return f.host }

func (f *fakeProcess) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeProcess) ExitCode() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exitCode == nil {
		return 0, false
	}
	return *f.exitCode, true
}

func (f *fakeProcess) exit(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	f.exitCode = &code
}

func (f *fakeProcess) Signal(sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	return f.signalErr
}

func (f *fakeProcess) Terminate(_ context.Context, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminates++
	f.grace = grace
	f.alive = false
	return nil
}

func (f *fakeProcess) Wait(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	return nil
}

type fakeLauncher struct {
	proc *fakeProcess
	err  error
	cmds []Command
}

func (f *fakeLauncher) Launch(_ context.Context, cmd Command) (Process, error) {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, f.err
	}
	return f.proc, nil
}

// fakeResolver returns id from the after-th call on. after < 0 never resolves.
type fakeResolver struct {
	id    string
	after int
	calls int
}

func (f *fakeResolver) ResolveApplicationID(context.Context, string) (string, error) {
	f.calls++
	if f.after < 0 || f.calls < f.after {
		return "", nil
	}
	return f.id, nil
}

// fakeQuery replays states; the last one repeats. Errors in errs are
// returned on the matching call index.
type fakeQuery struct {
	mu            sync.Mutex
	states        []mesos.FrameworkState
	errs          map[int]error
	calls         int
	teardowns     []string
	teardownErr   error
	afterTeardown *mesos.FrameworkState
}

func (f *fakeQuery) FrameworkState(context.Context, string) (mesos.FrameworkState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if err := f.errs[i]; err != nil {
		return mesos.FrameworkUnknown, err
	}
	if len(f.teardowns) > 0 && f.afterTeardown != nil {
		return *f.afterTeardown, nil
	}
	if len(f.states) == 0 {
		return mesos.FrameworkUnknown, nil
	}
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	return f.states[i], nil
}

func (f *fakeQuery) Teardown(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardowns = append(f.teardowns, id)
	return f.teardownErr
}

func (f *fakeQuery) queryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type transitionRecorder struct {
	mu       sync.Mutex
	seen     []State
	startups []error
}

func (r *transitionRecorder) ObserveTransition(_, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, to)
}

func (r *transitionRecorder) ObserveStartup(_ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startups = append(r.startups, err)
}

type failingBase struct {
	*LocalBase
	cleanups int
}

func (b *failingBase) SendSignal(syscall.Signal) error { return errors.New("signal refused") }

func (b *failingBase) Cleanup(ctx context.Context) error {
	b.cleanups++
	_ = b.LocalBase.Cleanup(ctx)
	return errors.New("base cleanup failed")
}

// pidBase stands in for a restored LocalBase whose pid is all that is left
// of the launcher. stubborn ignores SIGTERM.
type pidBase struct {
	*LocalBase
	mu       sync.Mutex
	signals  []syscall.Signal
	termErr  error
	stubborn bool
	alive    bool
}

func newPidBase(pid int) *pidBase {
	b := &pidBase{LocalBase: NewLocalBase("kernel-1"), alive: true}
	_ = b.LocalBase.Deserialize(ProcessInfo{PID: pid})
	return b
}

func (b *pidBase) SendSignal(sig syscall.Signal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, sig)
	if !b.alive {
		return os.ErrProcessDone
	}
	switch sig {
	case syscall.SIGTERM:
		if b.termErr != nil {
			return b.termErr
		}
		if !b.stubborn {
			b.alive = false
		}
	case syscall.SIGKILL:
		b.alive = false
	}
	return nil
}

func (b *pidBase) sent() []syscall.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]syscall.Signal(nil), b.signals...)
}

func statePtr(s mesos.FrameworkState) *mesos.FrameworkState { return &s }
