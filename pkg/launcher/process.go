package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/3leaps/mesosproxy/pkg/processproxy"
)

// Process is a started launcher process.
type Process struct {
	cmd  *exec.Cmd
	host string
	done chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

var _ processproxy.Process = (*Process)(nil)

func newProcess(cmd *exec.Cmd, host string, onExit func()) *Process {
	p := &Process{cmd: cmd, host: host, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.exitCode = cmd.ProcessState.ExitCode()
		p.mu.Unlock()
		if onExit != nil {
			onExit()
		}
		close(p.done)
	}()
	return p
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

func (p *Process) Host() string {
	return p.host
}

func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code once exited; -1 means killed by a signal.
func (p *Process) ExitCode() (int, bool) {
	if p.Alive() {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, true
}

// Signal sends sig to the process group, falling back to the process.
func (p *Process) Signal(sig syscall.Signal) error {
	if !p.Alive() {
		return os.ErrProcessDone
	}
	pid := p.Pid()
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid == pid {
		if err := syscall.Kill(-pgid, sig); err != nil {
			return fmt.Errorf("signal group %d: %w", pgid, err)
		}
		return nil
	}
	return p.cmd.Process.Signal(sig)
}

// Terminate sends SIGTERM, waits up to grace, then SIGKILL.
func (p *Process) Terminate(ctx context.Context, grace time.Duration) error {
	if !p.Alive() {
		return nil
	}
	if err := p.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal term: %w", err)
	}

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline.C:
	}

	if err := p.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal kill: %w", err)
	}
	return p.Wait(ctx)
}

// Wait blocks until the process exits. A non-zero exit is not an error, nor
// is a leftover child still holding the log pipes when the wait delay ends.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var exitErr *exec.ExitError
	if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) && !errors.Is(p.waitErr, exec.ErrWaitDelay) {
		return p.waitErr
	}
	return nil
}
