package processproxy

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
)

// LocalBase is the default Base. It tracks the launcher pid and host, and
// after a restore it can still signal the pid it was given.
type LocalBase struct {
	kernelID string

	mu      sync.Mutex
	pid     int
	ip      string
	process Process
}

var _ Base = (*LocalBase)(nil)

// NewLocalBase returns an empty LocalBase for kernelID.
func NewLocalBase(kernelID string) *LocalBase {
	return &LocalBase{kernelID: kernelID}
}

// Attach records the started process.
func (b *LocalBase) Attach(p Process) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.process = p
	if p != nil {
		b.pid = p.Pid()
		b.ip = p.Host()
	}
}

// Pid returns the recorded pid, or 0.
func (b *LocalBase) Pid() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pid
}

// Serialize returns the base fields of the record.
func (b *LocalBase) Serialize() ProcessInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ProcessInfo{KernelID: b.kernelID, PID: b.pid, IP: b.ip}
}

// Deserialize restores pid and ip. The process handle is not recoverable.
func (b *LocalBase) Deserialize(info ProcessInfo) error {
	if info.PID < 0 {
		return fmt.Errorf("invalid pid %d", info.PID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pid = info.PID
	b.ip = info.IP
	b.process = nil
	return nil
}

// SendSignal signals the local launcher.
func (b *LocalBase) SendSignal(sig syscall.Signal) error {
	b.mu.Lock()
	proc, pid := b.process, b.pid
	b.mu.Unlock()

	if proc != nil {
		return proc.Signal(sig)
	}
	if pid <= 0 {
		return ErrNoProcess
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	return p.Signal(sig)
}

// Cleanup forgets the process.
func (b *LocalBase) Cleanup(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pid = 0
	b.process = nil
	return nil
}
