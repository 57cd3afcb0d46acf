package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/pkg/processproxy"
)

const (
	// DefaultMaxLogSize caps each captured log file.
	DefaultMaxLogSize = 50 * 1024 * 1024

	// DefaultWaitDelay bounds log copying after the launcher exits while a
	// child it left behind still holds its stdout or stderr.
	DefaultWaitDelay = 2 * time.Second
)

// Executor spawns local launcher processes.
//
// Directory layout:
//
//	<root>/<kernel_id>/stdout.log
//	<root>/<kernel_id>/stderr.log
//
// Each launcher runs in its own process group so signals reach the whole
// tree it starts (spark-submit and friends).
type Executor struct {
	root       string
	host       string
	maxLogSize int64
	waitDelay  time.Duration
	logger     *zap.Logger
}

var _ processproxy.Launcher = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxLogSize caps each log file; zero or negative disables the cap.
func WithMaxLogSize(n int64) Option {
	return func(e *Executor) {
		e.maxLogSize = n
	}
}

// WithWaitDelay sets how long log copying may continue after the launcher
// exits. Zero waits for every holder of the log pipes to close them.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.waitDelay = d
		}
	}
}

// NewExecutor returns an Executor writing logs under root. host is the
// address reported for launched processes.
func NewExecutor(root, host string, opts ...Option) *Executor {
	e := &Executor{
		root:       strings.TrimSpace(root),
		host:       strings.TrimSpace(host),
		maxLogSize: DefaultMaxLogSize,
		waitDelay:  DefaultWaitDelay,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) RootDir() string {
	return e.root
}

func (e *Executor) KernelDir(kernelID string) string {
	return filepath.Join(e.root, kernelID)
}

func (e *Executor) StdoutPath(kernelID string) string {
	return filepath.Join(e.KernelDir(kernelID), "stdout.log")
}

func (e *Executor) StderrPath(kernelID string) string {
	return filepath.Join(e.KernelDir(kernelID), "stderr.log")
}

// Launch starts cmd and returns once the process is running. The process
// outlives ctx; use Process.Terminate to stop it.
func (e *Executor) Launch(ctx context.Context, cmd processproxy.Command) (processproxy.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kernelID := strings.TrimSpace(cmd.KernelID)
	if kernelID == "" {
		return nil, fmt.Errorf("kernel_id is required")
	}
	if len(cmd.Argv) == 0 {
		return nil, fmt.Errorf("argv is required")
	}
	if e.root == "" {
		return nil, fmt.Errorf("launcher log root dir is empty")
	}

	if err := os.MkdirAll(e.KernelDir(kernelID), 0755); err != nil {
		return nil, fmt.Errorf("create kernel dir: %w", err)
	}
	stdoutFile, err := os.Create(e.StdoutPath(kernelID))
	if err != nil {
		return nil, fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(e.StderrPath(kernelID))
	if err != nil {
		_ = stdoutFile.Close()
		return nil, fmt.Errorf("create stderr log: %w", err)
	}

	c := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Stdout = newLimitWriter(stdoutFile, e.maxLogSize)
	c.Stderr = newLimitWriter(stderrFile, e.maxLogSize)
	c.Env = append(os.Environ(), envList(cmd.Env)...)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.WaitDelay = e.waitDelay

	if err := c.Start(); err != nil {
		_ = stdoutFile.Close()
		_ = stderrFile.Close()
		return nil, fmt.Errorf("start launcher: %w", err)
	}

	p := newProcess(c, e.host, func() {
		_ = stdoutFile.Close()
		_ = stderrFile.Close()
	})

	e.logger.Debug("Started launcher process",
		zap.String("kernel_id", kernelID),
		zap.Int("pid", p.Pid()),
		zap.String("stdout", e.StdoutPath(kernelID)))
	return p, nil
}

// envList renders env sorted by key.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// limitWriter discards output past limit after writing a truncation marker.
type limitWriter struct {
	f       *os.File
	written int64
	limit   int64
}

func newLimitWriter(f *os.File, limit int64) *limitWriter {
	return &limitWriter{f: f, limit: limit}
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.limit <= 0 {
		return l.f.Write(p)
	}
	if l.written >= l.limit {
		return len(p), nil
	}
	if l.written+int64(len(p)) > l.limit {
		remaining := l.limit - l.written
		_, _ = l.f.Write(p[:remaining])
		_, _ = l.f.WriteString("\n[LOG LIMIT EXCEEDED - TRUNCATED]\n")
		l.written = l.limit
		return len(p), nil
	}
	n, err := l.f.Write(p)
	l.written += int64(n)
	return n, err
}
