package processproxy

import (
	"context"
	"syscall"
	"time"

	"github.com/3leaps/mesosproxy/pkg/mesos"
)

// Command describes the local launcher process for one kernel.
type Command struct {
	KernelID string            `json:"kernel_id" yaml:"kernel_id"`
	Argv     []string          `json:"argv" yaml:"argv"`
	Env      map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Dir      string            `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Process is a handle to a started local launcher process.
type Process interface {
	Pid() int
	Host() string
	Alive() bool

	// ExitCode reports the exit code once the process has exited.
	ExitCode() (int, bool)
	Signal(sig syscall.Signal) error

	// Terminate sends SIGTERM, waits up to grace, then SIGKILL.
	Terminate(ctx context.Context, grace time.Duration) error
	Wait(ctx context.Context) error
}

// Launcher starts local launcher processes.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (Process, error)
}

// IDResolver resolves the application id the scheduler assigned to a
// kernel. An empty id with a nil error means not yet known.
type IDResolver interface {
	ResolveApplicationID(ctx context.Context, kernelID string) (string, error)
}

// StateQuery is the scheduler view the proxy needs. *mesos.Master
// satisfies it.
type StateQuery interface {
	FrameworkState(ctx context.Context, id string) (mesos.FrameworkState, error)
	Teardown(ctx context.Context, id string) error
}

var _ StateQuery = (*mesos.Master)(nil)

// Base holds the generic local-process side of a proxy.
type Base interface {
	Attach(p Process)
	Serialize() ProcessInfo
	Deserialize(info ProcessInfo) error
	SendSignal(sig syscall.Signal) error
	Cleanup(ctx context.Context) error
}

// ProcessProxy is the lifecycle contract of a proxied kernel.
type ProcessProxy interface {
	Launch(ctx context.Context, cmd Command) error
	Poll(ctx context.Context) (bool, error)
	SendSignal(ctx context.Context, sig syscall.Signal) error
	Kill(ctx context.Context) error
	Cleanup(ctx context.Context)
	Serialize() ProcessInfo
	Deserialize(info ProcessInfo) error
}

// ProcessInfo is the persisted record of a proxy.
type ProcessInfo struct {
	KernelID      string `json:"kernel_id"`
	PID           int    `json:"pid"`
	IP            string `json:"ip"`
	ApplicationID string `json:"application_id"`
}

// Observer receives lifecycle events.
type Observer interface {
	ObserveTransition(from, to State)
	ObserveStartup(d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(State, State)      {}
func (nopObserver) ObserveStartup(time.Duration, error) {}
