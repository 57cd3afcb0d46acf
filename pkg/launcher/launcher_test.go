package launcher

import (
	"context"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/mesosproxy/pkg/processproxy"
)

func shell(kernelID, script string) processproxy.Command {
	return processproxy.Command{KernelID: kernelID, Argv: []string{"sh", "-c", script}}
}

func TestExecutor_LaunchCapturesOutput(t *testing.T) {
	e := NewExecutor(t.TempDir(), "10.0.0.9")
	cmd := shell("k1", `echo "out $GREETING"; echo err >&2`)
	cmd.Env = map[string]string{"GREETING": "hello"}

	p, err := e.Launch(context.Background(), cmd)
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background()))

	code, exited := p.ExitCode()
	assert.True(t, exited)
	assert.Zero(t, code)
	assert.False(t, p.Alive())
	assert.Equal(t, "10.0.0.9", p.Host())
	assert.Positive(t, p.Pid())

	stdout, err := os.ReadFile(e.StdoutPath("k1"))
	require.NoError(t, err)
	assert.Equal(t, "out hello\n", string(stdout))

	stderr, err := os.ReadFile(e.StderrPath("k1"))
	require.NoError(t, err)
	assert.Equal(t, "err\n", string(stderr))
}

func TestExecutor_ExitIsSeenWhileChildHoldsLogPipes(t *testing.T) {
	e := NewExecutor(t.TempDir(), "", WithWaitDelay(50*time.Millisecond))

	p, err := e.Launch(context.Background(), shell("k-bg", "sleep 30 & echo started; exit 3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = syscall.Kill(-p.Pid(), syscall.SIGKILL) })

	require.Eventually(t, func() bool { return !p.Alive() }, 5*time.Second, 10*time.Millisecond)
	code, exited := p.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 3, code)
	assert.NoError(t, p.Wait(context.Background()))

	stdout, err := os.ReadFile(e.StdoutPath("k-bg"))
	require.NoError(t, err)
	assert.Equal(t, "started\n", string(stdout))
}

func TestExecutor_LaunchValidation(t *testing.T) {
	e := NewExecutor(t.TempDir(), "")

	_, err := e.Launch(context.Background(), processproxy.Command{Argv: []string{"true"}})
	assert.Error(t, err)

	_, err = e.Launch(context.Background(), processproxy.Command{KernelID: "k"})
	assert.Error(t, err)

	_, err = NewExecutor("", "").Launch(context.Background(), shell("k", "true"))
	assert.Error(t, err)

	_, err = e.Launch(context.Background(), processproxy.Command{KernelID: "k", Argv: []string{"/nonexistent/launcher"}})
	assert.Error(t, err)
}

func TestProcess_NonZeroExit(t *testing.T) {
	e := NewExecutor(t.TempDir(), "")
	p, err := e.Launch(context.Background(), shell("k2", "exit 3"))
	require.NoError(t, err)

	require.NoError(t, p.Wait(context.Background()))
	code, exited := p.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 3, code)
	assert.ErrorIs(t, p.Signal(syscall.SIGTERM), os.ErrProcessDone)
}

func TestProcess_Terminate(t *testing.T) {
	e := NewExecutor(t.TempDir(), "")
	p, err := e.Launch(context.Background(), shell("k3", "sleep 30"))
	require.NoError(t, err)
	assert.True(t, p.Alive())

	start := time.Now()
	require.NoError(t, p.Terminate(context.Background(), 5*time.Second))
	assert.False(t, p.Alive())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcess_TerminateEscalatesToKill(t *testing.T) {
	e := NewExecutor(t.TempDir(), "")
	p, err := e.Launch(context.Background(), shell("k4", `trap "" TERM; while true; do sleep 0.1; done`))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, p.Terminate(context.Background(), 200*time.Millisecond))
	assert.False(t, p.Alive())
	code, _ := p.ExitCode()
	assert.Equal(t, -1, code)
}

func TestProcess_WaitHonorsContext(t *testing.T) {
	e := NewExecutor(t.TempDir(), "")
	p, err := e.Launch(context.Background(), shell("k5", "sleep 30"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Terminate(context.Background(), time.Second) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}

func TestLimitWriter(t *testing.T) {
	e := NewExecutor(t.TempDir(), "", WithMaxLogSize(8))
	p, err := e.Launch(context.Background(), shell("k6", "printf 0123456789abcdef"))
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background()))

	out, err := os.ReadFile(e.StdoutPath("k6"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "01234567\n[LOG LIMIT EXCEEDED"))
}

func TestLogResolver(t *testing.T) {
	e := NewExecutor(t.TempDir(), "")
	r := NewLogResolver(e)

	id, err := r.ResolveApplicationID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, id)

	p, err := e.Launch(context.Background(), shell("k7",
		`echo "starting"; echo "INFO MesosCoarseGrainedSchedulerBackend: Registered as framework ID 2b0b1a7e-6a44-4b9a-9b1c-0d5f3c8a1e22-0042" >&2`))
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background()))

	id, err = r.ResolveApplicationID(context.Background(), "k7")
	require.NoError(t, err)
	assert.Equal(t, "2b0b1a7e-6a44-4b9a-9b1c-0d5f3c8a1e22-0042", id)
}

func TestFrameworkIDPattern(t *testing.T) {
	tests := map[string]string{
		"Registered as framework ID 20240101-101010-16842879-5050-1-0007": "20240101-101010-16842879-5050-1-0007",
		`framework_id="abc-0001"`: "abc-0001",
		"frameworkId: f00d-12":    "f00d-12",
		"no id here":              "",
		"framework id pending":    "",
	}
	for line, want := range tests {
		m := frameworkIDPattern.FindStringSubmatch(line)
		got := ""
		if m != nil {
			got = m[1]
		}
		assert.Equal(t, want, got, line)
	}
}
