package processproxy

import (
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBase_AttachSerialize(t *testing.T) {
	b := NewLocalBase("k")
	b.Attach(newFakeProcess(31))

	assert.Equal(t, ProcessInfo{KernelID: "k", PID: 31, IP: "10.0.0.5"}, b.Serialize())
}

func TestLocalBase_SendSignal(t *testing.T) {
	b := NewLocalBase("k")
	assert.ErrorIs(t, b.SendSignal(syscall.SIGTERM), ErrNoProcess)

	proc := newFakeProcess(31)
	b.Attach(proc)
	require.NoError(t, b.SendSignal(syscall.SIGHUP))
	assert.Equal(t, []syscall.Signal{syscall.SIGHUP}, proc.signals)
}

func TestLocalBase_SendSignalAfterRestore(t *testing.T) {
	b := NewLocalBase("k")
	require.NoError(t, b.Deserialize(ProcessInfo{PID: os.Getpid(), IP: "127.0.0.1"}))

	assert.NoError(t, b.SendSignal(syscall.Signal(0)))
	assert.Equal(t, "127.0.0.1", b.Serialize().IP)
}

func TestLocalBase_DeserializeRejectsNegativePid(t *testing.T) {
	assert.Error(t, NewLocalBase("k").Deserialize(ProcessInfo{PID: -1}))
}

func TestLocalBase_Cleanup(t *testing.T) {
	b := NewLocalBase("k")
	b.Attach(newFakeProcess(31))

	require.NoError(t, b.Cleanup(context.Background()))
	assert.Zero(t, b.Pid())
	assert.ErrorIs(t, b.SendSignal(syscall.SIGTERM), ErrNoProcess)
}
