package processproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateLaunching:             "LAUNCHING",
		StateAwaitingApplicationID: "AWAITING_APPLICATION_ID",
		StateConfirmingStartup:     "CONFIRMING_STARTUP",
		StateRunning:               "RUNNING",
		StateTerminating:           "TERMINATING",
		StateTerminated:            "TERMINATED",
		StateFailed:                "FAILED",
		State(99):                  "UNKNOWN",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}
}

func TestState_IsTerminal(t *testing.T) {
	assert.True(t, StateTerminated.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
	assert.False(t, StateLaunching.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]State{
		{StateLaunching, StateAwaitingApplicationID},
		{StateAwaitingApplicationID, StateConfirmingStartup},
		{StateAwaitingApplicationID, StateFailed},
		{StateConfirmingStartup, StateRunning},
		{StateConfirmingStartup, StateFailed},
		{StateRunning, StateTerminating},
		{StateTerminating, StateTerminated},
		{StateTerminating, StateRunning},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	refused := [][2]State{
		{StateLaunching, StateRunning},
		{StateAwaitingApplicationID, StateRunning},
		{StateRunning, StateFailed},
		{StateFailed, StateRunning},
		{StateTerminated, StateRunning},
		{StateTerminated, StateLaunching},
	}
	for _, tr := range refused {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}
