package processproxy

// State is the lifecycle state of a proxied kernel.
type State int

const (
	StateLaunching State = iota
	StateAwaitingApplicationID
	StateConfirmingStartup
	StateRunning
	StateTerminating
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLaunching:
		return "LAUNCHING"
	case StateAwaitingApplicationID:
		return "AWAITING_APPLICATION_ID"
	case StateConfirmingStartup:
		return "CONFIRMING_STARTUP"
	case StateRunning:
		return "RUNNING"
	case StateTerminating:
		return "TERMINATING"
	case StateTerminated:
		return "TERMINATED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transitions leave s.
func (s State) IsTerminal() bool {
	return s == StateTerminated || s == StateFailed
}

// transitions lists the allowed successors of each state. Relaunch resets
// to LAUNCHING outside this table.
var transitions = map[State][]State{
	StateLaunching:             {StateAwaitingApplicationID, StateTerminated},
	StateAwaitingApplicationID: {StateConfirmingStartup, StateFailed, StateTerminated},
	StateConfirmingStartup:     {StateRunning, StateFailed, StateTerminated},
	StateRunning:               {StateTerminating, StateTerminated},
	StateTerminating:           {StateTerminated, StateRunning},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
