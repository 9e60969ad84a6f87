package scheduler

// State is the lifecycle of a scheduled run.
//
//	IDLE ──► RUNNING ──► IDLE
//
// A tick that finds the scheduler RUNNING is skipped.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
)

var validTransitions = map[State][]State{
	StateIdle:    {StateRunning},
	StateRunning: {StateIdle},
}

// IsTransitionAllowed reports whether from → to is a legal move.
func IsTransitionAllowed(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
