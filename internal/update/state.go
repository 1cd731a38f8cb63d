package update

// State is a phase of one update cycle.
type State int

// Update cycle phases, in the order they are entered.
const (
	StateNotStarted State = iota
	StateStarting
	StateRolling
	StateFinishing
	StateSucceeded
	StatePartialFailure
	StateRejected
)

var stateNames = map[State]string{
	StateNotStarted:     "not_started",
	StateStarting:       "starting",
	StateRolling:        "rolling",
	StateFinishing:      "finishing",
	StateSucceeded:      "succeeded",
	StatePartialFailure: "partial_failure",
	StateRejected:       "rejected",
}

// String returns the log name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "unknown"
}

// Terminal reports whether the cycle is over.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}
