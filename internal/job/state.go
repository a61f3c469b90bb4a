// Package job holds the parts of the job model the protocol layer filters on.
package job

import "fmt"

// State is the lifecycle state of a launcher job.
type State int

const (
	StateUnknown State = iota
	StateCanceled
	StateFailed
	StateFinished
	StateKilled
	StatePending
	StateRunning
	StateSuspended
)

var stateNames = map[State]string{
	StateCanceled:  "Canceled",
	StateFailed:    "Failed",
	StateFinished:  "Finished",
	StateKilled:    "Killed",
	StatePending:   "Pending",
	StateRunning:   "Running",
	StateSuspended: "Suspended",
}

// String returns the human-readable name used on the wire.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseState maps a wire name such as "Running" to a State.
// Matching is exact; the launcher always sends the canonical capitalization.
func ParseState(name string) (State, error) {
	for state, stateName := range stateNames {
		if stateName == name {
			return state, nil
		}
	}
	return StateUnknown, fmt.Errorf("invalid job state: %q", name)
}
