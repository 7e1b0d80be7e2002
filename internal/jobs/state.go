package jobs

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// State is the lifecycle state of a Job.
type State int

const (
	Pending State = iota
	Running
	Cancelling
	Cancelled
	Failed
	Completed
)

var stateNames = [...]string{
	Pending:    "pending",
	Running:    "running",
	Cancelling: "cancelling",
	Cancelled:  "cancelled",
	Failed:     "failed",
	Completed:  "completed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("unknown state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Cancelled || s == Failed || s == Completed
}

var transitions = map[State][]State{
	Pending:    {Running, Failed},
	Running:    {Completed, Failed, Cancelling},
	Cancelling: {Cancelled, Failed},
}

// CanTransition reports whether from -> to is an edge of the job state
// machine.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
