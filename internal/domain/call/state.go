package call

import (
	"connectai/pkg/errors"
)

// State is the lifecycle state of a call session. Transitions are validated
// centrally; only the orchestrator mutates a session's state.
type State string

const (
	StateCreated    State = "created"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateDraining   State = "draining"
	StateClosed     State = "closed"
	StateErrored    State = "errored"
)

// transitions is the closed set of legal state changes. Errored is reachable
// from every non-terminal state.
var transitions = map[State][]State{
	StateCreated:    {StateConnecting, StateErrored},
	StateConnecting: {StateActive, StateDraining, StateErrored},
	StateActive:     {StateDraining, StateErrored},
	StateDraining:   {StateClosed, StateErrored},
	StateClosed:     {},
	StateErrored:    {},
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// Valid reports whether s is a member of the state set.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// ValidateTransition returns an error unless from -> to is a legal transition.
func ValidateTransition(from, to State) error {
	next, ok := transitions[from]
	if !ok {
		return errors.Wrapf(errors.ErrInvalidTransition, "unknown state %q", from)
	}
	for _, s := range next {
		if s == to {
			return nil
		}
	}
	return errors.Wrapf(errors.ErrInvalidTransition, "%s -> %s", from, to)
}
