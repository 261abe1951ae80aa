package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("statemachine: transition needs from, to and event")
	ErrInvalidEvent      = errors.New("statemachine: fire needs a state and an event")
	ErrNoTransition      = errors.New("statemachine: no transition")
	ErrRejected          = errors.New("statemachine: rejected by guards")
)

// TransitionError names the state/event pair Fire could not resolve.
// It unwraps to ErrNoTransition or ErrRejected.
type TransitionError struct {
	From  string
	Event string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s on %s", e.Err, e.From, e.Event)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func IsNoTransitionAvailableError(err error) bool { return errors.Is(err, ErrNoTransition) }

func IsTransitionRejectedError(err error) bool { return errors.Is(err, ErrRejected) }
