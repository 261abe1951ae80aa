package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// State represents a state in the state machine.
type State interface {
	Name() string
}

// Event represents an event that can trigger a state transition.
type Event interface {
	Name() string
}

// Action executes side effects during a transition. Returning an error aborts it.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard decides at runtime whether a transition may proceed.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Transition defines a state change triggered by an event.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard  // all must pass
	Actions []Action // run in order before the new state is returned
}

// StringState is a string-backed State.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is a string-backed Event.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }

// Machine is a transition table: [fromState][event][]Transition.
type Machine struct {
	mu          sync.RWMutex
	transitions map[string]map[string][]Transition
}

// New returns an empty Machine.
func New() *Machine {
	return &Machine{transitions: make(map[string]map[string][]Transition)}
}

// AddTransition registers a transition. Several transitions may share a
// from/event pair; the first one whose guards pass wins.
func (m *Machine) AddTransition(from, to State, event Event, guards []Guard, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byEvent, ok := m.transitions[from.Name()]
	if !ok {
		byEvent = make(map[string][]Transition)
		m.transitions[from.Name()] = byEvent
	}
	byEvent[event.Name()] = append(byEvent[event.Name()], Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	})
	return nil
}

// Fire resolves the transition for (from, event), runs its actions and returns
// the target state.
func (m *Machine) Fire(ctx context.Context, from State, event Event, data any) (State, error) {
	t, err := m.resolve(ctx, from, event, data)
	if err != nil {
		return from, err
	}

	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, fmt.Errorf("action failed: %w", err)
		}
	}

	return t.To, nil
}

// CanFire reports whether Fire would find an applicable transition.
func (m *Machine) CanFire(ctx context.Context, from State, event Event, data any) bool {
	_, err := m.resolve(ctx, from, event, data)
	return err == nil
}

func (m *Machine) resolve(ctx context.Context, from State, event Event, data any) (*Transition, error) {
	if from == nil || event == nil {
		return nil, ErrInvalidEvent
	}

	m.mu.RLock()
	candidates := m.transitions[from.Name()][event.Name()]
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, &TransitionError{From: from.Name(), Event: event.Name(), Err: ErrNoTransition}
	}

	for i := range candidates {
		if guardsPass(ctx, &candidates[i], from, event, data) {
			return &candidates[i], nil
		}
	}

	return nil, &TransitionError{From: from.Name(), Event: event.Name(), Err: ErrRejected}
}

func guardsPass(ctx context.Context, t *Transition, from State, event Event, data any) bool {
	for _, guard := range t.Guards {
		if guard != nil && !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
