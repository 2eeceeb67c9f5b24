// Package fsm provides a small declarative state machine.
//
// A machine is described up front: a set of named states with optional
// per-state hooks, and an ordered list of guarded transitions. All work
// happens through Step, which runs the current state's during hook, then
// takes the first transition out of the current state whose condition
// holds. The machine is eager: a transition without a condition is always
// taken.
package fsm

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateState indicates the same state name was declared twice.
	ErrDuplicateState = errors.New("duplicate state name")

	// ErrUnknownState indicates a transition or the initial state refers
	// to a state that was not declared.
	ErrUnknownState = errors.New("unknown state")
)

// Transition moves the machine from Source to Dest. A nil Condition is
// treated as always true. Action, if set, runs when the transition is
// taken, before the source state's exit hook.
type Transition struct {
	Source    string
	Dest      string
	Condition func() bool
	Action    func()
}

// Hooks are the optional per-state callbacks. During runs on every step
// spent in the state; OnEnter and OnExit run around transitions.
type Hooks struct {
	During  func()
	OnEnter func()
	OnExit  func()
}

// Config describes a machine. States and Initial are required; the hook
// maps may name as few or as many states as desired.
type Config struct {
	States      []string
	Initial     string
	Transitions []Transition
	During      map[string]func()
	OnEnter     map[string]func()
	OnExit      map[string]func()
}

// Machine is a runnable state machine. It is not safe for concurrent use;
// the driving loop is expected to serialize calls to Step.
type Machine struct {
	hooks       map[string]Hooks
	transitions map[string][]Transition
	current     string
}

// New validates cfg and builds a machine positioned at the initial state.
func New(cfg Config) (*Machine, error) {
	hooks := make(map[string]Hooks, len(cfg.States))
	for _, name := range cfg.States {
		if _, ok := hooks[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateState, name)
		}
		hooks[name] = Hooks{
			During:  cfg.During[name],
			OnEnter: cfg.OnEnter[name],
			OnExit:  cfg.OnExit[name],
		}
	}

	if _, ok := hooks[cfg.Initial]; !ok {
		return nil, fmt.Errorf("%w: initial state %q", ErrUnknownState, cfg.Initial)
	}

	transitions := make(map[string][]Transition)
	for _, t := range cfg.Transitions {
		if _, ok := hooks[t.Source]; !ok {
			return nil, fmt.Errorf("%w: transition source %q", ErrUnknownState, t.Source)
		}
		if _, ok := hooks[t.Dest]; !ok {
			return nil, fmt.Errorf("%w: transition destination %q", ErrUnknownState, t.Dest)
		}
		// Declaration order is preserved; Step takes the first match.
		transitions[t.Source] = append(transitions[t.Source], t)
	}

	return &Machine{
		hooks:       hooks,
		transitions: transitions,
		current:     cfg.Initial,
	}, nil
}

// Current returns the name of the current state.
func (m *Machine) Current() string {
	return m.current
}

// Step runs one iteration: the during hook, then at most one transition.
// Transitions out of the current state are evaluated in declaration order
// and the first whose condition holds is taken: action, source exit hook,
// state swap, destination enter hook.
func (m *Machine) Step() {
	if during := m.hooks[m.current].During; during != nil {
		during()
	}

	for _, t := range m.transitions[m.current] {
		if t.Condition != nil && !t.Condition() {
			continue
		}
		if t.Action != nil {
			t.Action()
		}
		if exit := m.hooks[m.current].OnExit; exit != nil {
			exit()
		}
		m.current = t.Dest
		if enter := m.hooks[m.current].OnEnter; enter != nil {
			enter()
		}
		return
	}
}
