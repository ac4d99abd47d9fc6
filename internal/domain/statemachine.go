package domain

import "fmt"

// StateMachine is a table of allowed transitions over a comparable state type.
// Terminal states are absorbing: every move out of them is rejected.
type StateMachine[S comparable] struct {
	name     string
	edges    map[S]map[S]struct{}
	terminal map[S]struct{}
}

// NewStateMachine builds a machine from an adjacency table.
func NewStateMachine[S comparable](name string, edges map[S][]S, terminal ...S) *StateMachine[S] {
	m := &StateMachine[S]{
		name:     name,
		edges:    make(map[S]map[S]struct{}, len(edges)),
		terminal: make(map[S]struct{}, len(terminal)),
	}
	for from, tos := range edges {
		set := make(map[S]struct{}, len(tos))
		for _, to := range tos {
			set[to] = struct{}{}
		}
		m.edges[from] = set
	}
	for _, s := range terminal {
		m.terminal[s] = struct{}{}
	}
	return m
}

// IsTerminal reports whether s is absorbing.
func (m *StateMachine[S]) IsTerminal(s S) bool {
	_, ok := m.terminal[s]
	return ok
}

// Can reports whether from -> to is allowed.
func (m *StateMachine[S]) Can(from, to S) bool {
	if m.IsTerminal(from) {
		return false
	}
	_, ok := m.edges[from][to]
	return ok
}

// Transition validates from -> to and returns a *TransitionError when rejected.
func (m *StateMachine[S]) Transition(from, to S) error {
	if m.Can(from, to) {
		return nil
	}
	return &TransitionError{
		Machine:  m.name,
		From:     fmt.Sprint(from),
		To:       fmt.Sprint(to),
		Terminal: m.IsTerminal(from),
	}
}

// Targets lists the states reachable from s in one step.
func (m *StateMachine[S]) Targets(s S) []S {
	if m.IsTerminal(s) {
		return nil
	}
	out := make([]S, 0, len(m.edges[s]))
	for to := range m.edges[s] {
		out = append(out, to)
	}
	return out
}
