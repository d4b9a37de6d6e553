package model

import (
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// StateDefinition declares one case state
type StateDefinition struct {
	ID              types.CaseState `json:"id" toml:"id"`
	Name            string          `json:"name" toml:"name"`
	RequiresClosure bool            `json:"requiresClosure" toml:"requires_closure"`
}

// StateEdge is a directed transition between two states
type StateEdge struct {
	From types.CaseState `json:"from" toml:"from"`
	To   types.CaseState `json:"to" toml:"to"`
}

// StateGraph is the declared case lifecycle. It is the only source of truth for which transitions are
// legal; states carry no ordering semantics.
type StateGraph struct {
	initial types.CaseState
	states  []StateDefinition
	index   map[types.CaseState]int
	edges   map[types.CaseState][]types.CaseState
}

// NewStateGraph builds and validates a graph. The initial state must be declared and must not require
// closure; every state that requires closure must be terminal.
func NewStateGraph(initial types.CaseState, states []StateDefinition, edges []StateEdge) (*StateGraph, error) {
	if len(states) == 0 {
		return nil, goerr.Wrap(ErrValidation, "state graph needs at least one state")
	}

	g := &StateGraph{
		initial: initial,
		states:  make([]StateDefinition, 0, len(states)),
		index:   make(map[types.CaseState]int, len(states)),
		edges:   make(map[types.CaseState][]types.CaseState),
	}

	for _, s := range states {
		if err := s.ID.Validate(); err != nil {
			return nil, goerr.Wrap(ErrValidation, "invalid state id", goerr.V("state", s.ID), goerr.V("error", err.Error()))
		}
		if _, dup := g.index[s.ID]; dup {
			return nil, goerr.Wrap(ErrValidation, "duplicate state", goerr.V("state", s.ID))
		}
		if s.Name == "" {
			s.Name = s.ID.String()
		}
		g.index[s.ID] = len(g.states)
		g.states = append(g.states, s)
	}

	if !g.Has(initial) {
		return nil, goerr.Wrap(ErrValidation, "initial state is not declared", goerr.V("state", initial))
	}
	if g.RequiresClosure(initial) {
		return nil, goerr.Wrap(ErrValidation, "initial state must not require closure", goerr.V("state", initial))
	}

	for _, e := range edges {
		if !g.Has(e.From) || !g.Has(e.To) {
			return nil, goerr.Wrap(ErrValidation, "edge references an undeclared state",
				goerr.V(FromStateKey, e.From), goerr.V(ToStateKey, e.To))
		}
		if e.From == e.To {
			return nil, goerr.Wrap(ErrValidation, "self edges are implicit and must not be declared",
				goerr.V(FromStateKey, e.From))
		}
		if slices.Contains(g.edges[e.From], e.To) {
			return nil, goerr.Wrap(ErrValidation, "duplicate edge",
				goerr.V(FromStateKey, e.From), goerr.V(ToStateKey, e.To))
		}
		g.edges[e.From] = append(g.edges[e.From], e.To)
	}

	for _, s := range g.states {
		if s.RequiresClosure && len(g.edges[s.ID]) > 0 {
			return nil, goerr.Wrap(ErrValidation, "state requiring closure must be terminal", goerr.V("state", s.ID))
		}
	}

	return g, nil
}

// DefaultStateGraph is OPEN → INVESTIGATING → RESOLVED → CLOSED with OPEN → CLOSED for rejected
// detections.
func DefaultStateGraph() *StateGraph {
	g, err := NewStateGraph(types.CaseStateOpen,
		[]StateDefinition{
			{ID: types.CaseStateOpen, Name: "Open"},
			{ID: types.CaseStateInvestigating, Name: "Investigating"},
			{ID: types.CaseStateResolved, Name: "Resolved"},
			{ID: types.CaseStateClosed, Name: "Closed", RequiresClosure: true},
		},
		[]StateEdge{
			{From: types.CaseStateOpen, To: types.CaseStateInvestigating},
			{From: types.CaseStateInvestigating, To: types.CaseStateResolved},
			{From: types.CaseStateResolved, To: types.CaseStateClosed},
			{From: types.CaseStateOpen, To: types.CaseStateClosed},
		},
	)
	if err != nil {
		panic(err)
	}
	return g
}

// Initial returns the state new cases start in
func (g *StateGraph) Initial() types.CaseState {
	return g.initial
}

// Has reports whether s is declared
func (g *StateGraph) Has(s types.CaseState) bool {
	_, ok := g.index[s]
	return ok
}

// State returns the definition of s
func (g *StateGraph) State(s types.CaseState) (StateDefinition, bool) {
	i, ok := g.index[s]
	if !ok {
		return StateDefinition{}, false
	}
	return g.states[i], true
}

// States returns declared states in declaration order
func (g *StateGraph) States() []StateDefinition {
	return slices.Clone(g.states)
}

// Edges returns declared edges grouped by source in declaration order
func (g *StateGraph) Edges() []StateEdge {
	var out []StateEdge
	for _, s := range g.states {
		for _, to := range g.edges[s.ID] {
			out = append(out, StateEdge{From: s.ID, To: to})
		}
	}
	return out
}

// Targets returns the states reachable from s in one step
func (g *StateGraph) Targets(s types.CaseState) []types.CaseState {
	return slices.Clone(g.edges[s])
}

// IsTerminal reports whether no edge leaves s
func (g *StateGraph) IsTerminal(s types.CaseState) bool {
	return g.Has(s) && len(g.edges[s]) == 0
}

// RequiresClosure reports whether entering s requires closure data
func (g *StateGraph) RequiresClosure(s types.CaseState) bool {
	def, ok := g.State(s)
	return ok && def.RequiresClosure
}

// CanTransition reports whether from → to is a declared edge
func (g *StateGraph) CanTransition(from, to types.CaseState) bool {
	return slices.Contains(g.edges[from], to)
}

// IsWalk reports whether consecutive states form a walk on the graph. Repeated states are allowed as
// no-op transitions.
func (g *StateGraph) IsWalk(states []types.CaseState) bool {
	for i := 1; i < len(states); i++ {
		if states[i-1] == states[i] {
			continue
		}
		if !g.CanTransition(states[i-1], states[i]) {
			return false
		}
	}
	return true
}
