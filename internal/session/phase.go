package session

import (
	"fmt"
	"sync"
)

// Phase is the single state of a round-tracking session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseLoading    Phase = "loading"
	PhaseResuming   Phase = "resuming"
	PhaseEditing    Phase = "editing"
	PhaseSaving     Phase = "saving"
	PhaseFinalizing Phase = "finalizing"
	PhaseError      Phase = "error"
)

// phaseTransitions lists the legal moves out of each phase. Staying in the
// same phase is always allowed.
var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseLoading, PhaseEditing},
	PhaseLoading:    {PhaseResuming, PhaseEditing, PhaseIdle, PhaseError},
	PhaseResuming:   {PhaseEditing, PhaseError},
	PhaseEditing:    {PhaseSaving, PhaseFinalizing, PhaseLoading, PhaseIdle, PhaseError},
	PhaseSaving:     {PhaseEditing, PhaseFinalizing, PhaseLoading, PhaseIdle, PhaseError},
	PhaseFinalizing: {PhaseIdle, PhaseError},
	PhaseError:      {PhaseLoading, PhaseEditing, PhaseFinalizing, PhaseIdle},
}

// Machine guards phase changes.
type Machine struct {
	mu       sync.Mutex
	phase    Phase
	onChange func(from, to Phase)
}

// NewMachine starts in PhaseIdle. onChange may be nil; it runs outside the
// lock after every real change.
func NewMachine(onChange func(from, to Phase)) *Machine {
	return &Machine{phase: PhaseIdle, onChange: onChange}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Transition moves to phase to, or returns an error if the move is illegal.
func (m *Machine) Transition(to Phase) error {
	m.mu.Lock()
	from := m.phase
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !allowed(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("session: illegal phase transition %s -> %s", from, to)
	}
	m.phase = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// TransitionFrom moves to phase to only while the current phase is from.
// It reports whether the move happened.
func (m *Machine) TransitionFrom(from, to Phase) bool {
	m.mu.Lock()
	if m.phase != from || !allowed(from, to) {
		m.mu.Unlock()
		return false
	}
	m.phase = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return true
}

func allowed(from, to Phase) bool {
	for _, p := range phaseTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
