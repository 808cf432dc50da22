// ABOUTME: Migration states derived from table shape and the engine's phase machine
// ABOUTME: Phases only move forward; any failure ends in PhaseFailed
package migrate

import "fmt"

// State classifies the record table's shape. It is computed, never stored.
type State string

const (
	StateNotMigrated  State = "NOT_MIGRATED"
	StateMigrated     State = "MIGRATED"
	StateInconsistent State = "INCONSISTENT"
)

// Phase is a step of an engine run.
type Phase string

const (
	PhaseNotStarted Phase = "NOT_STARTED"
	PhaseInspected  Phase = "INSPECTED"
	PhaseBackedUp   Phase = "BACKED_UP"
	PhaseDerived    Phase = "DERIVED"
	PhaseRebuilt    Phase = "REBUILT"
	PhaseVerified   Phase = "VERIFIED"
	PhaseDone       Phase = "DONE"
	PhaseFailed     Phase = "FAILED"
)

var phaseOrder = map[Phase]int{
	PhaseNotStarted: 0,
	PhaseInspected:  1,
	PhaseBackedUp:   2,
	PhaseDerived:    3,
	PhaseRebuilt:    4,
	PhaseVerified:   5,
	PhaseDone:       6,
}

// canAdvance reports whether moving from one phase to another keeps the
// forward-only ordering. Steps may be skipped; FAILED is reachable from any
// phase except DONE, and nothing leaves FAILED or DONE.
func canAdvance(from, to Phase) bool {
	if from == PhaseFailed || from == PhaseDone {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	f, ok1 := phaseOrder[from]
	t, ok2 := phaseOrder[to]
	return ok1 && ok2 && t > f
}

type phaseMachine struct {
	current Phase
}

func newPhaseMachine() *phaseMachine {
	return &phaseMachine{current: PhaseNotStarted}
}

func (m *phaseMachine) advance(to Phase) error {
	if !canAdvance(m.current, to) {
		return fmt.Errorf("invalid phase transition %s -> %s", m.current, to)
	}
	m.current = to
	return nil
}

func (m *phaseMachine) fail() {
	if m.current != PhaseDone {
		m.current = PhaseFailed
	}
}
