package session

// Phase is the coordinator's position in the per-item review state
// machine.
type Phase string

const (
	// PhaseIdle means no active session.
	PhaseIdle Phase = "idle"
	// PhaseRequesting means a lock request is in flight.
	PhaseRequesting Phase = "requesting"
	// PhaseLocked means the session holds an item exclusively locked
	// to the caller. Label actions and manual unlock are only valid
	// here.
	PhaseLocked Phase = "locked"
	// PhaseLabeling means a decision is being applied.
	PhaseLabeling Phase = "labeling"
	// PhaseHeld means the item carries an explicit hold: still locked
	// to the caller, excluded from the label-completes-session flow
	// until resumed.
	PhaseHeld Phase = "held"
	// PhaseConflict means the server reported the desired item locked
	// by someone else. The reviewer acknowledges and is redirected to
	// whatever they already hold.
	PhaseConflict Phase = "conflict"
)

func (p Phase) String() string {
	return string(p)
}

// Active reports whether the phase represents a live session holding
// or acquiring a lock.
func (p Phase) Active() bool {
	switch p {
	case PhaseRequesting, PhaseLocked, PhaseLabeling, PhaseHeld:
		return true
	default:
		return false
	}
}
