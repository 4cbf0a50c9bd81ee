package controller

// State is the rollout lifecycle state of a single feature.
//
// The machine is deliberately small: Paused → Ramping → Complete for the
// happy path, Ramping → RolledBack on a metric breach or operator rollback,
// and RolledBack → Paused only through an explicit operator re-arm. The
// controller never auto-resumes a rolled-back feature.
type State string

const (
	// StatePaused means the feature is registered but not advancing.
	StatePaused State = "paused"
	// StateRamping means the controller is actively stepping the rollout
	// percent towards the desired target.
	StateRamping State = "ramping"
	// StateComplete means the rollout percent reached the desired target.
	// Further ticks are no-ops.
	StateComplete State = "complete"
	// StateRolledBack means the feature was killed after a metric breach or
	// operator action. Terminal until an operator re-arms.
	StateRolledBack State = "rolled_back"
)

// validTransitions is the full transition table. Anything absent here is
// rejected with ErrInvalidTransition.
var validTransitions = map[State][]State{
	StatePaused:     {StateRamping, StateRolledBack},
	StateRamping:    {StateComplete, StateRolledBack, StatePaused},
	StateComplete:   {StateRamping, StateRolledBack},
	StateRolledBack: {StatePaused},
}

func (s State) canTransition(to State) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
