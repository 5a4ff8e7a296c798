package golf

import "fmt"

// RoundStatus is the lifecycle state of a round.
type RoundStatus string

const (
	StatusUncreated  RoundStatus = "uncreated"
	StatusInProgress RoundStatus = "in_progress"
	StatusFinalized  RoundStatus = "finalized"
	StatusDeleted    RoundStatus = "deleted"
)

// roundTransitions lists the legal lifecycle moves. Finalized and deleted
// rounds are terminal.
var roundTransitions = map[RoundStatus][]RoundStatus{
	StatusUncreated:  {StatusInProgress},
	StatusInProgress: {StatusFinalized, StatusDeleted},
}

// CanTransition reports whether a round may move from one status to another.
func CanTransition(from, to RoundStatus) bool {
	for _, s := range roundTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a ValidationError for an illegal lifecycle move.
func CheckTransition(from, to RoundStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return &ValidationError{Field: "status", Value: string(to), Reason: fmt.Sprintf("cannot move round from %s", from)}
}
