// apps/go-server/internal/session/store.go
//
// RoundSessionStore holds the local, authoritative state of one round:
// round id, hole count, the ordered hole records and the active hole.
//
// Invariants:
//   - len(holes) == holeCount at all times; holes[i].Number == i+1.
//   - Local edits apply synchronously; persistence happens elsewhere.

package session

import (
	"sync"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
)

// HolePatch is a partial edit of one hole. Nil fields are left unchanged.
type HolePatch struct {
	Par               *int  `json:"par,omitempty"`
	Distance          *int  `json:"distance,omitempty"`
	Score             *int  `json:"score,omitempty"`
	Putts             *int  `json:"putts,omitempty"`
	FairwayHit        *bool `json:"fairwayHit,omitempty"`
	GreenInRegulation *bool `json:"greenInRegulation,omitempty"`
}

// RoundSessionStore is safe for concurrent use.
type RoundSessionStore struct {
	mu        sync.RWMutex
	roundID   string
	holeCount golf.HoleCount
	holes     []golf.Hole
	current   int // 0-based index into holes
	progress  golf.Progress
}

// NewRoundSessionStore returns an empty (uncreated) session of count holes.
func NewRoundSessionStore(count golf.HoleCount) *RoundSessionStore {
	if !count.Valid() {
		count = golf.DefaultHoleCount
	}
	s := &RoundSessionStore{}
	s.reset(count)
	return s
}

func (s *RoundSessionStore) reset(count golf.HoleCount) {
	s.roundID = ""
	s.holeCount = count
	s.holes = golf.CompleteHoles(count, nil, nil)
	s.current = 0
	s.progress = golf.Progress{Aggregates: golf.Aggregates{HoleCount: count}}
}

// Init seeds the store with a persisted round. holes are normalized to
// exactly count entries.
func (s *RoundSessionStore) Init(roundID string, count golf.HoleCount, holes []golf.Hole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roundID = roundID
	s.holeCount = count
	s.holes = golf.Resize(holes, count)
	s.current = 0
	s.progress = golf.PartialAggregate(s.holes, count)
}

// Clear drops the round, keeping the hole count for the next one.
func (s *RoundSessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(s.holeCount)
}

func (s *RoundSessionStore) RoundID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roundID
}

func (s *RoundSessionStore) HoleCount() golf.HoleCount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holeCount
}

// SetHoleCount resizes the hole sequence. Data for surviving hole numbers
// is kept; the active hole is clamped into range.
func (s *RoundSessionStore) SetHoleCount(count golf.HoleCount) error {
	if !count.Valid() {
		_, err := golf.ParseHoleCount(int(count))
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if count == s.holeCount {
		return nil
	}
	s.holeCount = count
	s.holes = golf.Resize(s.holes, count)
	if s.current >= int(count) {
		s.current = int(count) - 1
	}
	s.progress = golf.PartialAggregate(s.holes, count)
	return nil
}

// Holes returns a deep copy of the hole sequence.
func (s *RoundSessionStore) Holes() []golf.Hole {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneHoles(s.holes)
}

// Hole returns hole n (1-based).
func (s *RoundSessionStore) Hole(n int) (golf.Hole, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 1 || n > len(s.holes) {
		return golf.Hole{}, false
	}
	return s.holes[n-1].Clone(), true
}

// CurrentHole returns the active hole number (1-based).
func (s *RoundSessionStore) CurrentHole() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current + 1
}

// SetCurrentHole moves the active hole to n (1-based).
func (s *RoundSessionStore) SetCurrentHole(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 || n > int(s.holeCount) {
		return &golf.ValidationError{Field: "holeNumber", Value: n, Reason: "outside the round"}
	}
	s.current = n - 1
	return nil
}

// UpdateHole applies patch to hole n and returns the resulting record.
// The edit is rejected unchanged if the result would be invalid.
func (s *RoundSessionStore) UpdateHole(n int, patch HolePatch) (golf.Hole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 || n > len(s.holes) {
		return golf.Hole{}, &golf.ValidationError{Field: "holeNumber", Value: n, Reason: "outside the round"}
	}
	h := s.holes[n-1].Clone()
	if patch.Par != nil {
		h.Par = *patch.Par
	}
	if patch.Distance != nil {
		h.Distance = *patch.Distance
	}
	if patch.Score != nil {
		h.Score = golf.IntPtr(*patch.Score)
	}
	if patch.Putts != nil {
		h.Putts = *patch.Putts
	}
	if patch.FairwayHit != nil {
		h.FairwayHit = *patch.FairwayHit
	}
	if patch.GreenInRegulation != nil {
		h.GreenInRegulation = *patch.GreenInRegulation
	}
	if err := h.Validate(s.holeCount); err != nil {
		return golf.Hole{}, err
	}
	s.holes[n-1] = h
	return h.Clone(), nil
}

// Recompute refreshes the in-progress totals and returns them.
func (s *RoundSessionStore) Recompute() golf.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = golf.PartialAggregate(s.holes, s.holeCount)
	return s.progress
}

// Progress returns the totals from the last recompute.
func (s *RoundSessionStore) Progress() golf.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

func cloneHoles(in []golf.Hole) []golf.Hole {
	out := make([]golf.Hole, len(in))
	for i, h := range in {
		out[i] = h.Clone()
	}
	return out
}
