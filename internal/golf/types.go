// apps/go-server/internal/golf/types.go
//
// Core type definitions for round tracking.
// Defines:
//   - HoleCount: validated 9/18 enum.
//   - Hole: one hole's reference data plus the captured score entry.
//   - Aggregates: derived round totals (in-progress or finalized).
//   - RoundRecord / NewRound: the remote `rounds` row and its creation input.
//   - Course / CourseHole: reference par and distance per hole.

package golf

import (
	"fmt"
	"time"
)

// HoleCount is the number of holes in a round. Only 9 and 18 are valid.
type HoleCount int

const (
	Nine     HoleCount = 9
	Eighteen HoleCount = 18

	// DefaultHoleCount is used when nothing else resolves a count.
	DefaultHoleCount = Eighteen
)

// Valid reports whether c is 9 or 18.
func (c HoleCount) Valid() bool { return c == Nine || c == Eighteen }

// ParseHoleCount validates n and returns it as a HoleCount.
func ParseHoleCount(n int) (HoleCount, error) {
	c := HoleCount(n)
	if !c.Valid() {
		return 0, &ValidationError{Field: "holeCount", Value: n, Reason: "must be 9 or 18"}
	}
	return c, nil
}

// Reference defaults applied when course data is missing for a hole.
const (
	DefaultPar      = 4
	DefaultDistance = 0
)

// Hole holds the state of a single hole inside a round.
//
// Score is a pointer so that an explicit 0 is distinguishable from
// "not entered yet". FairwayHit only means something when Par > 3.
type Hole struct {
	Number            int  `json:"holeNumber"`
	Par               int  `json:"par"`
	Distance          int  `json:"distance"`
	Score             *int `json:"score"`
	Putts             int  `json:"putts"`
	FairwayHit        bool `json:"fairwayHit"`
	GreenInRegulation bool `json:"greenInRegulation"`
}

// Scored reports whether a score has been captured for the hole.
func (h Hole) Scored() bool { return h.Score != nil }

// FairwayEligible reports whether fairway hits count on this hole.
func (h Hole) FairwayEligible() bool { return h.Par > 3 }

// Clone returns a deep copy of h (the score pointer is not shared).
func (h Hole) Clone() Hole {
	if h.Score != nil {
		s := *h.Score
		h.Score = &s
	}
	return h
}

// Validate checks the captured values for obvious range errors.
func (h Hole) Validate(count HoleCount) error {
	if h.Number < 1 || h.Number > int(count) {
		return &ValidationError{Field: "holeNumber", Value: h.Number, Reason: fmt.Sprintf("must be within 1..%d", count)}
	}
	if h.Par < 3 || h.Par > 5 {
		return &ValidationError{Field: "par", Value: h.Par, Reason: "must be 3, 4 or 5"}
	}
	if h.Distance < 0 {
		return &ValidationError{Field: "distance", Value: h.Distance, Reason: "must not be negative"}
	}
	if h.Score != nil && *h.Score < 0 {
		return &ValidationError{Field: "score", Value: *h.Score, Reason: "must not be negative"}
	}
	if h.Putts < 0 {
		return &ValidationError{Field: "putts", Value: h.Putts, Reason: "must not be negative"}
	}
	return nil
}

// IntPtr is a small helper for building holes with a score.
func IntPtr(v int) *int { return &v }

// Aggregates are the derived totals of a round.
type Aggregates struct {
	TotalScore         int       `json:"totalScore"`
	TotalPutts         int       `json:"totalPutts"`
	FairwaysHit        int       `json:"fairwaysHit"`
	GreensInRegulation int       `json:"greensInRegulation"`
	HoleCount          HoleCount `json:"holeCount"`
}

// RoundRecord mirrors the remote `rounds` row. Totals is nil while the
// round is in progress (total_score is null).
type RoundRecord struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	CourseID  string      `json:"courseId,omitempty"`
	TeeID     string      `json:"teeId,omitempty"`
	HoleCount HoleCount   `json:"holeCount"`
	Date      string      `json:"date"`
	CreatedAt time.Time   `json:"createdAt"`
	Totals    *Aggregates `json:"totals,omitempty"`
}

// Status reports the lifecycle state implied by the record.
func (r RoundRecord) Status() RoundStatus {
	if r.ID == "" {
		return StatusUncreated
	}
	if r.Totals != nil {
		return StatusFinalized
	}
	return StatusInProgress
}

// NewRound is the input for creating a round.
type NewRound struct {
	UserID    string
	CourseID  string
	TeeID     string
	HoleCount HoleCount
	Date      string // YYYY-MM-DD
}

// CourseHole is reference data for one hole of a course.
type CourseHole struct {
	Number   int `json:"holeNumber" yaml:"hole"`
	Par      int `json:"par" yaml:"par"`
	Distance int `json:"distance" yaml:"distance"`
}

// Course is a golf course with its per-hole reference data.
type Course struct {
	ID    string       `json:"id" yaml:"id"`
	Name  string       `json:"name" yaml:"name"`
	Holes []CourseHole `json:"holes" yaml:"holes"`
}

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
