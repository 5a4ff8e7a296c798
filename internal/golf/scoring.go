// apps/go-server/internal/golf/scoring.go
//
// Scoring rules for a round.
// Responsibilities:
//   - Build the complete, contiguous hole sequence 1..count from partial data.
//   - Aggregate totals for finalization (score, putts, fairways, GIR).
//   - Aggregate in-progress totals over holes that have a score.
//
// Fairways are only counted on holes with par > 3; par-3 holes have no fairway.

package golf

// CompleteHoles returns exactly count holes numbered 1..count.
//
// Reference data comes from ref (keyed by hole number) and captured entries
// from scores (also keyed by hole number). Holes with no reference data get
// DefaultPar and DefaultDistance. Out-of-range entries are dropped.
func CompleteHoles(count HoleCount, ref []CourseHole, scores []Hole) []Hole {
	n := int(count)
	out := make([]Hole, n)
	for i := range out {
		out[i] = Hole{Number: i + 1, Par: DefaultPar, Distance: DefaultDistance}
	}
	for _, c := range ref {
		if c.Number < 1 || c.Number > n {
			continue
		}
		h := &out[c.Number-1]
		if c.Par >= 3 && c.Par <= 5 {
			h.Par = c.Par
		}
		if c.Distance > 0 {
			h.Distance = c.Distance
		}
	}
	for _, s := range scores {
		if s.Number < 1 || s.Number > n {
			continue
		}
		h := &out[s.Number-1]
		if s.Score != nil {
			v := *s.Score
			h.Score = &v
		}
		h.Putts = s.Putts
		h.FairwayHit = s.FairwayHit
		h.GreenInRegulation = s.GreenInRegulation
	}
	return out
}

// Resize returns holes adjusted to count entries, keeping existing records
// for hole numbers that survive and default-filling the rest.
func Resize(holes []Hole, count HoleCount) []Hole {
	ref := make([]CourseHole, 0, len(holes))
	for _, h := range holes {
		ref = append(ref, CourseHole{Number: h.Number, Par: h.Par, Distance: h.Distance})
	}
	return CompleteHoles(count, ref, holes)
}

// Aggregate computes the finalized totals for the first count holes.
// Input longer than count is truncated; unscored holes contribute 0.
// A negative count aggregates nothing.
func Aggregate(holes []Hole, count HoleCount) Aggregates {
	if count < 0 {
		count = 0
	}
	if len(holes) > int(count) {
		holes = holes[:count]
	}
	agg := Aggregates{HoleCount: count}
	for _, h := range holes {
		if h.Score != nil {
			agg.TotalScore += *h.Score
		}
		agg.TotalPutts += h.Putts
		if h.GreenInRegulation {
			agg.GreensInRegulation++
		}
		if h.FairwayHit && h.FairwayEligible() {
			agg.FairwaysHit++
		}
	}
	return agg
}

// Progress is the running total of a round still being played.
type Progress struct {
	Aggregates
	HolesPlayed int `json:"holesPlayed"`
	ParPlayed   int `json:"parPlayed"` // sum of par over scored holes
}

// ToPar is the running score relative to par.
func (p Progress) ToPar() int { return p.TotalScore - p.ParPlayed }

// PartialAggregate sums only the holes that have a captured score.
func PartialAggregate(holes []Hole, count HoleCount) Progress {
	scored := make([]Hole, 0, len(holes))
	p := Progress{}
	for i, h := range holes {
		if i >= int(count) {
			break
		}
		if !h.Scored() {
			continue
		}
		scored = append(scored, h)
		p.HolesPlayed++
		p.ParPlayed += h.Par
	}
	p.Aggregates = Aggregate(scored, count)
	return p
}
