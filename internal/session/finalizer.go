package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
	"github.com/robalobadob/golftrack/apps/go-server/internal/metrics"
)

// RoundFinalizer aggregates a round and commits it in a single update.
// A failed commit leaves the round in progress; retrying with the same
// holes writes the same aggregates.
type RoundFinalizer struct {
	rounds RoundFinisher
	ids    identity.Provider
	resume *ResumeLocator
}

func NewRoundFinalizer(c RoundFinisher, ids identity.Provider, resume *ResumeLocator) *RoundFinalizer {
	return &RoundFinalizer{rounds: c, ids: ids, resume: resume}
}

// FinishRound commits the totals of the first count holes and, on success,
// clears both resume markers. The committed hole count is count when it is
// a round length (9 or 18), otherwise the round's stored length.
func (f *RoundFinalizer) FinishRound(ctx context.Context, roundID string, holes []golf.Hole, count golf.HoleCount) (golf.Aggregates, error) {
	u, ok := f.ids.CurrentUser(ctx)
	if !ok {
		metrics.Finalizations.WithLabelValues("unauthorized").Inc()
		return golf.Aggregates{}, golf.ErrUnauthorized
	}
	if roundID == "" {
		return golf.Aggregates{}, golf.ErrNoRound
	}
	if count < 1 {
		metrics.Finalizations.WithLabelValues("invalid").Inc()
		return golf.Aggregates{}, &golf.ValidationError{Field: "holeCount", Value: int(count), Reason: "must be positive"}
	}

	agg := golf.Aggregate(holes, count)
	if !count.Valid() {
		rec, err := f.rounds.GetRound(ctx, u.ID, roundID)
		if err != nil {
			err = golf.Classify("get round", err)
			metrics.Finalizations.WithLabelValues(outcome(err)).Inc()
			return golf.Aggregates{}, err
		}
		agg.HoleCount = rec.HoleCount
	}
	if err := f.rounds.FinalizeRound(ctx, u.ID, roundID, agg); err != nil {
		err = golf.Classify("finalize round", err)
		metrics.Finalizations.WithLabelValues(outcome(err)).Inc()
		log.Error().Err(err).Str("user", u.ID).Str("roundId", roundID).Msg("finalize round")
		return golf.Aggregates{}, err
	}

	metrics.Finalizations.WithLabelValues("ok").Inc()
	log.Info().Str("user", u.ID).Str("roundId", roundID).Int("totalScore", agg.TotalScore).Msg("round finalized")
	if f.resume != nil {
		f.resume.ClearResumeData(ctx)
	}
	return agg, nil
}

// outcome is the metrics label for a classified error.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case golf.IsTransient(err):
		return "transient"
	case golf.IsValidation(err):
		return "invalid"
	default:
		return "rejected"
	}
}
