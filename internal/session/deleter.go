package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
	"github.com/robalobadob/golftrack/apps/go-server/internal/metrics"
)

// RoundDeleter removes a round: hole rows first, then the round row.
// There is no transaction; if the hole rows cannot be removed the round row
// is left untouched.
type RoundDeleter struct {
	rounds RoundRemover
	ids    identity.Provider
}

func NewRoundDeleter(r RoundRemover, ids identity.Provider) *RoundDeleter {
	return &RoundDeleter{rounds: r, ids: ids}
}

// DeleteRound fails fast with golf.ErrUnauthorized when nobody is signed in.
func (d *RoundDeleter) DeleteRound(ctx context.Context, roundID string) error {
	u, ok := d.ids.CurrentUser(ctx)
	if !ok {
		metrics.Deletions.WithLabelValues("unauthorized").Inc()
		return golf.ErrUnauthorized
	}
	if roundID == "" {
		return &golf.ValidationError{Field: "roundId", Value: roundID, Reason: "required"}
	}

	if err := d.rounds.DeleteHoleScores(ctx, u.ID, roundID); err != nil {
		err = golf.Classify("delete hole scores", err)
		metrics.Deletions.WithLabelValues(outcome(err)).Inc()
		log.Error().Err(err).Str("user", u.ID).Str("roundId", roundID).Msg("delete hole scores")
		return err
	}
	if err := d.rounds.DeleteRound(ctx, u.ID, roundID); err != nil {
		err = golf.Classify("delete round", err)
		metrics.Deletions.WithLabelValues(outcome(err)).Inc()
		log.Error().Err(err).Str("user", u.ID).Str("roundId", roundID).Msg("delete round")
		return err
	}

	metrics.Deletions.WithLabelValues("ok").Inc()
	log.Info().Str("user", u.ID).Str("roundId", roundID).Msg("round deleted")
	return nil
}
