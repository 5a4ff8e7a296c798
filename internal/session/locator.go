// apps/go-server/internal/session/locator.go
//
// InProgressRoundLocator finds and rehydrates a user's unfinished round.
// The returned hole sequence is always complete: 1..holeCount, with course
// par/distance where known and defaults elsewhere.

package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
)

// LoadedRound is a round record plus its complete hole sequence.
type LoadedRound struct {
	Record golf.RoundRecord `json:"round"`
	Holes  []golf.Hole      `json:"holes"`
}

type InProgressRoundLocator struct {
	rounds RoundReader
	ids    identity.Provider
}

func NewInProgressRoundLocator(r RoundReader, ids identity.Provider) *InProgressRoundLocator {
	return &InProgressRoundLocator{rounds: r, ids: ids}
}

// FetchInProgressRound returns the user's most recent unfinished round, or
// nil when there is no user, no such round, or the lookup failed.
func (l *InProgressRoundLocator) FetchInProgressRound(ctx context.Context) *LoadedRound {
	u, ok := l.ids.CurrentUser(ctx)
	if !ok {
		return nil
	}
	rec, err := l.rounds.FindInProgressRound(ctx, u.ID)
	if err != nil {
		if !errors.Is(err, golf.ErrNotFound) {
			log.Warn().Err(err).Str("user", u.ID).Msg("find in-progress round")
		}
		return nil
	}
	lr, err := l.hydrate(ctx, rec)
	if err != nil {
		log.Warn().Err(err).Str("user", u.ID).Str("roundId", rec.ID).Msg("load in-progress round")
		return nil
	}
	return lr
}

// LoadRound opens a specific round owned by the current user. Finalized
// rounds cannot be reopened.
func (l *InProgressRoundLocator) LoadRound(ctx context.Context, roundID string) (*LoadedRound, error) {
	u, ok := l.ids.CurrentUser(ctx)
	if !ok {
		return nil, golf.ErrUnauthorized
	}
	if roundID == "" {
		return nil, &golf.ValidationError{Field: "roundId", Value: roundID, Reason: "required"}
	}
	rec, err := l.rounds.GetRound(ctx, u.ID, roundID)
	if err != nil {
		return nil, golf.Classify("get round", err)
	}
	// Only a round that can still be finalized may be opened for play.
	if err := golf.CheckTransition(rec.Status(), golf.StatusFinalized); err != nil {
		return nil, err
	}
	lr, err := l.hydrate(ctx, rec)
	if err != nil {
		return nil, golf.Classify("load round", err)
	}
	return lr, nil
}

func (l *InProgressRoundLocator) hydrate(ctx context.Context, rec golf.RoundRecord) (*LoadedRound, error) {
	count := rec.HoleCount
	if !count.Valid() {
		log.Warn().Str("roundId", rec.ID).Int("holeCount", int(count)).Msg("round has invalid hole count; using default")
		count = golf.DefaultHoleCount
		rec.HoleCount = count
	}

	var ref []golf.CourseHole
	if rec.CourseID != "" {
		var err error
		ref, err = l.rounds.CourseHoles(ctx, rec.CourseID)
		if err != nil {
			// Reference data is optional; holes fall back to defaults.
			log.Warn().Err(err).Str("courseId", rec.CourseID).Msg("load course holes")
			ref = nil
		}
	}

	scores, err := l.rounds.HoleScores(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return &LoadedRound{Record: rec, Holes: golf.CompleteHoles(count, ref, scores)}, nil
}
