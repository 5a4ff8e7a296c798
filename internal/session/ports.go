package session

import (
	"context"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
)

// HoleWriter upserts one hole keyed by (roundID, hole number).
type HoleWriter interface {
	UpsertHoleScore(ctx context.Context, roundID string, h golf.Hole) error
}

// RoundReader loads rounds and their reference data.
// FindInProgressRound and GetRound return golf.ErrNotFound when absent.
type RoundReader interface {
	FindInProgressRound(ctx context.Context, userID string) (golf.RoundRecord, error)
	GetRound(ctx context.Context, userID, roundID string) (golf.RoundRecord, error)
	HoleScores(ctx context.Context, roundID string) ([]golf.Hole, error)
	CourseHoles(ctx context.Context, courseID string) ([]golf.CourseHole, error)
}

// RoundCreator persists a new, empty round.
type RoundCreator interface {
	CreateRound(ctx context.Context, in golf.NewRound) (golf.RoundRecord, error)
}

// RoundCommitter writes the finalized aggregates of a round in one update.
type RoundCommitter interface {
	FinalizeRound(ctx context.Context, userID, roundID string, agg golf.Aggregates) error
}

// RoundFinisher commits aggregates and can read back the stored round
// length when the caller aggregated over a shorter window.
type RoundFinisher interface {
	RoundCommitter
	GetRound(ctx context.Context, userID, roundID string) (golf.RoundRecord, error)
}

// RoundRemover deletes a round's rows. Callers delete hole scores first.
type RoundRemover interface {
	DeleteHoleScores(ctx context.Context, userID, roundID string) error
	DeleteRound(ctx context.Context, userID, roundID string) error
}

// RoundLister lists a user's finalized rounds, newest first.
type RoundLister interface {
	CompletedRounds(ctx context.Context, userID string, limit int) ([]golf.RoundRecord, error)
}

// Repository is the full remote structured-record store.
type Repository interface {
	HoleWriter
	RoundReader
	RoundCreator
	RoundCommitter
	RoundRemover
	RoundLister
}

// Notification is a recoverable, user-facing failure report.
type Notification struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	RoundID   string `json:"roundId,omitempty"`
	Hole      int    `json:"hole,omitempty"`
	Retryable bool   `json:"retryable"`
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a func to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Publisher receives session events (see package events).
type Publisher interface {
	Publish(typ string, data any)
}

type discard struct{}

func (discard) Publish(string, any)                   {}
func (discard) Notify(context.Context, Notification) {}
