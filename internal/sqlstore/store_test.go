package sqlstore

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/golftrack/apps/go-server/assets"
	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "data", "golf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db, assets.Migrations()))
	return New(db)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, Migrate(context.Background(), s.DB(), assets.Migrations()))

	var n int
	require.NoError(t, s.DB().Get(&n, `SELECT COUNT(*) FROM _migrations`))
	assert.Equal(t, 3, n)
}

func TestUpsertHoleScoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r, err := s.CreateRound(ctx, golf.NewRound{UserID: "u1", HoleCount: golf.Nine, Date: "2026-10-14"})
	require.NoError(t, err)

	h := golf.Hole{Number: 3, Par: 4, Score: golf.IntPtr(5), Putts: 2, FairwayHit: true}
	require.NoError(t, s.UpsertHoleScore(ctx, r.ID, h))
	require.NoError(t, s.UpsertHoleScore(ctx, r.ID, h))

	var n int
	require.NoError(t, s.DB().Get(&n, s.DB().Rebind(`SELECT COUNT(*) FROM hole_scores WHERE round_id=?`), r.ID))
	assert.Equal(t, 1, n)

	h.Score = golf.IntPtr(0)
	require.NoError(t, s.UpsertHoleScore(ctx, r.ID, h))
	holes, err := s.HoleScores(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, holes, 1)
	assert.Equal(t, 0, *holes[0].Score)
	assert.True(t, holes[0].FairwayHit)
}

func TestUpsertHoleScoreUnknownRound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertHoleScore(context.Background(), "missing", golf.Hole{Number: 1, Score: golf.IntPtr(4)})
	assert.ErrorIs(t, err, golf.ErrNotFound)
}

func TestOneOpenRoundPerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.CreateRound(ctx, golf.NewRound{UserID: "u1", HoleCount: golf.Eighteen, Date: "2026-10-14"})
	require.NoError(t, err)
	_, err = s.CreateRound(ctx, golf.NewRound{UserID: "u1", HoleCount: golf.Nine, Date: "2026-10-14"})
	assert.ErrorIs(t, err, golf.ErrRoundInProgress)

	_, err = s.CreateRound(ctx, golf.NewRound{UserID: "u2", HoleCount: golf.Nine, Date: "2026-10-14"})
	require.NoError(t, err)

	require.NoError(t, s.FinalizeRound(ctx, "u1", first.ID, golf.Aggregates{TotalScore: 80, HoleCount: golf.Eighteen}))
	_, err = s.CreateRound(ctx, golf.NewRound{UserID: "u1", HoleCount: golf.Nine, Date: "2026-10-15"})
	assert.NoError(t, err, "a finalized round frees the slot")
}

func TestFindInProgressRound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_, err := s.FindInProgressRound(ctx, "u1")
	assert.ErrorIs(t, err, golf.ErrNotFound)

	done, err := s.CreateRound(ctx, golf.NewRound{UserID: "u1", CourseID: "links-championship", HoleCount: golf.Eighteen, Date: "2026-10-13"})
	require.NoError(t, err)
	require.NoError(t, s.FinalizeRound(ctx, "u1", done.ID, golf.Aggregates{TotalScore: 90, TotalPutts: 34, HoleCount: golf.Eighteen}))

	clock = clock.Add(time.Hour)
	open, err := s.CreateRound(ctx, golf.NewRound{UserID: "u1", HoleCount: golf.Nine, Date: "2026-10-14"})
	require.NoError(t, err)

	got, err := s.FindInProgressRound(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, open.ID, got.ID)
	assert.Equal(t, golf.Nine, got.HoleCount)
	assert.Nil(t, got.Totals)
	assert.True(t, got.CreatedAt.Equal(clock))

	completed, err := s.CompletedRounds(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID, completed[0].ID)
	require.NotNil(t, completed[0].Totals)
	assert.Equal(t, 34, completed[0].Totals.TotalPutts)
	assert.Equal(t, "links-championship", completed[0].CourseID)

	_, err = s.GetRound(ctx, "u2", open.ID)
	assert.ErrorIs(t, err, golf.ErrNotFound, "rounds are scoped by owner")
}

func TestFinalizedRoundRejectsHoleWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r, err := s.CreateRound(ctx, golf.NewRound{UserID: "u1", HoleCount: golf.Nine, Date: "2026-10-14"})
	require.NoError(t, err)
	require.NoError(t, s.FinalizeRound(ctx, "u1", r.ID, golf.Aggregates{TotalScore: 36, HoleCount: golf.Nine}))
	require.NoError(t, s.FinalizeRound(ctx, "u1", r.ID, golf.Aggregates{TotalScore: 36, HoleCount: golf.Nine}), "retry is harmless")

	err = s.UpsertHoleScore(ctx, r.ID, golf.Hole{Number: 1, Score: golf.IntPtr(4)})
	assert.ErrorIs(t, err, golf.ErrRoundFinalized)

	err = s.FinalizeRound(ctx, "u1", r.ID, golf.Aggregates{TotalScore: 41, HoleCount: golf.Nine})
	assert.ErrorIs(t, err, golf.ErrRoundFinalized, "committed totals are not overwritten")
	got, err := s.GetRound(ctx, "u1", r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Totals)
	assert.Equal(t, 36, got.Totals.TotalScore)

	assert.ErrorIs(t, s.FinalizeRound(ctx, "u2", r.ID, golf.Aggregates{HoleCount: golf.Nine}), golf.ErrNotFound)
}

func TestDeleteRound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r, err := s.CreateRound(ctx, golf.NewRound{UserID: "u1", HoleCount: golf.Nine, Date: "2026-10-14"})
	require.NoError(t, err)
	require.NoError(t, s.UpsertHoleScore(ctx, r.ID, golf.Hole{Number: 1, Score: golf.IntPtr(4)}))

	// Foreign keys forbid removing the round first.
	assert.Error(t, s.DeleteRound(ctx, "u1", r.ID))

	require.NoError(t, s.DeleteHoleScores(ctx, "u1", r.ID))
	require.NoError(t, s.DeleteRound(ctx, "u1", r.ID))
	assert.ErrorIs(t, s.DeleteRound(ctx, "u1", r.ID), golf.ErrNotFound)
}

func TestSeedCourses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	courses := []golf.Course{{
		ID:   "c1",
		Name: "Harbour",
		Holes: []golf.CourseHole{
			{Number: 1, Par: 4, Distance: 380},
			{Number: 2, Par: 3, Distance: 150},
		},
	}}
	require.NoError(t, s.SeedCourses(ctx, courses))
	courses[0].Holes[1].Distance = 165
	require.NoError(t, s.SeedCourses(ctx, courses))

	holes, err := s.CourseHoles(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []golf.CourseHole{{Number: 1, Par: 4, Distance: 380}, {Number: 2, Par: 3, Distance: 165}}, holes)

	holes, err = s.CourseHoles(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, holes)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return New(sqlx.NewDb(raw, "sqlmock")), mock
}

func TestDeleteHoleScoresErrorIsReturned(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM hole_scores`).
		WithArgs("r1", "u1").
		WillReturnError(errors.New("database is locked"))

	err := s.DeleteHoleScores(context.Background(), "u1", "r1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRoundNoRows(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE rounds`).
		WithArgs(72, 30, 9, 10, 18, "r1", "u1", 72, 30, 9, 10, 18).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM rounds`).
		WithArgs("r1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := s.FinalizeRound(context.Background(), "u1", "r1", golf.Aggregates{
		TotalScore: 72, TotalPutts: 30, FairwaysHit: 9, GreensInRegulation: 10, HoleCount: golf.Eighteen,
	})
	assert.ErrorIs(t, err, golf.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoundConnectionLoss(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO rounds`).WillReturnError(io.ErrUnexpectedEOF)

	_, err := s.CreateRound(context.Background(), golf.NewRound{UserID: "u1", HoleCount: golf.Nine, Date: "2026-10-14"})
	assert.True(t, golf.IsTransient(golf.Classify("create round", err)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
