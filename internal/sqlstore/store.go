// apps/go-server/internal/sqlstore/store.go
//
// Relational round store.
// Responsibilities:
//   - rounds: create, lookup (in-progress / by id / completed), finalize, delete.
//   - hole_scores: upsert keyed by (round_id, hole_number), ordered reads, delete.
//   - golf_courses / course_holes: reference data reads and idempotent seeding.
//
// Every round query is scoped by user_id. created_at is stored as fixed-width
// UTC text so ordering is lexical on both SQLite and Postgres.

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements session.Repository on a SQL database.
type Store struct {
	db    *sqlx.DB
	now   func() time.Time
	newID func() string
}

// New wraps an open, migrated database.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now, newID: uuid.NewString}
}

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB { return s.db }

type roundRow struct {
	ID                 string         `db:"id"`
	UserID             string         `db:"user_id"`
	CourseID           sql.NullString `db:"course_id"`
	TeeID              sql.NullString `db:"tee_id"`
	HoleCount          int            `db:"hole_count"`
	Date               string         `db:"date"`
	CreatedAt          string         `db:"created_at"`
	TotalScore         sql.NullInt64  `db:"total_score"`
	TotalPutts         sql.NullInt64  `db:"total_putts"`
	FairwaysHit        sql.NullInt64  `db:"fairways_hit"`
	GreensInRegulation sql.NullInt64  `db:"greens_in_regulation"`
}

const roundColumns = `id, user_id, course_id, tee_id, hole_count, date, created_at,
    total_score, total_putts, fairways_hit, greens_in_regulation`

func (r roundRow) record() golf.RoundRecord {
	rec := golf.RoundRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		CourseID:  r.CourseID.String,
		TeeID:     r.TeeID.String,
		HoleCount: golf.HoleCount(r.HoleCount),
		Date:      r.Date,
	}
	if t, err := time.Parse(timeLayout, r.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	if r.TotalScore.Valid {
		rec.Totals = &golf.Aggregates{
			TotalScore:         int(r.TotalScore.Int64),
			TotalPutts:         int(r.TotalPutts.Int64),
			FairwaysHit:        int(r.FairwaysHit.Int64),
			GreensInRegulation: int(r.GreensInRegulation.Int64),
			HoleCount:          golf.HoleCount(r.HoleCount),
		}
	}
	return rec
}

type holeRow struct {
	HoleNumber        int  `db:"hole_number"`
	Score             int  `db:"score"`
	Putts             int  `db:"putts"`
	FairwayHit        bool `db:"fairway_hit"`
	GreenInRegulation bool `db:"green_in_regulation"`
}

// CreateRound inserts an in-progress round. A second open round for the
// same user violates rounds_one_open_per_user and maps to
// golf.ErrRoundInProgress.
func (s *Store) CreateRound(ctx context.Context, in golf.NewRound) (golf.RoundRecord, error) {
	if _, err := golf.ParseHoleCount(int(in.HoleCount)); err != nil {
		return golf.RoundRecord{}, err
	}
	row := roundRow{
		ID:        s.newID(),
		UserID:    in.UserID,
		CourseID:  nullString(in.CourseID),
		TeeID:     nullString(in.TeeID),
		HoleCount: int(in.HoleCount),
		Date:      in.Date,
		CreatedAt: s.now().UTC().Format(timeLayout),
	}
	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO rounds (id, user_id, course_id, tee_id, hole_count, date, created_at)
        VALUES (:id, :user_id, :course_id, :tee_id, :hole_count, :date, :created_at)`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return golf.RoundRecord{}, golf.ErrRoundInProgress
		}
		return golf.RoundRecord{}, fmt.Errorf("insert round: %w", err)
	}
	return row.record(), nil
}

// FindInProgressRound returns the user's newest round with no total score.
func (s *Store) FindInProgressRound(ctx context.Context, userID string) (golf.RoundRecord, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
        SELECT `+roundColumns+`
        FROM rounds
        WHERE user_id=? AND total_score IS NULL
        ORDER BY created_at DESC
        LIMIT 1`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return golf.RoundRecord{}, golf.ErrNotFound
	}
	if err != nil {
		return golf.RoundRecord{}, fmt.Errorf("find in-progress round: %w", err)
	}
	return row.record(), nil
}

func (s *Store) GetRound(ctx context.Context, userID, roundID string) (golf.RoundRecord, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
        SELECT `+roundColumns+` FROM rounds WHERE id=? AND user_id=?`), roundID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return golf.RoundRecord{}, golf.ErrNotFound
	}
	if err != nil {
		return golf.RoundRecord{}, fmt.Errorf("get round: %w", err)
	}
	return row.record(), nil
}

// CompletedRounds lists finalized rounds, newest first. limit <= 0 means 20.
func (s *Store) CompletedRounds(ctx context.Context, userID string, limit int) ([]golf.RoundRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []roundRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
        SELECT `+roundColumns+`
        FROM rounds
        WHERE user_id=? AND total_score IS NOT NULL
        ORDER BY created_at DESC
        LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed rounds: %w", err)
	}
	out := make([]golf.RoundRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// HoleScores returns the captured holes of a round ordered by hole number.
// Par and distance are not part of hole_scores; callers merge course data.
func (s *Store) HoleScores(ctx context.Context, roundID string) ([]golf.Hole, error) {
	var rows []holeRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
        SELECT hole_number, score, putts, fairway_hit, green_in_regulation
        FROM hole_scores
        WHERE round_id=?
        ORDER BY hole_number ASC`), roundID)
	if err != nil {
		return nil, fmt.Errorf("list hole scores: %w", err)
	}
	out := make([]golf.Hole, 0, len(rows))
	for _, r := range rows {
		out = append(out, golf.Hole{
			Number:            r.HoleNumber,
			Score:             golf.IntPtr(r.Score),
			Putts:             r.Putts,
			FairwayHit:        r.FairwayHit,
			GreenInRegulation: r.GreenInRegulation,
		})
	}
	return out, nil
}

// UpsertHoleScore inserts or replaces the (round, hole) row. Finalized
// rounds reject writes.
func (s *Store) UpsertHoleScore(ctx context.Context, roundID string, h golf.Hole) error {
	if h.Score == nil {
		return &golf.ValidationError{Field: "score", Value: nil, Reason: "required"}
	}
	var total sql.NullInt64
	err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT total_score FROM rounds WHERE id=?`), roundID)
	if errors.Is(err, sql.ErrNoRows) {
		return golf.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check round: %w", err)
	}
	if total.Valid {
		return golf.ErrRoundFinalized
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
        INSERT INTO hole_scores (round_id, hole_number, score, putts, fairway_hit, green_in_regulation)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (round_id, hole_number) DO UPDATE SET
            score = excluded.score,
            putts = excluded.putts,
            fairway_hit = excluded.fairway_hit,
            green_in_regulation = excluded.green_in_regulation`),
		roundID, h.Number, *h.Score, h.Putts, h.FairwayHit, h.GreenInRegulation,
	)
	if err != nil {
		return fmt.Errorf("upsert hole score: %w", err)
	}
	return nil
}

// FinalizeRound writes the aggregates in one UPDATE. Repeating it with the
// same values is harmless; different totals on a finalized round are
// rejected with golf.ErrRoundFinalized.
func (s *Store) FinalizeRound(ctx context.Context, userID, roundID string, agg golf.Aggregates) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
        UPDATE rounds
        SET total_score=?, total_putts=?, fairways_hit=?, greens_in_regulation=?, hole_count=?
        WHERE id=? AND user_id=?
          AND (total_score IS NULL OR (total_score=? AND total_putts=? AND fairways_hit=?
               AND greens_in_regulation=? AND hole_count=?))`),
		agg.TotalScore, agg.TotalPutts, agg.FairwaysHit, agg.GreensInRegulation, int(agg.HoleCount),
		roundID, userID,
		agg.TotalScore, agg.TotalPutts, agg.FairwaysHit, agg.GreensInRegulation, int(agg.HoleCount),
	)
	if err != nil {
		return fmt.Errorf("finalize round: %w", err)
	}
	if err := expectRow(res); !errors.Is(err, golf.ErrNotFound) {
		return err
	}

	var n int
	err = s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM rounds WHERE id=? AND user_id=?`), roundID, userID)
	if err != nil {
		return fmt.Errorf("check round: %w", err)
	}
	if n > 0 {
		return golf.ErrRoundFinalized
	}
	return golf.ErrNotFound
}

// DeleteHoleScores removes the hole rows of a round owned by userID.
func (s *Store) DeleteHoleScores(ctx context.Context, userID, roundID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
        DELETE FROM hole_scores
        WHERE round_id IN (SELECT id FROM rounds WHERE id=? AND user_id=?)`), roundID, userID)
	if err != nil {
		return fmt.Errorf("delete hole scores: %w", err)
	}
	return nil
}

func (s *Store) DeleteRound(ctx context.Context, userID, roundID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM rounds WHERE id=? AND user_id=?`), roundID, userID)
	if err != nil {
		return fmt.Errorf("delete round: %w", err)
	}
	return expectRow(res)
}

// CourseHoles returns the reference holes of a course, possibly empty.
func (s *Store) CourseHoles(ctx context.Context, courseID string) ([]golf.CourseHole, error) {
	var out []golf.CourseHole
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
        SELECT hole_number AS number, par, distance
        FROM course_holes
        WHERE course_id=?
        ORDER BY hole_number ASC`), courseID)
	if err != nil {
		return nil, fmt.Errorf("list course holes: %w", err)
	}
	return out, nil
}

// SeedCourses upserts courses and their holes in one transaction.
func (s *Store) SeedCourses(ctx context.Context, courses []golf.Course) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	courseStmt := tx.Rebind(`
        INSERT INTO golf_courses (id, name) VALUES (?, ?)
        ON CONFLICT (id) DO UPDATE SET name = excluded.name`)
	holeStmt := tx.Rebind(`
        INSERT INTO course_holes (course_id, hole_number, par, distance) VALUES (?, ?, ?, ?)
        ON CONFLICT (course_id, hole_number) DO UPDATE SET par = excluded.par, distance = excluded.distance`)

	for _, c := range courses {
		if _, err := tx.ExecContext(ctx, courseStmt, c.ID, c.Name); err != nil {
			return fmt.Errorf("seed course %s: %w", c.ID, err)
		}
		for _, h := range c.Holes {
			if _, err := tx.ExecContext(ctx, holeStmt, c.ID, h.Number, h.Par, h.Distance); err != nil {
				return fmt.Errorf("seed course %s hole %d: %w", c.ID, h.Number, err)
			}
		}
	}
	return tx.Commit()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return golf.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
