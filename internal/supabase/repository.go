package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
)

// Table names in the hosted schema.
const (
	tableRounds      = "rounds"
	tableHoleScores  = "hole_scores"
	tableCourseHoles = "course_holes"
)

// pgUniqueViolation is the Postgres SQLSTATE PostgREST forwards on a
// unique conflict.
const pgUniqueViolation = "23505"

// Repository implements session.Repository against Supabase.
type Repository struct {
	client *Client
	now    func() time.Time
	newID  func() string
}

func NewRepository(c *Client) *Repository {
	return &Repository{client: c, now: time.Now, newID: uuid.NewString}
}

type roundRow struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	CourseID           *string   `json:"course_id"`
	TeeID              *string   `json:"tee_id"`
	HoleCount          int       `json:"hole_count"`
	Date               string    `json:"date"`
	CreatedAt          time.Time `json:"created_at"`
	TotalScore         *int      `json:"total_score"`
	TotalPutts         *int      `json:"total_putts"`
	FairwaysHit        *int      `json:"fairways_hit"`
	GreensInRegulation *int      `json:"greens_in_regulation"`
}

func (r roundRow) record() golf.RoundRecord {
	rec := golf.RoundRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		HoleCount: golf.HoleCount(r.HoleCount),
		Date:      r.Date,
		CreatedAt: r.CreatedAt,
	}
	if r.CourseID != nil {
		rec.CourseID = *r.CourseID
	}
	if r.TeeID != nil {
		rec.TeeID = *r.TeeID
	}
	if r.TotalScore != nil {
		rec.Totals = &golf.Aggregates{
			TotalScore:         *r.TotalScore,
			TotalPutts:         deref(r.TotalPutts),
			FairwaysHit:        deref(r.FairwaysHit),
			GreensInRegulation: deref(r.GreensInRegulation),
			HoleCount:          golf.HoleCount(r.HoleCount),
		}
	}
	return rec
}

type holeRow struct {
	RoundID           string `json:"round_id"`
	HoleNumber        int    `json:"hole_number"`
	Score             int    `json:"score"`
	Putts             int    `json:"putts"`
	FairwayHit        bool   `json:"fairway_hit"`
	GreenInRegulation bool   `json:"green_in_regulation"`
}

type courseHoleRow struct {
	HoleNumber int `json:"hole_number"`
	Par        int `json:"par"`
	Distance   int `json:"distance"`
}

type finalizePatch struct {
	TotalScore         int `json:"total_score"`
	TotalPutts         int `json:"total_putts"`
	FairwaysHit        int `json:"fairways_hit"`
	GreensInRegulation int `json:"greens_in_regulation"`
	HoleCount          int `json:"hole_count"`
}

func (r *Repository) CreateRound(ctx context.Context, in golf.NewRound) (golf.RoundRecord, error) {
	if _, err := golf.ParseHoleCount(int(in.HoleCount)); err != nil {
		return golf.RoundRecord{}, err
	}
	row := roundRow{
		ID:        r.newID(),
		UserID:    in.UserID,
		CourseID:  optional(in.CourseID),
		TeeID:     optional(in.TeeID),
		HoleCount: int(in.HoleCount),
		Date:      in.Date,
		CreatedAt: r.now().UTC(),
	}
	var out []roundRow
	if err := r.call("create round", &out, func() (*Response, error) {
		return r.client.From(tableRounds).Insert(ctx, []roundRow{row})
	}); err != nil {
		var api *APIError
		if errors.As(err, &api) && api.Code == pgUniqueViolation {
			return golf.RoundRecord{}, golf.ErrRoundInProgress
		}
		return golf.RoundRecord{}, err
	}
	if len(out) == 0 {
		return row.record(), nil
	}
	return out[0].record(), nil
}

func (r *Repository) FindInProgressRound(ctx context.Context, userID string) (golf.RoundRecord, error) {
	var rows []roundRow
	err := r.call("find in-progress round", &rows, func() (*Response, error) {
		return r.client.From(tableRounds).
			Select("*").
			Eq("user_id", userID).
			Is("total_score", "null").
			Order("created_at", false).
			Limit(1).
			Execute(ctx)
	})
	if err != nil {
		return golf.RoundRecord{}, err
	}
	if len(rows) == 0 {
		return golf.RoundRecord{}, golf.ErrNotFound
	}
	return rows[0].record(), nil
}

func (r *Repository) GetRound(ctx context.Context, userID, roundID string) (golf.RoundRecord, error) {
	var rows []roundRow
	err := r.call("get round", &rows, func() (*Response, error) {
		return r.client.From(tableRounds).
			Select("*").
			Eq("id", roundID).
			Eq("user_id", userID).
			Limit(1).
			Execute(ctx)
	})
	if err != nil {
		return golf.RoundRecord{}, err
	}
	if len(rows) == 0 {
		return golf.RoundRecord{}, golf.ErrNotFound
	}
	return rows[0].record(), nil
}

func (r *Repository) CompletedRounds(ctx context.Context, userID string, limit int) ([]golf.RoundRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []roundRow
	err := r.call("list completed rounds", &rows, func() (*Response, error) {
		return r.client.From(tableRounds).
			Select("*").
			Eq("user_id", userID).
			Filter("total_score", "not.is", "null").
			Order("created_at", false).
			Limit(limit).
			Execute(ctx)
	})
	if err != nil {
		return nil, err
	}
	out := make([]golf.RoundRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (r *Repository) HoleScores(ctx context.Context, roundID string) ([]golf.Hole, error) {
	var rows []holeRow
	err := r.call("list hole scores", &rows, func() (*Response, error) {
		return r.client.From(tableHoleScores).
			Select("*").
			Eq("round_id", roundID).
			Order("hole_number", true).
			Execute(ctx)
	})
	if err != nil {
		return nil, err
	}
	out := make([]golf.Hole, 0, len(rows))
	for _, row := range rows {
		out = append(out, golf.Hole{
			Number:            row.HoleNumber,
			Score:             golf.IntPtr(row.Score),
			Putts:             row.Putts,
			FairwayHit:        row.FairwayHit,
			GreenInRegulation: row.GreenInRegulation,
		})
	}
	return out, nil
}

func (r *Repository) CourseHoles(ctx context.Context, courseID string) ([]golf.CourseHole, error) {
	var rows []courseHoleRow
	err := r.call("list course holes", &rows, func() (*Response, error) {
		return r.client.From(tableCourseHoles).
			Select("hole_number,par,distance").
			Eq("course_id", courseID).
			Order("hole_number", true).
			Execute(ctx)
	})
	if err != nil {
		return nil, err
	}
	out := make([]golf.CourseHole, 0, len(rows))
	for _, row := range rows {
		out = append(out, golf.CourseHole{Number: row.HoleNumber, Par: row.Par, Distance: row.Distance})
	}
	return out, nil
}

// UpsertHoleScore merges on (round_id, hole_number). Finalized rounds
// reject writes.
func (r *Repository) UpsertHoleScore(ctx context.Context, roundID string, h golf.Hole) error {
	if h.Score == nil {
		return &golf.ValidationError{Field: "score", Value: nil, Reason: "required"}
	}
	var rounds []roundRow
	if err := r.call("check round", &rounds, func() (*Response, error) {
		return r.client.From(tableRounds).Select("id,total_score").Eq("id", roundID).Limit(1).Execute(ctx)
	}); err != nil {
		return err
	}
	if len(rounds) == 0 {
		return golf.ErrNotFound
	}
	if rounds[0].TotalScore != nil {
		return golf.ErrRoundFinalized
	}

	row := holeRow{
		RoundID:           roundID,
		HoleNumber:        h.Number,
		Score:             *h.Score,
		Putts:             h.Putts,
		FairwayHit:        h.FairwayHit,
		GreenInRegulation: h.GreenInRegulation,
	}
	return r.call("upsert hole score", nil, func() (*Response, error) {
		return r.client.From(tableHoleScores).Upsert(ctx, []holeRow{row}, "round_id,hole_number")
	})
}

// FinalizeRound patches the aggregates onto a round that is open, or that
// already carries the same totals so a retry still matches a row.
func (r *Repository) FinalizeRound(ctx context.Context, userID, roundID string, agg golf.Aggregates) error {
	same := fmt.Sprintf("and(total_score.eq.%d,total_putts.eq.%d,fairways_hit.eq.%d,greens_in_regulation.eq.%d,hole_count.eq.%d)",
		agg.TotalScore, agg.TotalPutts, agg.FairwaysHit, agg.GreensInRegulation, int(agg.HoleCount))
	var rows []roundRow
	err := r.call("finalize round", &rows, func() (*Response, error) {
		return r.client.From(tableRounds).
			Eq("id", roundID).
			Eq("user_id", userID).
			Or("total_score.is.null," + same).
			Update(ctx, finalizePatch{
				TotalScore:         agg.TotalScore,
				TotalPutts:         agg.TotalPutts,
				FairwaysHit:        agg.FairwaysHit,
				GreensInRegulation: agg.GreensInRegulation,
				HoleCount:          int(agg.HoleCount),
			})
	})
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}
	if _, err := r.GetRound(ctx, userID, roundID); err != nil {
		return err
	}
	return golf.ErrRoundFinalized
}

// DeleteHoleScores checks ownership through the round row, then deletes.
func (r *Repository) DeleteHoleScores(ctx context.Context, userID, roundID string) error {
	if _, err := r.GetRound(ctx, userID, roundID); err != nil {
		return err
	}
	return r.call("delete hole scores", nil, func() (*Response, error) {
		return r.client.From(tableHoleScores).Eq("round_id", roundID).Delete(ctx)
	})
}

func (r *Repository) DeleteRound(ctx context.Context, userID, roundID string) error {
	var rows []roundRow
	err := r.call("delete round", &rows, func() (*Response, error) {
		return r.client.From(tableRounds).Eq("id", roundID).Eq("user_id", userID).Delete(ctx)
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return golf.ErrNotFound
	}
	return nil
}

// call runs fn, classifies transport and status failures, and decodes the
// body into out when out is non-nil.
func (r *Repository) call(op string, out any, fn func() (*Response, error)) error {
	resp, err := fn()
	if err != nil {
		return golf.Classify(op, err)
	}
	if err := resp.Err(); err != nil {
		return golf.ClassifyStatus(op, resp.StatusCode, err)
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := resp.JSON(out); err != nil {
		return &golf.PersistenceError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
