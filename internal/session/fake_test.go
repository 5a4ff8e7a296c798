package session

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
)

// fakeRepo is an in-memory Repository with injectable failures.
type fakeRepo struct {
	mu      sync.Mutex
	nextID  int
	rounds  map[string]golf.RoundRecord
	holes   map[string]map[int]golf.Hole
	courses map[string][]golf.CourseHole
	calls   []string

	upsertErr      error
	findErr        error
	finalizeErr    error
	deleteHolesErr error
	deleteRoundErr error
	createErr      error

	// block, when non-nil, stalls UpsertHoleScore until closed.
	block chan struct{}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		rounds:  make(map[string]golf.RoundRecord),
		holes:   make(map[string]map[int]golf.Hole),
		courses: make(map[string][]golf.CourseHole),
	}
}

func (f *fakeRepo) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeRepo) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRepo) addRound(r golf.RoundRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds[r.ID] = r
}

func (f *fakeRepo) rowCount(roundID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.holes[roundID])
}

func (f *fakeRepo) UpsertHoleScore(ctx context.Context, roundID string, h golf.Hole) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upsert:" + strconv.Itoa(h.Number))
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if r, ok := f.rounds[roundID]; ok && r.Totals != nil {
		return golf.ErrRoundFinalized
	}
	if f.holes[roundID] == nil {
		f.holes[roundID] = make(map[int]golf.Hole)
	}
	f.holes[roundID][h.Number] = h.Clone()
	return nil
}

func (f *fakeRepo) FindInProgressRound(ctx context.Context, userID string) (golf.RoundRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("find")
	if f.findErr != nil {
		return golf.RoundRecord{}, f.findErr
	}
	var best *golf.RoundRecord
	for _, r := range f.rounds {
		r := r
		if r.UserID != userID || r.Totals != nil {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = &r
		}
	}
	if best == nil {
		return golf.RoundRecord{}, golf.ErrNotFound
	}
	return *best, nil
}

func (f *fakeRepo) GetRound(ctx context.Context, userID, roundID string) (golf.RoundRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[roundID]
	if !ok || r.UserID != userID {
		return golf.RoundRecord{}, golf.ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) HoleScores(ctx context.Context, roundID string) ([]golf.Hole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]golf.Hole, 0, len(f.holes[roundID]))
	for _, h := range f.holes[roundID] {
		out = append(out, h.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *fakeRepo) CourseHoles(ctx context.Context, courseID string) ([]golf.CourseHole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.courses[courseID], nil
}

func (f *fakeRepo) CreateRound(ctx context.Context, in golf.NewRound) (golf.RoundRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create")
	if f.createErr != nil {
		return golf.RoundRecord{}, f.createErr
	}
	f.nextID++
	r := golf.RoundRecord{
		ID:        "round-" + strconv.Itoa(f.nextID),
		UserID:    in.UserID,
		CourseID:  in.CourseID,
		TeeID:     in.TeeID,
		HoleCount: in.HoleCount,
		Date:      in.Date,
		CreatedAt: time.Now(),
	}
	f.rounds[r.ID] = r
	return r, nil
}

func (f *fakeRepo) FinalizeRound(ctx context.Context, userID, roundID string, agg golf.Aggregates) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("finalize")
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	r, ok := f.rounds[roundID]
	if !ok || r.UserID != userID {
		return golf.ErrNotFound
	}
	r.Totals = &agg
	r.HoleCount = agg.HoleCount
	f.rounds[roundID] = r
	return nil
}

func (f *fakeRepo) DeleteHoleScores(ctx context.Context, userID, roundID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete_holes")
	if f.deleteHolesErr != nil {
		return f.deleteHolesErr
	}
	delete(f.holes, roundID)
	return nil
}

func (f *fakeRepo) DeleteRound(ctx context.Context, userID, roundID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete_round")
	if f.deleteRoundErr != nil {
		return f.deleteRoundErr
	}
	delete(f.rounds, roundID)
	return nil
}

func (f *fakeRepo) CompletedRounds(ctx context.Context, userID string, limit int) ([]golf.RoundRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []golf.RoundRecord
	for _, r := range f.rounds {
		if r.UserID == userID && r.Totals != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// recorder collects notifications.
type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

// failingStore is a kv.Store whose every call fails.
type failingStore struct{ err error }

func (s failingStore) Get(context.Context, string) (string, bool, error) { return "", false, s.err }
func (s failingStore) Set(context.Context, string, string) error         { return s.err }
func (s failingStore) Delete(context.Context, string) error              { return s.err }
