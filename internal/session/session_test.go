package session

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/golftrack/apps/go-server/internal/events"
	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/kv"
	"github.com/robalobadob/golftrack/apps/go-server/internal/navigation"
)

type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (e *eventLog) Publish(typ string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, typ)
}

func (e *eventLog) Has(typ string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.types {
		if t == typ {
			return true
		}
	}
	return false
}

type fixture struct {
	repo   *fakeRepo
	sess   *Session
	eph    *kv.Memory
	dur    *kv.Memory
	events *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	scopes, eph, dur := newScopes()
	f := &fixture{repo: newFakeRepo(), eph: eph, dur: dur, events: &eventLog{}}
	f.sess = New(Deps{
		Rounds:   f.repo,
		Identity: player,
		Scopes:   scopes,
		Events:   f.events,
	})
	t.Cleanup(f.sess.Close)
	return f
}

func TestStartWithoutRoundIsIdle(t *testing.T) {
	f := newFixture(t)
	snap, err := f.sess.Start(context.Background(), StartOptions{Route: RouteContext{Path: "/rounds/new/9"}})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, golf.Nine, snap.HoleCount)
	assert.Len(t, snap.Holes, 9)
}

func TestStartResumesInProgressRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.addRound(golf.RoundRecord{ID: "old", UserID: "u1", HoleCount: golf.Nine, CreatedAt: time.Now().Add(-time.Hour)})
	f.repo.addRound(golf.RoundRecord{ID: "r1", UserID: "u1", CourseID: "c1", HoleCount: golf.Nine, CreatedAt: time.Now()})
	f.repo.courses["c1"] = []golf.CourseHole{{Number: 1, Par: 5, Distance: 480}}
	require.NoError(t, f.repo.UpsertHoleScore(ctx, "r1", golf.Hole{Number: 2, Par: 4, Score: golf.IntPtr(4)}))
	require.NoError(t, f.eph.Set(ctx, kv.KeyResumeHole, "5"))
	require.NoError(t, f.dur.Set(ctx, kv.KeyResumeHole, "3"))

	snap, err := f.sess.Start(ctx, StartOptions{Route: RouteContext{Path: "/rounds/new/18"}})
	require.NoError(t, err)

	assert.Equal(t, PhaseEditing, snap.Phase)
	assert.Equal(t, "r1", snap.RoundID)
	assert.Equal(t, golf.Nine, snap.HoleCount, "round hole count wins over the path")
	assert.Equal(t, 5, snap.CurrentHole)
	require.Len(t, snap.Holes, 9)
	assert.Equal(t, 5, snap.Holes[0].Par)
	assert.Equal(t, 480, snap.Holes[0].Distance)
	assert.Equal(t, 4, *snap.Holes[1].Score)
	assert.Equal(t, golf.DefaultPar, snap.Holes[8].Par)
	assert.Equal(t, "9", storedCount(t, f.dur))
}

func TestStartClampsResumeMarker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.addRound(golf.RoundRecord{ID: "r1", UserID: "u1", HoleCount: golf.Nine})
	require.NoError(t, f.dur.Set(ctx, kv.KeyResumeHole, "14"))

	snap, err := f.sess.Start(ctx, StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, 9, snap.CurrentHole)
}

func TestStartExplicitFinalizedRound(t *testing.T) {
	f := newFixture(t)
	f.repo.addRound(golf.RoundRecord{ID: "done", UserID: "u1", HoleCount: golf.Nine, Totals: &golf.Aggregates{TotalScore: 40}})

	_, err := f.sess.Start(context.Background(), StartOptions{RoundID: "done"})
	assert.True(t, golf.IsValidation(err))
	snap := f.sess.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	require.NotNil(t, snap.LastError)
	assert.False(t, snap.LastError.Retryable)
}

func TestStartLocatorFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.repo.findErr = errors.New("relation rounds does not exist")

	snap, err := f.sess.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.RoundID)
}

func TestStartKeepsHeldRound(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup fails", func(t *testing.T) {
		f := newFixture(t)
		snap, err := f.sess.NewRound(ctx, NewRoundInput{HoleCount: golf.Nine})
		require.NoError(t, err)

		f.repo.mu.Lock()
		f.repo.upsertErr = syscall.ECONNREFUSED
		f.repo.mu.Unlock()
		_, err = f.sess.EditHole(ctx, 1, HolePatch{Score: golf.IntPtr(5)})
		require.NoError(t, err)
		f.sess.Wait()

		f.repo.mu.Lock()
		f.repo.findErr = syscall.ECONNREFUSED
		f.repo.mu.Unlock()
		got, err := f.sess.Start(ctx, StartOptions{})
		require.NoError(t, err)
		assert.Equal(t, PhaseEditing, got.Phase)
		assert.Equal(t, snap.RoundID, got.RoundID)
		require.NotNil(t, got.Holes[0].Score)
		assert.Equal(t, 5, *got.Holes[0].Score)
	})

	t.Run("lookup returns the same round", func(t *testing.T) {
		f := newFixture(t)
		snap, err := f.sess.NewRound(ctx, NewRoundInput{HoleCount: golf.Nine})
		require.NoError(t, err)

		f.repo.mu.Lock()
		f.repo.upsertErr = syscall.ECONNREFUSED
		f.repo.mu.Unlock()
		_, err = f.sess.EditHole(ctx, 2, HolePatch{Score: golf.IntPtr(3)})
		require.NoError(t, err)
		f.sess.Wait()

		got, err := f.sess.Start(ctx, StartOptions{})
		require.NoError(t, err)
		assert.Equal(t, snap.RoundID, got.RoundID)
		require.NotNil(t, got.Holes[1].Score, "unsynced local edit survives")
		assert.Equal(t, 3, *got.Holes[1].Score)
	})
}

func TestFinishWaitsForPendingHoleWrites(t *testing.T) {
	ctx := context.Background()
	scopes, _, _ := newScopes()
	repo := newFakeRepo()
	notes := &recorder{}
	sess := New(Deps{Rounds: repo, Identity: player, Scopes: scopes, Notifier: notes})
	t.Cleanup(sess.Close)

	snap, err := sess.NewRound(ctx, NewRoundInput{HoleCount: golf.Nine})
	require.NoError(t, err)
	for n := 1; n <= 8; n++ {
		_, err := sess.EditHole(ctx, n, HolePatch{Score: golf.IntPtr(4)})
		require.NoError(t, err)
	}
	sess.Wait()

	gate := make(chan struct{})
	repo.block = gate
	_, err = sess.EditHole(ctx, 9, HolePatch{Score: golf.IntPtr(3)})
	require.NoError(t, err)

	type result struct {
		agg golf.Aggregates
		err error
	}
	done := make(chan result, 1)
	go func() {
		agg, err := sess.Finish(ctx)
		done <- result{agg, err}
	}()

	select {
	case <-done:
		t.Fatal("round finalized while hole 9 was still in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 35, res.agg.TotalScore)
	assert.Equal(t, 9, repo.rowCount(snap.RoundID))
	assert.Zero(t, notes.Len())

	calls := repo.Calls()
	assert.Equal(t, "finalize", calls[len(calls)-1])
}

func TestNewRoundEditFinish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.courses["c1"] = []golf.CourseHole{{Number: 2, Par: 3, Distance: 160}}

	snap, err := f.sess.NewRound(ctx, NewRoundInput{CourseID: "c1", HoleCount: golf.Nine})
	require.NoError(t, err)
	assert.Equal(t, PhaseEditing, snap.Phase)
	assert.NotEmpty(t, snap.RoundID)
	assert.Equal(t, 3, snap.Holes[1].Par)
	assert.Equal(t, "1", storedResume(t, f.eph))

	_, err = f.sess.NewRound(ctx, NewRoundInput{HoleCount: golf.Nine})
	assert.ErrorIs(t, err, golf.ErrRoundInProgress)

	_, err = f.sess.EditHole(ctx, 1, HolePatch{Score: golf.IntPtr(5), Putts: golf.IntPtr(2), FairwayHit: ptr(true)})
	require.NoError(t, err)
	_, err = f.sess.EditHole(ctx, 2, HolePatch{Score: golf.IntPtr(3), Putts: golf.IntPtr(1), FairwayHit: ptr(true), GreenInRegulation: ptr(true)})
	require.NoError(t, err)
	f.sess.Wait()

	assert.Equal(t, 2, f.repo.rowCount(snap.RoundID))
	assert.True(t, f.events.Has(events.TypeSaving))
	assert.True(t, f.events.Has(events.TypeProgress))
	assert.Equal(t, 2, f.sess.Snapshot().Progress.HolesPlayed)

	require.NoError(t, f.sess.GoToHole(ctx, 9))
	assert.Equal(t, "9", storedResume(t, f.dur))

	agg, err := f.sess.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, agg.TotalScore)
	assert.Equal(t, 1, agg.FairwaysHit)
	assert.Equal(t, PhaseIdle, f.sess.Phase())
	assert.Empty(t, f.sess.Snapshot().RoundID)
	assert.Zero(t, f.eph.Len())
}

func TestFinishFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.sess.NewRound(ctx, NewRoundInput{HoleCount: golf.Nine})
	require.NoError(t, err)

	f.repo.mu.Lock()
	f.repo.finalizeErr = errors.New("row level security")
	f.repo.mu.Unlock()

	_, err = f.sess.Finish(ctx)
	require.Error(t, err)
	snap := f.sess.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.NotEmpty(t, snap.RoundID, "round stays in progress")
	require.NotNil(t, snap.LastError)
	assert.True(t, snap.LastError.Retryable)
	assert.True(t, f.events.Has(events.TypeNotification))

	f.repo.mu.Lock()
	f.repo.finalizeErr = nil
	f.repo.mu.Unlock()

	_, err = f.sess.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, f.sess.Phase())
	assert.Nil(t, f.sess.Snapshot().LastError)
}

func TestDeleteActiveRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	snap, err := f.sess.NewRound(ctx, NewRoundInput{HoleCount: golf.Eighteen})
	require.NoError(t, err)

	f.repo.mu.Lock()
	f.repo.deleteHolesErr = errors.New("timeout acquiring lock")
	f.repo.mu.Unlock()
	require.Error(t, f.sess.Delete(ctx, ""))
	assert.Equal(t, PhaseEditing, f.sess.Phase())
	assert.Equal(t, snap.RoundID, f.sess.Snapshot().RoundID)

	f.repo.mu.Lock()
	f.repo.deleteHolesErr = nil
	f.repo.mu.Unlock()
	require.NoError(t, f.sess.Delete(ctx, ""))
	assert.Equal(t, PhaseIdle, f.sess.Phase())
	assert.Empty(t, f.sess.Snapshot().RoundID)
	_, ok, _ := f.dur.Get(ctx, kv.KeyResumeHole)
	assert.False(t, ok)
}

func TestUpdateHoleCountBeforeRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sess.UpdateHoleCount(ctx, 9))
	assert.Len(t, f.sess.Snapshot().Holes, 9)
	assert.True(t, golf.IsValidation(f.sess.UpdateHoleCount(ctx, 10)))
	assert.Len(t, f.sess.Snapshot().Holes, 9)

	_, err := f.sess.NewRound(ctx, NewRoundInput{})
	require.NoError(t, err)
	assert.Equal(t, golf.Nine, f.sess.Snapshot().HoleCount)
	assert.Error(t, f.sess.UpdateHoleCount(ctx, 18))
}

func TestNavigationResizesScorecard(t *testing.T) {
	scopes, _, _ := newScopes()
	nav := navigation.NewHistory("/dashboard")
	sess := New(Deps{Rounds: newFakeRepo(), Identity: player, Scopes: scopes, Navigation: nav})
	defer sess.Close()

	assert.Equal(t, golf.Eighteen, sess.Snapshot().HoleCount)
	nav.Push("/rounds/new/9")
	assert.Equal(t, golf.Nine, sess.Snapshot().HoleCount)
}

func TestEditBeforeRoundDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	_, err := f.sess.EditHole(context.Background(), 1, HolePatch{Score: golf.IntPtr(4)})
	require.NoError(t, err)
	f.sess.Wait()
	assert.Empty(t, f.repo.Calls())
}

func storedResume(t *testing.T, st kv.Store) string {
	t.Helper()
	v, ok, err := st.Get(context.Background(), kv.KeyResumeHole)
	require.NoError(t, err)
	require.True(t, ok)
	return v
}

func ptr[T any](v T) *T { return &v }
