// apps/go-server/internal/session/session.go
//
// Session wires the round-tracking components for one client session.
// Responsibilities:
//   - Seed the local round from an explicit id or the in-progress locator,
//     then restore the active hole from the resume marker.
//   - Apply hole edits locally and hand them to the persistence gateway.
//   - Drive the phase machine (idle, loading, resuming, editing, saving,
//     finalizing, error) and publish phase/saving/progress/notification events.
//   - Finalize or delete the round and clear local state afterwards.
//
// Lifecycle operations (Start, NewRound, Finish, Delete) are serialized;
// hole edits are not and never wait on the network.

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/events"
	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
	"github.com/robalobadob/golftrack/apps/go-server/internal/kv"
	"github.com/robalobadob/golftrack/apps/go-server/internal/navigation"
)

// ErrBusy is returned when an operation is not allowed in the current phase.
var ErrBusy = errors.New("session: operation not allowed in current phase")

// Deps are the collaborators of a Session. Rounds, Identity and Scopes are
// required; the rest are optional.
type Deps struct {
	Rounds       Repository
	Identity     identity.Provider
	Scopes       kv.Scopes
	Navigation   navigation.Observer
	Notifier     Notifier
	Events       Publisher
	SaveWatchdog time.Duration
}

// StartOptions select how a session is seeded.
type StartOptions struct {
	RoundID string       `json:"roundId,omitempty"`
	Route   RouteContext `json:"route"`
}

// NewRoundInput describes a round to create.
type NewRoundInput struct {
	CourseID  string         `json:"courseId,omitempty"`
	TeeID     string         `json:"teeId,omitempty"`
	HoleCount golf.HoleCount `json:"holeCount,omitempty"`
	Date      string         `json:"date,omitempty"`
}

// ErrorState is the last surfaced failure of a lifecycle operation.
type ErrorState struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Snapshot is a consistent-enough copy of the session for rendering.
type Snapshot struct {
	Phase       Phase          `json:"phase"`
	Saving      bool           `json:"saving"`
	RoundID     string         `json:"roundId,omitempty"`
	HoleCount   golf.HoleCount `json:"holeCount"`
	CurrentHole int            `json:"currentHole"`
	Holes       []golf.Hole    `json:"holes"`
	Progress    golf.Progress  `json:"progress"`
	LastError   *ErrorState    `json:"lastError,omitempty"`
}

type Session struct {
	store     *RoundSessionStore
	gateway   *HolePersistenceGateway
	resume    *ResumeLocator
	locator   *InProgressRoundLocator
	counts    *HoleCountResolver
	finalizer *RoundFinalizer
	deleter   *RoundDeleter
	machine   *Machine

	rounds   Repository
	ids      identity.Provider
	events   Publisher
	notifier Notifier
	unwatch  func()

	opMu sync.Mutex

	errMu   sync.Mutex
	lastErr *ErrorState
}

// New builds a Session in PhaseIdle with an empty 18-hole scorecard.
func New(d Deps) *Session {
	s := &Session{
		rounds: d.Rounds,
		ids:    d.Identity,
		events: d.Events,
	}
	if s.events == nil {
		s.events = discard{}
	}
	base := d.Notifier
	if base == nil {
		base = discard{}
	}
	s.notifier = NotifierFunc(func(ctx context.Context, n Notification) {
		s.events.Publish(events.TypeNotification, n)
		base.Notify(ctx, n)
	})

	s.store = NewRoundSessionStore(golf.DefaultHoleCount)
	s.machine = NewMachine(func(from, to Phase) {
		s.events.Publish(events.TypePhase, map[string]Phase{"from": from, "to": to})
	})
	s.resume = NewResumeLocator(d.Scopes)
	s.locator = NewInProgressRoundLocator(d.Rounds, d.Identity)
	s.counts = NewHoleCountResolver(d.Scopes.Durable, s.holeCountChanged)
	s.finalizer = NewRoundFinalizer(d.Rounds, d.Identity, s.resume)
	s.deleter = NewRoundDeleter(d.Rounds, d.Identity)
	s.gateway = NewHolePersistenceGateway(d.Rounds, d.Identity, GatewayOptions{
		Watchdog: d.SaveWatchdog,
		Notifier: s.notifier,
		OnSaving: s.savingChanged,
		OnSaved:  s.holeSaved,
	})

	if d.Navigation != nil {
		s.unwatch = s.counts.Watch(context.Background(), d.Navigation)
	}
	return s
}

// Close stops observing navigation and waits for dispatched hole writes.
func (s *Session) Close() {
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
	s.gateway.Wait()
}

// Start seeds the session. With an explicit round id that round is opened;
// otherwise the user's in-progress round is looked up. Finding nothing
// leaves the session idle with a fresh scorecard, unless a round is
// already held locally.
func (s *Session) Start(ctx context.Context, opts StartOptions) (Snapshot, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.machine.Transition(PhaseLoading); err != nil {
		return s.Snapshot(), ErrBusy
	}
	s.resume.Reset()
	count, _ := s.counts.Resolve(ctx, opts.Route)

	var lr *LoadedRound
	if opts.RoundID != "" {
		var err error
		lr, err = s.locator.LoadRound(ctx, opts.RoundID)
		if err != nil {
			s.fail(err)
			return s.Snapshot(), err
		}
	} else {
		lr = s.locator.FetchInProgressRound(ctx)
	}

	// A held round is only released by Finish or Delete; local holes win
	// over a nil lookup or a reload of the same round.
	if held := s.store.RoundID(); held != "" && (lr == nil || lr.Record.ID == held) {
		s.clearErr()
		s.mustTransition(PhaseEditing)
		log.Info().Str("roundId", held).Msg("kept local round")
		return s.Snapshot(), nil
	}

	if lr == nil {
		s.store.Clear()
		_ = s.store.SetHoleCount(count)
		s.clearErr()
		s.mustTransition(PhaseIdle)
		return s.Snapshot(), nil
	}

	s.mustTransition(PhaseResuming)
	rec := lr.Record
	s.store.Init(rec.ID, rec.HoleCount, lr.Holes)
	s.counts.UpdateHoleCount(ctx, int(rec.HoleCount))

	hole := s.resume.ResumeHole(ctx)
	switch {
	case hole < 1:
		hole = 1
	case hole > int(rec.HoleCount):
		hole = int(rec.HoleCount)
	}
	_ = s.store.SetCurrentHole(hole)
	s.clearErr()
	s.mustTransition(PhaseEditing)

	log.Info().Str("roundId", rec.ID).Int("hole", hole).Msg("round resumed")
	return s.Snapshot(), nil
}

// NewRound creates and persists an empty round, then starts editing it at
// hole 1. A zero HoleCount uses the resolved count.
func (s *Session) NewRound(ctx context.Context, in NewRoundInput) (Snapshot, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	u, ok := s.ids.CurrentUser(ctx)
	if !ok {
		return s.Snapshot(), golf.ErrUnauthorized
	}
	count := in.HoleCount
	if count == 0 {
		count = s.counts.Current()
	}
	if _, err := golf.ParseHoleCount(int(count)); err != nil {
		return s.Snapshot(), err
	}
	if s.store.RoundID() != "" {
		return s.Snapshot(), golf.ErrRoundInProgress
	}
	if p := s.machine.Phase(); p != PhaseIdle && p != PhaseError {
		return s.Snapshot(), ErrBusy
	}
	date := in.Date
	if date == "" {
		date = golf.DateKey(time.Now())
	}

	rec, err := s.rounds.CreateRound(ctx, golf.NewRound{
		UserID:    u.ID,
		CourseID:  in.CourseID,
		TeeID:     in.TeeID,
		HoleCount: count,
		Date:      date,
	})
	if err != nil {
		err = golf.Classify("create round", err)
		log.Error().Err(err).Str("user", u.ID).Msg("create round")
		s.setErr(err)
		return s.Snapshot(), err
	}

	var ref []golf.CourseHole
	if in.CourseID != "" {
		if ref, err = s.rounds.CourseHoles(ctx, in.CourseID); err != nil {
			log.Warn().Err(err).Str("courseId", in.CourseID).Msg("load course holes")
			ref = nil
		}
	}

	s.store.Init(rec.ID, count, golf.CompleteHoles(count, ref, nil))
	s.counts.UpdateHoleCount(ctx, int(count))
	s.resume.SaveCurrentHole(ctx, 1)
	s.clearErr()
	s.mustTransition(PhaseEditing)

	log.Info().Str("user", u.ID).Str("roundId", rec.ID).Int("holeCount", int(count)).Msg("round created")
	return s.Snapshot(), nil
}

// EditHole applies patch to hole n locally and dispatches the upsert.
func (s *Session) EditHole(ctx context.Context, n int, patch HolePatch) (golf.Hole, error) {
	switch s.machine.Phase() {
	case PhaseLoading, PhaseResuming, PhaseFinalizing:
		return golf.Hole{}, ErrBusy
	}
	h, err := s.store.UpdateHole(n, patch)
	if err != nil {
		return golf.Hole{}, err
	}
	s.gateway.SaveHole(ctx, s.store.RoundID(), h)
	return h, nil
}

// GoToHole moves the active hole and records it as the resume marker.
func (s *Session) GoToHole(ctx context.Context, n int) error {
	if err := s.store.SetCurrentHole(n); err != nil {
		return err
	}
	if s.store.RoundID() != "" {
		s.resume.SaveCurrentHole(ctx, n)
	}
	return nil
}

// Navigate re-resolves the hole count for an explicit route context.
func (s *Session) Navigate(ctx context.Context, rc RouteContext) (golf.HoleCount, CountSource) {
	return s.counts.Resolve(ctx, rc)
}

// UpdateHoleCount changes the count of a round that has not been created
// yet. An invalid count is ignored and reported as a ValidationError.
func (s *Session) UpdateHoleCount(ctx context.Context, n int) error {
	if id := s.store.RoundID(); id != "" && n != int(s.store.HoleCount()) {
		return &golf.ValidationError{Field: "holeCount", Value: n, Reason: "round already created"}
	}
	if !s.counts.UpdateHoleCount(ctx, n) {
		return &golf.ValidationError{Field: "holeCount", Value: n, Reason: "must be 9 or 18"}
	}
	return nil
}

// Finish finalizes the active round. On failure the session moves to
// PhaseError and the round stays in progress; calling Finish again retries.
func (s *Session) Finish(ctx context.Context) (golf.Aggregates, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	id := s.store.RoundID()
	if id == "" {
		return golf.Aggregates{}, golf.ErrNoRound
	}
	if err := s.machine.Transition(PhaseFinalizing); err != nil {
		return golf.Aggregates{}, ErrBusy
	}
	// Hole writes already dispatched must land before the round is closed.
	if !s.gateway.Drain(ctx) {
		log.Warn().Str("roundId", id).Msg("finalizing with hole writes still pending")
	}

	agg, err := s.finalizer.FinishRound(ctx, id, s.store.Holes(), s.store.HoleCount())
	if err != nil {
		s.fail(err)
		s.notifier.Notify(ctx, Notification{
			Level:     "error",
			Message:   "The round could not be finished. Try again.",
			RoundID:   id,
			Retryable: true,
		})
		return golf.Aggregates{}, err
	}

	s.store.Clear()
	s.clearErr()
	s.mustTransition(PhaseIdle)
	return agg, nil
}

// Delete removes round id, or the active round when id is empty. A failed
// delete leaves the phase unchanged.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	active := s.store.RoundID()
	if id == "" {
		id = active
	}
	if id == "" {
		return golf.ErrNoRound
	}
	if err := s.deleter.DeleteRound(ctx, id); err != nil {
		s.setErr(err)
		return err
	}
	if id == active {
		s.store.Clear()
		s.resume.ClearResumeData(ctx)
		s.clearErr()
		s.mustTransition(PhaseIdle)
	}
	return nil
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.machine.Phase() }

// IsSaving reports whether a hole write is in flight.
func (s *Session) IsSaving() bool { return s.gateway.IsSaving() }

// Wait blocks until dispatched hole writes have settled.
func (s *Session) Wait() { s.gateway.Wait() }

// Resume exposes the resume locator.
func (s *Session) Resume() *ResumeLocator { return s.resume }

// Snapshot copies the current session state.
func (s *Session) Snapshot() Snapshot {
	s.errMu.Lock()
	var lastErr *ErrorState
	if s.lastErr != nil {
		e := *s.lastErr
		lastErr = &e
	}
	s.errMu.Unlock()

	return Snapshot{
		Phase:       s.machine.Phase(),
		Saving:      s.gateway.IsSaving(),
		RoundID:     s.store.RoundID(),
		HoleCount:   s.store.HoleCount(),
		CurrentHole: s.store.CurrentHole(),
		Holes:       s.store.Holes(),
		Progress:    s.store.Progress(),
		LastError:   lastErr,
	}
}

func (s *Session) holeCountChanged(c golf.HoleCount) {
	if s.store.RoundID() != "" {
		return
	}
	_ = s.store.SetHoleCount(c)
}

func (s *Session) savingChanged(saving bool) {
	if saving {
		s.machine.TransitionFrom(PhaseEditing, PhaseSaving)
	} else {
		s.machine.TransitionFrom(PhaseSaving, PhaseEditing)
	}
	s.events.Publish(events.TypeSaving, map[string]bool{"saving": saving})
}

func (s *Session) holeSaved(roundID string, _ int) {
	if roundID != s.store.RoundID() {
		return
	}
	s.events.Publish(events.TypeProgress, s.store.Recompute())
}

// fail records err and moves to PhaseError.
func (s *Session) fail(err error) {
	s.setErr(err)
	s.mustTransition(PhaseError)
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	s.lastErr = &ErrorState{
		Message:   err.Error(),
		Retryable: !golf.IsValidation(err) && !errors.Is(err, golf.ErrUnauthorized) && !errors.Is(err, golf.ErrNotFound),
	}
	s.errMu.Unlock()
}

func (s *Session) clearErr() {
	s.errMu.Lock()
	s.lastErr = nil
	s.errMu.Unlock()
}

func (s *Session) mustTransition(to Phase) {
	if err := s.machine.Transition(to); err != nil {
		log.Error().Err(err).Msg("session phase")
	}
}
