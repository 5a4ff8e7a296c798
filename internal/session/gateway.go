// apps/go-server/internal/session/gateway.go
//
// HolePersistenceGateway writes one hole at a time to the remote store.
// Responsibilities:
//   - Skip writes with no round id or no captured score (nil, not 0).
//   - Upsert keyed by (roundID, holeNumber); last write wins.
//   - Keep an in-flight flag, force-cleared by a watchdog so "saving" never
//     sticks when the remote call hangs.
//   - Classify failures: transient ones are logged only, rejections are
//     surfaced through the Notifier (except writes to a round that was
//     finalized meanwhile). Local state is never rolled back.

package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
	"github.com/robalobadob/golftrack/apps/go-server/internal/metrics"
)

// DefaultSaveWatchdog bounds how long the saving flag may stay set.
const DefaultSaveWatchdog = 10 * time.Second

// GatewayOptions configures a HolePersistenceGateway. All fields are optional.
type GatewayOptions struct {
	Watchdog time.Duration
	Notifier Notifier

	// OnSaving runs whenever the in-flight flag flips.
	OnSaving func(saving bool)
	// OnSaved runs after a successful upsert.
	OnSaved func(roundID string, hole int)
}

type HolePersistenceGateway struct {
	writer   HoleWriter
	ids      identity.Provider
	watchdog time.Duration
	notifier Notifier
	onSaving func(bool)
	onSaved  func(string, int)

	mu     sync.Mutex
	saving bool
	gen    uint64
	timer  *time.Timer

	wg sync.WaitGroup
}

func NewHolePersistenceGateway(w HoleWriter, ids identity.Provider, opts GatewayOptions) *HolePersistenceGateway {
	g := &HolePersistenceGateway{
		writer:   w,
		ids:      ids,
		watchdog: opts.Watchdog,
		notifier: opts.Notifier,
		onSaving: opts.OnSaving,
		onSaved:  opts.OnSaved,
	}
	if g.watchdog <= 0 {
		g.watchdog = DefaultSaveWatchdog
	}
	if g.notifier == nil {
		g.notifier = discard{}
	}
	return g
}

// IsSaving reports whether a save is in flight and the watchdog has not fired.
func (g *HolePersistenceGateway) IsSaving() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saving
}

// Wait blocks until every write dispatched by SaveHole has settled.
func (g *HolePersistenceGateway) Wait() { g.wg.Wait() }

// Drain waits like Wait but gives up after the watchdog bound or when ctx
// ends. It reports whether every dispatched write settled.
func (g *HolePersistenceGateway) Drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(g.watchdog)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
	case <-ctx.Done():
	}
	return false
}

// SaveHole dispatches the upsert in the background and returns whether a
// write was issued. The write outlives ctx cancellation.
func (g *HolePersistenceGateway) SaveHole(ctx context.Context, roundID string, h golf.Hole) bool {
	if !g.shouldWrite(ctx, roundID, h) {
		return false
	}
	ctx = context.WithoutCancel(ctx)
	gen := g.begin()
	h = h.Clone()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_ = g.write(ctx, roundID, h)
		g.end(gen)
	}()
	return true
}

// Save performs the upsert synchronously and returns the classified error.
// A skipped write returns nil.
func (g *HolePersistenceGateway) Save(ctx context.Context, roundID string, h golf.Hole) error {
	if !g.shouldWrite(ctx, roundID, h) {
		return nil
	}
	gen := g.begin()
	defer g.end(gen)
	return g.write(ctx, roundID, h)
}

func (g *HolePersistenceGateway) shouldWrite(ctx context.Context, roundID string, h golf.Hole) bool {
	if roundID == "" || !h.Scored() {
		metrics.HoleSaves.WithLabelValues("skipped").Inc()
		return false
	}
	if _, ok := g.ids.CurrentUser(ctx); !ok {
		metrics.HoleSaves.WithLabelValues("skipped").Inc()
		return false
	}
	return true
}

// begin raises the flag and arms a fresh watchdog for this generation.
func (g *HolePersistenceGateway) begin() uint64 {
	g.mu.Lock()
	g.gen++
	gen := g.gen
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(g.watchdog, func() { g.expire(gen) })
	changed := !g.saving
	g.saving = true
	g.mu.Unlock()

	if changed && g.onSaving != nil {
		g.onSaving(true)
	}
	return gen
}

// end lowers the flag if gen is still the latest save.
func (g *HolePersistenceGateway) end(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || !g.saving {
		g.mu.Unlock()
		return
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.saving = false
	g.mu.Unlock()

	if g.onSaving != nil {
		g.onSaving(false)
	}
}

func (g *HolePersistenceGateway) expire(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || !g.saving {
		g.mu.Unlock()
		return
	}
	g.saving = false
	g.timer = nil
	g.mu.Unlock()

	metrics.SaveWatchdogFires.Inc()
	log.Warn().Dur("after", g.watchdog).Msg("hole save still pending; clearing saving flag")
	if g.onSaving != nil {
		g.onSaving(false)
	}
}

func (g *HolePersistenceGateway) write(ctx context.Context, roundID string, h golf.Hole) error {
	start := time.Now()
	err := g.writer.UpsertHoleScore(ctx, roundID, h)
	metrics.SaveDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.HoleSaves.WithLabelValues("ok").Inc()
		if g.onSaved != nil {
			g.onSaved(roundID, h.Number)
		}
		return nil
	}

	err = golf.Classify("upsert hole score", err)
	if golf.IsTransient(err) {
		metrics.HoleSaves.WithLabelValues("transient").Inc()
		log.Warn().Err(err).Str("roundId", roundID).Int("hole", h.Number).Msg("hole save deferred")
		return err
	}

	metrics.HoleSaves.WithLabelValues("rejected").Inc()
	if errors.Is(err, golf.ErrRoundFinalized) {
		// The round closed while this write was in flight; nothing to retry.
		log.Warn().Str("roundId", roundID).Int("hole", h.Number).Msg("hole save after finalize dropped")
		return err
	}
	log.Error().Err(err).Str("roundId", roundID).Int("hole", h.Number).Msg("hole save rejected")
	g.notifier.Notify(ctx, Notification{
		Level:     "error",
		Message:   saveMessage(err, h.Number),
		RoundID:   roundID,
		Hole:      h.Number,
		Retryable: !errors.Is(err, golf.ErrNotFound),
	})
	return err
}

func saveMessage(err error, hole int) string {
	if errors.Is(err, golf.ErrNotFound) {
		return "This round no longer exists; hole " + strconv.Itoa(hole) + " was not saved."
	}
	return "Hole " + strconv.Itoa(hole) + " could not be saved. Edit it again to retry."
}
