// apps/go-server/internal/session/holecount.go
//
// HoleCountResolver decides between 9 and 18 holes.
// Precedence:
//  1. explicit RouteContext.HoleCount
//  2. exact navigation path (/rounds/new/9, /rounds/play/18, ...)
//  3. looser path pattern (9-holes, 18_hole, ?holes=9, ...)
//  4. durable-scope value from a previous resolution
//  5. golf.DefaultHoleCount
//
// Every resolution is written back to the durable scope.

package session

import (
	"context"
	"regexp"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/kv"
	"github.com/robalobadob/golftrack/apps/go-server/internal/navigation"
)

// RouteContext is what the caller knows about the current round entry.
type RouteContext struct {
	Path      string         `json:"path"`
	HoleCount golf.HoleCount `json:"holeCount,omitempty"`
}

// CountSource names the rule that produced a resolution.
type CountSource string

const (
	SourceExplicit    CountSource = "explicit"
	SourcePathExact   CountSource = "path_exact"
	SourcePathPattern CountSource = "path_pattern"
	SourceStored      CountSource = "stored"
	SourceDefault     CountSource = "default"
)

var (
	exactPath = regexp.MustCompile(`^/rounds/(?:new|track|play)/(9|18)/?$`)
	loosePath = regexp.MustCompile(`(?i)(?:^|[^0-9])(9|18)[-_ ]?holes?(?:[^a-z]|$)|[?&]holes=(9|18)(?:&|$)`)
)

type HoleCountResolver struct {
	durable  kv.Store
	onChange func(golf.HoleCount)

	mu      sync.Mutex
	current golf.HoleCount
}

// NewHoleCountResolver reads and writes the durable store. onChange may be
// nil; it runs after every resolution or update that changes the count.
func NewHoleCountResolver(durable kv.Store, onChange func(golf.HoleCount)) *HoleCountResolver {
	return &HoleCountResolver{durable: durable, onChange: onChange, current: golf.DefaultHoleCount}
}

// Current returns the last resolved count.
func (r *HoleCountResolver) Current() golf.HoleCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Resolve applies the precedence rules to rc and persists the result.
func (r *HoleCountResolver) Resolve(ctx context.Context, rc RouteContext) (golf.HoleCount, CountSource) {
	count, src := r.pick(ctx, rc)
	r.store(ctx, count)
	r.set(count)
	log.Debug().Str("path", rc.Path).Int("holeCount", int(count)).Str("source", string(src)).Msg("resolved hole count")
	return count, src
}

// UpdateHoleCount sets the count directly. Values other than 9 and 18 are
// logged and ignored; it reports whether n was accepted.
func (r *HoleCountResolver) UpdateHoleCount(ctx context.Context, n int) bool {
	count, err := golf.ParseHoleCount(n)
	if err != nil {
		log.Warn().Err(err).Int("holeCount", n).Msg("ignoring hole count update")
		return false
	}
	r.store(ctx, count)
	r.set(count)
	return true
}

// Watch re-resolves on every path change reported by nav, including
// programmatic navigation. The returned func stops watching.
func (r *HoleCountResolver) Watch(ctx context.Context, nav navigation.Observer) func() {
	r.Resolve(ctx, RouteContext{Path: nav.Path()})
	return nav.Subscribe(func(path string) {
		r.Resolve(ctx, RouteContext{Path: path})
	})
}

func (r *HoleCountResolver) pick(ctx context.Context, rc RouteContext) (golf.HoleCount, CountSource) {
	if rc.HoleCount.Valid() {
		return rc.HoleCount, SourceExplicit
	}
	if m := exactPath.FindStringSubmatch(rc.Path); m != nil {
		return parseCount(m[1]), SourcePathExact
	}
	if m := loosePath.FindStringSubmatch(rc.Path); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				return parseCount(g), SourcePathPattern
			}
		}
	}
	if c, ok := r.stored(ctx); ok {
		return c, SourceStored
	}
	return golf.DefaultHoleCount, SourceDefault
}

func (r *HoleCountResolver) stored(ctx context.Context) (golf.HoleCount, bool) {
	if r.durable == nil {
		return 0, false
	}
	raw, ok, err := r.durable.Get(ctx, kv.KeyHoleCount)
	if err != nil {
		log.Warn().Err(err).Msg("read stored hole count")
		return 0, false
	}
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	c, err := golf.ParseHoleCount(n)
	return c, err == nil
}

func (r *HoleCountResolver) store(ctx context.Context, c golf.HoleCount) {
	if r.durable == nil {
		return
	}
	if err := r.durable.Set(ctx, kv.KeyHoleCount, strconv.Itoa(int(c))); err != nil {
		log.Warn().Err(err).Int("holeCount", int(c)).Msg("store hole count")
	}
}

func (r *HoleCountResolver) set(c golf.HoleCount) {
	r.mu.Lock()
	changed := r.current != c
	r.current = c
	r.mu.Unlock()
	if changed && r.onChange != nil {
		r.onChange(c)
	}
}

func parseCount(s string) golf.HoleCount {
	if s == "9" {
		return golf.Nine
	}
	return golf.Eighteen
}
