// apps/go-server/internal/session/resume.go
//
// ResumeLocator tracks the last active hole across interruptions.
// The marker is written to both KV scopes; on read the ephemeral copy wins
// and the durable copy is only consulted when the ephemeral one is absent
// or unparsable. Storage failures degrade to "no resume data".

package session

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/kv"
)

// ResumeState is the merged view of the two resume markers. Zero means
// "no valid marker" for that scope.
type ResumeState struct {
	Ephemeral int `json:"ephemeral,omitempty"`
	Durable   int `json:"durable,omitempty"`
}

// Hole returns the resolved resume hole, or 0 when there is none.
func (r ResumeState) Hole() int {
	if r.Ephemeral > 0 {
		return r.Ephemeral
	}
	return r.Durable
}

type ResumeLocator struct {
	scopes kv.Scopes

	mu     sync.Mutex
	loaded bool
	state  ResumeState
}

func NewResumeLocator(scopes kv.Scopes) *ResumeLocator {
	return &ResumeLocator{scopes: scopes}
}

// Load reads the markers once. Later calls return the cached state until
// Reset is called.
func (l *ResumeLocator) Load(ctx context.Context) ResumeState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.state
	}
	l.loaded = true

	l.state = ResumeState{Ephemeral: l.read(ctx, kv.Ephemeral)}
	if l.state.Ephemeral == 0 {
		l.state.Durable = l.read(ctx, kv.Durable)
	}
	return l.state
}

// ResumeHole returns the resolved resume hole (0 when none).
func (l *ResumeLocator) ResumeHole(ctx context.Context) int {
	return l.Load(ctx).Hole()
}

// SaveCurrentHole writes n to both scopes.
func (l *ResumeLocator) SaveCurrentHole(ctx context.Context, n int) {
	if n < 1 {
		return
	}
	v := strconv.Itoa(n)
	for _, s := range []kv.Scope{kv.Ephemeral, kv.Durable} {
		st := l.scopes.In(s)
		if st == nil {
			continue
		}
		if err := st.Set(ctx, kv.KeyResumeHole, v); err != nil {
			log.Warn().Err(err).Str("scope", string(s)).Int("hole", n).Msg("save resume marker")
		}
	}

	l.mu.Lock()
	l.loaded = true
	l.state = ResumeState{Ephemeral: n, Durable: n}
	l.mu.Unlock()
}

// ClearResumeData removes the marker from both scopes.
func (l *ResumeLocator) ClearResumeData(ctx context.Context) {
	for _, s := range []kv.Scope{kv.Ephemeral, kv.Durable} {
		st := l.scopes.In(s)
		if st == nil {
			continue
		}
		if err := st.Delete(ctx, kv.KeyResumeHole); err != nil {
			log.Warn().Err(err).Str("scope", string(s)).Msg("clear resume marker")
		}
	}

	l.mu.Lock()
	l.loaded = true
	l.state = ResumeState{}
	l.mu.Unlock()
}

// Reset drops the cached state so the next Load reads storage again.
func (l *ResumeLocator) Reset() {
	l.mu.Lock()
	l.loaded = false
	l.state = ResumeState{}
	l.mu.Unlock()
}

func (l *ResumeLocator) read(ctx context.Context, s kv.Scope) int {
	st := l.scopes.In(s)
	if st == nil {
		return 0
	}
	raw, ok, err := st.Get(ctx, kv.KeyResumeHole)
	if err != nil {
		log.Warn().Err(err).Str("scope", string(s)).Msg("read resume marker")
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		log.Debug().Str("scope", string(s)).Str("value", raw).Msg("ignoring unparsable resume marker")
		return 0
	}
	return n
}
