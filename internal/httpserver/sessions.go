// apps/go-server/internal/httpserver/sessions.go
//
// Client-session registry.
// A client session is one browser tab/app instance of one user, identified
// by the session cookie. Each gets its own round-tracking Session with:
//   - an ephemeral kv scope namespaced by session (purged on /session/end),
//   - a durable kv scope namespaced by user (shared across sessions),
//   - its own navigation history and event topic.

package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
	"github.com/robalobadob/golftrack/apps/go-server/internal/kv"
	"github.com/robalobadob/golftrack/apps/go-server/internal/metrics"
	"github.com/robalobadob/golftrack/apps/go-server/internal/navigation"
	"github.com/robalobadob/golftrack/apps/go-server/internal/session"
)

// clientSession is one registry entry.
type clientSession struct {
	key     string // userID.sessionID; also the event topic
	sess    *session.Session
	history *navigation.History
	scratch kv.Store
}

// sessionKey combines the user and the cookie so a shared browser never
// hands one user's session to another.
func sessionKey(userID, sid string) string { return userID + "." + sid }

// clientSessionFor returns (creating on first use) the session of the
// authenticated caller. requireAuth must have run.
func (s *Server) clientSessionFor(w http.ResponseWriter, r *http.Request) *clientSession {
	u, _ := identity.FromContext(r.Context())
	key := sessionKey(u.ID, s.ensureSessionID(w, r))

	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.sessions[key]; ok {
		return cs
	}

	history := navigation.NewHistory("/")
	scratch := kv.Prefixed(s.ephemeral, kv.SessionPrefix(key))
	cs := &clientSession{
		key:     key,
		history: history,
		scratch: scratch,
		sess: session.New(session.Deps{
			Rounds:   s.rounds,
			Identity: identity.ContextProvider{},
			Scopes: kv.Scopes{
				Ephemeral: scratch,
				Durable:   kv.Prefixed(s.durable, kv.UserPrefix(u.ID)),
			},
			Navigation:   history,
			Events:       s.events.For(key),
			SaveWatchdog: s.cfg.SaveWatchdog,
		}),
	}
	s.sessions[key] = cs
	metrics.ActiveSessions.Inc()
	log.Debug().Str("user", u.ID).Str("session", key).Msg("client session opened")
	return cs
}

// endClientSession closes the session and purges its ephemeral scope.
func (s *Server) endClientSession(ctx context.Context, key string) bool {
	s.mu.Lock()
	cs, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()
	if !ok {
		return false
	}
	metrics.ActiveSessions.Dec()

	cs.sess.Close()
	if p, ok := cs.scratch.(kv.Purger); ok {
		if err := p.DeletePrefix(ctx, ""); err != nil {
			log.Warn().Err(err).Str("session", key).Msg("purge ephemeral scope")
		}
	}
	log.Debug().Str("session", key).Msg("client session ended")
	return true
}

// closeAll ends every session; used on shutdown so dispatched hole writes
// get to settle.
func (s *Server) closeAll(ctx context.Context) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.endClientSession(ctx, k)
	}
}

// ensureSessionID returns the existing session cookie or sets a new one.
func (s *Server) ensureSessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cfg.SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, s.sessionCookie(id, time.Now().Add(180*24*time.Hour)))
	return id
}

// clearSessionCookie deletes the session cookie.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	c := s.sessionCookie("", time.Time{})
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func (s *Server) sessionCookie(value string, exp time.Time) *http.Cookie {
	secure := s.cfg.Production()
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	}
}
