// apps/go-server/internal/httpserver/server.go
//
// HTTP server wiring for the golf round-tracking backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/metrics".
//   - Round endpoints (require auth): /rounds.
//   - Client-session endpoints (require auth): /session/*, including the
//     SSE stream at /session/events.
//   - Mapping of the golf error taxonomy onto HTTP statuses.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Tokens are issued elsewhere; this server only verifies them.
//   - The SSE route is mounted outside the request timeout.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/config"
	"github.com/robalobadob/golftrack/apps/go-server/internal/events"
	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
	"github.com/robalobadob/golftrack/apps/go-server/internal/kv"
	"github.com/robalobadob/golftrack/apps/go-server/internal/metrics"
	"github.com/robalobadob/golftrack/apps/go-server/internal/session"
)

// Deps are the storage collaborators of the server. Rounds is required;
// nil kv stores fall back to memory.
type Deps struct {
	Rounds    session.Repository
	Durable   kv.Store
	Ephemeral kv.Store
}

// Server bundles the router, storage and the client-session registry.
type Server struct {
	r   *chi.Mux
	cfg *config.Config
	srv *http.Server

	rounds    session.Repository
	durable   kv.Store
	ephemeral kv.Store
	verifier  *identity.Verifier
	events    *events.Broadcaster
	limiter   *writeLimiter

	mu       sync.Mutex
	sessions map[string]*clientSession
}

// New constructs a Server, installs middleware, and registers routes.
func New(cfg *config.Config, d Deps) *Server {
	s := &Server{
		r:         chi.NewRouter(),
		cfg:       cfg,
		rounds:    d.Rounds,
		durable:   d.Durable,
		ephemeral: d.Ephemeral,
		verifier:  identity.NewVerifier(cfg.JWTSecret),
		events:    events.NewBroadcaster(),
		limiter:   newWriteLimiter(cfg.HoleWriteRate, cfg.HoleWriteBurst),
		sessions:  make(map[string]*clientSession),
	}
	if s.durable == nil {
		s.durable = kv.NewMemory()
	}
	if s.ephemeral == nil {
		s.ephemeral = kv.NewMemory()
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(s.cors)          // credentials-friendly CORS

	// Event stream: long-lived, so no timeout.
	s.r.With(s.requireAuth()).Get("/session/events", s.handleEvents)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Use(jsonContentType)                 // default JSON responses

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"golftrack-go","endpoints":["/health","/metrics","/rounds","/session"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth())
			s.mountRounds(r)
			s.mountSession(r)
		})
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	s.srv = &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: 5 * time.Second}
	srv := s.srv
	s.mu.Unlock()
	return srv.ListenAndServe()
}

// Shutdown stops accepting requests and closes every client session so
// in-flight hole writes settle.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.closeAll(ctx)
	return err
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth enforces a valid token and injects the user into the request
// context.
func (s *Server) requireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := identity.BearerOrCookie(r, s.cfg.AuthCookie)
			if tokenStr == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			u, err := s.verifier.Verify(tokenStr)
			if err != nil {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), u)))
		})
	}
}

// ------------------------------- responses ---------------------------------

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// statusFor maps the golf error taxonomy onto a status and a short code.
func statusFor(err error) (int, string) {
	switch {
	case golf.IsValidation(err):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, golf.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, golf.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, golf.ErrRoundInProgress):
		return http.StatusConflict, "round_in_progress"
	case errors.Is(err, golf.ErrNoRound):
		return http.StatusConflict, "no_round"
	case errors.Is(err, golf.ErrRoundFinalized):
		return http.StatusConflict, "round_finalized"
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "busy"
	case golf.IsTransient(err):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusBadGateway, "persistence_failed"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

// decodeBody decodes an optional JSON body; an empty body leaves v as is.
func decodeBody(r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(v)
	return err == nil || errors.Is(err, io.EOF)
}
