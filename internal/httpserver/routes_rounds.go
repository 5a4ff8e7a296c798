// apps/go-server/internal/httpserver/routes_rounds.go
//
// HTTP routes for rounds:
//   - POST   /rounds             → create a round and start editing it
//   - GET    /rounds             → the user's completed rounds, newest first
//   - GET    /rounds/in-progress → the user's unfinished round, hydrated
//   - DELETE /rounds/{id}        → delete a round (hole scores first)
//
// Creation and deletion go through the caller's client session so the
// local scorecard and resume marker stay consistent.

package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
	"github.com/robalobadob/golftrack/apps/go-server/internal/session"
)

const maxRoundsLimit = 100

func (s *Server) mountRounds(r chi.Router) {
	r.Route("/rounds", func(r chi.Router) {
		r.Post("/", s.handleCreateRound)
		r.Get("/", s.handleCompletedRounds)
		r.Get("/in-progress", s.handleInProgressRound)
		r.Delete("/{id}", s.handleDeleteRound)
	})
}

func (s *Server) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	var in session.NewRoundInput
	if !decodeBody(r, &in) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	cs := s.clientSessionFor(w, r)
	snap, err := cs.sess.NewRound(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleCompletedRounds(w http.ResponseWriter, r *http.Request) {
	u, _ := identity.FromContext(r.Context())
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRoundsLimit {
			writeError(w, &golf.ValidationError{Field: "limit", Value: v, Reason: "must be 1-100"})
			return
		}
		limit = n
	}
	rounds, err := s.rounds.CompletedRounds(r.Context(), u.ID, limit)
	if err != nil {
		writeError(w, golf.Classify("list completed rounds", err))
		return
	}
	if rounds == nil {
		rounds = []golf.RoundRecord{}
	}
	writeJSON(w, http.StatusOK, rounds)
}

// handleInProgressRound answers 204 when there is nothing to resume; the
// locator never fails the caller.
func (s *Server) handleInProgressRound(w http.ResponseWriter, r *http.Request) {
	loc := session.NewInProgressRoundLocator(s.rounds, identity.ContextProvider{})
	round := loc.FetchInProgressRound(r.Context())
	if round == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (s *Server) handleDeleteRound(w http.ResponseWriter, r *http.Request) {
	cs := s.clientSessionFor(w, r)
	if err := cs.sess.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
