// apps/go-server/internal/httpserver/routes_session.go
//
// HTTP routes for the caller's client session:
//   - POST /session/start      → seed from an explicit round id or the in-progress locator
//   - GET  /session            → snapshot (phase, saving, holes, current hole, progress)
//   - PUT  /session/holes/{n}  → edit a hole locally; the upsert runs in the background
//   - POST /session/current    → move the active hole (resume marker)
//   - POST /session/navigate   → report a navigation, optionally with an explicit hole count
//   - PUT  /session/hole-count → change the count before the round exists
//   - POST /session/finish     → finalize the round
//   - POST /session/end        → end the client session and purge its ephemeral scope
//   - GET  /session/events     → SSE stream of phase/saving/progress/notification

package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/golftrack/apps/go-server/internal/golf"
	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
	"github.com/robalobadob/golftrack/apps/go-server/internal/session"
)

const ssePing = 25 * time.Second

func (s *Server) mountSession(r chi.Router) {
	// Flat routes: /session/events is registered on the root router.
	r.Post("/session/start", s.handleStart)
	r.Get("/session", s.handleSnapshot)
	r.With(s.limiter.Handler).Put("/session/holes/{n}", s.handleEditHole)
	r.Post("/session/current", s.handleCurrentHole)
	r.Post("/session/navigate", s.handleNavigate)
	r.Put("/session/hole-count", s.handleHoleCount)
	r.Post("/session/finish", s.handleFinish)
	r.Post("/session/end", s.handleEnd)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var opts session.StartOptions
	if !decodeBody(r, &opts) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	cs := s.clientSessionFor(w, r)
	if opts.Route.Path != "" {
		cs.history.Push(opts.Route.Path)
	} else {
		opts.Route.Path = cs.history.Path()
	}
	snap, err := cs.sess.Start(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.clientSessionFor(w, r).sess.Snapshot())
}

func (s *Server) handleEditHole(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		writeError(w, &golf.ValidationError{Field: "holeNumber", Value: chi.URLParam(r, "n"), Reason: "not a number"})
		return
	}
	var patch session.HolePatch
	if !decodeBody(r, &patch) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	h, err := s.clientSessionFor(w, r).sess.EditHole(r.Context(), n, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

type currentHoleReq struct {
	Hole int `json:"hole"`
}

func (s *Server) handleCurrentHole(w http.ResponseWriter, r *http.Request) {
	var req currentHoleReq
	if !decodeBody(r, &req) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	cs := s.clientSessionFor(w, r)
	if err := cs.sess.GoToHole(r.Context(), req.Hole); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs.sess.Snapshot())
}

type navigateRes struct {
	HoleCount golf.HoleCount      `json:"holeCount"`
	Source    session.CountSource `json:"source"`
}

// handleNavigate records the path first so observers see it, then resolves
// again with the explicit count (if any) to report which rule won.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var rc session.RouteContext
	if !decodeBody(r, &rc) || rc.Path == "" {
		http.Error(w, `{"error":"path_required"}`, http.StatusBadRequest)
		return
	}
	cs := s.clientSessionFor(w, r)
	cs.history.Push(rc.Path)
	count, src := cs.sess.Navigate(r.Context(), rc)
	writeJSON(w, http.StatusOK, navigateRes{HoleCount: count, Source: src})
}

type holeCountReq struct {
	HoleCount int `json:"holeCount"`
}

func (s *Server) handleHoleCount(w http.ResponseWriter, r *http.Request) {
	var req holeCountReq
	if !decodeBody(r, &req) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	cs := s.clientSessionFor(w, r)
	if err := cs.sess.UpdateHoleCount(r.Context(), req.HoleCount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs.sess.Snapshot())
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	agg, err := s.clientSessionFor(w, r).sess.Finish(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	u, _ := identity.FromContext(r.Context())
	c, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil || c.Value == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.endClientSession(r.Context(), sessionKey(u.ID, c.Value))
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams session events. The first message is a snapshot so
// a reconnecting client does not need a separate GET.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming_unsupported"}`, http.StatusInternalServerError)
		return
	}
	cs := s.clientSessionFor(w, r)
	ch, cancel := s.events.Subscribe(cs.key)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable buffering in nginx/proxies
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "snapshot", cs.sess.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	ping := time.NewTicker(ssePing)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data); err != nil {
				log.Debug().Err(err).Str("session", cs.key).Msg("event stream closed")
				return
			}
			flusher.Flush()
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
