package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"styleforge/internal/dna"
	"styleforge/internal/forge"
	"styleforge/internal/logging"
	"styleforge/internal/session"
)

// maxReferenceBytes bounds the multipart upload; inline image parts above
// ~20MB are rejected by the model API anyway.
const maxReferenceBytes = 20 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_sessions": len(s.registry.live()),
		"time":            time.Now().UTC(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodGet:
		s.handleListSessions(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCreateSession starts a session from a multipart form: a "reference"
// file part plus "target", and optional "kind", "style", "max_iterations",
// "threshold" values. Responds 202 with the session id; progress streams
// separately over /events.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxReferenceBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("reference")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing reference image")
		return
	}
	defer file.Close()
	reference, err := io.ReadAll(io.LimitReader(file, maxReferenceBytes+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "read reference: "+err.Error())
		return
	}
	if len(reference) > maxReferenceBytes {
		s.respondError(w, http.StatusRequestEntityTooLarge, "reference image too large")
		return
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(reference)
	}

	target := strings.TrimSpace(r.FormValue("target"))
	if target == "" {
		s.respondError(w, http.StatusBadRequest, "missing target")
		return
	}

	kind := dna.Kind(r.FormValue("kind"))
	if kind == "" {
		kind = dna.KindTypeface
	}
	if !kind.Valid() {
		s.respondError(w, http.StatusBadRequest, "unknown kind: "+string(kind))
		return
	}

	cfg := s.config()
	maxIter, threshold := cfg.ForgeDefaults(kind)
	if v := r.FormValue("max_iterations"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "invalid max_iterations")
			return
		}
		maxIter = n
	}
	if v := r.FormValue("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 100 {
			s.respondError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = f
	}

	ctrl := forge.NewController(forge.Config{
		Kind:          kind,
		Target:        target,
		Style:         r.FormValue("style"),
		Reference:     reference,
		ReferenceMIME: mime,
		MaxIterations: maxIter,
		Threshold:     threshold,
		Weights:       cfg.Forge.Weights,
		Extractor:     s.extractor,
		Generator:     s.generator,
		Evaluator:     s.evaluator,
		Cache:         s.cache,
		Store:         s.store,
	})

	e := s.registry.add(ctrl)
	s.metrics.SessionsActive.Inc()
	go func() {
		res, err := ctrl.Run(context.Background())
		e.finish(res, err)
		s.metrics.SessionsActive.Dec()
		if res != nil {
			s.metrics.RecordSession(string(res.Kind), string(res.State),
				float64(res.Elapsed)/1000.0, res.BestScore, len(res.Attempts))
			for _, a := range res.Attempts {
				s.metrics.RecordIteration(string(res.Kind), string(a.Status))
				if a.GenMillis > 0 {
					s.metrics.RecordPhase("generation", float64(a.GenMillis)/1000.0)
				}
				if a.EvalMillis > 0 {
					s.metrics.RecordPhase("evaluation", float64(a.EvalMillis)/1000.0)
				}
			}
		}
		if err != nil {
			logging.ServerError("session %s failed: %v", ctrl.SessionID(), err)
		}
	}()

	logging.Server("session %s started: kind=%s target=%q", ctrl.SessionID(), kind, target)
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id":     ctrl.SessionID(),
		"kind":           kind,
		"target":         target,
		"max_iterations": maxIter,
		"threshold":      threshold,
	})
}

// handleListSessions merges the persisted index with live controllers that
// have not reached a terminal state yet.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	seen := make(map[string]bool)
	var rows []session.Summary
	for _, e := range s.registry.live() {
		snap := e.snapshot()
		seen[snap.SessionID] = true
		rows = append(rows, session.Summary{
			ID:            snap.SessionID,
			Kind:          string(snap.Kind),
			Target:        snap.Target,
			State:         string(snap.State),
			Converged:     snap.Converged,
			BestScore:     snap.BestScore,
			BestIteration: snap.BestIteration,
			Iterations:    len(snap.Attempts),
			StartedAt:     snap.StartedAt,
		})
	}

	if idx := s.store.Index(); idx != nil {
		persisted, err := idx.List(limit)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, row := range persisted {
			if !seen[row.ID] {
				rows = append(rows, row)
			}
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": rows})
}

// handleSessionSubtree routes /api/v1/sessions/{id}[/...].
func (s *Server) handleSessionSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.respondError(w, http.StatusNotFound, "missing session id")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			s.handleGetSession(w, r, id)
		case http.MethodDelete:
			s.handleCancelSession(w, r, id)
		default:
			s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(parts) == 2 && parts[1] == "events":
		s.handleSessionEvents(w, r, id)
	case len(parts) == 4 && parts[1] == "iterations":
		iteration, err := strconv.Atoi(parts[2])
		if err != nil || iteration < 1 {
			s.respondError(w, http.StatusBadRequest, "invalid iteration")
			return
		}
		switch parts[3] {
		case "image":
			s.handleIterationImage(w, r, id, iteration)
		case "rating":
			s.handleIterationRating(w, r, id, iteration)
		default:
			s.respondError(w, http.StatusNotFound, "not found")
		}
	default:
		s.respondError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	if e, ok := s.registry.get(id); ok {
		s.respondJSON(w, http.StatusOK, e.snapshot())
		return
	}
	res, err := s.store.LoadResult(id)
	if errors.Is(err, session.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request, id string) {
	e, ok := s.registry.get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if e.finished() {
		s.respondError(w, http.StatusConflict, "session already finished")
		return
	}
	e.ctrl.Cancel()
	logging.Server("session %s cancel requested", id)
	s.respondJSON(w, http.StatusAccepted, map[string]string{"session_id": id, "status": "cancelling"})
}

func (s *Server) handleIterationImage(w http.ResponseWriter, r *http.Request, id string, iteration int) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	data, mime, err := s.store.CandidateImage(id, iteration)
	if errors.Is(err, session.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "iteration image not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type ratingRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *Server) handleIterationRating(w http.ResponseWriter, r *http.Request, id string, iteration int) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ratingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid rating body: "+err.Error())
		return
	}
	doc, err := s.store.Rate(id, iteration, req.Rating, req.Comment)
	if errors.Is(err, session.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "evaluation not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}
