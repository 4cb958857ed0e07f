package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"unicode/utf8"

	"tinynotes/internal/notes"
)

const maxBodyBytes = 64 << 10

type createNoteRequest struct {
	Content string `json:"content"`
}

type noteResponse struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

type endpointStats struct {
	Count int64   `json:"count"`
	AvgMS float64 `json:"avg_ms"`
	P95MS float64 `json:"p95_ms"`
}

type rateCounters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

type rateStatsResponse struct {
	Total  rateCounters            `json:"total"`
	Routes map[string]rateCounters `json:"routes"`
}

func toResponse(n notes.Note) noteResponse {
	return noteResponse{ID: n.ID, Content: n.Content, CreatedAt: n.CreatedAt.Unix()}
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content_required")
		return
	}
	if utf8.RuneCountInString(req.Content) > s.opts.NoteMaxLen {
		writeError(w, http.StatusBadRequest, "content_too_long")
		return
	}

	n, err := s.deps.Notes.Append(req.Content)
	if err != nil {
		s.log.Error("append note", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(n))
}

func (s *Server) listNotes(w http.ResponseWriter, _ *http.Request) {
	all := s.deps.Notes.List()
	out := make([]noteResponse, 0, len(all))
	for _, n := range all {
		out = append(out, toResponse(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.Metrics.SnapshotAll()
	out := make(map[string]endpointStats, len(snap))
	for ep, sum := range snap {
		out[ep] = endpointStats{
			Count: sum.Count,
			AvgMS: round2(float64(sum.Average) / 1e6),
			P95MS: round2(float64(sum.P95) / 1e6),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) rateStats(w http.ResponseWriter, _ *http.Request) {
	total := s.deps.RateCounters.Total()
	byRoute := s.deps.RateCounters.ByRoute()

	out := rateStatsResponse{
		Total:  rateCounters{Allowed: total.Allowed, Denied: total.Denied},
		Routes: make(map[string]rateCounters, len(byRoute)),
	}
	for route, c := range byRoute {
		out.Routes[route] = rateCounters{Allowed: c.Allowed, Denied: c.Denied}
	}
	writeJSON(w, http.StatusOK, out)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
