package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/history"
)

// handleAnalyze runs a full analysis for the requested symbols and returns
// the portfolio recommendation. Completed runs are persisted before the
// response is written.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var request domain.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.coordinator.Analyze(r.Context(), request)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.runs != nil {
		if err := s.runs.Save(r.Context(), result); err != nil {
			s.log.Error().Err(err).Str("run_id", result.RunID).Msg("Failed to persist run")
		}
	}

	s.writeJSON(w, http.StatusOK, result)
}

type symbolsRequest struct {
	Symbols []string `json:"symbols"`
}

// handleQuickAlert runs the sentiment-only screening pass and returns the
// per-symbol recommendations.
func (s *Server) handleQuickAlert(w http.ResponseWriter, r *http.Request) {
	var request symbolsRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	recommendations, err := s.coordinator.QuickAlert(r.Context(), request.Symbols)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": recommendations,
		"count":           len(recommendations),
	})
}

// handleTechnicalAlerts checks technical alert conditions without a full
// analysis.
func (s *Server) handleTechnicalAlerts(w http.ResponseWriter, r *http.Request) {
	var request symbolsRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(request.Symbols) == 0 {
		s.writeError(w, http.StatusBadRequest, "symbols must not be empty")
		return
	}

	alerts := s.coordinator.TechnicalAlerts(r.Context(), request.Symbols)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleListRuns returns recent run summaries, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	summaries, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if summaries == nil {
		summaries = []history.RunSummary{}
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

// handleGetRun returns the full stored result for one run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	result, err := s.runs.Get(r.Context(), runID)
	if errors.Is(err, history.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load run")
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
