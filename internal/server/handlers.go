package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// triggerRunRequest is the optional POST /api/runs body. An absent or
// empty reference date means "as of now".
type triggerRunRequest struct {
	ReferenceDate string `json:"reference_date"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "churn-pipeline",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleTriggerRun starts a pipeline run and returns its record
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	ref := time.Now().UTC()

	if r.Body != nil && r.ContentLength != 0 {
		var req triggerRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ReferenceDate != "" {
			parsed, err := time.Parse("2006-01-02", req.ReferenceDate)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "reference_date must be YYYY-MM-DD")
				return
			}
			ref = parsed
		}
	}

	run, err := s.runner.Run(r.Context(), ref)
	if err != nil {
		s.log.Error().Err(err).Msg("Pipeline run failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, run)
}

// handleGetRun returns a run record by ID
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := s.runs.Get(runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load run")
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// handleLatestRun returns the most recently started run
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Latest()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "no runs yet")
			return
		}
		s.log.Error().Err(err).Msg("Failed to load latest run")
		s.writeError(w, http.StatusInternalServerError, "failed to load latest run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// handleRunQuality returns the quality summary for a run
func (s *Server) handleRunQuality(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	payload, err := s.runs.QualityFor(runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "no quality summary for run")
			return
		}
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load quality summary")
		s.writeError(w, http.StatusInternalServerError, "failed to load quality summary")
		return
	}

	s.writeRawJSON(w, http.StatusOK, payload)
}

// handleLatestQuality returns the quality summary of the latest completed run
func (s *Server) handleLatestQuality(w http.ResponseWriter, r *http.Request) {
	payload, err := s.runs.LatestQuality()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "no completed runs yet")
			return
		}
		s.log.Error().Err(err).Msg("Failed to load latest quality summary")
		s.writeError(w, http.StatusInternalServerError, "failed to load latest quality summary")
		return
	}

	s.writeRawJSON(w, http.StatusOK, payload)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeRawJSON writes a pre-encoded JSON payload
func (s *Server) writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to write JSON response")
	}
}
