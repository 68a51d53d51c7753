package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/absgex/internal/export"
	"github.com/dgnsrekt/absgex/internal/gex"
	"github.com/dgnsrekt/absgex/internal/polygon"
	"github.com/dgnsrekt/absgex/internal/service"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) handleCacheFlush(w http.ResponseWriter, r *http.Request) {
	count := s.svc.FlushCache()

	s.logger.Info("cache flushed", zap.Int("count", count))

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"count":  count,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseRequest(w, r)
	if !ok {
		return
	}

	result, err := s.svc.Profile(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseRequest(w, r)
	if !ok {
		return
	}

	result, err := s.svc.Profile(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Underlying  string          `json:"underlying"`
		AsOf        string          `json:"as_of"`
		Levels      *gex.Levels     `json:"levels,omitempty"`
		Diagnostics gex.Diagnostics `json:"diagnostics"`
	}{
		Underlying:  result.Underlying,
		AsOf:        result.AsOf,
		Levels:      result.Levels,
		Diagnostics: result.Diagnostics,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseRequest(w, r)
	if !ok {
		return
	}

	result, err := s.svc.Profile(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var levels gex.Levels
	if result.Levels != nil {
		levels = *result.Levels
	}
	snippet := export.Snippet(result.Underlying, result.AsOf, levels, result.Top)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(snippet))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "streaming is disabled"})
		return
	}
	s.hub.HandleLive(w, r, chi.URLParam(r, "underlying"))
}

// parseRequest builds a service request from the URL; on invalid input it
// writes a 400 and reports false.
func (s *Server) parseRequest(w http.ResponseWriter, r *http.Request) (service.Request, bool) {
	req := service.Request{
		Underlying: chi.URLParam(r, "underlying"),
	}

	if date := r.URL.Query().Get("date"); date != "" {
		if !datePattern.MatchString(date) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid date format: " + date + " (expected YYYY-MM-DD)"})
			return service.Request{}, false
		}
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid date: " + date})
			return service.Request{}, false
		}
		req.AsOf = parsed
	}

	if top := r.URL.Query().Get("top"); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "top must be a positive integer"})
			return service.Request{}, false
		}
		req.TopN = n
	}

	if refresh := r.URL.Query().Get("refresh"); refresh != "" {
		force, err := strconv.ParseBool(refresh)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "refresh must be a boolean"})
			return service.Request{}, false
		}
		req.ForceRefresh = force
	}

	return req, true
}

// writeError maps pipeline errors onto HTTP statuses. Upstream failures
// surface as 502 with the provider's message intact so a misconfigured key
// is diagnosable from the response alone.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var authErr *polygon.AuthError
	if errors.As(err, &authErr) {
		s.logger.Warn("upstream auth failure", zap.Int("status", authErr.StatusCode))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: authErr.Error()})
		return
	}

	var reqErr *polygon.RequestError
	if errors.As(err, &reqErr) {
		s.logger.Warn("upstream request failure", zap.Int("status", reqErr.StatusCode))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: reqErr.Error()})
		return
	}

	var compErr *gex.ComputationError
	if errors.As(err, &compErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: compErr.Error()})
		return
	}

	s.logger.Error("profile request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
