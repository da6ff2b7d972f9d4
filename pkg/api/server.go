package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Russete77/migadigital/pkg/engine"
	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/store"
)

// Server exposes the response engine over HTTP.
type Server struct {
	engine *engine.Engine
	http   *http.Server
}

// FeedbackRequest is the body of POST /api/v1/feedback.
type FeedbackRequest struct {
	ResponseID string `json:"response_id"`
	Rating     int    `json:"rating"`
}

func NewServer(eng *engine.Engine, port int) *Server {
	s := &Server{engine: eng}
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	logging.Infof("[API] listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/responses", s.handleGenerateResponse)
	mux.HandleFunc("POST /api/v1/feedback", s.handleFeedback)
	mux.HandleFunc("GET /api/v1/metrics/daily", s.handleDailyMetrics)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy", "service": "response-engine"}`))
}

func (s *Server) handleGenerateResponse(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := s.parseJSONRequest(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	res, err := s.engine.GenerateResponse(r.Context(), req)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	s.writeJSONResponse(w, http.StatusOK, res)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := s.parseJSONRequest(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	if err := s.engine.SubmitFeedback(r.Context(), req.ResponseID, req.Rating); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		case errors.Is(err, store.ErrInvalidInput):
			s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		default:
			s.writeErrorResponse(w, http.StatusInternalServerError, "FEEDBACK_ERROR", err.Error())
		}
		return
	}

	s.writeJSONResponse(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleDailyMetrics(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", "date must be YYYY-MM-DD")
		return
	}

	dm, err := s.engine.GetDailyMetrics(r.Context(), date)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "no metrics for date "+date)
			return
		}
		s.writeErrorResponse(w, http.StatusInternalServerError, "METRICS_ERROR", err.Error())
		return
	}

	s.writeJSONResponse(w, http.StatusOK, dm)
}

func (s *Server) parseJSONRequest(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Errorf("[API] failed to encode JSON response: %v", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":      errorCode,
			"message":   message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	s.writeJSONResponse(w, statusCode, errorResponse)
}
