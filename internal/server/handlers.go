package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.search(w, r, &query)
}

func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.SearchQuery{
		Query: q.Get("q"),
		Filters: models.SearchFilters{
			Type:     q.Get("type"),
			LawSlug:  q.Get("law"),
			Category: q.Get("category"),
		},
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		query.Limit = n
	}
	if v := q.Get("semantic_weight"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "semantic_weight must be a number")
			return
		}
		query.SemanticWeight = &f
	}
	if v := q.Get("semantic"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "semantic must be true or false")
			return
		}
		query.SemanticEnabled = &b
	}
	s.search(w, r, &query)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, query *models.SearchQuery) {
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), query)
	if err != nil {
		if errors.Is(err, models.ErrInvalidQuery) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.embeddings.Health(r.Context())
	if err != nil {
		s.logger.Error("embedding stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to read embedding stats")
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

type backfillRequest struct {
	Types  []string `json:"types,omitempty"`
	DryRun bool     `json:"dry_run"`
	Limit  int      `json:"limit,omitempty"`
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Limit < 0 {
		s.respondError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}
	opts := models.BackfillOptions{DryRun: req.DryRun, Limit: req.Limit}
	for _, t := range req.Types {
		ct, err := models.ParseContentType(t)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Types = append(opts.Types, ct)
	}

	if !s.startBackfill(opts) {
		s.respondError(w, http.StatusConflict, "backfill already running")
		return
	}
	s.logger.Info("backfill started", zap.Bool("dry_run", opts.DryRun), zap.Int("limit", opts.Limit))
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	s.lastMu.Lock()
	report, err := s.lastReport, s.lastErr
	s.lastMu.Unlock()

	resp := map[string]interface{}{"running": s.backfilling.Load()}
	if report != nil {
		resp["last_report"] = report
	}
	if err != nil {
		resp["last_error"] = err.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
