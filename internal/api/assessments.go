package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/hardgate/internal/jobqueue"
	"github.com/hardgate/internal/pipeline"
)

// AnalyzeRequest is the body of POST /analyze. Only remote repositories can
// be assessed over HTTP.
type AnalyzeRequest struct {
	RepoURL     string   `json:"repo_url"`
	GitHubToken string   `json:"github_token,omitempty"`
	Include     []string `json:"include_patterns,omitempty"`
	Exclude     []string `json:"exclude_patterns,omitempty"`
	MaxFileSize int64    `json:"max_file_size,omitempty"`
	NoCache     bool     `json:"no_cache,omitempty"`
}

func (r AnalyzeRequest) pipelineRequest() pipeline.Request {
	return pipeline.Request{
		RepoURL:     strings.TrimSpace(r.RepoURL),
		GitHubToken: r.GitHubToken,
		Include:     r.Include,
		Exclude:     r.Exclude,
		MaxFileSize: r.MaxFileSize,
		NoCache:     r.NoCache,
	}
}

// assessmentSummary is one entry of GET /analyze.
type assessmentSummary struct {
	ID          string          `json:"assessment_id"`
	Status      jobqueue.Status `json:"status"`
	RepoURL     string          `json:"repo_url"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// bindAnalyze parses and checks the request body.
func (s *Server) bindAnalyze(c echo.Context) (pipeline.Request, error) {
	var body AnalyzeRequest
	if err := c.Bind(&body); err != nil {
		return pipeline.Request{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	req := body.pipelineRequest()
	if req.RepoURL == "" {
		return pipeline.Request{}, echo.NewHTTPError(http.StatusBadRequest, "repo_url is required")
	}
	if !s.cfg.LLM.Configured() {
		return pipeline.Request{}, echo.NewHTTPError(http.StatusInternalServerError, "No LLM provider is configured")
	}
	return req, nil
}

// analyze handles POST /analyze
func (s *Server) analyze(c echo.Context) error {
	req, err := s.bindAnalyze(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	id := uuid.NewString()
	if err := s.store.Create(ctx, &jobqueue.Assessment{ID: id, Request: req, StartedAt: s.now()}); err != nil {
		log.Error().Err(err).Msg("Failed to record assessment")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start assessment")
	}
	if err := s.runner.Submit(ctx, id, req); err != nil {
		log.Error().Err(err).Str("assessment_id", id).Msg("Failed to submit assessment")
		_ = s.store.Fail(ctx, id, err.Error())
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Failed to start assessment")
	}

	log.Info().Str("assessment_id", id).Str("repo_url", req.RepoURL).Msg("Assessment submitted")
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"assessment_id":    id,
		"status":           "started",
		"message":          "Assessment started. Poll the status URL for the result.",
		"check_status_url": "/analyze/" + id,
	})
}

// analyzeSync handles POST /analyze/sync
func (s *Server) analyzeSync(c echo.Context) error {
	req, err := s.bindAnalyze(c)
	if err != nil {
		return err
	}

	res, err := s.execute(c.Request().Context(), uuid.NewString(), req)
	if err != nil {
		log.Error().Err(err).Str("repo_url", req.RepoURL).Msg("Synchronous assessment failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Assessment failed: "+err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

// getAssessment handles GET /analyze/:id
func (s *Server) getAssessment(c echo.Context) error {
	id := c.Param("id")
	a, err := s.store.Get(c.Request().Context(), id)
	if errors.Is(err, jobqueue.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Assessment not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load assessment")
	}

	switch a.Status {
	case jobqueue.StatusRunning:
		return c.JSON(http.StatusOK, map[string]interface{}{
			"assessment_id": a.ID,
			"status":        a.Status,
			"message":       "Assessment in progress",
			"started_at":    a.StartedAt.UTC().Format(time.RFC3339),
		})
	case jobqueue.StatusFailed:
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error":         "assessment_failed",
			"message":       a.Error,
			"assessment_id": a.ID,
		})
	}
	return c.JSON(http.StatusOK, a.Result)
}

// deleteAssessment handles DELETE /analyze/:id
func (s *Server) deleteAssessment(c echo.Context) error {
	id := c.Param("id")
	err := s.store.Delete(c.Request().Context(), id)
	if errors.Is(err, jobqueue.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Assessment not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete assessment")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Assessment " + id + " deleted",
	})
}

// listAssessments handles GET /analyze
func (s *Server) listAssessments(c echo.Context) error {
	all, err := s.store.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list assessments")
	}

	out := make([]assessmentSummary, 0, len(all))
	for _, a := range all {
		out = append(out, assessmentSummary{
			ID:          a.ID,
			Status:      a.Status,
			RepoURL:     a.Request.RepoURL,
			StartedAt:   a.StartedAt,
			CompletedAt: a.CompletedAt,
			Error:       a.Error,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"assessments": out,
		"total":       len(out),
	})
}
