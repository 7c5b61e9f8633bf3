package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hardgate/internal/index"
)

// requireIndex fails when the report index is switched off.
func (s *Server) requireIndex() error {
	if !s.index.Enabled() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Report index is disabled")
	}
	return nil
}

// listComponents handles GET /reports/components?type=analysis|ocp
func (s *Server) listComponents(c echo.Context) error {
	if err := s.requireIndex(); err != nil {
		return err
	}
	collection, err := s.collections.Resolve(c.QueryParam("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	components, err := s.index.ListComponents(c.Request().Context(), collection)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list components")
	}
	if components == nil {
		components = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"collection": collection,
		"components": components,
		"total":      len(components),
	})
}

// searchReports handles GET /reports/search?q=&type=&limit=
func (s *Server) searchReports(c echo.Context) error {
	if err := s.requireIndex(); err != nil {
		return err
	}
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	collection, err := s.collections.Resolve(c.QueryParam("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	limit := 5 // default
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 50 {
			limit = parsedLimit
		}
	}

	results, err := s.index.FindSimilar(c.Request().Context(), collection, "", query, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to search reports")
	}
	if results == nil {
		results = []index.Similar{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"query":      query,
		"collection": collection,
		"results":    results,
		"total":      len(results),
		"limit":      limit,
	})
}
