package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dijital/hydro-viewer/services/api/query"
)

// handleGetReadings refreshes the station when stale and returns its latest
// hourly readings
// GET /readings/:id/:n
func (s *Server) handleGetReadings(c *gin.Context) {
	id := c.Param("id")

	// A missing or non-numeric count falls back to the maximum.
	n := query.MaxCount
	if v := c.Param("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}

	// Covers a possible upstream download on top of the queries.
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.FetchTimeout+15*time.Second)
	defer cancel()

	result, err := s.svc.GetReadings(ctx, id, n)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}
