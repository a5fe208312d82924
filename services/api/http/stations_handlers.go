package http

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dijital/hydro-viewer/services/api/models"
)

// handleGetStation returns the station with the given id, or a random one
// GET /stations/:id
func (s *Server) handleGetStation(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		s.handleStationsQuery(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	st, err := s.svc.GetStation(ctx, id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	result := []models.Station{}
	if st != nil {
		result = append(result, *st)
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// handleStationsQuery searches or filters stations by query string
// GET /stations?search=fraser
// GET /stations?xmin=-130&ymin=40&xmax=-90&ymax=55
func (s *Server) handleStationsQuery(c *gin.Context) {
	s.listStations(c, c.Query)
}

// handleStationsForm is the form-encoded twin of handleStationsQuery, for
// clients whose parameters do not fit in a URL.
// POST /stations
func (s *Server) handleStationsForm(c *gin.Context) {
	s.listStations(c, c.PostForm)
}

func (s *Server) listStations(c *gin.Context, param func(string) string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	var (
		stations []models.Station
		err      error
	)
	switch {
	case param("search") != "":
		stations, err = s.svc.SearchStations(ctx, param("search"))
	case hasBounds(param):
		stations, err = s.svc.GetStationsInBounds(ctx,
			parseCoord(param("xmin")),
			parseCoord(param("ymin")),
			parseCoord(param("xmax")),
			parseCoord(param("ymax")),
		)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "search term or bounds (xmin, ymin, xmax, ymax) required"})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": stations})
}

func hasBounds(param func(string) string) bool {
	for _, k := range []string{"xmin", "ymin", "xmax", "ymax"} {
		if param(k) != "" {
			return true
		}
	}
	return false
}

// parseCoord returns NaN for anything that is not a number so the service
// substitutes the world default.
func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
