package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dijital/hydro-viewer/services/api/observability"
)

// registerRoutes mounts the station and reading endpoints at the root, as the
// map client expects, and again under /api/v1.
func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/readyz", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	s.registerAPI(s.engine.Group(""))

	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())
	s.registerAPI(v1)
}

func (s *Server) registerAPI(g *gin.RouterGroup) {
	g.GET("/stations", s.handleStationsQuery)
	g.GET("/stations/:id", s.handleGetStation)
	g.POST("/stations", s.handleStationsForm)

	g.GET("/readings/:id", s.handleGetReadings)
	g.GET("/readings/:id/:n", s.handleGetReadings)
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
