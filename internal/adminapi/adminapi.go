// Package adminapi exposes a read-only operational view of the running
// configuration — networks, monitors, triggers — plus the one permitted
// write: pausing or resuming a monitor without a restart.
package adminapi

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/chainwatch/monitor/infrastructure/config"
	"github.com/chainwatch/monitor/infrastructure/logging"
)

// Server wraps a gin.Engine bound to one config.Bundle.
type Server struct {
	engine *gin.Engine
	bundle *config.Bundle
	logger *logging.Logger
}

// NewServer builds the admin API router. Mount Handler() under the main
// HTTP server (e.g. chi's Router().Mount("/admin", server.Handler())).
func NewServer(bundle *config.Bundle, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, bundle: bundle, logger: logger}
	engine.GET("/networks", s.listNetworks)
	engine.GET("/networks/:slug", s.getNetwork)
	engine.GET("/monitors", s.listMonitors)
	engine.POST("/monitors/:name/pause", s.pauseMonitor)
	engine.POST("/monitors/:name/resume", s.resumeMonitor)
	engine.GET("/triggers", s.listTriggers)
	return s
}

// Handler returns the engine as an http.Handler for mounting.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) listNetworks(c *gin.Context) {
	slugs := make([]string, 0, len(s.bundle.Networks))
	for slug := range s.bundle.Networks {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	out := make([]any, 0, len(slugs))
	for _, slug := range slugs {
		out = append(out, s.bundle.Networks[slug])
	}
	c.JSON(http.StatusOK, gin.H{"networks": out})
}

func (s *Server) getNetwork(c *gin.Context) {
	network, ok := s.bundle.Networks[c.Param("slug")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "network not found"})
		return
	}
	c.JSON(http.StatusOK, network)
}

func (s *Server) listMonitors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"monitors": s.bundle.AllMonitors()})
}

func (s *Server) pauseMonitor(c *gin.Context) {
	s.setPaused(c, true)
}

func (s *Server) resumeMonitor(c *gin.Context) {
	s.setPaused(c, false)
}

func (s *Server) setPaused(c *gin.Context, paused bool) {
	name := c.Param("name")
	if !s.bundle.SetMonitorPaused(name, paused) {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not found"})
		return
	}
	s.logger.WithContext(c.Request.Context()).WithField("monitor", name).WithField("paused", paused).
		Info("monitor pause state changed via admin api")
	c.JSON(http.StatusOK, gin.H{"name": name, "paused": paused})
}

func (s *Server) listTriggers(c *gin.Context) {
	names := make([]string, 0, len(s.bundle.Triggers))
	for name := range s.bundle.Triggers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]any, 0, len(names))
	for _, name := range names {
		out = append(out, s.bundle.Triggers[name])
	}
	c.JSON(http.StatusOK, gin.H{"triggers": out})
}
