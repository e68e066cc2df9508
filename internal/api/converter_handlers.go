package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ah-its-andy/docconv/internal/converter"
	"github.com/ah-its-andy/docconv/internal/engine"
)

// EnginesResponse lists registered engines with what the host provides.
type EnginesResponse struct {
	Engines     []converter.EngineInfo `json:"engines"`
	Tools       map[string]string      `json:"tools"`
	PDFPriority []engine.Choice        `json:"pdf_priority"`
}

// listEngines handles GET /api/engines
func (s *Server) listEngines(c *gin.Context) {
	caps := s.deps.Capabilities()
	prio, err := s.deps.Config.PDFPriority()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, EnginesResponse{
		Engines:     converter.ListInfo(caps),
		Tools:       caps.Tools,
		PDFPriority: prio,
	})
}

// updateEngine handles PUT /api/engines/:name, enabling or disabling an
// engine for jobs routed from now on.
func (s *Server) updateEngine(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	name, err := engine.ParseChoice(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if *req.Enabled {
		err = converter.Enable(name)
	} else {
		err = converter.Disable(name)
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.log.Info().Str("engine", string(name)).Bool("enabled", *req.Enabled).Msg("engine toggled")
	c.JSON(http.StatusOK, gin.H{"name": name, "enabled": *req.Enabled})
}

// listPresets handles GET /api/presets
func (s *Server) listPresets(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Presets)
}
