package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/needze/agentflow/graph/tool"
	"github.com/needze/agentflow/internal/management"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tools": s.opts.Tools.Names()})
}

func (s *Server) callTool(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.opts.Tools.Get(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tool: " + name})
		return
	}

	var input map[string]interface{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
			return
		}
	}

	out, err := s.opts.Tools.Call(c.Request.Context(), name, input)
	if err != nil {
		if errors.Is(err, tool.ErrUnknownTool) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.opts.Logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tool": name, "result": out})
}

type managementRequest struct {
	Query      string `json:"query" binding:"required"`
	MaxRetries *int   `json:"max_retries"`
}

func (s *Server) runManagement(c *gin.Context) {
	if s.opts.Management == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "management workflow is not configured"})
		return
	}
	var req managementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	retries := s.opts.MaxRetries
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		retries = *req.MaxRetries
	}

	state, err := s.opts.Management.SafeRun(c.Request.Context(), req.Query, retries)
	switch {
	case errors.Is(err, management.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "errors": state.ErrorMessages})
		return
	case err != nil:
		s.opts.Logger.Error("management run failed", zap.String("query", req.Query), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   err.Error(),
			"run_id":  state.RunID,
			"summary": management.Summary(state),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       state.RunID,
		"alert_level":  state.AlertLevel,
		"success_rate": management.SuccessRate(state),
		"summary":      management.Summary(state),
		"report":       state.FinalReport,
	})
}
