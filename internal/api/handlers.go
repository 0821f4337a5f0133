package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/assistmesh/adapter-runtime/internal/adapters"
	"github.com/assistmesh/adapter-runtime/internal/adapters/registry"
)

type registerRequest struct {
	ID     string                 `json:"id" binding:"required"`
	Type   string                 `json:"type" binding:"required"`
	Config map[string]interface{} `json:"config"`
}

type executeRequest struct {
	Input   interface{}       `json:"input"`
	Context *executionContext `json:"context"`
}

type executionContext struct {
	RequestID      string                 `json:"request_id"`
	UserID         string                 `json:"user_id"`
	SessionID      string                 `json:"session_id"`
	Debug          bool                   `json:"debug"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
	Metadata       map[string]interface{} `json:"metadata"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	factory, ok := s.factories[req.Type]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown adapter type: " + req.Type})
		return
	}

	reg, err := s.registry.Register(c.Request.Context(), req.ID, factory, req.Config)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":      reg.ID,
		"status":  reg.Status(),
		"name":    reg.Metadata.Name,
		"version": reg.Metadata.Version,
		"kind":    reg.Metadata.Kind,
	})
}

func (s *Server) handleUnregister(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.Unregister(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	if s.health != nil {
		s.health.Forget(id)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleList(c *gin.Context) {
	filter := registry.ListFilter{
		Kind:   adapters.Kind(c.Query("kind")),
		Status: registry.Status(c.Query("status")),
	}
	summaries, err := s.registry.List(filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"adapters": summaries})
}

func (s *Server) handleExecute(c *gin.Context) {
	id := c.Param("id")
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	execCtx := adapters.NewExecutionContext(uuid.New().String())
	if req.Context != nil {
		if req.Context.RequestID != "" {
			execCtx.RequestID = req.Context.RequestID
		}
		execCtx.UserID = req.Context.UserID
		execCtx.SessionID = req.Context.SessionID
		execCtx.Debug = req.Context.Debug
		execCtx.Metadata = req.Context.Metadata
		if req.Context.TimeoutSeconds > 0 {
			execCtx.TimeoutOverride = time.Duration(req.Context.TimeoutSeconds) * time.Second
		}
	}

	result, err := s.registry.Execute(c.Request.Context(), id, req.Input, execCtx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleHealth(c *gin.Context) {
	id := c.Param("id")
	result, err := s.registry.HealthCheck(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	response := gin.H{"current": result}
	if s.health != nil {
		response["history"] = s.health.History(id)
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleStatistics(c *gin.Context) {
	stats, err := s.registry.Statistics()
	if err != nil {
		s.writeError(c, err)
		return
	}
	response := gin.H{"registry": stats}
	if s.resources != nil {
		response["resources"] = s.resources.Snapshot()
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleAlerts(c *gin.Context) {
	if s.resources == nil {
		c.JSON(http.StatusOK, gin.H{"active": []interface{}{}, "history": []interface{}{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active":  s.resources.ActiveAlerts(),
		"history": s.resources.AlertHistory(),
	})
}

func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps typed registry failures onto HTTP statuses
func (s *Server) writeError(c *gin.Context, err error) {
	var depErr *adapters.DependencyError
	var sandboxErr *adapters.SandboxViolation

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, adapters.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, adapters.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.As(err, &depErr):
		status = http.StatusConflict
	case errors.Is(err, adapters.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, adapters.ErrNotReady):
		status = http.StatusConflict
	case errors.Is(err, adapters.ErrTooManyOperations):
		status = http.StatusTooManyRequests
	case errors.Is(err, adapters.ErrRegistryNotRunning):
		status = http.StatusServiceUnavailable
	case errors.Is(err, adapters.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &sandboxErr):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
