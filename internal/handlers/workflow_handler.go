package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

// WorkflowOrchestrator is the part of services.Orchestrator the handlers use.
type WorkflowOrchestrator interface {
	Process(ctx context.Context, req models.SearchRequest) *models.WorkflowState
	GetWorkflowState(ctx context.Context, workflowID string) (*models.WorkflowState, error)
	GetActiveWorkflowsCount() int
	HealthCheck(ctx context.Context) error
	GetStats() map[string]any
}

type WorkflowHandler struct {
	orchestrator WorkflowOrchestrator
	logger       *logger.Logger
	startTime    time.Time
}

func NewWorkflowHandler(orchestrator WorkflowOrchestrator, log *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		orchestrator: orchestrator,
		logger:       log,
		startTime:    time.Now(),
	}
}

// Search runs the pipeline synchronously and returns the final snapshot.
// Degraded stages are reported in the snapshot, never as a non-200.
func (h *WorkflowHandler) Search(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse("INVALID_REQUEST", "Invalid search request", err.Error()))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, models.NewErrorResponse(models.ErrEmptyQuery.Code, models.ErrEmptyQuery.Message, ""))
		return
	}

	state := h.orchestrator.Process(c.Request.Context(), req)

	h.logger.WithFields(logger.Fields{
		"workflow_id": state.ID,
		"status":      state.Status,
		"ranked":      len(state.Ranked),
		"duration_ms": state.GetDuration().Milliseconds(),
	}).Info("Search completed")

	c.JSON(http.StatusOK, state)
}

func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	state, err := h.orchestrator.GetWorkflowState(c.Request.Context(), workflowID)
	if err != nil {
		if models.IsNotFound(err) {
			c.JSON(http.StatusNotFound, models.NewErrorResponse("WORKFLOW_NOT_FOUND", "Workflow not found", workflowID))
			return
		}
		h.logger.WithError(err).Error("Failed to load workflow", "workflow_id", workflowID)
		c.JSON(http.StatusInternalServerError, models.NewErrorResponse("WORKFLOW_LOOKUP_FAILED", "Failed to load workflow", ""))
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *WorkflowHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    h.orchestrator.GetStats(),
	})
}

func (h *WorkflowHandler) Health(c *gin.Context) {
	response := gin.H{
		"status":           "ok",
		"uptime_seconds":   time.Since(h.startTime).Seconds(),
		"active_workflows": h.orchestrator.GetActiveWorkflowsCount(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.orchestrator.HealthCheck(ctx); err != nil {
		response["status"] = "degraded"
		response["error"] = err.Error()
	}

	c.JSON(http.StatusOK, response)
}
