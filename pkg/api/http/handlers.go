package http

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExecuteRequest is the body of a workflow execution
type ExecuteRequest struct {
	Input  map[string]interface{} `json:"input"`
	Output []string               `json:"output" binding:"required,min=1"`
	Skip   []string               `json:"skip"`
}

// SubmitResponse is returned for asynchronous executions
type SubmitResponse struct {
	RunID       string `json:"run_id"`
	WorkflowID  string `json:"workflow_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// WorkflowSummary is one entry of the workflow listing
type WorkflowSummary struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Tasks []string `json:"tasks"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// statusFor maps an orchestrator error onto an HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound, "NOT_FOUND"
	case domain.IsConfigurationError(err):
		return http.StatusUnprocessableEntity, "CONFIGURATION_ERROR"
	case errors.Is(err, context.Canceled):
		return http.StatusConflict, "CANCELLED"
	default:
		return http.StatusInternalServerError, "EXECUTION_FAILED"
	}
}

func (s *Server) fail(c *gin.Context, err error, details interface{}) {
	status, code := statusFor(err)
	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: err.Error(),
			Details: details,
		},
	})
}

// handleHealth reports pool health when a pool is running
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{"orchestrator": "ok"}
	status := http.StatusOK
	healthy := "healthy"

	if s.health != nil {
		pool := s.health.GetStatus()
		checks["workers"] = pool
		if !pool.Healthy {
			status = http.StatusServiceUnavailable
			healthy = "unhealthy"
		}
	}
	checks["active_runs"] = s.orchestrator.ActiveRuns()

	c.JSON(status, gin.H{
		"status":    healthy,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleListWorkflows lists stored workflows sorted by id
func (s *Server) handleListWorkflows(c *gin.Context) {
	defs, err := s.orchestrator.ListWorkflows(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list workflows", zap.Error(err))
		s.fail(c, err, nil)
		return
	}

	summaries := make([]WorkflowSummary, 0, len(defs))
	for _, def := range defs {
		tasks := make([]string, 0, len(def.Tasks))
		for _, t := range def.SortedTasks() {
			tasks = append(tasks, t.Name)
		}
		summaries = append(summaries, WorkflowSummary{ID: def.ID, Name: def.Name, Tasks: tasks})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })

	c.JSON(http.StatusOK, gin.H{
		"workflows": summaries,
		"total":     len(summaries),
	})
}

// handleGetWorkflow returns a workflow definition
func (s *Server) handleGetWorkflow(c *gin.Context) {
	def, err := s.orchestrator.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, def)
}

// handleExecuteWorkflow runs a workflow. With ?async=true the run is queued
// and its id returned immediately.
func (s *Server) handleExecuteWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}
	runReq := domain.RunRequest{Input: req.Input, Output: req.Output, Skip: req.Skip}

	async, _ := strconv.ParseBool(c.Query("async"))
	if async {
		runID, err := s.orchestrator.SubmitWorkflow(c.Request.Context(), workflowID, runReq)
		if err != nil {
			s.logger.Error("failed to submit workflow",
				zap.String("workflow_id", workflowID),
				zap.Error(err))
			s.fail(c, err, nil)
			return
		}
		c.JSON(http.StatusAccepted, SubmitResponse{
			RunID:       runID,
			WorkflowID:  workflowID,
			Status:      string(domain.ExecutionStatusSubmitted),
			SubmittedAt: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	state, err := s.orchestrator.ExecuteWorkflow(c.Request.Context(), workflowID, runReq)
	if err != nil {
		// state is nil when the run never started
		var details interface{}
		if state != nil {
			details = state
		}
		s.fail(c, err, details)
		return
	}

	c.JSON(http.StatusOK, state)
}

// handleGetRun returns the persisted state of a run
func (s *Server) handleGetRun(c *gin.Context) {
	state, err := s.orchestrator.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleCancelRun cancels a queued or running run
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.orchestrator.CancelRun(c.Request.Context(), runID); err != nil {
		if domain.IsNotFound(err) {
			s.fail(c, err, nil)
			return
		}
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CANCELLATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       runID,
		"status":       domain.ExecutionStatusCancelled,
		"cancelled_at": time.Now().UTC().Format(time.RFC3339),
	})
}
