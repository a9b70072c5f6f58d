package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepresearch-go/pipeline/internal/application/repository"
	"github.com/deepresearch-go/pipeline/internal/application/service/orchestrator"
	apperrors "github.com/deepresearch-go/pipeline/internal/errors"
	"github.com/deepresearch-go/pipeline/internal/jobs"
	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
)

// ResearchHandler is the thin HTTP facade in front of C5: trigger a task,
// poll its status, read back its result, or cancel it. The request/response
// contract is deliberately minimal; see §1 of the specification.
type ResearchHandler struct {
	taskRepo     *repository.ResearchTaskRepository
	orchestrator *orchestrator.Orchestrator
	dispatcher   *jobs.Dispatcher
}

func NewResearchHandler(
	taskRepo *repository.ResearchTaskRepository,
	orchestrator *orchestrator.Orchestrator,
	dispatcher *jobs.Dispatcher,
) *ResearchHandler {
	return &ResearchHandler{taskRepo: taskRepo, orchestrator: orchestrator, dispatcher: dispatcher}
}

// triggerRequest is the body for POST /research.
type triggerRequest struct {
	UserID     string              `json:"user_id" binding:"required"`
	Query      string              `json:"query" binding:"required"`
	Depth      types.ResearchDepth `json:"depth"`
	MaxSources int                 `json:"max_sources"`
	Options    types.Options       `json:"options"`
}

// Trigger creates a research task and enqueues it for asynchronous
// execution, returning immediately with the task's external id.
func (h *ResearchHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()

	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError(err.Error()))
		return
	}
	if req.Depth == "" {
		req.Depth = types.DepthStandard
	}
	if req.MaxSources <= 0 {
		req.MaxSources = types.GetDepthConfig(req.Depth).MaxSources
	}

	tenantID := c.GetUint(types.TenantIDContextKey.String())
	task := &types.ResearchTask{
		TaskID:     orchestrator.NewTaskID(),
		UserID:     req.UserID,
		TenantID:   tenantID,
		Query:      req.Query,
		Depth:      req.Depth,
		MaxSources: req.MaxSources,
		Options:    req.Options,
		Status:     types.StatusPending,
	}
	if err := h.taskRepo.Create(ctx, task); err != nil {
		logger.Errorf(ctx, "failed to create research task: %v", err)
		c.Error(apperrors.NewInternalServerError("failed to create research task"))
		return
	}

	if err := h.dispatcher.Enqueue(ctx, task.TaskID); err != nil {
		logger.Errorf(ctx, "failed to enqueue research task %s: %v", task.TaskID, err)
		c.Error(apperrors.NewInternalServerError("failed to enqueue research task"))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": gin.H{"task_id": task.TaskID}})
}

// Status reports a task's current lifecycle state and progress.
func (h *ResearchHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	taskID := c.Param("task_id")

	progress, err := h.orchestrator.GetTaskStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrResearchTaskNotFound) {
			c.Error(apperrors.NewNotFoundError("research task not found"))
			return
		}
		logger.Errorf(ctx, "failed to get research task status %s: %v", taskID, err)
		c.Error(apperrors.NewInternalServerError("failed to get research task status"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": progress})
}

// Result returns the persisted synthesis once a task has completed.
func (h *ResearchHandler) Result(c *gin.Context) {
	ctx := c.Request.Context()
	taskID := c.Param("task_id")

	result, err := h.orchestrator.GetTaskResults(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrResearchResultNotFound) || errors.Is(err, repository.ErrResearchTaskNotFound) {
			c.Error(apperrors.NewNotFoundError("research result not available"))
			return
		}
		logger.Errorf(ctx, "failed to get research result %s: %v", taskID, err)
		c.Error(apperrors.NewInternalServerError("failed to get research result"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// Cancel transitions a non-terminal task to cancelled.
func (h *ResearchHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()
	taskID := c.Param("task_id")

	cancelled, err := h.orchestrator.CancelTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrResearchTaskNotFound) {
			c.Error(apperrors.NewNotFoundError("research task not found"))
			return
		}
		logger.Errorf(ctx, "failed to cancel research task %s: %v", taskID, err)
		c.Error(apperrors.NewInternalServerError("failed to cancel research task"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"cancelled": cancelled}})
}
