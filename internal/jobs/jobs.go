// Package jobs durably dispatches a research task off the HTTP request
// path, per §4.4: a trigger handler persists the ResearchTask row and
// enqueues it here, returning immediately; a separate asynq worker pulls
// it back off the queue and drives it through the orchestrator.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepresearch-go/pipeline/internal/application/repository"
	"github.com/deepresearch-go/pipeline/internal/application/service/orchestrator"
	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/hibiken/asynq"
)

// TypeResearchExecute is the asynq task type for running a research task's
// full pipeline.
const TypeResearchExecute = "research:execute"

// ExecutePayload carries only the task's external id; the handler reloads
// everything else from research_tasks, so the queue never holds stale
// query/depth/options data if a task is edited before it runs.
type ExecutePayload struct {
	TaskID string `json:"task_id"`
}

// NewExecuteTask builds the asynq task enqueued when a research task is
// created.
func NewExecuteTask(taskID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ExecutePayload{TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("marshal research:execute payload: %w", err)
	}
	return asynq.NewTask(TypeResearchExecute, payload), nil
}

// Dispatcher enqueues research tasks for asynchronous execution.
type Dispatcher struct {
	client *asynq.Client
}

func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Enqueue schedules taskID for execution on the default queue.
func (d *Dispatcher) Enqueue(ctx context.Context, taskID string) error {
	task, err := NewExecuteTask(taskID)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue("default"))
	return err
}

// Handler adapts the orchestrator to an asynq.HandlerFunc.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	taskRepo     *repository.ResearchTaskRepository
}

func NewHandler(o *orchestrator.Orchestrator, taskRepo *repository.ResearchTaskRepository) *Handler {
	return &Handler{orchestrator: o, taskRepo: taskRepo}
}

// Execute reloads the task by id and drives it through the orchestrator's
// full search→fetch→extract→synthesize→analyze→persist pipeline.
func (h *Handler) Execute(ctx context.Context, t *asynq.Task) error {
	var payload ExecutePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal research:execute payload: %w", err)
	}
	task, err := h.taskRepo.GetByTaskID(ctx, payload.TaskID)
	if err != nil {
		return fmt.Errorf("load research task %s: %w", payload.TaskID, err)
	}
	if err := h.orchestrator.Execute(ctx, task); err != nil {
		logger.Errorf(ctx, "research task %s failed: %v", payload.TaskID, err)
		return err
	}
	return nil
}
