package repository

import (
	"context"
	"errors"

	"github.com/deepresearch-go/pipeline/internal/types"
	"gorm.io/gorm"
)

var ErrResearchTaskNotFound = errors.New("research task not found")

// ResearchTaskRepository persists the research task lifecycle record (§4.2).
type ResearchTaskRepository struct {
	db *gorm.DB
}

func NewResearchTaskRepository(db *gorm.DB) *ResearchTaskRepository {
	return &ResearchTaskRepository{db: db}
}

func (r *ResearchTaskRepository) Create(ctx context.Context, task *types.ResearchTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *ResearchTaskRepository) GetByTaskID(ctx context.Context, taskID string) (*types.ResearchTask, error) {
	var task types.ResearchTask
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResearchTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// UpdateStatus transitions a task's status and, for terminal statuses, its
// error message. It does not validate the transition, and neither does the
// orchestrator's setStatus; only CancelTask checks for a terminal status
// before calling in.
func (r *ResearchTaskRepository) UpdateStatus(
	ctx context.Context, taskID string, status types.TaskStatus, errMsg string,
) error {
	updates := map[string]any{"status": status}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	return r.db.WithContext(ctx).Model(&types.ResearchTask{}).
		Where("task_id = ?", taskID).Updates(updates).Error
}

func (r *ResearchTaskRepository) Update(ctx context.Context, task *types.ResearchTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

// ListRecent returns the N most recently created tasks for a user (for
// every user when userID is empty), newest first. Nothing in this module
// calls it yet; the TaskTracker is not seeded from it.
func (r *ResearchTaskRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*types.ResearchTask, error) {
	var tasks []*types.ResearchTask
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *ResearchTaskRepository) Delete(ctx context.Context, taskID string) error {
	return r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&types.ResearchTask{}).Error
}
