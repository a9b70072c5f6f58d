package repository

import (
	"context"
	"errors"

	"github.com/deepresearch-go/pipeline/internal/types"
	"gorm.io/gorm"
)

var ErrResearchShareNotFound = errors.New("research share not found")

// ResearchArtifactRepository persists the raw extracted-content manifest
// per fetched source (§4.6), object-stored separately via the file service.
type ResearchArtifactRepository struct {
	db *gorm.DB
}

func NewResearchArtifactRepository(db *gorm.DB) *ResearchArtifactRepository {
	return &ResearchArtifactRepository{db: db}
}

func (r *ResearchArtifactRepository) Create(ctx context.Context, artifact *types.ResearchArtifact) error {
	return r.db.WithContext(ctx).Create(artifact).Error
}

func (r *ResearchArtifactRepository) ListByTask(ctx context.Context, taskID string) ([]*types.ResearchArtifact, error) {
	var artifacts []*types.ResearchArtifact
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Find(&artifacts).Error; err != nil {
		return nil, err
	}
	return artifacts, nil
}

// ResearchShareRepository persists shareable links to completed results.
type ResearchShareRepository struct {
	db *gorm.DB
}

func NewResearchShareRepository(db *gorm.DB) *ResearchShareRepository {
	return &ResearchShareRepository{db: db}
}

func (r *ResearchShareRepository) Create(ctx context.Context, share *types.ResearchShare) error {
	return r.db.WithContext(ctx).Create(share).Error
}

func (r *ResearchShareRepository) GetByShareID(ctx context.Context, shareID string) (*types.ResearchShare, error) {
	var share types.ResearchShare
	if err := r.db.WithContext(ctx).Where("share_id = ?", shareID).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResearchShareNotFound
		}
		return nil, err
	}
	return &share, nil
}
