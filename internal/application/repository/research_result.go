package repository

import (
	"context"
	"errors"

	"github.com/deepresearch-go/pipeline/internal/types"
	"gorm.io/gorm"
)

var ErrResearchResultNotFound = errors.New("research result not found")

// ResearchResultRepository persists the synthesized answer for a completed
// research task (§4.5), one row per task.
type ResearchResultRepository struct {
	db *gorm.DB
}

func NewResearchResultRepository(db *gorm.DB) *ResearchResultRepository {
	return &ResearchResultRepository{db: db}
}

func (r *ResearchResultRepository) Create(ctx context.Context, result *types.ResearchResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *ResearchResultRepository) Upsert(ctx context.Context, result *types.ResearchResult) error {
	var existing types.ResearchResult
	err := r.db.WithContext(ctx).Where("task_id = ?", result.TaskID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.Create(ctx, result)
	case err != nil:
		return err
	default:
		result.ID = existing.ID
		return r.db.WithContext(ctx).Save(result).Error
	}
}

func (r *ResearchResultRepository) GetByTaskID(ctx context.Context, taskID string) (*types.ResearchResult, error) {
	var result types.ResearchResult
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResearchResultNotFound
		}
		return nil, err
	}
	return &result, nil
}

// SearchByEmbedding performs cosine nearest-neighbor search over completed
// syntheses, for the C8 vector retrieval engine, scoped to a set of task IDs
// when given (empty means search every stored result; there is no tenant
// filter).
func (r *ResearchResultRepository) SearchByEmbedding(
	ctx context.Context, embedding types.Vector, taskIDs []string, topK int,
) ([]*types.ResearchResult, []float64, error) {
	var results []*types.ResearchResult
	query := r.db.WithContext(ctx).
		Select("*, 1 - (synthesis_embedding <=> ?) AS similarity", embedding).
		Where("synthesis_embedding IS NOT NULL").
		Order("synthesis_embedding <=> ?", embedding).
		Limit(topK)
	if len(taskIDs) > 0 {
		query = query.Where("task_id IN ?", taskIDs)
	}
	if err := query.Find(&results).Error; err != nil {
		return nil, nil, err
	}
	similarities := make([]float64, len(results))
	for i, res := range results {
		if res.SynthesisEmbedding == nil {
			continue
		}
		similarities[i] = CosineSimilarity(embedding.Slice(), res.SynthesisEmbedding.Slice())
	}
	return results, similarities, nil
}

func (r *ResearchResultRepository) Delete(ctx context.Context, taskID string) error {
	return r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&types.ResearchResult{}).Error
}
