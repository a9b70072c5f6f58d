package repository

import (
	"context"
	"errors"

	"github.com/deepresearch-go/pipeline/internal/types"
	"gorm.io/gorm"
)

var ErrChatSessionNotFound = errors.New("chat session not found")

// ChatSessionRepository persists conversation containers (§4.8).
type ChatSessionRepository struct {
	db *gorm.DB
}

func NewChatSessionRepository(db *gorm.DB) *ChatSessionRepository {
	return &ChatSessionRepository{db: db}
}

func (r *ChatSessionRepository) Create(ctx context.Context, session *types.ChatSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *ChatSessionRepository) GetByID(ctx context.Context, id string) (*types.ChatSession, error) {
	var session types.ChatSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *ChatSessionRepository) ListByUser(ctx context.Context, userID string, page *types.Pagination) ([]*types.ChatSession, int64, error) {
	var sessions []*types.ChatSession
	var total int64
	query := r.db.WithContext(ctx).Model(&types.ChatSession{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("last_activity DESC").Offset(page.Offset()).Limit(page.Limit()).Find(&sessions).Error; err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (r *ChatSessionRepository) TouchActivity(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&types.ChatSession{}).
		Where("id = ?", id).Update("last_activity", gorm.Expr("NOW()")).Error
}

func (r *ChatSessionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&types.ChatSession{}).Error
}
