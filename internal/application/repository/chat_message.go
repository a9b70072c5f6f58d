package repository

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/types"
	"gorm.io/gorm"
)

// ChatMessageRepository persists individual conversation turns (§4.8).
type ChatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

func (r *ChatMessageRepository) Create(ctx context.Context, msg *types.ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// ListBySession returns a session's messages oldest-first, the order the
// chat pipeline feeds them back in as history.
func (r *ChatMessageRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*types.ChatMessage, error) {
	var messages []*types.ChatMessage
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *ChatMessageRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&types.ChatMessage{}).Error
}
