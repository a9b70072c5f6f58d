package chatpipline

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/application/repository"
	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
)

// PluginPersistMessage saves the assistant's turn, with its sources, once
// generation (streamed or not) has completed.
type PluginPersistMessage struct {
	messages *repository.ChatMessageRepository
}

func NewPluginPersistMessage(eventManager *EventManager, messages *repository.ChatMessageRepository) *PluginPersistMessage {
	res := &PluginPersistMessage{messages: messages}
	eventManager.Register(res)
	return res
}

func (p *PluginPersistMessage) ActivationEvents() []types.EventType {
	return []types.EventType{types.EventPersistMessage}
}

func (p *PluginPersistMessage) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	userMsg := &types.ChatMessage{
		SessionID:   chatManage.SessionID,
		Role:        types.RoleUser,
		Content:     chatManage.Query,
		IsCompleted: true,
	}
	if err := p.messages.Create(ctx, userMsg); err != nil {
		logger.Errorf(ctx, "failed to persist user message: %v", err)
		return ErrPersist.WithError(err)
	}

	assistantMsg := &types.ChatMessage{
		SessionID:   chatManage.SessionID,
		Role:        types.RoleAssistant,
		Content:     chatManage.ChatResponse.Content,
		Sources:     types.RetrieveItemList(chatManage.MergedContext),
		IsCompleted: true,
	}
	if err := p.messages.Create(ctx, assistantMsg); err != nil {
		logger.Errorf(ctx, "failed to persist assistant message: %v", err)
		return ErrPersist.WithError(err)
	}

	return next()
}
