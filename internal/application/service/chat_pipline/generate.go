package chatpipline

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// PluginChatCompletion runs a unary (non-streamed) chat completion over the
// merged context, used by the synchronous chat endpoint.
type PluginChatCompletion struct {
	modelService interfaces.ModelService
}

func NewPluginChatCompletion(eventManager *EventManager, modelService interfaces.ModelService) *PluginChatCompletion {
	res := &PluginChatCompletion{modelService: modelService}
	eventManager.Register(res)
	return res
}

func (p *PluginChatCompletion) ActivationEvents() []types.EventType {
	return []types.EventType{types.EventChatCompletion}
}

func (p *PluginChatCompletion) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	chatModel, opts, err := prepareChatModel(ctx, p.modelService, chatManage)
	if err != nil {
		return ErrGetChatModel.WithError(err)
	}

	messages := prepareMessagesWithHistory(chatManage)
	response, err := chatModel.Chat(ctx, messages, opts)
	if err != nil {
		logger.Errorf(ctx, "chat completion failed: %v", err)
		return ErrModelCall.WithError(err)
	}

	chatManage.ChatResponse = *response
	return next()
}
