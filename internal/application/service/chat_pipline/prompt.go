package chatpipline

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/types"
)

// PluginBuildPrompt renders the fixed instructions and the merged context
// into the system prompt the chat model will see. History and the question
// are added later, by prepareMessagesWithHistory at generation time.
type PluginBuildPrompt struct{}

func NewPluginBuildPrompt(eventManager *EventManager) *PluginBuildPrompt {
	res := &PluginBuildPrompt{}
	eventManager.Register(res)
	return res
}

func (p *PluginBuildPrompt) ActivationEvents() []types.EventType {
	return []types.EventType{types.EventBuildPrompt}
}

func (p *PluginBuildPrompt) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	chatManage.Prompt = buildSystemPrompt(chatManage)
	return next()
}
