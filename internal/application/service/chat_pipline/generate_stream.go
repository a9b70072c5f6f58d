package chatpipline

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// PluginChatCompletionStream runs a streamed chat completion, attaching the
// merged retrieval context as Sources on the final frame (§4.8).
type PluginChatCompletionStream struct {
	modelService interfaces.ModelService
}

func NewPluginChatCompletionStream(
	eventManager *EventManager, modelService interfaces.ModelService,
) *PluginChatCompletionStream {
	res := &PluginChatCompletionStream{modelService: modelService}
	eventManager.Register(res)
	return res
}

func (p *PluginChatCompletionStream) ActivationEvents() []types.EventType {
	return []types.EventType{types.EventChatCompletionStream}
}

func (p *PluginChatCompletionStream) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	chatModel, opts, err := prepareChatModel(ctx, p.modelService, chatManage)
	if err != nil {
		return ErrGetChatModel.WithError(err)
	}

	messages := prepareMessagesWithHistory(chatManage)
	upstream, err := chatModel.ChatStream(ctx, messages, opts)
	if err != nil {
		logger.Errorf(ctx, "chat stream failed: %v", err)
		return ErrModelCall.WithError(err)
	}

	out := make(chan types.StreamResponse)
	chatManage.ResponseChan = out

	go func() {
		defer close(out)
		for resp := range upstream {
			if resp.Done {
				resp.Sources = chatManage.MergedContext
			}
			out <- resp
		}
	}()

	return next()
}
