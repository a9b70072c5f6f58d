package chatpipline

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/types"
)

// maxContextChars bounds how much retrieved text is folded into the prompt,
// regardless of how many items the retriever returned.
const maxContextChars = 8000

// PluginMergeContext flattens the composite retriever's per-engine results
// into the final ranked context passed to prompt construction, applying a
// character budget so a large hit count can't blow out the prompt.
type PluginMergeContext struct{}

func NewPluginMergeContext(eventManager *EventManager) *PluginMergeContext {
	res := &PluginMergeContext{}
	eventManager.Register(res)
	return res
}

func (p *PluginMergeContext) ActivationEvents() []types.EventType {
	return []types.EventType{types.EventMergeContext}
}

func (p *PluginMergeContext) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	var items []types.RetrieveItem
	for _, result := range chatManage.RetrieveResults {
		items = append(items, result.Items...)
	}

	merged := make([]types.RetrieveItem, 0, len(items))
	budget := maxContextChars
	for _, item := range items {
		if budget <= 0 {
			break
		}
		merged = append(merged, item)
		budget -= len(item.Content)
	}

	chatManage.MergedContext = merged
	if len(merged) == 0 {
		return ErrRetrieveNothing
	}
	return next()
}
