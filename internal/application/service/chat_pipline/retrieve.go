package chatpipline

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// PluginRetrieveContext embeds the query and fans it out to the composite
// RAG retriever (C8), the first stage of answering a chat turn.
type PluginRetrieveContext struct {
	modelService interfaces.ModelService
	retriever    interfaces.CompositeRetriever
}

func NewPluginRetrieveContext(
	eventManager *EventManager, modelService interfaces.ModelService, retriever interfaces.CompositeRetriever,
) *PluginRetrieveContext {
	res := &PluginRetrieveContext{modelService: modelService, retriever: retriever}
	eventManager.Register(res)
	return res
}

func (p *PluginRetrieveContext) ActivationEvents() []types.EventType {
	return []types.EventType{types.EventRetrieveContext}
}

func (p *PluginRetrieveContext) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	embedder, err := p.modelService.GetEmbeddingModel(ctx, chatManage.EmbeddingModelID)
	if err != nil {
		logger.Errorf(ctx, "failed to get embedding model: %v", err)
		return ErrRetrieve.WithError(err)
	}

	embedding, err := embedder.Embed(ctx, chatManage.Query)
	if err != nil {
		logger.Errorf(ctx, "failed to embed query: %v", err)
		return ErrRetrieve.WithError(err)
	}
	chatManage.QueryEmbedding = embedding

	items, err := p.retriever.Retrieve(ctx, types.RetrieveParams{
		Query:     chatManage.Query,
		Embedding: embedding,
		TaskIDs:   chatManage.TaskScope,
		TopK:      chatManage.TopK,
		Threshold: chatManage.Threshold,
	})
	if err != nil {
		logger.Errorf(ctx, "failed to retrieve context: %v", err)
		return ErrRetrieve.WithError(err)
	}

	chatManage.RetrieveResults = []types.RetrieveResult{{Items: items}}
	return next()
}
