package chatpipline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/deepresearch-go/pipeline/internal/tracing"
	"github.com/deepresearch-go/pipeline/internal/types"
	"go.opentelemetry.io/otel/attribute"
)

// PluginTracing implements tracing for every stage of the chat pipeline.
type PluginTracing struct{}

// NewPluginTracing creates a new tracing plugin instance.
func NewPluginTracing(eventManager *EventManager) *PluginTracing {
	res := &PluginTracing{}
	eventManager.Register(res)
	return res
}

// ActivationEvents returns the event types this plugin handles.
func (p *PluginTracing) ActivationEvents() []types.EventType {
	return []types.EventType{
		types.EventRetrieveContext,
		types.EventMergeContext,
		types.EventBuildPrompt,
		types.EventChatCompletion,
		types.EventChatCompletionStream,
		types.EventPersistMessage,
	}
}

// OnEvent routes each event type to its tracing handler.
func (p *PluginTracing) OnEvent(ctx context.Context,
	eventType types.EventType, chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	switch eventType {
	case types.EventRetrieveContext:
		return p.RetrieveContext(ctx, chatManage, next)
	case types.EventMergeContext:
		return p.MergeContext(ctx, chatManage, next)
	case types.EventBuildPrompt:
		return p.BuildPrompt(ctx, chatManage, next)
	case types.EventChatCompletion:
		return p.ChatCompletion(ctx, chatManage, next)
	case types.EventChatCompletionStream:
		return p.ChatCompletionStream(ctx, chatManage, next)
	case types.EventPersistMessage:
		return p.PersistMessage(ctx, chatManage, next)
	}
	return next()
}

func (p *PluginTracing) RetrieveContext(ctx context.Context,
	chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	_, span := tracing.ContextWithSpan(ctx, "PluginTracing.RetrieveContext")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", chatManage.Query),
		attribute.Float64("threshold", chatManage.Threshold),
		attribute.Int("top_k", chatManage.TopK),
	)
	err := next()
	span.SetAttributes(attribute.Int("raw_result_count", len(chatManage.RetrieveResults)))
	return err
}

func (p *PluginTracing) MergeContext(ctx context.Context,
	chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	_, span := tracing.ContextWithSpan(ctx, "PluginTracing.MergeContext")
	defer span.End()
	span.SetAttributes(attribute.Int("raw_result_count", len(chatManage.RetrieveResults)))
	err := next()
	mergedJSON, _ := json.Marshal(chatManage.MergedContext)
	span.SetAttributes(
		attribute.Int("merged_count", len(chatManage.MergedContext)),
		attribute.String("merged_context", string(mergedJSON)),
	)
	return err
}

func (p *PluginTracing) BuildPrompt(ctx context.Context,
	chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	_, span := tracing.ContextWithSpan(ctx, "PluginTracing.BuildPrompt")
	defer span.End()
	span.SetAttributes(attribute.Int("context_items", len(chatManage.MergedContext)))
	err := next()
	span.SetAttributes(attribute.Int("prompt_length", len(chatManage.Prompt)))
	return err
}

func (p *PluginTracing) ChatCompletion(ctx context.Context,
	chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	_, span := tracing.ContextWithSpan(ctx, "PluginTracing.ChatCompletion")
	defer span.End()
	span.SetAttributes(
		attribute.String("model_id", chatManage.ChatModelID),
		attribute.String("query", chatManage.Query),
		attribute.Int("context_items", len(chatManage.MergedContext)),
	)
	err := next()
	span.SetAttributes(
		attribute.String("chat_response", chatManage.ChatResponse.Content),
		attribute.Int("chat_response_tokens", chatManage.ChatResponse.Usage.TotalTokens),
	)
	return err
}

func (p *PluginTracing) ChatCompletionStream(ctx context.Context,
	chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	ctx, span := tracing.ContextWithSpan(ctx, "PluginTracing.ChatCompletionStream")
	startTime := time.Now()
	span.SetAttributes(
		attribute.String("model_id", chatManage.ChatModelID),
		attribute.String("query", chatManage.Query),
		attribute.Int("context_items", len(chatManage.MergedContext)),
	)

	responseBuilder := &strings.Builder{}
	oldStream := chatManage.ResponseChan
	newStream := make(chan types.StreamResponse)
	chatManage.ResponseChan = newStream

	go func(ctx context.Context) {
		for resp := range oldStream {
			if resp.ResponseType == types.ResponseTypeAnswer {
				responseBuilder.WriteString(resp.Content)
			}
			newStream <- resp
		}
		elapsedMS := time.Since(startTime).Milliseconds()
		span.SetAttributes(
			attribute.Int64("response_time_ms", elapsedMS),
			attribute.Int("final_response_length", responseBuilder.Len()),
		)
		span.End()
		close(newStream)
	}(ctx)

	return next()
}

func (p *PluginTracing) PersistMessage(ctx context.Context,
	chatManage *types.ChatManage, next func() *PluginError,
) *PluginError {
	_, span := tracing.ContextWithSpan(ctx, "PluginTracing.PersistMessage")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", chatManage.SessionID))
	return next()
}
