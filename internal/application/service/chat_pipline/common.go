package chatpipline

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/models/chat"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// prepareChatModel resolves the chat model and its options for this turn.
func prepareChatModel(ctx context.Context, modelService interfaces.ModelService,
	chatManage *types.ChatManage,
) (chat.Chat, *chat.ChatOptions, error) {
	logger.Infof(ctx, "getting chat model %s", chatManage.ChatModelID)

	chatModel, err := modelService.GetChatModel(ctx, chatManage.ChatModelID)
	if err != nil {
		logger.Errorf(ctx, "failed to get chat model: %v", err)
		return nil, nil, err
	}

	opt := &chat.ChatOptions{
		Temperature:      chatManage.Temperature,
		TopP:             chatManage.TopP,
		MaxTokens:        chatManage.MaxTokens,
		FrequencyPenalty: chatManage.FrequencyPenalty,
		PresencePenalty:  chatManage.PresencePenalty,
	}

	return chatModel, opt, nil
}

// buildSystemPrompt renders the RAG system prompt from the merged context.
func buildSystemPrompt(chatManage *types.ChatManage) string {
	prompt := "You are a research assistant. Answer the user's question using only " +
		"the context below. Cite sources by their task id when relevant.\n\nContext:\n"
	for _, item := range chatManage.MergedContext {
		prompt += "- [" + item.Source + "] " + item.Content + "\n"
	}
	return prompt
}

// prepareMessagesWithHistory builds the message list sent to the chat
// model: system prompt, the last two turns of history, then the question.
func prepareMessagesWithHistory(chatManage *types.ChatManage) []chat.Message {
	messages := []chat.Message{
		{Role: "system", Content: chatManage.Prompt},
	}

	history := chatManage.History
	if len(history) > 4 {
		history = history[len(history)-4:]
	}
	for _, msg := range history {
		messages = append(messages, chat.Message{Role: string(msg.Role), Content: msg.Content})
	}

	messages = append(messages, chat.Message{Role: "user", Content: chatManage.Query})
	return messages
}
