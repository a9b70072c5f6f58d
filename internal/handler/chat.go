package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/deepresearch-go/pipeline/internal/application/repository"
	chatpipline "github.com/deepresearch-go/pipeline/internal/application/service/chat_pipline"
	apperrors "github.com/deepresearch-go/pipeline/internal/errors"
	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// ChatHandler is the thin HTTP facade in front of C9: create a session and
// run a turn through the retrieve→merge→prompt→generate→persist pipeline.
type ChatHandler struct {
	eventManager  *chatpipline.EventManager
	sessionRepo   *repository.ChatSessionRepository
	messageRepo   *repository.ChatMessageRepository
	streamManager interfaces.StreamManager
}

func NewChatHandler(
	eventManager *chatpipline.EventManager,
	sessionRepo *repository.ChatSessionRepository,
	messageRepo *repository.ChatMessageRepository,
	streamManager interfaces.StreamManager,
) *ChatHandler {
	return &ChatHandler{
		eventManager:  eventManager,
		sessionRepo:   sessionRepo,
		messageRepo:   messageRepo,
		streamManager: streamManager,
	}
}

type createSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Title  string `json:"title"`
}

// CreateSession opens a new conversation container.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError(err.Error()))
		return
	}

	session := &types.ChatSession{
		UserID: req.UserID,
		Title:  req.Title,
	}
	if err := h.sessionRepo.Create(ctx, session); err != nil {
		logger.Errorf(ctx, "failed to create chat session: %v", err)
		c.Error(apperrors.NewInternalServerError("failed to create chat session"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": session})
}

// sendMessageRequest is the body for POST /chat/sessions/:id/messages.
type sendMessageRequest struct {
	Query            string   `json:"query" binding:"required"`
	TaskScope        []string `json:"task_scope"`
	EmbeddingModelID string   `json:"embedding_model_id" binding:"required"`
	ChatModelID      string   `json:"chat_model_id" binding:"required"`
	TopK             int      `json:"top_k"`
	Threshold        float64  `json:"threshold"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	MaxTokens        int      `json:"max_tokens"`
}

const (
	defaultRetrieveTopK      = 5
	defaultRetrieveThreshold = 0.5
)

// buildChatManage loads the session and its recent history and assembles
// the per-turn state the chat pipeline's events operate on.
func (h *ChatHandler) buildChatManage(ctx context.Context, sessionID string, req sendMessageRequest) (*types.ChatManage, error) {
	session, err := h.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history, err := h.messageRepo.ListBySession(ctx, sessionID, 20)
	if err != nil {
		return nil, err
	}
	messages := make([]types.ChatMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, *m)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultRetrieveTopK
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = defaultRetrieveThreshold
	}

	return &types.ChatManage{
		SessionID:        sessionID,
		UserID:           session.UserID,
		TaskScope:        req.TaskScope,
		Query:            req.Query,
		EmbeddingModelID: req.EmbeddingModelID,
		TopK:             topK,
		Threshold:        threshold,
		ChatModelID:      req.ChatModelID,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		History:          messages,
	}, nil
}

// runRetrieval drives retrieve→merge, tolerating "nothing found" as a
// normal outcome rather than a failure.
func (h *ChatHandler) runRetrieval(ctx context.Context, chatManage *types.ChatManage) *chatpipline.PluginError {
	for _, event := range []types.EventType{types.EventRetrieveContext, types.EventMergeContext} {
		if perr := h.eventManager.Trigger(ctx, event, chatManage); perr != nil {
			if perr.ErrorType == chatpipline.ErrRetrieveNothing.ErrorType {
				return nil
			}
			return perr
		}
	}
	return nil
}

// SendMessage runs one turn of the chat pipeline for an existing session
// and returns the assistant's reply with its retrieved sources.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError(err.Error()))
		return
	}

	chatManage, err := h.buildChatManage(ctx, sessionID, req)
	if err != nil {
		if errors.Is(err, repository.ErrChatSessionNotFound) {
			c.Error(apperrors.NewNotFoundError("chat session not found"))
			return
		}
		logger.Errorf(ctx, "failed to prepare chat turn for %s: %v", sessionID, err)
		c.Error(apperrors.NewInternalServerError("failed to prepare chat turn"))
		return
	}

	if perr := h.runRetrieval(ctx, chatManage); perr != nil {
		logger.Errorf(ctx, "chat pipeline retrieval failed: %v", perr.Err)
		c.Error(apperrors.NewInternalServerError(perr.Description))
		return
	}

	for _, event := range []types.EventType{types.EventBuildPrompt, types.EventChatCompletion, types.EventPersistMessage} {
		if perr := h.eventManager.Trigger(ctx, event, chatManage); perr != nil {
			logger.Errorf(ctx, "chat pipeline stage %s failed: %v", event, perr.Err)
			c.Error(apperrors.NewInternalServerError(perr.Description))
			return
		}
	}

	_ = h.sessionRepo.TouchActivity(ctx, sessionID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"answer":  chatManage.ChatResponse.Content,
			"sources": chatManage.MergedContext,
		},
	})
}

// SendMessageStream runs one turn as server-sent events, registering the
// in-flight stream with streamManager so a disconnected client can resume
// it through ContinueStream on any replica.
func (h *ChatHandler) SendMessageStream(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")
	requestID := uuid.New().String()

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError(err.Error()))
		return
	}

	chatManage, err := h.buildChatManage(ctx, sessionID, req)
	if err != nil {
		if errors.Is(err, repository.ErrChatSessionNotFound) {
			c.Error(apperrors.NewNotFoundError("chat session not found"))
			return
		}
		logger.Errorf(ctx, "failed to prepare chat turn for %s: %v", sessionID, err)
		c.Error(apperrors.NewInternalServerError("failed to prepare chat turn"))
		return
	}

	if perr := h.runRetrieval(ctx, chatManage); perr != nil {
		logger.Errorf(ctx, "chat pipeline retrieval failed: %v", perr.Err)
		c.Error(apperrors.NewInternalServerError(perr.Description))
		return
	}
	if perr := h.eventManager.Trigger(ctx, types.EventBuildPrompt, chatManage); perr != nil {
		logger.Errorf(ctx, "chat pipeline stage %s failed: %v", types.EventBuildPrompt, perr.Err)
		c.Error(apperrors.NewInternalServerError(perr.Description))
		return
	}
	if perr := h.eventManager.Trigger(ctx, types.EventChatCompletionStream, chatManage); perr != nil {
		logger.Errorf(ctx, "chat pipeline stage %s failed: %v", types.EventChatCompletionStream, perr.Err)
		c.Error(apperrors.NewInternalServerError(perr.Description))
		return
	}

	if err := h.streamManager.RegisterStream(ctx, sessionID, requestID, req.Query); err != nil {
		logger.Errorf(ctx, "failed to register stream %s/%s: %v", sessionID, requestID, err)
	}
	if len(chatManage.MergedContext) > 0 {
		c.SSEvent("message", &types.StreamResponse{
			ID:           requestID,
			ResponseType: types.ResponseTypeReferences,
			Sources:      chatManage.MergedContext,
		})
		c.Writer.Flush()
	}

	c.Stream(func(w io.Writer) bool {
		resp, ok := <-chatManage.ResponseChan
		if !ok {
			return false
		}
		resp.ID = requestID
		c.SSEvent("message", resp)
		if resp.Content != "" {
			chatManage.ChatResponse.Content += resp.Content
			if err := h.streamManager.UpdateStream(ctx, sessionID, requestID, resp.Content, chatManage.MergedContext); err != nil {
				logger.Errorf(ctx, "failed to update stream %s/%s: %v", sessionID, requestID, err)
			}
		}
		return !resp.Done
	})

	if err := h.streamManager.CompleteStream(ctx, sessionID, requestID); err != nil {
		logger.Errorf(ctx, "failed to complete stream %s/%s: %v", sessionID, requestID, err)
	}

	if perr := h.eventManager.Trigger(ctx, types.EventPersistMessage, chatManage); perr != nil {
		logger.Errorf(ctx, "failed to persist streamed chat turn: %v", perr.Err)
	}
	_ = h.sessionRepo.TouchActivity(ctx, sessionID)
}

// ContinueStream lets a client that lost its connection resume an
// in-flight or just-completed stream, on this replica or any other one
// sharing the same streamManager backend.
func (h *ChatHandler) ContinueStream(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")
	requestID := c.Param("request_id")

	info, err := h.streamManager.GetStream(ctx, sessionID, requestID)
	if err != nil {
		logger.Errorf(ctx, "failed to load stream %s/%s: %v", sessionID, requestID, err)
		c.Error(apperrors.NewInternalServerError("failed to load stream"))
		return
	}
	if info == nil {
		c.Error(apperrors.NewNotFoundError("stream not found"))
		return
	}

	if info.Content != "" {
		c.SSEvent("message", &types.StreamResponse{
			ID:           requestID,
			ResponseType: types.ResponseTypeAnswer,
			Content:      info.Content,
			Done:         info.IsCompleted,
		})
		c.Writer.Flush()
	}
	if info.IsCompleted {
		return
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-time.After(200 * time.Millisecond):
			latest, err := h.streamManager.GetStream(ctx, sessionID, requestID)
			if err != nil || latest == nil {
				return false
			}
			if len(latest.Content) > len(info.Content) {
				delta := latest.Content[len(info.Content):]
				info.Content = latest.Content
				c.SSEvent("message", &types.StreamResponse{
					ID:           requestID,
					ResponseType: types.ResponseTypeAnswer,
					Content:      delta,
					Done:         latest.IsCompleted,
				})
			}
			return !latest.IsCompleted
		}
	})
}
