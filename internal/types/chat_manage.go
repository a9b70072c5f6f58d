package types

// EventType identifies one stage of the chat-response pipeline (C9), each
// handled by a chain of Plugins registered against an EventManager.
type EventType string

const (
	EventRetrieveContext      EventType = "retrieve_context"
	EventMergeContext         EventType = "merge_context"
	EventBuildPrompt          EventType = "build_prompt"
	EventChatCompletion       EventType = "chat_completion"
	EventChatCompletionStream EventType = "chat_completion_stream"
	EventPersistMessage       EventType = "persist_message"
)

// ChatManage is the mutable state threaded through the chat pipeline for a
// single turn, mirroring the teacher's request-scoped pipeline object.
type ChatManage struct {
	SessionID string
	UserID    string

	// TaskScope restricts retrieval to these research tasks. An empty scope
	// is passed through as is, with no lookup of the user's own tasks: the
	// vector and keyword engines then search every stored task and the
	// graph engine returns nothing.
	TaskScope []string

	Query            string
	QueryEmbedding   []float32
	EmbeddingModelID string
	TopK             int
	Threshold        float64

	// RetrieveResults holds the raw per-engine output before merge.
	RetrieveResults []RetrieveResult
	// MergedContext holds the ranked, deduplicated items after merge.
	MergedContext []RetrieveItem

	Prompt string

	ChatModelID      string
	Temperature      float64
	TopP             float64
	MaxTokens        int
	FrequencyPenalty float64
	PresencePenalty  float64

	History []ChatMessage

	ChatResponse ChatResponse
	ResponseChan chan StreamResponse
}
