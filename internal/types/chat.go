package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatResponse is a unary chat completion.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ResponseType tags a stream frame's payload kind.
type ResponseType string

const (
	ResponseTypeAnswer     ResponseType = "answer"
	ResponseTypeReferences ResponseType = "references"
)

// StreamResponse is one frame of a streamed chat response. Sources are
// attached out-of-band on the final frame, per §4.8.
type StreamResponse struct {
	ID           string         `json:"id"`
	ResponseType ResponseType   `json:"response_type"`
	Content      string         `json:"content"`
	Done         bool           `json:"done"`
	Sources      []RetrieveItem `json:"sources,omitempty"`
}

// ChatSession is a conversation container owned by a user.
type ChatSession struct {
	ID           string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID       string     `json:"user_id" gorm:"index"`
	Title        string     `json:"title"`
	LastActivity time.Time  `json:"last_activity"`
	Context      Options    `json:"context" gorm:"type:json"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	Messages []ChatMessage `json:"-" gorm:"foreignKey:SessionID"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = time.Now()
	}
	return nil
}

// RetrieveItem is a captured snapshot of one RAG source used to answer a
// chat message, stored alongside it.
type RetrieveItem struct {
	Type       string         `json:"type"` // synthesis, graph
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	FinalScore float64        `json:"final_score"`
	Source     string         `json:"source"` // task_id the item was drawn from
	Metadata   map[string]any `json:"metadata,omitempty"`
	Context    *NodeContext   `json:"context,omitempty"`
}

// RetrieveItemList is a JSON-backed []RetrieveItem column.
type RetrieveItemList []RetrieveItem

func (c RetrieveItemList) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return json.Marshal(c)
}

func (c *RetrieveItemList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, c)
}

// ChatMessage is one turn within a ChatSession. Within a session, creation
// timestamps are strictly monotonic per role-pair turn.
type ChatMessage struct {
	ID          string           `json:"id" gorm:"type:varchar(36);primaryKey"`
	SessionID   string           `json:"session_id" gorm:"index"`
	Role        ChatRole         `json:"role"`
	Content     string           `json:"content"`
	Sources     RetrieveItemList `json:"sources" gorm:"type:json"`
	IsCompleted bool             `json:"is_completed"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `json:"-" gorm:"index"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Sources == nil {
		m.Sources = make(RetrieveItemList, 0)
	}
	return nil
}
