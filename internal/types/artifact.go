package types

import "time"

// ResearchArtifact is the raw extracted text and media manifest persisted
// per fetched source, object-stored via the file service and indexed by
// task; no export of these rows is implemented.
type ResearchArtifact struct {
	ID        uint    `json:"-" gorm:"primaryKey"`
	TaskID    string  `json:"task_id" gorm:"index"`
	URL       string  `json:"url"`
	Method    ExtractionMethod `json:"method"`
	StorageKey string  `json:"storage_key"` // object key in the artifact bucket
	WordCount int     `json:"word_count"`
	Media     MediaList `json:"media" gorm:"type:json"`
	Embedding *Vector `json:"embedding,omitempty" gorm:"type:vector(384)"`
	CreatedAt time.Time `json:"created_at"`
}

func (ResearchArtifact) TableName() string { return "research_artifacts" }

// ResearchShare is a shareable link to a completed research result.
type ResearchShare struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	ShareID   string    `json:"share_id" gorm:"type:varchar(32);uniqueIndex"`
	TaskID    string    `json:"task_id" gorm:"index"`
	UserID    string    `json:"user_id" gorm:"index"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (ResearchShare) TableName() string { return "research_shares" }
