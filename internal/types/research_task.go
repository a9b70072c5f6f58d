package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Options is a free-form options bag attached to a research task.
type Options map[string]any

func (o Options) Value() (driver.Value, error) {
	if o == nil {
		return "{}", nil
	}
	return json.Marshal(o)
}

func (o *Options) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, o)
}

// StringList is a JSON-backed []string column, reused for warnings and keyword lists.
type StringList []string

func (c StringList) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return json.Marshal(c)
}

func (c *StringList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, c)
}

// ResearchTask is the unit of work the orchestrator drives to completion.
// The orchestrator updates it in place; results and artifacts are written
// as rows of their own tables.
type ResearchTask struct {
	ID uint `json:"-" gorm:"primaryKey"`
	// TaskID is the opaque external identifier, format res_<12 hex>.
	TaskID string `json:"task_id" gorm:"type:varchar(32);uniqueIndex"`
	// UserID owns this task.
	UserID string `json:"user_id" gorm:"index"`
	// TenantID scopes the task to a tenant, same as the rest of the store.
	TenantID uint `json:"tenant_id" gorm:"index"`

	Query      string        `json:"query"`
	Depth      ResearchDepth `json:"depth"`
	MaxSources int           `json:"max_sources"`
	Options    Options       `json:"options" gorm:"type:json"`

	Status   TaskStatus `json:"status" gorm:"index"`
	Progress int        `json:"progress"`

	Warnings     StringList `json:"warnings" gorm:"type:json"`
	ErrorMessage string     `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

func (ResearchTask) TableName() string { return "research_tasks" }

// DepthConfig is the per-depth lookup table of stage limits, consulted by the
// orchestrator instead of computed. Values match §4.4 of the specification
// and the original implementation's get_research_depth_config.
type DepthConfig struct {
	MaxSearches          int
	MaxSources           int
	SummarizationLength  int
	SynthesisDetail      string
	AnalysisDeadline     time.Duration
	SearchDeadline       time.Duration
	FetchDeadline        time.Duration
	SynthesisDeadline    time.Duration
	DetailedDeadline     time.Duration
}

// DepthConfigs is the exhaustive lookup table for the three supported depths.
var DepthConfigs = map[ResearchDepth]DepthConfig{
	DepthQuick: {
		MaxSearches: 1, MaxSources: 5, SummarizationLength: 200, SynthesisDetail: "brief",
		AnalysisDeadline: 30 * time.Second, SearchDeadline: 60 * time.Second,
		FetchDeadline: 120 * time.Second, SynthesisDeadline: 300 * time.Second,
		DetailedDeadline: 150 * time.Second,
	},
	DepthStandard: {
		MaxSearches: 3, MaxSources: 15, SummarizationLength: 300, SynthesisDetail: "standard",
		AnalysisDeadline: 60 * time.Second, SearchDeadline: 120 * time.Second,
		FetchDeadline: 300 * time.Second, SynthesisDeadline: 600 * time.Second,
		DetailedDeadline: 300 * time.Second,
	},
	DepthComprehensive: {
		MaxSearches: 5, MaxSources: 30, SummarizationLength: 500, SynthesisDetail: "detailed",
		AnalysisDeadline: 120 * time.Second, SearchDeadline: 180 * time.Second,
		FetchDeadline: 600 * time.Second, SynthesisDeadline: 900 * time.Second,
		DetailedDeadline: 450 * time.Second,
	},
}

// GetDepthConfig resolves the depth lookup table, defaulting to standard for
// an unrecognized value rather than erroring, since depth is caller input.
func GetDepthConfig(depth ResearchDepth) DepthConfig {
	if cfg, ok := DepthConfigs[depth]; ok {
		return cfg
	}
	return DepthConfigs[DepthStandard]
}
