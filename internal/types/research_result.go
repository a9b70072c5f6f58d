package types

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pgvector/pgvector-go"
)

// Vector is a fixed-dimension embedding column, backed by pgvector.
type Vector = pgvector.Vector

// Media is a single image/video/embed item collected from a source.
type Media struct {
	Type string `json:"type"` // image, video, youtube
	URL  string `json:"url"`
}

// MediaList is a JSON-backed []Media column.
type MediaList []Media

func (m MediaList) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	return json.Marshal(m)
}

func (m *MediaList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, m)
}

// SourceSummary is a value inside ResearchResult.Sources: one fetched and
// summarized page.
type SourceSummary struct {
	URL              string           `json:"url"`
	Title            string           `json:"title"`
	Summary          string           `json:"summary"`
	WordCount        int              `json:"word_count"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	Media            []Media          `json:"media"` // at most 2 items
}

// Finding is a value inside Synthesis.KeyFindings.
type Finding struct {
	Headline          string            `json:"headline"` // <=15 words
	FindingText       string            `json:"finding"`  // 1-2 sentences
	Category          FindingCategory   `json:"category"`
	ImpactScore       float64           `json:"impact_score"` // [0,1]
	Confidence        float64           `json:"confidence"`   // [0,1]
	SupportingSources []int             `json:"supporting_sources"` // 1-based indices into Sources
	Statistics        map[string]string `json:"statistics"`
	Keywords          []string          `json:"keywords"`
}

// Theme is a value inside Synthesis.Themes.
type Theme struct {
	Theme       string `json:"theme"`
	Description string `json:"description"`
	Sources     []int  `json:"sources"`
}

// Contradiction is a value inside Synthesis.Contradictions.
type Contradiction struct {
	Point      string   `json:"point"`
	Viewpoints []string `json:"viewpoints"`
	Sources    []int    `json:"sources"`
}

// Subsection is a nested elaboration inside a detailed-analysis section.
type Subsection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// AnalysisSection is one section of DetailedAnalysis.Sections.
type AnalysisSection struct {
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Sources     []int             `json:"sources"`
	Quotes      []string          `json:"quotes,omitempty"`
	Statistics  map[string]string `json:"statistics,omitempty"`
	Subsections []Subsection      `json:"subsections,omitempty"`
}

// DetailedAnalysis is the best-effort multi-section elaboration; it is
// omitted from the synthesis entirely when stage 7 fails.
type DetailedAnalysis struct {
	Sections []AnalysisSection `json:"sections"` // >=1 section after repair
}

// Synthesis is the structured LLM-generated summary, shaped per §4.5.
type Synthesis struct {
	ExecutiveSummary  string            `json:"executive_summary"` // >=100 chars, or html-paragraphed
	KeyFindings       []Finding         `json:"key_findings"`      // >=3 after repair
	Themes            []Theme           `json:"themes"`
	Contradictions     []Contradiction   `json:"contradictions"`
	KnowledgeGaps      []string          `json:"knowledge_gaps"`
	Recommendations    []string          `json:"recommendations"`
	FurtherResearch    []string          `json:"further_research"`
	PullQuote          string            `json:"pull_quote"`
	DetailedAnalysis   *DetailedAnalysis `json:"detailed_analysis,omitempty"`
}

// Value/Scan make Synthesis usable as a single JSON column.
func (s Synthesis) Value() (driver.Value, error) { return json.Marshal(s) }

func (s *Synthesis) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, s)
}

// SourceSummaryList is a JSON-backed []SourceSummary column.
type SourceSummaryList []SourceSummary

func (c SourceSummaryList) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return json.Marshal(c)
}

func (c *SourceSummaryList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, c)
}

// QueryAnalysis is the output of the analyze_query LLM operation, or its
// degraded fallback {search_strategies:[query]}.
type QueryAnalysis struct {
	SearchStrategies []string `json:"search_strategies"`
	Intent           string   `json:"intent,omitempty"`
	KeyConcepts      []string `json:"key_concepts,omitempty"`
}

func (q QueryAnalysis) Value() (driver.Value, error) { return json.Marshal(q) }

func (q *QueryAnalysis) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, q)
}

// ResearchResult is 1-1 with a completed ResearchTask, created once on
// successful completion.
type ResearchResult struct {
	ID             uint   `json:"-" gorm:"primaryKey"`
	TaskID         string `json:"task_id" gorm:"type:varchar(32);uniqueIndex"`

	Synthesis     Synthesis         `json:"synthesis" gorm:"type:json"`
	Sources       SourceSummaryList `json:"sources" gorm:"type:json"`
	QueryAnalysis QueryAnalysis     `json:"query_analysis" gorm:"type:json"`
	FeaturedMedia MediaList         `json:"featured_media" gorm:"type:json"`
	SourcesUsed   int               `json:"sources_used"`

	SynthesisEmbedding *Vector `json:"synthesis_embedding,omitempty" gorm:"type:vector(384)"`
	QueryEmbedding     *Vector `json:"query_embedding,omitempty" gorm:"type:vector(384)"`
}

func (ResearchResult) TableName() string { return "research_results" }
