package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/deepresearch-go/pipeline/internal/models/chat"
	"github.com/deepresearch-go/pipeline/internal/types"
)

// scriptedChat is a chat.Chat stub that returns one reply per call, in
// order, regardless of the prompt it is given.
type scriptedChat struct {
	replies []string
	calls   int
}

func (s *scriptedChat) Chat(ctx context.Context, messages []chat.Message, opts *chat.ChatOptions) (*types.ChatResponse, error) {
	if s.calls >= len(s.replies) {
		return &types.ChatResponse{Content: s.replies[len(s.replies)-1]}, nil
	}
	reply := s.replies[s.calls]
	s.calls++
	return &types.ChatResponse{Content: reply}, nil
}

func (s *scriptedChat) ChatStream(ctx context.Context, messages []chat.Message, opts *chat.ChatOptions) (<-chan types.StreamResponse, error) {
	panic("not used by these tests")
}

func (s *scriptedChat) GetModelName() string { return "scripted" }
func (s *scriptedChat) GetModelID() string   { return "scripted" }

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "trailing comma before closing brace",
			in:   `{"a": 1, "b": 2,}`,
			want: `{"a": 1, "b": 2}`,
		},
		{
			name: "trailing comma before closing bracket",
			in:   `{"a": [1, 2, 3,]}`,
			want: `{"a": [1, 2, 3]}`,
		},
		{
			name: "raw newline inside a string",
			in:   "{\"a\": \"line one\nline two\"}",
			want: `{"a": "line one line two"}`,
		},
		{
			name: "invalid escape sequence is stripped",
			in:   `{"a": "50\% done"}`,
			want: `{"a": "50% done"}`,
		},
		{
			name: "valid escapes survive untouched",
			in:   `{"a": "tab\tquote\"backslash\\"}`,
			want: `{"a": "tab\tquote\"backslash\\"}`,
		},
		{
			name: "valid unicode escape survives untouched",
			in:   `{"a": "\u00e9"}`,
			want: `{"a": "\u00e9"}`,
		},
		{
			name: "invalid unicode escape loses its backslash",
			in:   `{"a": "\uZZZZ"}`,
			want: `{"a": "uZZZZ"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeJSON(tt.in)
			if got != tt.want {
				t.Errorf("sanitizeJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeJSON_ProducesValidJSON(t *testing.T) {
	raw := `{"executive_summary": "ok", "key_findings": [{"headline": "h", "finding": "f",}],}`
	sanitized := sanitizeJSON(raw)

	var out struct {
		ExecutiveSummary string `json:"executive_summary"`
		KeyFindings      []struct {
			Headline string `json:"headline"`
			Finding  string `json:"finding"`
		} `json:"key_findings"`
	}
	if err := json.Unmarshal([]byte(sanitized), &out); err != nil {
		t.Fatalf("sanitized JSON still fails to parse: %v\nsanitized = %s", err, sanitized)
	}
	if out.ExecutiveSummary != "ok" || len(out.KeyFindings) != 1 {
		t.Errorf("unexpected decoded value: %+v", out)
	}
}

func TestSynthesizeResearch_TrailingCommaSanitizedOnFirstAttempt(t *testing.T) {
	model := &scriptedChat{replies: []string{
		`{"executive_summary": "Solar adoption continues to grow worldwide.", ` +
			`"key_findings": [{"headline": "Growth", "finding": "Adoption is rising.", "category": "primary", ` +
			`"impact_score": 0.8, "confidence": 0.8, "supporting_sources": [1], "statistics": {}, "keywords": [],}], ` +
			`"themes": [], "contradictions": [], "knowledge_gaps": [], "recommendations": [], ` +
			`"further_research": [], "pull_quote": "Solar is rising.",}`,
	}}

	sources := []types.SourceSummary{{URL: "https://example.com", Title: "Example", Summary: "Solar panel adoption is rising."}}

	synthesis, err := synthesizeResearch(context.Background(), model, sources, "solar adoption trends", "brief")
	if err != nil {
		t.Fatalf("synthesizeResearch() error = %v, want nil (trailing comma should be sanitized away)", err)
	}
	if model.calls != 1 {
		t.Errorf("model called %d times, want exactly 1 (sanitized parse should succeed on the first attempt)", model.calls)
	}
	if synthesis.ExecutiveSummary == "" {
		t.Error("ExecutiveSummary is empty after a successful parse")
	}
	if len(synthesis.KeyFindings) != 1 {
		t.Errorf("KeyFindings = %+v, want 1 entry", synthesis.KeyFindings)
	}
}

func TestSynthesizeResearch_RetriesWithSimplifiedPromptOnPersistentGarbage(t *testing.T) {
	model := &scriptedChat{replies: []string{
		"not json at all",
		"still not json",
		`{"executive_summary": "Fallback summary text.", "key_findings": [` +
			`{"headline": "h", "finding": "f", "category": "primary", "impact_score": 0.5, "confidence": 0.5, ` +
			`"supporting_sources": [1], "statistics": {}, "keywords": []}], "themes": [], "contradictions": [], ` +
			`"knowledge_gaps": [], "recommendations": [], "further_research": []}`,
	}}

	sources := []types.SourceSummary{{URL: "https://example.com", Summary: "content"}}
	synthesis, err := synthesizeResearch(context.Background(), model, sources, "query", "brief")
	if err != nil {
		t.Fatalf("synthesizeResearch() error = %v, want nil on the third attempt", err)
	}
	if model.calls != 3 {
		t.Errorf("model called %d times, want 3", model.calls)
	}
	if synthesis.ExecutiveSummary != "Fallback summary text." {
		t.Errorf("ExecutiveSummary = %q, want the third attempt's reply", synthesis.ExecutiveSummary)
	}
}

func TestSynthesizeResearch_AllAttemptsFail(t *testing.T) {
	model := &scriptedChat{replies: []string{"garbage", "still garbage", "more garbage"}}
	sources := []types.SourceSummary{{URL: "https://example.com", Summary: "content"}}

	_, err := synthesizeResearch(context.Background(), model, sources, "query", "brief")
	if err == nil {
		t.Fatal("synthesizeResearch() error = nil, want an error after exhausting all attempts")
	}
	if model.calls != jsonRetryAttempts {
		t.Errorf("model called %d times, want %d", model.calls, jsonRetryAttempts)
	}
}

func TestGenerateDetailedAnalysis_OutlineDrivenSections(t *testing.T) {
	model := &scriptedChat{replies: []string{
		"Overview and Background\nKey Developments\nFuture Outlook",
		"Paragraph about the overview, citing [1] for support.",
		`{"quotes": ["a telling quote"], "statistics": {"adoption": "42%"}}`,
		"Paragraph about key developments, citing [1] and [2].",
		`{"quotes": [], "statistics": {}}`,
		"Paragraph about the future outlook.",
		`{"quotes": [], "statistics": {}}`,
	}}

	sources := []types.SourceSummary{
		{URL: "https://a.example", Summary: "source a"},
		{URL: "https://b.example", Summary: "source b"},
	}

	analysis, err := generateDetailedAnalysis(context.Background(), model, sources, "query")
	if err != nil {
		t.Fatalf("generateDetailedAnalysis() error = %v", err)
	}
	if len(analysis.Sections) != 3 {
		t.Fatalf("len(Sections) = %d, want 3 (one per outline title)", len(analysis.Sections))
	}
	if analysis.Sections[0].Title != "Overview and Background" {
		t.Errorf("Sections[0].Title = %q, want %q", analysis.Sections[0].Title, "Overview and Background")
	}
	if len(analysis.Sections[0].Sources) != 1 || analysis.Sections[0].Sources[0] != 1 {
		t.Errorf("Sections[0].Sources = %v, want [1] (content cites [1] only)", analysis.Sections[0].Sources)
	}
	if len(analysis.Sections[0].Quotes) != 1 || analysis.Sections[0].Quotes[0] != "a telling quote" {
		t.Errorf("Sections[0].Quotes = %v, want [\"a telling quote\"]", analysis.Sections[0].Quotes)
	}
	if len(analysis.Sections[1].Sources) != 2 {
		t.Errorf("Sections[1].Sources = %v, want 2 citations", analysis.Sections[1].Sources)
	}
}

func TestGenerateSubsections_NoSubsectionsNeeded(t *testing.T) {
	model := &scriptedChat{replies: []string{"NO_SUBSECTIONS"}}
	subsections, err := generateSubsections(context.Background(), model, "Overview", "short content")
	if err != nil {
		t.Fatalf("generateSubsections() error = %v", err)
	}
	if subsections != nil {
		t.Errorf("subsections = %+v, want nil", subsections)
	}
}

func TestGenerateSubsections_ParsesUpToTwoBlocks(t *testing.T) {
	model := &scriptedChat{replies: []string{
		"SUBSECTION 1: Market Size\nThe market is large and growing.\n\n" +
			"SUBSECTION 2: Key Players\nA handful of firms dominate.\n\n" +
			"SUBSECTION 3: Ignored\nThis one should never appear.",
	}}
	subsections, err := generateSubsections(context.Background(), model, "Overview", "long content")
	if err != nil {
		t.Fatalf("generateSubsections() error = %v", err)
	}
	if len(subsections) != 2 {
		t.Fatalf("len(subsections) = %d, want 2 (capped at maxSubsections)", len(subsections))
	}
	if subsections[0].Title != "Market Size" || subsections[1].Title != "Key Players" {
		t.Errorf("subsections = %+v, want titles [Market Size, Key Players]", subsections)
	}
}
