package chat

import (
	"context"
	"strconv"
	"strings"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
)

// minExecutiveSummaryLen is the §4.5 floor below which the executive
// summary is considered missing and gets regenerated from summaries.
const minExecutiveSummaryLen = 100

// minKeyFindings/maxKeyFindings bound the repaired key-findings list.
const minKeyFindings = 3
const maxKeyFindings = 6

// ValidateAndRepairSynthesis fills in every field a Synthesis needs to
// satisfy §4.5's invariants, generating substitute content from the
// source summaries when the model's output falls short. It never
// returns an error: a synthesis that can't be repaired from real content
// degrades to generic placeholder text instead of failing the task.
func ValidateAndRepairSynthesis(ctx context.Context, synthesis types.Synthesis, sources []types.SourceSummary, query string) types.Synthesis {
	if len(strings.TrimSpace(synthesis.ExecutiveSummary)) < minExecutiveSummaryLen {
		logger.Warnf(ctx, "executive summary too short (%d chars), regenerating from summaries", len(synthesis.ExecutiveSummary))
		synthesis.ExecutiveSummary = summaryFromSources(sources, query)
	}

	if len(synthesis.KeyFindings) < minKeyFindings {
		logger.Warnf(ctx, "insufficient key findings (%d), generating from summaries", len(synthesis.KeyFindings))
		synthesis.KeyFindings = findingsFromSources(sources, query)
	} else {
		for i := range synthesis.KeyFindings {
			repairFinding(&synthesis.KeyFindings[i])
		}
	}

	if synthesis.Themes == nil {
		synthesis.Themes = []types.Theme{}
	}
	if synthesis.Contradictions == nil {
		synthesis.Contradictions = []types.Contradiction{}
	}
	if synthesis.KnowledgeGaps == nil {
		synthesis.KnowledgeGaps = []string{}
	}
	if synthesis.Recommendations == nil {
		synthesis.Recommendations = []string{}
	}
	if synthesis.FurtherResearch == nil {
		synthesis.FurtherResearch = []string{}
	}
	if synthesis.PullQuote == "" {
		synthesis.PullQuote = truncate(synthesis.ExecutiveSummary, 100)
	}

	if synthesis.DetailedAnalysis == nil || len(synthesis.DetailedAnalysis.Sections) == 0 {
		synthesis.DetailedAnalysis = &types.DetailedAnalysis{
			Sections: []types.AnalysisSection{{
				Title:   "Research Overview",
				Content: synthesis.ExecutiveSummary,
				Sources: sourceRange(1, len(sources), 3),
			}},
		}
	}

	logger.Infof(ctx, "synthesis validation and repair completed")
	return synthesis
}

func repairFinding(f *types.Finding) {
	if f.Headline == "" {
		f.Headline = "Research Finding"
	}
	if f.FindingText == "" {
		f.FindingText = "Analysis revealed relevant insights."
	}
	if f.Category == "" {
		f.Category = types.CategorySecondary
	}
	if f.ImpactScore == 0 {
		f.ImpactScore = 0.5
	}
	if f.Confidence == 0 {
		f.Confidence = 0.5
	}
	if len(f.SupportingSources) == 0 {
		f.SupportingSources = []int{1}
	}
	if f.Statistics == nil {
		f.Statistics = map[string]string{}
	}
	if f.Keywords == nil {
		f.Keywords = []string{}
	}
}

func summaryFromSources(sources []types.SourceSummary, query string) string {
	n := sources
	if len(n) > 3 {
		n = n[:3]
	}
	var parts []string
	for _, s := range n {
		if s.Summary != "" {
			parts = append(parts, truncate(s.Summary, 200))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return "Research conducted on: " + query + ". Analysis of " + strconv.Itoa(len(sources)) + " sources completed."
}

func findingsFromSources(sources []types.SourceSummary, query string) []types.Finding {
	n := sources
	if len(n) > 6 {
		n = n[:6]
	}
	findings := make([]types.Finding, 0, maxKeyFindings)
	for i, s := range n {
		if s.Summary == "" {
			continue
		}
		sentence := strings.TrimSpace(strings.SplitN(s.Summary, ".", 2)[0])
		if sentence == "" {
			continue
		}
		category := types.CategorySecondary
		if i < 3 {
			category = types.CategoryPrimary
		}
		title := s.Title
		if title == "" {
			title = "Source " + strconv.Itoa(i+1)
		}
		findings = append(findings, types.Finding{
			Headline:          truncate("Finding from "+title, 60),
			FindingText:       sentence + ".",
			Category:          category,
			ImpactScore:       0.7 - float64(i)*0.05,
			Confidence:        0.7 - float64(i)*0.05,
			SupportingSources: []int{i + 1},
			Statistics:        map[string]string{},
			Keywords:          []string{},
		})
	}
	for len(findings) < minKeyFindings {
		findings = append(findings, types.Finding{
			Headline:          "Additional Research Finding " + strconv.Itoa(len(findings)+1),
			FindingText:       "Analysis of source materials revealed insights related to " + query + ".",
			Category:          types.CategorySecondary,
			ImpactScore:       0.5,
			Confidence:        0.5,
			SupportingSources: []int{1},
			Statistics:        map[string]string{},
			Keywords:          []string{},
		})
	}
	if len(findings) > maxKeyFindings {
		findings = findings[:maxKeyFindings]
	}
	return findings
}

// FallbackSynthesis builds a minimal synthesis entirely from source
// summaries, used when the LLM synthesis call itself fails or times out.
func FallbackSynthesis(sources []types.SourceSummary, query string) types.Synthesis {
	var executiveSummary string
	if len(sources) > 0 {
		n := sources
		if len(n) > 5 {
			n = n[:5]
		}
		var points []string
		for i, s := range n {
			if s.Summary != "" {
				points = append(points, strconv.Itoa(i+1)+". "+truncate(s.Summary, 200)+"...")
			}
		}
		executiveSummary = "Research on '" + query + "' reveals the following key findings:\n\n" +
			strings.Join(points, "\n") +
			"\n\nThis analysis is based on available sources and may be incomplete due to processing limitations."
	} else {
		executiveSummary = "Unable to generate comprehensive analysis for '" + query + "' due to limited source availability."
	}

	return types.Synthesis{
		ExecutiveSummary: executiveSummary,
		KeyFindings: []types.Finding{
			{
				Headline:          "Sources Analyzed",
				FindingText:       "Analysis of " + strconv.Itoa(len(sources)) + " sources related to '" + query + "'.",
				Category:          types.CategoryPrimary,
				ImpactScore:       0.5,
				Confidence:        0.5,
				SupportingSources: []int{1},
				Statistics:        map[string]string{},
				Keywords:          []string{},
			},
			{
				Headline:          "Processing Constraints",
				FindingText:       "Findings may be limited due to processing constraints.",
				Category:          types.CategorySecondary,
				ImpactScore:       0.4,
				Confidence:        0.5,
				SupportingSources: []int{1},
				Statistics:        map[string]string{},
				Keywords:          []string{},
			},
			{
				Headline:          "Further Research",
				FindingText:       "Further research recommended for comprehensive understanding.",
				Category:          types.CategorySecondary,
				ImpactScore:       0.4,
				Confidence:        0.5,
				SupportingSources: []int{1},
				Statistics:        map[string]string{},
				Keywords:          []string{},
			},
		},
		Recommendations: []string{
			"Results should be verified with additional sources",
			"Professional consultation recommended for critical decisions",
		},
		FurtherResearch: []string{
			"Expand search scope for '" + query + "'",
			"Consult domain experts",
			"Review additional academic sources",
		},
		Themes:         []types.Theme{},
		Contradictions: []types.Contradiction{},
		KnowledgeGaps:  []string{},
		PullQuote:      truncate(executiveSummary, 150),
		DetailedAnalysis: &types.DetailedAnalysis{
			Sections: []types.AnalysisSection{{
				Title:   "Research Summary",
				Content: executiveSummary,
				Sources: sourceRange(1, len(sources), 5),
			}},
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sourceRange(start, count, max int) []int {
	if count > max {
		count = max
	}
	out := make([]int, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, start+i)
	}
	return out
}

