package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/models/chat"
	"github.com/deepresearch-go/pipeline/internal/types"
)

// These helpers sit one layer above the generic chat.Chat interface: each
// builds a domain prompt, calls the model once or across a few retried
// attempts, and decodes the JSON object embedded in its reply. They
// correspond to the original's ollama_client.analyze_query/
// summarize_content/synthesize_research/reformat_executive_summary/
// generate_detailed_analysis_multistep, which are themselves thin prompt
// wrappers around a single underlying chat model.

// jsonRetryAttempts is the total number of attempts (the first call
// included) a structured-output call makes at rising temperature before
// giving up, mirroring
// synthesize_research's "for attempt in range(3)" loop.
const jsonRetryAttempts = 3

// extractJSON pulls the first {...} object out of a reply, tolerating
// the model wrapping it in prose or a markdown code fence.
func extractJSON(reply string) string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start == -1 || end == -1 || end < start {
		return reply
	}
	return reply[start : end+1]
}

// sanitizeJSON repairs the common ways a model's JSON reply fails to
// parse: invalid backslash escapes, raw newlines inside string values,
// and trailing commas before a closing brace or bracket. Ported from
// sanitize_json_response.
func sanitizeJSON(s string) string {
	s = removeInvalidEscapes(s)
	s = collapseRawNewlines(s)
	s = removeTrailingCommas(s)
	return s
}

// removeInvalidEscapes drops the backslash from any escape sequence that
// is not one of JSON's valid forms (\", \\, \/, \b, \f, \n, \r, \t, or
// \uXXXX), leaving the following character untouched. Mirrors the regex
// `\(?!["\\/bfnrt]|u[0-9a-fA-F]{4})`, which Go's RE2 engine cannot express
// directly since it has no lookahead.
func removeInvalidEscapes(s string) string {
	r := []rune(s)
	var b strings.Builder
	b.Grow(len(r))
	for i := 0; i < len(r); i++ {
		if r[i] != '\\' {
			b.WriteRune(r[i])
			continue
		}
		if i+1 >= len(r) {
			continue // trailing lone backslash: drop it
		}
		next := r[i+1]
		switch next {
		case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
			b.WriteRune('\\')
			b.WriteRune(next)
			i++
		case 'u':
			if i+5 < len(r) && isHexDigit(r[i+2]) && isHexDigit(r[i+3]) && isHexDigit(r[i+4]) && isHexDigit(r[i+5]) {
				b.WriteString(string(r[i : i+6]))
				i += 5
			}
			// invalid \u escape: drop the backslash, let 'u' fall through
			// to the next iteration as a plain character.
		default:
			// invalid escape: drop the backslash, keep the next character
		}
	}
	return b.String()
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// collapseRawNewlines replaces literal newlines with a space, since a
// model occasionally emits an unescaped line break inside a JSON string
// value.
func collapseRawNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

// removeTrailingCommas strips a comma that appears just before a closing
// `}` or `]`, which encoding/json rejects outright but models routinely
// produce.
func removeTrailingCommas(s string) string {
	r := []rune(s)
	var b strings.Builder
	b.Grow(len(r))
	for i := 0; i < len(r); i++ {
		if r[i] == ',' {
			j := i + 1
			for j < len(r) && (r[j] == ' ' || r[j] == '\t' || r[j] == '\n' || r[j] == '\r') {
				j++
			}
			if j < len(r) && (r[j] == '}' || r[j] == ']') {
				continue // drop the comma, keep scanning from the whitespace
			}
		}
		b.WriteRune(r[i])
	}
	return b.String()
}

// chatJSON calls model once and decodes the JSON object in its reply into
// out, retrying up to jsonRetryAttempts times at rising temperature when
// the reply fails to parse. Each attempt tries the sanitized reply first,
// falling back to the raw extracted text, mirroring synthesize_research's
// attempt loop.
func chatJSON(ctx context.Context, model chat.Chat, system, user string, out any) error {
	var lastErr error
	for attempt := 0; attempt < jsonRetryAttempts; attempt++ {
		messages := []chat.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		}
		temperature := 0.3 + float64(attempt)*0.1
		resp, err := model.Chat(ctx, messages, &chat.ChatOptions{Temperature: temperature})
		if err != nil {
			lastErr = err
			continue
		}

		raw := extractJSON(resp.Content)
		if err := json.Unmarshal([]byte(sanitizeJSON(raw)), out); err == nil {
			return nil
		} else if err2 := json.Unmarshal([]byte(raw), out); err2 == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("decode JSON reply after %d attempts: %w", jsonRetryAttempts, lastErr)
}

// analyzeQuery derives search strategies for a query. On any failure, the
// caller falls back to QueryAnalysis{SearchStrategies: []string{query}}.
func analyzeQuery(ctx context.Context, model chat.Chat, query string) (types.QueryAnalysis, error) {
	var analysis types.QueryAnalysis
	system := "You analyze research queries and propose up to 3 distinct web search strategies " +
		"that together cover the query well. Respond with JSON only: " +
		`{"search_strategies": ["..."], "intent": "...", "key_concepts": ["..."]}`
	err := chatJSON(ctx, model, system, query, &analysis)
	if err != nil || len(analysis.SearchStrategies) == 0 {
		return types.QueryAnalysis{SearchStrategies: []string{query}}, err
	}
	return analysis, nil
}

// summarizeContent condenses one source's extracted text to at most
// maxLength characters, focused on the research query.
func summarizeContent(ctx context.Context, model chat.Chat, content, focus string, maxLength int) (string, error) {
	if len(content) > 8000 {
		content = content[:8000]
	}
	system := fmt.Sprintf(
		"Summarize the following source content in at most %d characters, focusing on information "+
			"relevant to: %q. Respond with the summary text only, no preamble.", maxLength, focus)
	messages := []chat.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: content},
	}
	resp, err := model.Chat(ctx, messages, &chat.ChatOptions{Temperature: 0.3, MaxTokens: maxLength})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Content)
	if len(summary) > maxLength {
		summary = summary[:maxLength]
	}
	return summary, nil
}

// synthesisSchema is the full JSON schema requested on the first
// synthesis attempt.
const synthesisSchema = `{"executive_summary":"...","key_findings":[{"headline":"...","finding":"...",` +
	`"category":"primary|secondary|emerging|consideration","impact_score":0.0,"confidence":0.0,` +
	`"supporting_sources":[1],"statistics":{},"keywords":["..."]}],` +
	`"themes":[{"theme":"...","description":"...","sources":[1]}],` +
	`"contradictions":[{"point":"...","viewpoints":["..."],"sources":[1]}],` +
	`"knowledge_gaps":["..."],"recommendations":["..."],"further_research":["..."],"pull_quote":"..."}`

// simplifiedSynthesisSchema is requested on retries: fewer fields, no
// nested optional sections, easier for a struggling model to emit
// validly.
const simplifiedSynthesisSchema = `{"executive_summary":"...","key_findings":[{"headline":"...","finding":"...",` +
	`"category":"primary","impact_score":0.0,"confidence":0.0,"supporting_sources":[1],"statistics":{},"keywords":[]}],` +
	`"themes":[],"contradictions":[],"knowledge_gaps":[],"recommendations":[],"further_research":[]}`

// synthesisPrompt builds the synthesis request for a given retry attempt:
// the full schema and every source on the first try, then a
// progressively smaller prompt with a simpler schema, mirroring
// _get_simpler_synthesis_prompt.
func synthesisPrompt(sources []types.SourceSummary, query, detail string, attempt int) (system, user string, err error) {
	if attempt == 0 {
		payload, mErr := json.Marshal(sources)
		if mErr != nil {
			return "", "", mErr
		}
		system = "You synthesize research findings from multiple summarized sources into a structured report. " +
			"Detail level: " + detail + ". Respond with JSON only matching: " + synthesisSchema
		user = fmt.Sprintf("Research query: %s\n\nSources (JSON array, 1-indexed):\n%s", query, string(payload))
		return system, user, nil
	}

	limit := 5
	if attempt >= 2 {
		limit = 3
	}
	if limit > len(sources) {
		limit = len(sources)
	}
	var b strings.Builder
	for i := 0; i < limit; i++ {
		summary := sources[i].Summary
		if len(summary) > 300 {
			summary = summary[:300]
		}
		fmt.Fprintf(&b, "Source %d: %s\n\n", i+1, summary)
	}

	system = "Synthesize research findings into a simple, valid JSON object with a minimal structure: " +
		"fewer findings, no nested complexity. Respond with JSON only matching: " + simplifiedSynthesisSchema
	user = fmt.Sprintf("Synthesize research about %q from these sources:\n\n%s", query, b.String())
	return system, user, nil
}

// synthesizeResearch produces the structured synthesis from every
// source's summary. It retries up to jsonRetryAttempts times, simplifying
// the prompt and raising the temperature on each retry, and sanitizing
// the reply before every parse. The caller is responsible for running
// chat.ValidateAndRepairSynthesis on the result.
func synthesizeResearch(ctx context.Context, model chat.Chat, sources []types.SourceSummary, query string, detail string) (types.Synthesis, error) {
	var synthesis types.Synthesis
	var lastErr error

	for attempt := 0; attempt < jsonRetryAttempts; attempt++ {
		system, user, err := synthesisPrompt(sources, query, detail, attempt)
		if err != nil {
			return synthesis, err
		}

		messages := []chat.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		}
		temperature := 0.4 + float64(attempt)*0.1
		resp, err := model.Chat(ctx, messages, &chat.ChatOptions{Temperature: temperature})
		if err != nil {
			lastErr = err
			continue
		}

		raw := extractJSON(resp.Content)
		if err := json.Unmarshal([]byte(sanitizeJSON(raw)), &synthesis); err == nil {
			return synthesis, nil
		} else if err2 := json.Unmarshal([]byte(raw), &synthesis); err2 == nil {
			return synthesis, nil
		} else {
			lastErr = err
		}
	}
	return synthesis, fmt.Errorf("synthesize research after %d attempts: %w", jsonRetryAttempts, lastErr)
}

// reformatExecutiveSummary asks the model to re-flow a plain-text summary
// into paragraphed markdown, independent of the synthesis deadline.
func reformatExecutiveSummary(ctx context.Context, model chat.Chat, summary string) (string, error) {
	system := "Reformat the following text into readable markdown with clear paragraph breaks. " +
		"Do not change its meaning or add content. Respond with the reformatted text only."
	messages := []chat.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: summary},
	}
	resp, err := model.Chat(ctx, messages, &chat.ChatOptions{Temperature: 0.2})
	if err != nil {
		return summary, err
	}
	if out := strings.TrimSpace(resp.Content); out != "" {
		return out, nil
	}
	return summary, nil
}

// Stage 7's detailed analysis: an outline-first, section-by-section flow
// rather than one giant JSON prompt, per generate_analysis_outline,
// generate_section_content, extract_quotes_and_stats, generate_subsections,
// and generate_detailed_analysis_multistep.

const (
	outlineMinSections  = 5
	outlineMaxSections  = 8
	outlineSourceLimit  = 10
	subsectionThreshold = 800 // section content longer than this gets subsections
	maxSubsections      = 2
	maxSourceRefs       = 5
	maxSourceRefScan    = 20
)

// generateAnalysisOutline proposes 5-8 section titles to structure the
// detailed analysis around, one per line. Ported from
// generate_analysis_outline.
func generateAnalysisOutline(ctx context.Context, model chat.Chat, sources []types.SourceSummary, query string) ([]string, error) {
	limit := len(sources)
	if limit > outlineSourceLimit {
		limit = outlineSourceLimit
	}
	var b strings.Builder
	for i := 0; i < limit; i++ {
		summary := sources[i].Summary
		if len(summary) > 500 {
			summary = summary[:500]
		}
		fmt.Fprintf(&b, "Source %d: %s\n\n", i+1, summary)
	}

	system := "You outline detailed analysis reports for research findings."
	user := fmt.Sprintf(
		"Based on this research about %q, create an outline for a detailed analysis report.\n\n"+
			"Research summaries:\n%s\n"+
			"Generate %d-%d main section titles that comprehensively cover the topic. "+
			"Provide ONLY the section titles, one per line, no numbering or bullets.",
		query, b.String(), outlineMinSections, outlineMaxSections,
	)
	messages := []chat.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	resp, err := model.Chat(ctx, messages, &chat.ChatOptions{Temperature: 0.5, MaxTokens: 500})
	if err != nil {
		return nil, err
	}

	var titles []string
	for _, line := range strings.Split(resp.Content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			titles = append(titles, line)
		}
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("outline reply contained no section titles")
	}
	if len(titles) > outlineMaxSections {
		titles = titles[:outlineMaxSections]
	}
	return titles, nil
}

// generateSectionContent writes 2-3 markdown paragraphs for one outline
// section, citing sources as [n]. Ported from generate_section_content.
func generateSectionContent(ctx context.Context, model chat.Chat, title string, sources []types.SourceSummary, query string) (string, error) {
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "Source [%d] (%s):\n%s\n\n", i+1, s.URL, s.Summary)
	}

	system := "You write detailed, citation-backed analysis sections in markdown for a research report."
	user := fmt.Sprintf(
		"Write a detailed analysis section titled %q for research about %q.\n\n"+
			"Research data from all sources:\n%s\n"+
			"Write 2-3 comprehensive paragraphs (300-500 words total) in markdown, citing sources like [1], [2]. "+
			"Focus specifically on %q. Respond with the section content only.",
		title, query, b.String(), title,
	)
	messages := []chat.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	resp, err := model.Chat(ctx, messages, &chat.ChatOptions{Temperature: 0.6, MaxTokens: 1000})
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("section %q returned empty content", title)
	}
	return content, nil
}

// quotesAndStats is the decoded shape of extractQuotesAndStats's reply.
type quotesAndStats struct {
	Quotes     []string          `json:"quotes"`
	Statistics map[string]string `json:"statistics"`
}

// extractQuotesAndStats pulls supporting quotes and statistics for one
// section out of the sources. Ported from extract_quotes_and_stats.
func extractQuotesAndStats(ctx context.Context, model chat.Chat, sectionTitle string, sources []types.SourceSummary) (quotesAndStats, error) {
	limit := len(sources)
	if limit > outlineSourceLimit {
		limit = outlineSourceLimit
	}
	var b strings.Builder
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "Source [%d]:\n%s\n\n", i+1, sources[i].Summary)
	}

	system := "You extract supporting quotes and statistics from research sources. Respond with JSON only."
	user := fmt.Sprintf(
		"Extract quotes and statistics relevant to %q from these sources:\n\n%s"+
			`Find 1-2 direct quotes that support the section content and any key statistics. Respond with JSON only: `+
			`{"quotes":["..."],"statistics":{"metric":"value"}}. If none found, return empty arrays/objects.`,
		sectionTitle, b.String(),
	)

	var result quotesAndStats
	if err := chatJSON(ctx, model, system, user, &result); err != nil {
		return quotesAndStats{}, err
	}
	return result, nil
}

// generateSubsections asks whether a section would benefit from
// subsections and parses up to maxSubsections "SUBSECTION n: title"
// blocks from the reply. Ported from generate_subsections.
func generateSubsections(ctx context.Context, model chat.Chat, sectionTitle, sectionContent string) ([]types.Subsection, error) {
	preview := sectionContent
	if len(preview) > 500 {
		preview = preview[:500]
	}
	system := "You decide whether a research report section needs subsections and draft them."
	user := fmt.Sprintf(
		"Does this section need subsections for better organization?\n\n"+
			"Section Title: %s\nSection Content: %s...\n\n"+
			"If yes, create 1-2 subsection titles and brief markdown content (1-2 paragraphs each). "+
			"If no subsections are needed, respond with \"NO_SUBSECTIONS\".\n\n"+
			"Format if subsections are needed:\nSUBSECTION 1: [Title]\n[content]\n\nSUBSECTION 2: [Title]\n[content]",
		sectionTitle, preview,
	)
	messages := []chat.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	resp, err := model.Chat(ctx, messages, &chat.ChatOptions{Temperature: 0.5, MaxTokens: 600})
	if err != nil {
		return nil, err
	}

	if strings.Contains(resp.Content, "NO_SUBSECTIONS") {
		return nil, nil
	}

	var subsections []types.Subsection
	for _, part := range strings.Split(resp.Content, "SUBSECTION")[1:] {
		idx := strings.Index(part, ":")
		if idx == -1 {
			continue
		}
		lines := strings.SplitN(strings.TrimSpace(part[idx+1:]), "\n", 2)
		title := strings.TrimSpace(lines[0])
		var content string
		if len(lines) > 1 {
			content = strings.TrimSpace(lines[1])
		}
		if title != "" && content != "" {
			subsections = append(subsections, types.Subsection{Title: title, Content: content})
		}
		if len(subsections) >= maxSubsections {
			break
		}
	}
	return subsections, nil
}

// generateDetailedAnalysis produces the best-effort multi-section
// elaboration by driving stage 7's outline -> per-section content ->
// quotes/stats -> subsections pipeline, one outline title at a time.
// Its failure never fails the task: the caller omits DetailedAnalysis
// entirely when this errors. Ported from
// generate_detailed_analysis_multistep.
func generateDetailedAnalysis(ctx context.Context, model chat.Chat, sources []types.SourceSummary, query string) (*types.DetailedAnalysis, error) {
	titles, err := generateAnalysisOutline(ctx, model, sources, query)
	if err != nil {
		return nil, fmt.Errorf("generate analysis outline: %w", err)
	}

	sections := make([]types.AnalysisSection, 0, len(titles))
	for _, title := range titles {
		content, err := generateSectionContent(ctx, model, title, sources, query)
		if err != nil {
			logger.Warnf(ctx, "section content generation failed for %q: %v", title, err)
			content = fmt.Sprintf("Analysis of %s based on the research findings.", title)
		}

		sections = append(sections, types.AnalysisSection{
			Title:       title,
			Content:     content,
			Sources:     sourceReferences(content, len(sources)),
			Subsections: sectionSubsections(ctx, model, title, content),
		})

		qs, err := extractQuotesAndStats(ctx, model, title, sources)
		if err != nil {
			logger.Warnf(ctx, "quote/statistic extraction failed for %q: %v", title, err)
			continue
		}
		sections[len(sections)-1].Quotes = qs.Quotes
		sections[len(sections)-1].Statistics = qs.Statistics
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("detailed analysis produced no sections")
	}
	return &types.DetailedAnalysis{Sections: sections}, nil
}

// sourceReferences scans content for "[n]" citation markers and returns
// the distinct source indices found, capped at maxSourceRefs.
func sourceReferences(content string, sourceCount int) []int {
	limit := sourceCount
	if limit > maxSourceRefScan {
		limit = maxSourceRefScan
	}
	var refs []int
	for j := 1; j <= limit; j++ {
		if strings.Contains(content, fmt.Sprintf("[%d]", j)) {
			refs = append(refs, j)
			if len(refs) >= maxSourceRefs {
				break
			}
		}
	}
	return refs
}

// sectionSubsections generates subsections only for sections substantial
// enough to warrant them, logging and tolerating any failure.
func sectionSubsections(ctx context.Context, model chat.Chat, title, content string) []types.Subsection {
	if len(content) <= subsectionThreshold {
		return nil
	}
	subsections, err := generateSubsections(ctx, model, title, content)
	if err != nil {
		logger.Warnf(ctx, "subsection generation failed for %q: %v", title, err)
		return nil
	}
	return subsections
}
