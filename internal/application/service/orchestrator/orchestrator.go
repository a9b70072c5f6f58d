// Package orchestrator implements C5: the staged research pipeline that
// drives a ResearchTask from query to persisted ResearchResult.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/deepresearch-go/pipeline/internal/application/repository"
	"github.com/deepresearch-go/pipeline/internal/application/service/extract"
	"github.com/deepresearch-go/pipeline/internal/application/service/fetch"
	"github.com/deepresearch-go/pipeline/internal/application/service/search"
	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/models/chat"
	"github.com/deepresearch-go/pipeline/internal/models/embedding"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
	"github.com/pgvector/pgvector-go"
)

// Orchestrator drives the search→fetch→extract→summarize→synthesize→
// analyze→persist pipeline described in §4.4.
type Orchestrator struct {
	searchClient *search.Client
	fetcher      *fetch.Fetcher
	renderer     *fetch.Renderer
	extractor    *extract.Extractor
	chatModel    chat.Chat
	embedder     embedding.Embedder

	taskRepo     *repository.ResearchTaskRepository
	resultRepo   *repository.ResearchResultRepository
	artifactRepo *repository.ResearchArtifactRepository
	fileService  interfaces.FileService

	tracker *TaskTracker
}

func NewOrchestrator(
	searchClient *search.Client,
	fetcher *fetch.Fetcher,
	renderer *fetch.Renderer,
	extractor *extract.Extractor,
	chatModel chat.Chat,
	embedder embedding.Embedder,
	taskRepo *repository.ResearchTaskRepository,
	resultRepo *repository.ResearchResultRepository,
	artifactRepo *repository.ResearchArtifactRepository,
	fileService interfaces.FileService,
) *Orchestrator {
	return &Orchestrator{
		searchClient: searchClient,
		fetcher:      fetcher,
		renderer:     renderer,
		extractor:    extractor,
		chatModel:    chatModel,
		embedder:     embedder,
		taskRepo:     taskRepo,
		resultRepo:   resultRepo,
		artifactRepo: artifactRepo,
		fileService:  fileService,
		tracker:      NewTaskTracker(),
	}
}

// NewTaskID generates the res_<12 hex> external identifier, per §6/§C.
func NewTaskID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return "res_" + hex.EncodeToString(buf)
}

// Execute runs one task end to end. A failing LLM, embedding or artifact
// stage degrades instead of failing the task; it returns an error only
// when there are no search results, when there is no fetchable content
// and no snippet fallback, or when the research result cannot be
// persisted, marking the task StatusFailed before returning.
func (o *Orchestrator) Execute(ctx context.Context, task *types.ResearchTask) error {
	err := o.execute(ctx, task)
	if err != nil {
		logger.Errorf(ctx, "research task %s failed: %v", task.TaskID, err)
		task.ErrorMessage = err.Error()
		if updErr := o.taskRepo.UpdateStatus(ctx, task.TaskID, types.StatusFailed, err.Error()); updErr != nil {
			logger.Errorf(ctx, "failed to persist failed status for %s: %v", task.TaskID, updErr)
		}
		o.setStatus(ctx, task.TaskID, types.StatusFailed, task.Progress, "error")
	}
	return err
}

func (o *Orchestrator) execute(ctx context.Context, task *types.ResearchTask) error {
	cfg := types.GetDepthConfig(task.Depth)
	maxSources := task.MaxSources
	if maxSources <= 0 {
		maxSources = cfg.MaxSources
	}

	var warnings []string
	o.setStatus(ctx, task.TaskID, types.StatusAnalyzing, 10, "query_analysis")

	// Stage 1: analyze query.
	queryAnalysis, err := withDeadline(ctx, cfg.AnalysisDeadline, func(ctx context.Context) (types.QueryAnalysis, error) {
		return analyzeQuery(ctx, o.chatModel, task.Query)
	})
	if err != nil {
		logger.Warnf(ctx, "query analysis failed for %s: %v", task.TaskID, err)
		warnings = append(warnings, fmt.Sprintf("query analysis failed: %v", err))
		queryAnalysis = types.QueryAnalysis{SearchStrategies: []string{task.Query}}
	}

	// Stage 2: search.
	o.setStatus(ctx, task.TaskID, types.StatusSearching, 25, "search_execution")
	strategies := queryAnalysis.SearchStrategies
	if len(strategies) > cfg.MaxSearches {
		strategies = strategies[:cfg.MaxSearches]
	}

	searchCtx, cancel := context.WithTimeout(ctx, cfg.SearchDeadline)
	responses := o.searchClient.BatchSearch(searchCtx, strategies, 10)
	cancel()

	uniqueURLs, urlToResult := collectURLs(responses, maxSources)
	if len(uniqueURLs) == 0 {
		return fmt.Errorf("search operation failed: no URLs found from search results")
	}

	// Stage 3: fetch + extract, with graceful degradation to search snippets.
	o.setStatus(ctx, task.TaskID, types.StatusFetching, 50, "content_fetching")
	fetchCtx, cancel := context.WithTimeout(ctx, cfg.FetchDeadline)
	pages := o.fetcher.BatchFetch(fetchCtx, uniqueURLs)
	cancel()

	contents := make([]types.Content, 0, len(pages))
	for _, p := range pages {
		if p.Err != nil || p.HTML == "" {
			errMsg := ""
			if p.Err != nil {
				errMsg = p.Err.Error()
			}
			contents = append(contents, types.Content{URL: p.URL, Method: types.MethodFailed, Error: errMsg})
			continue
		}
		html := p.HTML
		if o.renderer != nil && fetch.ShouldRender(html) {
			if rendered, err := o.renderer.Render(ctx, p.URL); err == nil {
				html = rendered
			} else {
				logger.Debugf(ctx, "headless render fallback failed for %s: %v", p.URL, err)
			}
		}
		contents = append(contents, o.extractor.Extract(ctx, html, p.URL))
	}

	validContents := make([]types.Content, 0, len(contents))
	for _, c := range contents {
		if c.Text != "" {
			validContents = append(validContents, c)
		}
	}
	prioritized := fetch.Prioritize(fetch.Deduplicate(validContents), maxSources)

	if len(prioritized) == 0 {
		logger.Warnf(ctx, "no content fetched for %s, using search snippets", task.TaskID)
		prioritized = contentFromSnippets(urlToResult, uniqueURLs, maxSources)
		if len(prioritized) == 0 {
			return fmt.Errorf("no content available from either fetching or search snippets")
		}
	}

	o.persistArtifacts(ctx, task.TaskID, prioritized)

	// Stage 4: per-source summarization, collecting media.
	o.setStatus(ctx, task.TaskID, types.StatusSynthesizing, 70, "content_synthesis")
	sources := make([]types.SourceSummary, 0, len(prioritized))
	var allMedia []types.Media
	for i, content := range prioritized {
		summary, err := summarizeContent(ctx, o.chatModel, content.Text, task.Query, cfg.SummarizationLength)
		if err != nil {
			logger.Warnf(ctx, "summarize failed for %s: %v", content.URL, err)
			summary = content.Text
			if len(summary) > cfg.SummarizationLength {
				summary = summary[:cfg.SummarizationLength]
			}
		}

		media := content.Media
		if len(media) > 2 {
			media = media[:2]
		}
		allMedia = append(allMedia, content.Media...)

		sources = append(sources, types.SourceSummary{
			URL: content.URL, Title: content.Title, Summary: summary,
			WordCount: content.WordCount, ExtractionMethod: content.Method, Media: media,
		})
		o.setProgress(task.TaskID, 70+15*(i+1)/len(prioritized))
	}

	// Stage 5: synthesize, with fallback and best-effort detail/reformat.
	o.setStatus(ctx, task.TaskID, types.StatusSynthesizing, 85, "research_synthesis")
	synthesis, err := withDeadline(ctx, cfg.SynthesisDeadline, func(ctx context.Context) (types.Synthesis, error) {
		return synthesizeResearch(ctx, o.chatModel, sources, task.Query, cfg.SynthesisDetail)
	})
	if err != nil {
		logger.Warnf(ctx, "synthesis failed for %s: %v", task.TaskID, err)
		warnings = append(warnings, fmt.Sprintf("synthesis failed: %v", err))
		synthesis = chat.FallbackSynthesis(sources, task.Query)
	} else {
		synthesis = chat.ValidateAndRepairSynthesis(ctx, synthesis, sources, task.Query)
	}

	if synthesis.ExecutiveSummary != "" {
		reformatCtx, reformatCancel := context.WithTimeout(ctx, reformatTimeout)
		if reformatted, err := reformatExecutiveSummary(reformatCtx, o.chatModel, synthesis.ExecutiveSummary); err == nil {
			synthesis.ExecutiveSummary = reformatted
		} else {
			logger.Warnf(ctx, "executive summary reformat failed for %s: %v", task.TaskID, err)
		}
		reformatCancel()
	}

	o.setStatus(ctx, task.TaskID, types.StatusGenerating, 90, "detailed_analysis")
	detailCtx, detailCancel := context.WithTimeout(ctx, cfg.DetailedDeadline)
	if detailed, err := generateDetailedAnalysis(detailCtx, o.chatModel, sources, task.Query); err == nil {
		synthesis.DetailedAnalysis = detailed
	} else {
		logger.Warnf(ctx, "detailed analysis failed for %s: %v", task.TaskID, err)
		warnings = append(warnings, fmt.Sprintf("detailed analysis failed: %v", err))
	}
	detailCancel()
	o.setProgress(task.TaskID, 95)

	featuredMedia := selectFeaturedMedia(allMedia)

	// Stage 6: embeddings + persistence.
	var synthesisEmbedding, queryEmbedding *types.Vector
	if vec, err := o.embedder.Embed(ctx, synthesis.ExecutiveSummary); err == nil {
		v := pgvector.NewVector(vec)
		synthesisEmbedding = &v
	} else {
		logger.Warnf(ctx, "synthesis embedding failed for %s: %v", task.TaskID, err)
	}
	if vec, err := o.embedder.Embed(ctx, task.Query); err == nil {
		v := pgvector.NewVector(vec)
		queryEmbedding = &v
	} else {
		logger.Warnf(ctx, "query embedding failed for %s: %v", task.TaskID, err)
	}

	result := &types.ResearchResult{
		TaskID: task.TaskID,
		Synthesis: synthesis, Sources: sources, QueryAnalysis: queryAnalysis,
		FeaturedMedia: featuredMedia, SourcesUsed: len(sources),
		SynthesisEmbedding: synthesisEmbedding, QueryEmbedding: queryEmbedding,
	}
	if err := o.resultRepo.Upsert(ctx, result); err != nil {
		return fmt.Errorf("persisting research result: %w", err)
	}

	task.Warnings = types.StringList(warnings)
	task.Status = types.StatusCompleted
	task.Progress = 100
	if err := o.taskRepo.Update(ctx, task); err != nil {
		logger.Errorf(ctx, "failed to persist final task state for %s: %v", task.TaskID, err)
	}
	o.setStatus(ctx, task.TaskID, types.StatusCompleted, 100, "completed")
	return nil
}

// reformatTimeout is independent of the synthesis stage deadline, per
// the original's fixed 60s reformat budget.
const reformatTimeout = 60 * time.Second

// persistArtifacts stores each prioritized source's extracted text as a
// research_artifacts row, object-stored via the file service. A per-source
// failure is logged and skipped; this is best-effort bookkeeping, never a
// reason to fail the task.
func (o *Orchestrator) persistArtifacts(ctx context.Context, taskID string, contents []types.Content) {
	if o.fileService == nil || o.artifactRepo == nil {
		return
	}
	for _, c := range contents {
		storageKey, err := o.fileService.SaveArtifact(ctx, taskID, c.URL, []byte(c.Text), "text/plain")
		if err != nil {
			logger.Warnf(ctx, "artifact storage failed for %s: %v", c.URL, err)
			continue
		}
		artifact := &types.ResearchArtifact{
			TaskID: taskID, URL: c.URL, Method: c.Method,
			StorageKey: storageKey, WordCount: c.WordCount, Media: types.MediaList(c.Media),
		}
		if err := o.artifactRepo.Create(ctx, artifact); err != nil {
			logger.Warnf(ctx, "artifact record failed for %s: %v", c.URL, err)
		}
	}
}

// GetTaskStatus reads the tracker's fast-path view of a task, falling
// back to the durable store on a cache miss (expired entry, or a
// tracker never populated after a process restart).
func (o *Orchestrator) GetTaskStatus(ctx context.Context, taskID string) (TaskProgress, error) {
	if progress, ok := o.tracker.Get(taskID); ok {
		return progress, nil
	}
	task, err := o.taskRepo.GetByTaskID(ctx, taskID)
	if err != nil {
		return TaskProgress{}, err
	}
	return TaskProgress{
		TaskID: task.TaskID, Status: string(task.Status), Progress: task.Progress,
		Warnings: task.Warnings, Errors: errorSlice(task.ErrorMessage),
	}, nil
}

// CancelTask transitions a task to cancelled only if it has not already
// reached a terminal state, mirroring the original's guard.
func (o *Orchestrator) CancelTask(ctx context.Context, taskID string) (bool, error) {
	task, err := o.taskRepo.GetByTaskID(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.Status.IsTerminal() {
		return false, nil
	}
	if err := o.taskRepo.UpdateStatus(ctx, taskID, types.StatusCancelled, ""); err != nil {
		return false, err
	}
	o.tracker.Delete(taskID)
	return true, nil
}

// GetTaskResults returns the persisted result only once the task has
// reached StatusCompleted; any other status yields ErrResearchResultNotFound.
func (o *Orchestrator) GetTaskResults(ctx context.Context, taskID string) (*types.ResearchResult, error) {
	task, err := o.taskRepo.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != types.StatusCompleted {
		return nil, repository.ErrResearchResultNotFound
	}
	return o.resultRepo.GetByTaskID(ctx, taskID)
}

func errorSlice(msg string) []string {
	if msg == "" {
		return nil
	}
	return []string{msg}
}

// withDeadline runs fn under a child context bounded by d, the pattern
// every LLM stage uses to honor its per-depth deadline (§4.4).
func withDeadline[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	dctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(dctx)
}

// setStatus mirrors update_task_status: the tracker is updated
// synchronously, the durable store fire-and-forget.
func (o *Orchestrator) setStatus(ctx context.Context, taskID string, status types.TaskStatus, progress int, step string) {
	prev, _ := o.tracker.Get(taskID)
	prev.TaskID = taskID
	prev.Status = string(status)
	prev.Progress = progress
	prev.CurrentStep = step
	if step != "error" {
		prev.StepsCompleted = appendUnique(prev.StepsCompleted, step)
	}
	o.tracker.Set(taskID, prev)

	go func() {
		bg := context.Background()
		if err := o.taskRepo.UpdateStatus(bg, taskID, status, ""); err != nil {
			logger.Errorf(bg, "failed to persist task status for %s: %v", taskID, err)
		}
	}()

	logger.Infof(ctx, "task %s status=%s progress=%d step=%s", taskID, status, progress, step)
}

func (o *Orchestrator) setProgress(taskID string, progress int) {
	prev, _ := o.tracker.Get(taskID)
	prev.Progress = progress
	o.tracker.Set(taskID, prev)
}

func appendUnique(list []string, item string) []string {
	for _, s := range list {
		if s == item {
			return list
		}
	}
	return append(list, item)
}

// collectURLs flattens every search response's results into a
// deduplicated, order-preserving, capped URL list, alongside a url→result
// map used by the snippet fallback.
func collectURLs(responses []*types.SearchResponse, maxSources int) (urls []string, byURL map[string]types.SearchResultItem) {
	byURL = make(map[string]types.SearchResultItem)
	seen := make(map[string]struct{})
	for _, resp := range responses {
		for _, r := range resp.Results {
			if _, ok := byURL[r.URL]; !ok {
				byURL[r.URL] = r
			}
			if _, ok := seen[r.URL]; ok {
				continue
			}
			seen[r.URL] = struct{}{}
			urls = append(urls, r.URL)
		}
	}
	if len(urls) > maxSources {
		urls = urls[:maxSources]
	}
	return urls, byURL
}

// contentFromSnippets builds degraded Content values straight from search
// result snippets, used when fetching fails entirely, per §C.
func contentFromSnippets(byURL map[string]types.SearchResultItem, urls []string, maxSources int) []types.Content {
	if len(urls) > maxSources {
		urls = urls[:maxSources]
	}
	contents := make([]types.Content, 0, len(urls))
	for _, url := range urls {
		r, ok := byURL[url]
		if !ok {
			continue
		}
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		contents = append(contents, types.Content{
			URL: url, Title: title, Text: r.Snippet,
			WordCount: wordCount(r.Snippet), Method: types.MethodSnippetFallback,
		})
	}
	return contents
}

func wordCount(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// selectFeaturedMedia takes images first (first-seen order), then
// videos/youtube embeds, capped at §C's limit, deduplicated by URL.
func selectFeaturedMedia(all []types.Media) []types.Media {
	var featured []types.Media
	seen := make(map[string]struct{})

	for _, m := range all {
		if m.Type != "image" {
			continue
		}
		if _, ok := seen[m.URL]; ok {
			continue
		}
		featured = append(featured, m)
		seen[m.URL] = struct{}{}
		if len(featured) >= types.MaxFeaturedMedia {
			return featured
		}
	}

	for _, m := range all {
		if m.Type != "video" && m.Type != "youtube" {
			continue
		}
		if _, ok := seen[m.URL]; ok {
			continue
		}
		featured = append(featured, m)
		seen[m.URL] = struct{}{}
		if len(featured) >= types.MaxFeaturedMedia {
			return featured
		}
	}

	return featured
}
