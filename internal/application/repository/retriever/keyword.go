package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const keywordIndexName = "research_findings"

// KeywordEngine implements interfaces.RetrieveEngine as an optional
// Elasticsearch-backed full-text modality, complementing the vector and
// graph branches when configured. A nil client disables the branch rather
// than erroring, since keyword search is an enrichment, not a requirement.
type KeywordEngine struct {
	client *elasticsearch.Client
}

func NewKeywordEngine(client *elasticsearch.Client) *KeywordEngine {
	return &KeywordEngine{client: client}
}

func (e *KeywordEngine) EngineType() types.RetrieverEngineType {
	return types.KeywordRetrieverEngineType
}

func (e *KeywordEngine) Retrieve(ctx context.Context, params types.RetrieveParams) *types.RetrieveResult {
	if e.client == nil || strings.TrimSpace(params.Query) == "" {
		return &types.RetrieveResult{}
	}

	body := map[string]any{
		"size": params.TopK,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"match": map[string]any{"content": params.Query},
				},
			},
		},
	}
	if len(params.TaskIDs) > 0 {
		body["query"].(map[string]any)["bool"].(map[string]any)["filter"] = map[string]any{
			"terms": map[string]any{"task_id": params.TaskIDs},
		}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return &types.RetrieveResult{Error: err}
	}

	res, err := esapi.SearchRequest{
		Index: []string{keywordIndexName},
		Body:  &buf,
	}.Do(ctx, e.client)
	if err != nil {
		return &types.RetrieveResult{Error: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return &types.RetrieveResult{Error: fmt.Errorf("elasticsearch search: %s", res.Status())}
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return &types.RetrieveResult{Error: err}
	}

	items := make([]types.RetrieveItem, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		if hit.Score < params.Threshold {
			continue
		}
		items = append(items, types.RetrieveItem{
			Type:       string(types.KeywordRetrieverEngineType),
			Content:    hit.Source.Content,
			Similarity: hit.Score,
			Source:     hit.Source.TaskID,
		})
	}
	logger.Debugf(ctx, "keyword retrieval returned %d hits for query %q", len(items), params.Query)
	return &types.RetrieveResult{Items: items}
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				TaskID  string `json:"task_id"`
				Content string `json:"content"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}
