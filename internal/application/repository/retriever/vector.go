// Package retriever holds the C8 retrieval-engine backends: vector
// nearest-neighbor over Postgres/pgvector, graph traversal, and keyword
// search over Elasticsearch.
package retriever

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/application/repository"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/pgvector/pgvector-go"
)

// VectorEngine implements interfaces.RetrieveEngine over the
// research_results.synthesis_embedding column.
type VectorEngine struct {
	results *repository.ResearchResultRepository
}

func NewVectorEngine(results *repository.ResearchResultRepository) *VectorEngine {
	return &VectorEngine{results: results}
}

func (e *VectorEngine) EngineType() types.RetrieverEngineType { return types.VectorRetrieverEngineType }

func (e *VectorEngine) Retrieve(ctx context.Context, params types.RetrieveParams) *types.RetrieveResult {
	if len(params.Embedding) == 0 {
		return &types.RetrieveResult{}
	}
	vec := pgvector.NewVector(params.Embedding)
	results, similarities, err := e.results.SearchByEmbedding(ctx, vec, params.TaskIDs, params.TopK)
	if err != nil {
		return &types.RetrieveResult{Error: err}
	}

	items := make([]types.RetrieveItem, 0, len(results))
	for i, res := range results {
		if similarities[i] < params.Threshold {
			continue
		}
		items = append(items, types.RetrieveItem{
			Type:       string(types.VectorRetrieverEngineType),
			Content:    res.Synthesis.ExecutiveSummary,
			Similarity: similarities[i],
			Source:     res.TaskID,
		})
	}
	return &types.RetrieveResult{Items: items}
}
