package retriever

import (
	"context"
	"fmt"

	"github.com/deepresearch-go/pipeline/internal/application/repository"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// GraphEngine implements interfaces.RetrieveEngine by scoring every graph
// node of the scoped tasks against the query embedding in process. The
// corpus per task is small (one topic node, one node per key finding, and
// at most MaxGraphSourceNodes source nodes), so a dedicated graph index is
// unnecessary; each hit's one-hop expansion goes through
// GraphRepository.ExpandNode over the same Postgres tables.
type GraphEngine struct {
	graph interfaces.GraphRepository
}

func NewGraphEngine(graph interfaces.GraphRepository) *GraphEngine {
	return &GraphEngine{graph: graph}
}

func (e *GraphEngine) EngineType() types.RetrieverEngineType { return types.GraphRetrieverEngineType }

func (e *GraphEngine) Retrieve(ctx context.Context, params types.RetrieveParams) *types.RetrieveResult {
	if len(params.Embedding) == 0 || len(params.TaskIDs) == 0 {
		return &types.RetrieveResult{}
	}

	var scored []types.RetrieveItem
	for _, taskID := range params.TaskIDs {
		nodes, err := e.graph.NodesByTask(ctx, taskID)
		if err != nil {
			return &types.RetrieveResult{Error: fmt.Errorf("graph nodes for task %s: %w", taskID, err)}
		}
		for _, node := range nodes {
			if node.Embedding == nil {
				continue
			}
			similarity := repository.CosineSimilarity(params.Embedding, node.Embedding.Slice())
			if similarity < params.Threshold {
				continue
			}
			nodeCtx, err := e.graph.ExpandNode(ctx, node.ID)
			if err != nil {
				nodeCtx = nil
			}
			scored = append(scored, types.RetrieveItem{
				Type:       string(types.GraphRetrieverEngineType),
				Content:    node.NodeValue,
				Similarity: similarity,
				Source:     taskID,
				Metadata:   map[string]any{"node_type": node.NodeType},
				Context:    nodeCtx,
			})
		}
	}

	if params.TopK > 0 && len(scored) > params.TopK {
		scored = topKByScore(scored, params.TopK)
	}
	return &types.RetrieveResult{Items: scored}
}

// topKByScore keeps the TopK highest-similarity items without a full sort;
// the merge stage sorts all engines' items again afterwards.
func topKByScore(items []types.RetrieveItem, k int) []types.RetrieveItem {
	for i := 0; i < k; i++ {
		maxIdx := i
		for j := i + 1; j < len(items); j++ {
			if items[j].Similarity > items[maxIdx].Similarity {
				maxIdx = j
			}
		}
		items[i], items[maxIdx] = items[maxIdx], items[i]
	}
	return items[:k]
}
