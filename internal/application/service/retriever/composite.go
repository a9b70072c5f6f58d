package retriever

import (
	"context"
	"sort"
	"sync"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/runtime"
	"github.com/deepresearch-go/pipeline/internal/tracing"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
	"go.opentelemetry.io/otel/attribute"
)

// vectorScoreBoost is applied to a vector hit's similarity before merge
// ranking; graph hits carry their raw similarity unweighted.
const vectorScoreBoost = 1.1

// dedupPrefixLen is how much of an item's content is compared for de-dup
// across engines: two hits sharing this prefix are the same source.
const dedupPrefixLen = 100

// CompositeRetriever implements interfaces.CompositeRetriever, fanning a
// query out across every registered engine and merging the results.
type CompositeRetriever struct {
	engines []interfaces.RetrieveEngine
}

// NewCompositeRetriever builds a composite retriever from every engine
// registered in the container.
func NewCompositeRetriever() interfaces.CompositeRetriever {
	var registry interfaces.RetrieveEngineRegistry
	runtime.GetContainer().Invoke(func(r interfaces.RetrieveEngineRegistry) {
		registry = r
	})
	return &CompositeRetriever{engines: registry.GetAllRetrieveEngineServices()}
}

// Retrieve fans params out to every registered engine concurrently, then
// merges/de-dups/ranks. A single engine failing does not fail the call: its
// error is logged and its branch simply contributes no items, per §4.7's
// "retrieval backends degrade independently" policy.
func (c *CompositeRetriever) Retrieve(
	ctx context.Context, params types.RetrieveParams,
) ([]types.RetrieveItem, error) {
	ctx, span := tracing.ContextWithSpan(ctx, "CompositeRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", params.Query),
		attribute.Int("top_k", params.TopK),
		attribute.Int("engine_count", len(c.engines)),
	)

	var mu sync.Mutex
	var wg sync.WaitGroup
	raw := make([]types.RetrieveItem, 0, params.TopK*len(c.engines))

	for _, engine := range c.engines {
		wg.Add(1)
		eng := engine
		go func() {
			defer wg.Done()
			result := eng.Retrieve(ctx, params)
			if result.Error != nil {
				logger.Errorf(ctx, "retrieve engine %s failed: %v", eng.EngineType(), result.Error)
				return
			}
			mu.Lock()
			raw = append(raw, result.Items...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	merged := mergeAndRank(raw)
	if len(merged) > params.TopK && params.TopK > 0 {
		merged = merged[:params.TopK]
	}
	span.SetAttributes(attribute.Int("merged_count", len(merged)))
	return merged, nil
}

// mergeAndRank applies the RAG result-merge policy: vector hits are boosted
// relative to graph hits, duplicates sharing a content prefix are collapsed
// keeping the highest-scoring copy, and the result is sorted by final score
// descending.
func mergeAndRank(items []types.RetrieveItem) []types.RetrieveItem {
	for i := range items {
		if items[i].Type == string(types.VectorRetrieverEngineType) {
			items[i].FinalScore = items[i].Similarity * vectorScoreBoost
		} else {
			items[i].FinalScore = items[i].Similarity
		}
	}

	byPrefix := make(map[string]types.RetrieveItem, len(items))
	for _, item := range items {
		key := item.Content
		if len(key) > dedupPrefixLen {
			key = key[:dedupPrefixLen]
		}
		existing, ok := byPrefix[key]
		if !ok || item.FinalScore > existing.FinalScore {
			byPrefix[key] = item
		}
	}

	merged := make([]types.RetrieveItem, 0, len(byPrefix))
	for _, item := range byPrefix {
		merged = append(merged, item)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].FinalScore > merged[j].FinalScore })
	return merged
}
