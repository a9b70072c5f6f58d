package interfaces

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/types"
)

// RetrieveEngine is one pluggable retrieval backend for the RAG retriever
// (C8): vector nearest-neighbor over research_results/graph_nodes, graph
// traversal, or keyword search.
type RetrieveEngine interface {
	// EngineType identifies which branch of RetrieveParams this engine answers.
	EngineType() types.RetrieverEngineType

	// Retrieve executes one retrieval branch. A backend error is returned on
	// RetrieveResult.Error rather than as the method's error value, so a
	// composite fan-out can keep the other branches' results even when one
	// backend fails.
	Retrieve(ctx context.Context, params types.RetrieveParams) *types.RetrieveResult
}

// RetrieveEngineRegistry looks engines up by type for the composite retriever.
type RetrieveEngineRegistry interface {
	Register(engine RetrieveEngine) error
	GetRetrieveEngineService(engineType types.RetrieverEngineType) (RetrieveEngine, error)
	GetAllRetrieveEngineServices() []RetrieveEngine
}

// CompositeRetriever fans a query out across every registered engine and
// merges the results into a single ranked, deduplicated list (C8).
type CompositeRetriever interface {
	Retrieve(ctx context.Context, params types.RetrieveParams) ([]types.RetrieveItem, error)
}
