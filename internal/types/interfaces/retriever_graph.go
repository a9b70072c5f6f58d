package interfaces

import (
	"context"

	"github.com/deepresearch-go/pipeline/internal/types"
)

// GraphRepository persists and queries the per-task knowledge graph built by
// C7 and traversed by C8's graph retrieval engine.
type GraphRepository interface {
	CreateNode(ctx context.Context, node *types.GraphNode) error
	CreateEdge(ctx context.Context, edge *types.GraphEdge) error

	// NodesByTask returns every node recorded for a task, for edge-building
	// and for the graph engine's in-process cosine-similarity search.
	NodesByTask(ctx context.Context, taskID string) ([]*types.GraphNode, error)

	// ExpandNode returns the one-hop neighborhood of a node: the related
	// nodes and the edges connecting them.
	ExpandNode(ctx context.Context, nodeID string) (*types.NodeContext, error)

	DeleteByTask(ctx context.Context, taskID string) error
}
