package repository

import (
	"context"
	"math"

	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
	"gorm.io/gorm"
)

// graphRepository implements interfaces.GraphRepository over Postgres,
// storing nodes and edges as plain rows rather than a dedicated graph store
// (§4.6: graph data rides the same relational store as everything else).
type graphRepository struct {
	db *gorm.DB
}

func NewGraphRepository(db *gorm.DB) interfaces.GraphRepository {
	return &graphRepository{db: db}
}

func (r *graphRepository) CreateNode(ctx context.Context, node *types.GraphNode) error {
	return r.db.WithContext(ctx).Create(node).Error
}

func (r *graphRepository) CreateEdge(ctx context.Context, edge *types.GraphEdge) error {
	return r.db.WithContext(ctx).Create(edge).Error
}

func (r *graphRepository) NodesByTask(ctx context.Context, taskID string) ([]*types.GraphNode, error) {
	var nodes []*types.GraphNode
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// ExpandNode loads a node's one-hop neighborhood: every edge touching it in
// either direction, and the nodes at the other end, for C8's graph retrieval
// engine and the chat responder's source-context attachment.
func (r *graphRepository) ExpandNode(ctx context.Context, nodeID string) (*types.NodeContext, error) {
	var edges []*types.GraphEdge
	if err := r.db.WithContext(ctx).
		Where("source_node_id = ? OR target_node_id = ?", nodeID, nodeID).
		Find(&edges).Error; err != nil {
		return nil, err
	}

	neighborIDs := make([]string, 0, len(edges))
	for _, e := range edges {
		if e.SourceNodeID == nodeID {
			neighborIDs = append(neighborIDs, e.TargetNodeID)
		} else {
			neighborIDs = append(neighborIDs, e.SourceNodeID)
		}
	}

	var neighbors []*types.GraphNode
	if len(neighborIDs) > 0 {
		if err := r.db.WithContext(ctx).Where("id IN ?", neighborIDs).Find(&neighbors).Error; err != nil {
			return nil, err
		}
	}
	byID := make(map[string]*types.GraphNode, len(neighbors))
	for _, n := range neighbors {
		byID[n.ID] = n
	}

	related := make([]types.RelatedNode, 0, len(edges))
	for _, e := range edges {
		neighborID := e.TargetNodeID
		relation := e.EdgeType
		if e.SourceNodeID != nodeID {
			neighborID = e.SourceNodeID
		}
		neighbor, ok := byID[neighborID]
		if !ok {
			continue
		}
		related = append(related, types.RelatedNode{
			ID: neighbor.ID, Type: neighbor.NodeType, Value: neighbor.NodeValue,
			Relation: relation, Weight: e.Weight,
		})
	}

	return &types.NodeContext{RelatedNodes: related}, nil
}

func (r *graphRepository) DeleteByTask(ctx context.Context, taskID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var nodeIDs []string
		if err := tx.Model(&types.GraphNode{}).Where("task_id = ?", taskID).Pluck("id", &nodeIDs).Error; err != nil {
			return err
		}
		if len(nodeIDs) > 0 {
			if err := tx.Where("source_node_id IN ? OR target_node_id IN ?", nodeIDs, nodeIDs).
				Delete(&types.GraphEdge{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("task_id = ?", taskID).Delete(&types.GraphNode{}).Error
	})
}

// CosineSimilarity is exported for the graph retrieval engine and C7's
// related_to edge construction, both of which compare node embeddings.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
