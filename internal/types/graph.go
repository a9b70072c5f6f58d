// Package types defines the core data structures used throughout the system.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Properties is a free-form JSON bag attached to a graph node or edge.
type Properties map[string]any

func (p Properties) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	return json.Marshal(p)
}

func (p *Properties) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, p)
}

// GraphNode is a node of a task's knowledge graph: a topic, finding, or
// source extracted from a completed ResearchResult.
type GraphNode struct {
	ID         string        `json:"id" gorm:"type:varchar(36);primaryKey"`
	TaskID     string        `json:"task_id" gorm:"index"`
	NodeType   GraphNodeType `json:"node_type"`
	NodeValue  string        `json:"node_value"`
	Properties Properties    `json:"properties" gorm:"type:json"`
	Embedding  *Vector       `json:"embedding,omitempty" gorm:"type:vector(384)"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (GraphNode) TableName() string { return "graph_nodes" }

func (n *GraphNode) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// GraphEdge connects two GraphNodes. (source, target, edge_type) is unique;
// for edge_type="related_to" the weight is the cosine similarity of the
// endpoints' embeddings at insertion time.
type GraphEdge struct {
	ID           string        `json:"id" gorm:"type:varchar(36);primaryKey"`
	SourceNodeID string        `json:"source_node_id" gorm:"index:idx_edge_unique,unique;not null"`
	TargetNodeID string        `json:"target_node_id" gorm:"index:idx_edge_unique,unique;not null"`
	EdgeType     GraphEdgeType `json:"edge_type" gorm:"index:idx_edge_unique,unique;not null"`
	Weight       float64       `json:"weight"` // [0,1]
	Properties   Properties    `json:"properties" gorm:"type:json"`
	CreatedAt    time.Time     `json:"created_at"`
}

func (GraphEdge) TableName() string { return "graph_edges" }

func (e *GraphEdge) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// NodeContext is the one-hop expansion around a node returned by the graph
// branch of the RAG retriever.
type NodeContext struct {
	RelatedNodes []RelatedNode `json:"related_nodes"`
}

// RelatedNode is a neighbor surfaced during one-hop graph expansion.
type RelatedNode struct {
	ID       string  `json:"id"`
	Type     GraphNodeType `json:"type"`
	Value    string  `json:"value"`
	Relation GraphEdgeType `json:"relation"`
	Weight   float64 `json:"weight"`
}
