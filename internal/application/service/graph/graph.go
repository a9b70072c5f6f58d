// Package graph implements C7: building a per-task knowledge graph from a
// completed ResearchResult, and querying it by embedding similarity.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/deepresearch-go/pipeline/internal/application/repository"
	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/models/embedding"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
	"github.com/pgvector/pgvector-go"
)

// topicPreviewLen caps the executive-summary text folded into the topic
// node's value, per the original's f"Research: {content[:200]}".
const topicPreviewLen = 200

// sourceContentPreviewLen caps a source node's content preview.
const sourceContentPreviewLen = 200

// maxSourceNodes caps how many of a result's sources become nodes.
const maxSourceNodes = types.MaxGraphSourceNodes

// maxExpandedNeighbors caps QueryResult's per-node context expansion.
const maxExpandedNeighbors = 5

// Builder turns a completed ResearchResult into graph_nodes/graph_edges
// rows: one topic node, one node per key finding, one node per top source,
// and a related_to edge between every pair of nodes whose embeddings are
// similar enough.
type Builder struct {
	repo     interfaces.GraphRepository
	embedder embedding.Embedder
}

func NewBuilder(repo interfaces.GraphRepository, embedder embedding.Embedder) *Builder {
	return &Builder{repo: repo, embedder: embedder}
}

// BuildGraphFromResult is the Go analogue of build_graph_from_research: it
// extracts nodes from the synthesis and its sources, then wires edges
// between every pair whose embeddings clear the similarity threshold.
func (b *Builder) BuildGraphFromResult(ctx context.Context, result *types.ResearchResult) error {
	nodes := make([]*types.GraphNode, 0, 1+len(result.Synthesis.KeyFindings)+maxSourceNodes)

	if topic, err := b.topicNode(ctx, result.TaskID, result.Synthesis.ExecutiveSummary); err == nil {
		nodes = append(nodes, topic)
	} else {
		logger.Warnf(ctx, "topic node embedding failed for %s: %v", result.TaskID, err)
	}

	for i, finding := range result.Synthesis.KeyFindings {
		node, err := b.findingNode(ctx, result.TaskID, i, finding)
		if err != nil {
			logger.Warnf(ctx, "finding node embedding failed for %s[%d]: %v", result.TaskID, i, err)
			continue
		}
		nodes = append(nodes, node)
	}

	sources := result.Sources
	if len(sources) > maxSourceNodes {
		sources = sources[:maxSourceNodes]
	}
	for _, source := range sources {
		node, err := b.sourceNode(ctx, result.TaskID, source)
		if err != nil {
			logger.Warnf(ctx, "source node embedding failed for %s (%s): %v", result.TaskID, source.URL, err)
			continue
		}
		nodes = append(nodes, node)
	}

	for _, node := range nodes {
		if err := b.repo.CreateNode(ctx, node); err != nil {
			return fmt.Errorf("creating graph node: %w", err)
		}
	}

	if err := b.buildRelationships(ctx, nodes); err != nil {
		return fmt.Errorf("building graph relationships: %w", err)
	}

	logger.Infof(ctx, "knowledge graph built for %s: %d nodes", result.TaskID, len(nodes))
	return nil
}

func (b *Builder) topicNode(ctx context.Context, taskID, summary string) (*types.GraphNode, error) {
	text := "Research: " + truncate(summary, topicPreviewLen)
	vec, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	embVec := pgvector.NewVector(vec)
	return &types.GraphNode{
		TaskID: taskID, NodeType: types.NodeTypeTopic, NodeValue: text,
		Properties: types.Properties{"source": "executive_summary"}, Embedding: &embVec,
	}, nil
}

func (b *Builder) findingNode(ctx context.Context, taskID string, index int, finding types.Finding) (*types.GraphNode, error) {
	vec, err := b.embedder.Embed(ctx, finding.FindingText)
	if err != nil {
		return nil, err
	}
	embVec := pgvector.NewVector(vec)
	return &types.GraphNode{
		TaskID: taskID, NodeType: types.NodeTypeFinding, NodeValue: finding.FindingText,
		Properties: types.Properties{"category": string(finding.Category), "index": index},
		Embedding:  &embVec,
	}, nil
}

func (b *Builder) sourceNode(ctx context.Context, taskID string, source types.SourceSummary) (*types.GraphNode, error) {
	content := truncate(source.Summary, 500)
	text := source.Title + ": " + content
	vec, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	embVec := pgvector.NewVector(vec)
	return &types.GraphNode{
		TaskID: taskID, NodeType: types.NodeTypeSource, NodeValue: source.Title,
		Properties: types.Properties{
			"url": source.URL, "content_preview": truncate(content, sourceContentPreviewLen),
		},
		Embedding: &embVec,
	}, nil
}

// buildRelationships creates a related_to edge between every pair of nodes
// whose embedding cosine similarity clears RelatedToSimilarityThreshold,
// weight = similarity, per the original's O(n^2) pairwise scan.
func (b *Builder) buildRelationships(ctx context.Context, nodes []*types.GraphNode) error {
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			n1, n2 := nodes[i], nodes[j]
			if n1.Embedding == nil || n2.Embedding == nil {
				continue
			}
			similarity := repository.CosineSimilarity(n1.Embedding.Slice(), n2.Embedding.Slice())
			if similarity <= types.RelatedToSimilarityThreshold {
				continue
			}
			edge := &types.GraphEdge{
				SourceNodeID: n1.ID, TargetNodeID: n2.ID, EdgeType: types.EdgeTypeRelatedTo,
				Weight:     similarity,
				Properties: types.Properties{"similarity_score": similarity},
			}
			if err := b.repo.CreateEdge(ctx, edge); err != nil {
				return err
			}
		}
	}
	return nil
}

// QueryResult is one hit returned by Query: a node, its similarity to the
// query embedding, and its one-hop expanded context.
type QueryResult struct {
	Node       *types.GraphNode
	Similarity float64
	Context    *types.NodeContext
}

// Query embeds the query text, scores it against every node across the
// given tasks (an empty taskIDs yields no results), and expands the
// context of the top K hits. This is the in-process
// equivalent of query_graph's pgvector ORDER BY cosine_distance, since
// GraphRepository exposes per-task node listing rather than a
// cross-task ANN index.
func (b *Builder) Query(ctx context.Context, query string, taskIDs []string, topK int) ([]QueryResult, error) {
	queryVec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var candidates []*types.GraphNode
	for _, taskID := range taskIDs {
		nodes, err := b.repo.NodesByTask(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("loading nodes for task %s: %w", taskID, err)
		}
		candidates = append(candidates, nodes...)
	}

	type scored struct {
		node       *types.GraphNode
		similarity float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, node := range candidates {
		if node.Embedding == nil {
			continue
		}
		ranked = append(ranked, scored{node: node, similarity: repository.CosineSimilarity(queryVec, node.Embedding.Slice())})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].similarity > ranked[j].similarity })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]QueryResult, 0, len(ranked))
	for _, r := range ranked {
		nodeContext, err := b.repo.ExpandNode(ctx, r.node.ID)
		if err != nil {
			logger.Warnf(ctx, "expand node %s failed: %v", r.node.ID, err)
			nodeContext = &types.NodeContext{}
		}
		if len(nodeContext.RelatedNodes) > maxExpandedNeighbors {
			nodeContext.RelatedNodes = nodeContext.RelatedNodes[:maxExpandedNeighbors]
		}
		results = append(results, QueryResult{Node: r.node, Similarity: r.similarity, Context: nodeContext})
	}
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
