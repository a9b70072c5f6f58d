// Package search implements C1: the web-search client that turns a query
// into a normalized SearchResponse, preferring an MCP stdio search server
// and falling back to a direct HTTP search API when the MCP server fails
// or only completes its handshake.
package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"time"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
)

// searchPacing is the delay BatchSearch waits between successive queries,
// so a burst of searches doesn't hammer the upstream engine.
const searchPacing = 1 * time.Second

// Config configures the search client.
type Config struct {
	// Command is the MCP search server's argv (e.g. ["docker", "run", ...,
	// "searxng-mcp-server:latest"]). Empty disables the MCP branch entirely.
	Command []string
	// DirectURL is the SearXNG-compatible HTTP search endpoint used as a
	// fallback, and the only path taken when Command is empty.
	DirectURL string
	Timeout   time.Duration
}

// Client is the C1 search client.
type Client struct {
	cfg Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// jsonRPCRequest is one JSON-RPC 2.0 call/notification sent over stdio.
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      *int   `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// Search executes one query, per §4.4 stage 2: it never returns a Go error
// for a failed search, instead returning a SearchResponse carrying Error
// and an empty Results slice, so the orchestrator can continue on no
// results rather than aborting.
func (c *Client) Search(ctx context.Context, query string, limit int) *types.SearchResponse {
	start := time.Now()
	if len(c.cfg.Command) > 0 {
		if resp, err := c.searchMCP(ctx, query, limit); err == nil {
			resp.ResponseTime = time.Since(start).Seconds()
			return resp
		} else {
			logger.Warnf(ctx, "mcp search failed, falling back to direct: %v", err)
		}
	}
	resp, err := c.searchDirect(ctx, query, limit)
	if err != nil {
		return &types.SearchResponse{Query: query, Error: err.Error()}
	}
	resp.ResponseTime = time.Since(start).Seconds()
	return resp
}

// BatchSearch runs every query in turn, pacing them a fixed interval apart.
func (c *Client) BatchSearch(ctx context.Context, queries []string, limitPerQuery int) []*types.SearchResponse {
	responses := make([]*types.SearchResponse, 0, len(queries))
	for i, query := range queries {
		responses = append(responses, c.Search(ctx, query, limitPerQuery))
		if i < len(queries)-1 {
			select {
			case <-ctx.Done():
				return responses
			case <-time.After(searchPacing):
			}
		}
	}
	return responses
}

// searchMCP runs the MCP search server as a one-shot subprocess: initialize,
// notifications/initialized, tools/call, in a single stdin write, matching
// responses by id (0 for init, 2 for the search call). If only the init
// response comes back the server crashed mid-search and the caller should
// fall back to the direct HTTP path.
func (c *Client) searchMCP(ctx context.Context, query string, limit int) (*types.SearchResponse, error) {
	id0, id2 := 0, 2
	initReq := jsonRPCRequest{
		JSONRPC: "2.0", Method: "initialize", ID: &id0,
		Params: map[string]any{
			"protocolVersion": "2025-06-18",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "research-agent", "version": "1.0.0"},
		},
	}
	initializedNotif := jsonRPCRequest{JSONRPC: "2.0", Method: "notifications/initialized", Params: map[string]any{}}
	searchReq := jsonRPCRequest{
		JSONRPC: "2.0", Method: "tools/call", ID: &id2,
		Params: map[string]any{
			"name": "search_web",
			"arguments": map[string]any{
				"query": query, "category": "web", "limit": limit, "language": "en",
			},
		},
	}

	var input bytes.Buffer
	for _, req := range []jsonRPCRequest{initReq, initializedNotif, searchReq} {
		line, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		input.Write(line)
		input.WriteByte('\n')
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.Command[0], c.cfg.Command[1:]...)
	cmd.Stdin = &input
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("mcp server exec: %w", err)
	}

	var initResponse, searchResponse *jsonRPCResponse
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var resp jsonRPCResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		switch {
		case resp.ID != nil && *resp.ID == 0:
			r := resp
			initResponse = &r
		case resp.ID != nil && *resp.ID == 2:
			r := resp
			searchResponse = &r
		}
		if searchResponse != nil {
			break
		}
	}

	if searchResponse == nil {
		if initResponse != nil {
			return nil, fmt.Errorf("mcp server returned only the init response, likely crashed mid-search")
		}
		return nil, fmt.Errorf("mcp server returned no valid response")
	}
	if len(searchResponse.Error) > 0 {
		return nil, fmt.Errorf("mcp search error: %s", searchResponse.Error)
	}

	return parseMCPResult(query, searchResponse.Result)
}

// mcpToolResult is the MCP tools/call envelope: a list of content items,
// the first of which carries the tool's JSON text payload.
type mcpToolResult struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func parseMCPResult(query string, raw json.RawMessage) (*types.SearchResponse, error) {
	var envelope mcpToolResult
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Content) == 0 {
		return &types.SearchResponse{Query: query}, nil
	}

	var payload struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Snippet string  `json:"snippet"`
			Content string  `json:"content"`
			Source  string  `json:"source"`
			Engine  string  `json:"engine"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(envelope.Content[0].Text), &payload); err != nil {
		return &types.SearchResponse{Query: query}, nil
	}

	items := make([]types.SearchResultItem, 0, len(payload.Results))
	for _, r := range payload.Results {
		snippet := r.Snippet
		if snippet == "" {
			snippet = r.Content
		}
		source := r.Source
		if source == "" {
			source = r.Engine
		}
		items = append(items, types.SearchResultItem{
			Title: r.Title, URL: r.URL, Snippet: snippet, Source: source, Score: r.Score,
		})
	}
	return &types.SearchResponse{Query: query, ResultCount: len(items), Results: items}, nil
}

// searchDirect hits a SearXNG-compatible JSON search endpoint directly.
func (c *Client) searchDirect(ctx context.Context, query string, limit int) (*types.SearchResponse, error) {
	if c.cfg.DirectURL == "" {
		return nil, fmt.Errorf("no direct search URL configured")
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("safesearch", "0")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DirectURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("direct search returned status %d", res.StatusCode)
	}

	var payload struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Engine  string  `json:"engine"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, err
	}

	if len(payload.Results) > limit {
		payload.Results = payload.Results[:limit]
	}
	items := make([]types.SearchResultItem, 0, len(payload.Results))
	for _, r := range payload.Results {
		items = append(items, types.SearchResultItem{
			Title: r.Title, URL: r.URL, Snippet: r.Content, Source: r.Engine, Score: r.Score,
		})
	}
	return &types.SearchResponse{Query: query, ResultCount: len(items), Results: items}, nil
}
