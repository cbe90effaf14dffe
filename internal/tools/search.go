package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
)

// SearchInput defines the input schema for search_documents.
type SearchInput struct {
	Query string `json:"query" jsonschema:"What to look for in the ingested documents"`
	Limit int    `json:"limit,omitempty" jsonschema:"Max results 1-20, default 5"`
}

// SearchOutput is the JSON text returned by search_documents.
type SearchOutput struct {
	Hits  []vectorstore.Hit `json:"hits"`
	Count int               `json:"count"`
}

// NewSearchHandler creates the search_documents handler.
func NewSearchHandler(deps *Dependencies) mcp.ToolHandlerFor[SearchInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
		if input.Query == "" {
			return ErrorResult("Query cannot be empty", "Provide a search query"), nil, nil
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 5
		}
		if limit > 20 {
			return ErrorResult("Limit must be 1-20", "Reduce limit value"), nil, nil
		}

		hits, err := deps.Documents.Search(ctx, input.Query, limit)
		if err != nil {
			deps.logger().Error("document search failed", "error", err)
			return ErrorResult("Search failed", "The embedding service may be unavailable"), nil, nil
		}

		out, _ := json.MarshalIndent(SearchOutput{Hits: hits, Count: len(hits)}, "", "  ")
		deps.logger().Info("search_documents completed", "query", truncate(input.Query, 30), "hits", len(hits))
		return TextResult(string(out)), nil, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
