package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/stockwise/internal/inference"
	"github.com/kalambet/stockwise/internal/search"
	"github.com/kalambet/stockwise/internal/storage"
	"github.com/kalambet/stockwise/internal/tools"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Search    *search.Orchestrator
	Inference *inference.Service // optional; image_recognition reports it is not configured
	Version   string
}

// NewMCPServer creates an MCP server exposing the inventory tools and resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"stockwise",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("stockwise answers questions about warehouse inventory: stock levels, suppliers, and product identification from images."),
		server.WithRecovery(),
	)

	finder := productSearchTool(deps)
	recognize := imageRecognitionTool(deps)

	s.AddTool(
		mcp.NewTool(tools.ProductSearchName,
			mcp.WithDescription(finder.Description()),
			mcp.WithString("search_term", mcp.Required(), mcp.Description("The product name or keyword to search for in the database")),
		),
		mcpProductSearch(finder),
	)

	s.AddTool(
		mcp.NewTool(tools.ImageRecognitionName,
			mcp.WithDescription(recognize.Description()),
			mcp.WithString("image_path", mcp.Required(), mcp.Description("The local path to the image file")),
		),
		mcpImageRecognition(recognize),
	)

	s.AddTool(
		mcp.NewTool("semantic_search",
			mcp.WithDescription("Answer a natural-language inventory question, returning the answer and the matching products as JSON."),
			mcp.WithString("query", mcp.Required(), mcp.Description("The question, e.g. 'do we have milk?'")),
		),
		mcpSemanticSearch(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"inventory://low-stock",
			"Low stock",
			mcp.WithResourceDescription("Active products at or below their reorder point"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLowStock(deps),
	)

	return s
}

func productSearchTool(deps MCPDeps) *tools.ProductSearch {
	var store tools.ProductSearcher
	if deps.Store != nil {
		store = deps.Store
	}
	return tools.NewProductSearch(store, 0)
}

func imageRecognitionTool(deps MCPDeps) *tools.ImageRecognition {
	var predictor tools.Predictor
	if deps.Inference != nil {
		predictor = deps.Inference
	}
	return tools.NewImageRecognition(predictor)
}

func mcpProductSearch(t *tools.ProductSearch) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("search_term")
		if err != nil {
			return mcpError("search_term is required"), nil
		}
		res, err := t.Search(ctx, name)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpText(res.Text), nil
	}
}

func mcpImageRecognition(t *tools.ImageRecognition) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("image_path")
		if err != nil {
			return mcpError("image_path is required"), nil
		}
		res, err := t.Recognize(ctx, path)
		if err != nil {
			return mcpError(fmt.Sprintf("recognition failed: %v", err)), nil
		}
		return mcpText(res.Text), nil
	}
}

func mcpSemanticSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		res := deps.Search.SemanticSearch(ctx, query)
		b, err := json.Marshal(SearchResponse{
			Answer:        res.Answer,
			ProductsFound: toSummaries(res.ProductsFound),
			Query:         res.Query,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceLowStock(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		products, err := deps.Store.LowStockProducts(ctx, 50)
		if err != nil {
			return nil, fmt.Errorf("listing low stock products: %w", err)
		}
		b, err := json.Marshal(toSummaries(products))
		if err != nil {
			return nil, fmt.Errorf("marshaling low stock products: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
