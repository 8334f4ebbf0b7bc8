// Package mcp exposes the natural-language query surface over the Model
// Context Protocol, so MCP-compatible agents can ask questions of the
// pipeline event store through the same translation and safety path as the
// HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/firmsoil/anviksha/internal/generate"
	"github.com/firmsoil/anviksha/internal/metadata"
	"github.com/firmsoil/anviksha/internal/pipeline"
)

// Generator turns a question plus schema context into an aggregation pipeline.
type Generator interface {
	GeneratePipeline(ctx context.Context, question string, history []generate.Turn, schemaContext string) (pipeline.Pipeline, string)
	Summarize(ctx context.Context, question, explanation string, results []map[string]any) string
}

// Executor runs a pipeline against the event store.
type Executor interface {
	Execute(ctx context.Context, collection string, p pipeline.Pipeline) (pipeline.ExecutionResult, error)
}

// Server wraps the MCP server with the query service layer.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	meta       *metadata.Client
	generator  Generator
	executor   Executor
	database   string
	collection string
	logger     *slog.Logger
}

// Config holds the MCP server dependencies.
type Config struct {
	Meta       *metadata.Client
	Generator  Generator
	Executor   Executor
	Database   string
	Collection string
	Version    string
	Logger     *slog.Logger
}

// New creates and configures the MCP server with all tools registered.
func New(cfg Config) *Server {
	s := &Server{
		meta:       cfg.Meta,
		generator:  cfg.Generator,
		executor:   cfg.Executor,
		database:   cfg.Database,
		collection: cfg.Collection,
		logger:     cfg.Logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"anviksha",
		cfg.Version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// anviksha_ask — ask a natural-language question of the event store.
	s.mcpServer.AddTool(
		mcplib.NewTool("anviksha_ask",
			mcplib.WithDescription(`Ask a natural-language question about CI/CD pipeline events.

The question is translated into a MongoDB aggregation pipeline, checked for
safety (read-only, result-capped), executed, and answered with both the raw
result documents and a plain-language summary.

EXAMPLE: "how many deployments failed on the main branch last week?"`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query",
				mcplib.Description("The natural-language question to answer"),
				mcplib.Required(),
			),
		),
		s.handleAsk,
	)

	// anviksha_schema — describe the event store's schema.
	s.mcpServer.AddTool(
		mcplib.NewTool("anviksha_schema",
			mcplib.WithDescription(`Describe the pipeline event collection: field names and types, sample documents, and known values for the categorical fields. Use this to understand what questions the store can answer.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
		),
		s.handleSchema,
	)

	// anviksha_clear_cache — drop cached schema metadata.
	s.mcpServer.AddTool(
		mcplib.NewTool("anviksha_clear_cache",
			mcplib.WithDescription(`Clear the cached schema metadata so the next question sees the store's current shape. Call after the event collection's structure changes.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
		),
		s.handleClearCache,
	)
}

func (s *Server) handleAsk(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question := request.GetString("query", "")
	if question == "" {
		return errorResult("query is required"), nil
	}

	schemaContext := s.meta.BuildEnrichedContext(ctx, s.database, s.collection)
	stages, explanation := s.generator.GeneratePipeline(ctx, question, nil, schemaContext)
	stages = pipeline.EnforceSafety(stages)

	result, err := s.executor.Execute(ctx, s.collection, stages)
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}

	summary := s.generator.Summarize(ctx, question, explanation, result.Documents)

	resultData, _ := json.MarshalIndent(map[string]any{
		"summary":              summary,
		"pipeline_explanation": explanation,
		"pipeline":             stages,
		"results":              result.Documents,
		"count":                result.Count,
	}, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleSchema(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text := s.meta.BuildEnrichedContext(ctx, s.database, s.collection)
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}, nil
}

func (s *Server) handleClearCache(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	s.meta.ClearCache()
	s.logger.Info("metadata cache cleared via mcp tool")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: "metadata cache cleared"},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
