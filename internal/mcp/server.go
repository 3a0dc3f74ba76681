// Package mcp exposes the knowledge engine over the Model Context Protocol.
// An MCP host (editor, agent runtime) connects over stdio and calls the
// knowledge tools directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reqflow/reqflow/internal/knowledge"
	"github.com/reqflow/reqflow/internal/log"
)

// Knowledge defines the engine operations the MCP server needs. Satisfied
// by knowledge.Engine.
type Knowledge interface {
	Ingest(ctx context.Context, documentID, projectID, filename, content string) (int, error)
	Search(ctx context.Context, projectID, query string, limit int) ([]knowledge.Result, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Stats(ctx context.Context, projectID string) (knowledge.Stats, error)
}

// Server wraps the MCP SDK server around a knowledge engine.
type Server struct {
	mcpServer *mcp.Server
	engine    Knowledge
	logger    log.Logger
}

// Config holds MCP server identity.
type Config struct {
	Name    string
	Version string
}

// NewServer creates an MCP server with all knowledge tools registered.
func NewServer(cfg Config, engine Knowledge, logger log.Logger) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("knowledge engine is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		engine: engine,
		logger: logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport. Blocks until the transport closes
// or ctx is canceled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	if err := s.registerSearch(); err != nil {
		return err
	}
	if err := s.registerIngest(); err != nil {
		return err
	}
	if err := s.registerStats(); err != nil {
		return err
	}
	return s.registerDeleteDocument()
}

// SearchInput is the input schema for knowledge_search.
type SearchInput struct {
	ProjectID string `json:"project_id" jsonschema:"Project whose knowledge base to search"`
	Query     string `json:"query" jsonschema:"Natural language search query"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of results, default 5"`
}

func (s *Server) registerSearch() error {
	inputSchema, err := jsonschema.For[SearchInput](nil)
	if err != nil {
		return fmt.Errorf("creating search schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "knowledge_search",
		Description: "Search a project's knowledge base. Returns the most relevant stored chunks with similarity scores. Falls back to keyword matching when semantic search is unavailable.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
		results, err := s.engine.Search(ctx, in.ProjectID, in.Query, in.Limit)
		if err != nil {
			return nil, nil, fmt.Errorf("search failed: %w", err)
		}

		payload, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("encoding results: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		}, nil, nil
	})
	return nil
}

// IngestInput is the input schema for knowledge_ingest.
type IngestInput struct {
	DocumentID string `json:"document_id" jsonschema:"Stable document identifier; re-ingesting replaces the previous version"`
	ProjectID  string `json:"project_id" jsonschema:"Project that owns the document"`
	Filename   string `json:"filename" jsonschema:"Display name recorded with each chunk"`
	Content    string `json:"content" jsonschema:"Full document text to chunk and embed"`
}

func (s *Server) registerIngest() error {
	inputSchema, err := jsonschema.For[IngestInput](nil)
	if err != nil {
		return fmt.Errorf("creating ingest schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "knowledge_ingest",
		Description: "Chunk, embed, and store a document in a project's knowledge base. Replaces any previous version with the same document ID.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in IngestInput) (*mcp.CallToolResult, any, error) {
		stored, err := s.engine.Ingest(ctx, in.DocumentID, in.ProjectID, in.Filename, in.Content)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{
					Text: fmt.Sprintf("Error: %v", err),
				}},
				IsError: true,
			}, nil, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{
				Text: fmt.Sprintf("Stored %d chunks for document %s", stored, in.DocumentID),
			}},
		}, nil, nil
	})
	return nil
}

// StatsInput is the input schema for knowledge_stats.
type StatsInput struct {
	ProjectID string `json:"project_id" jsonschema:"Project to report statistics for"`
}

func (s *Server) registerStats() error {
	inputSchema, err := jsonschema.For[StatsInput](nil)
	if err != nil {
		return fmt.Errorf("creating stats schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "knowledge_stats",
		Description: "Report how many documents and chunks a project's knowledge base contains.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in StatsInput) (*mcp.CallToolResult, any, error) {
		stats, err := s.engine.Stats(ctx, in.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("stats failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{
				Text: fmt.Sprintf("Project %s: %d documents, %d chunks",
					in.ProjectID, stats.DocumentCount, stats.ChunkCount),
			}},
		}, nil, nil
	})
	return nil
}

// DeleteDocumentInput is the input schema for knowledge_delete_document.
type DeleteDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"Document whose chunks should be removed"`
}

func (s *Server) registerDeleteDocument() error {
	inputSchema, err := jsonschema.For[DeleteDocumentInput](nil)
	if err != nil {
		return fmt.Errorf("creating delete schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "knowledge_delete_document",
		Description: "Remove all stored chunks for a document across every project.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in DeleteDocumentInput) (*mcp.CallToolResult, any, error) {
		if err := s.engine.DeleteDocument(ctx, in.DocumentID); err != nil {
			return nil, nil, fmt.Errorf("delete failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{
				Text: fmt.Sprintf("Deleted document %s", in.DocumentID),
			}},
		}, nil, nil
	})
	return nil
}
