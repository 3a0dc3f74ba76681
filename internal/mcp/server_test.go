package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reqflow/reqflow/internal/knowledge"
	"github.com/reqflow/reqflow/internal/log"
)

// fakeEngine is an in-memory Knowledge implementation for protocol tests.
type fakeEngine struct {
	documents  map[string]int // documentID -> chunks stored
	results    []knowledge.Result
	searchErr  error
	ingestErr  error
	lastSearch struct {
		projectID string
		query     string
		limit     int
	}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{documents: make(map[string]int)}
}

func (f *fakeEngine) Ingest(_ context.Context, documentID, projectID, filename, content string) (int, error) {
	if f.ingestErr != nil {
		return 0, f.ingestErr
	}
	if documentID == "" || projectID == "" {
		return 0, fmt.Errorf("document and project IDs are required")
	}
	f.documents[documentID] = 3
	return 3, nil
}

func (f *fakeEngine) Search(_ context.Context, projectID, query string, limit int) ([]knowledge.Result, error) {
	f.lastSearch.projectID = projectID
	f.lastSearch.query = query
	f.lastSearch.limit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeEngine) DeleteDocument(_ context.Context, documentID string) error {
	delete(f.documents, documentID)
	return nil
}

func (f *fakeEngine) Stats(_ context.Context, projectID string) (knowledge.Stats, error) {
	total := 0
	for _, n := range f.documents {
		total += n
	}
	return knowledge.Stats{DocumentCount: len(f.documents), ChunkCount: total}, nil
}

// connectServer builds a server over the fake engine and a client session
// joined by in-memory transports.
func connectServer(t *testing.T, engine Knowledge) *mcp.ClientSession {
	t.Helper()

	server, err := NewServer(Config{Name: "reqflow-test", Version: "0.0.1"}, engine, log.NewNop())
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server.Connect() = %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client.Connect() = %v", err)
	}
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result content")
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] type = %T, want *mcp.TextContent", result.Content[0])
	}
	return tc.Text
}

func TestNewServerValidation(t *testing.T) {
	engine := newFakeEngine()

	if _, err := NewServer(Config{Version: "1"}, engine, log.NewNop()); err == nil {
		t.Error("NewServer() without name, want error")
	}
	if _, err := NewServer(Config{Name: "x"}, engine, log.NewNop()); err == nil {
		t.Error("NewServer() without version, want error")
	}
	if _, err := NewServer(Config{Name: "x", Version: "1"}, nil, log.NewNop()); err == nil {
		t.Error("NewServer() without engine, want error")
	}
}

func TestListTools(t *testing.T) {
	session := connectServer(t, newFakeEngine())

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools() = %v", err)
	}

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	want := []string{
		"knowledge_delete_document",
		"knowledge_ingest",
		"knowledge_search",
		"knowledge_stats",
	}
	if len(names) != len(want) {
		t.Fatalf("tools = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tools[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestCallSearch(t *testing.T) {
	engine := newFakeEngine()
	engine.results = []knowledge.Result{
		{Content: "chunk about indexing", Filename: "index.md", Score: 0.91},
		{Content: "chunk about queries", Filename: "query.md", Score: 0.84},
	}
	session := connectServer(t, engine)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "knowledge_search",
		Arguments: map[string]any{
			"project_id": "proj-1",
			"query":      "indexing",
			"limit":      2,
		},
	})
	if err != nil {
		t.Fatalf("CallTool(knowledge_search) = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", textContent(t, result))
	}

	var decoded []knowledge.Result
	if err := json.Unmarshal([]byte(textContent(t, result)), &decoded); err != nil {
		t.Fatalf("decoding result JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("results = %d, want 2", len(decoded))
	}
	if decoded[0].Filename != "index.md" {
		t.Errorf("first result filename = %q", decoded[0].Filename)
	}
	if engine.lastSearch.projectID != "proj-1" || engine.lastSearch.limit != 2 {
		t.Errorf("engine received projectID=%q limit=%d",
			engine.lastSearch.projectID, engine.lastSearch.limit)
	}
}

func TestCallSearchEngineError(t *testing.T) {
	engine := newFakeEngine()
	engine.searchErr = errors.New("store unavailable")
	session := connectServer(t, engine)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "knowledge_search",
		Arguments: map[string]any{
			"project_id": "proj-1",
			"query":      "anything",
		},
	})
	if err != nil {
		t.Fatalf("CallTool(knowledge_search) = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when the engine fails")
	}
	if !strings.Contains(textContent(t, result), "store unavailable") {
		t.Errorf("error text = %q, want engine failure message", textContent(t, result))
	}
}

func TestCallIngestAndStats(t *testing.T) {
	engine := newFakeEngine()
	session := connectServer(t, engine)
	ctx := context.Background()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "knowledge_ingest",
		Arguments: map[string]any{
			"document_id": "doc-1",
			"project_id":  "proj-1",
			"filename":    "guide.md",
			"content":     "document content to be chunked and embedded",
		},
	})
	if err != nil {
		t.Fatalf("CallTool(knowledge_ingest) = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", textContent(t, result))
	}
	if !strings.Contains(textContent(t, result), "Stored 3 chunks") {
		t.Errorf("ingest text = %q", textContent(t, result))
	}

	statsResult, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "knowledge_stats",
		Arguments: map[string]any{"project_id": "proj-1"},
	})
	if err != nil {
		t.Fatalf("CallTool(knowledge_stats) = %v", err)
	}
	if !strings.Contains(textContent(t, statsResult), "1 documents, 3 chunks") {
		t.Errorf("stats text = %q", textContent(t, statsResult))
	}
}

func TestCallIngestValidationError(t *testing.T) {
	engine := newFakeEngine()
	engine.ingestErr = errors.New("chunking produced nothing to store")
	session := connectServer(t, engine)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "knowledge_ingest",
		Arguments: map[string]any{
			"document_id": "doc-1",
			"project_id":  "proj-1",
			"filename":    "empty.md",
			"content":     "",
		},
	})
	if err != nil {
		t.Fatalf("CallTool(knowledge_ingest) = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError result for failed ingest")
	}
}

func TestCallDeleteDocument(t *testing.T) {
	engine := newFakeEngine()
	engine.documents["doc-1"] = 3
	session := connectServer(t, engine)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "knowledge_delete_document",
		Arguments: map[string]any{"document_id": "doc-1"},
	})
	if err != nil {
		t.Fatalf("CallTool(knowledge_delete_document) = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", textContent(t, result))
	}
	if len(engine.documents) != 0 {
		t.Errorf("document not deleted: %v", engine.documents)
	}
}

func TestCallUnknownTool(t *testing.T) {
	session := connectServer(t, newFakeEngine())

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "nonexistent_tool",
		Arguments: map[string]any{},
	})
	if err == nil {
		t.Fatal("CallTool(nonexistent_tool) = nil, want error")
	}
}
