package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mwhitfield/foliochat/internal/ingest"
	"github.com/mwhitfield/foliochat/internal/retrieval"
	"github.com/mwhitfield/foliochat/internal/storage"
	"github.com/mwhitfield/foliochat/internal/turn"
)

type mockMCPRetriever struct {
	chunks []retrieval.ContextChunk
	err    error
}

func (m *mockMCPRetriever) Retrieve(_ context.Context, _ string, _ int, _ float32) ([]retrieval.ContextChunk, error) {
	return m.chunks, m.err
}

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *fakeProcessor) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	proc := &fakeProcessor{resp: turn.Response{
		SessionID: "s1",
		Answer:    "Happy to walk through the work.",
		Mode:      "education",
		Category:  "background",
	}}

	return MCPDeps{
		Store:     store,
		Turns:     proc,
		Retriever: &mockMCPRetriever{},
		MinScore:  0.3,
	}, store, proc
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPAsk(t *testing.T) {
	deps, _, proc := newTestMCPDeps(t)
	handler := mcpAsk(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"query":      "tell me about your projects",
		"session_id": "s1",
		"role":       "developer",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("IsError = true: %s", toolText(t, result))
	}

	if proc.got.SessionID != "s1" || proc.got.Role != "developer" {
		t.Errorf("forwarded request = %+v", proc.got)
	}

	var resp turn.Response
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resp.Answer != "Happy to walk through the work." {
		t.Errorf("Answer = %q", resp.Answer)
	}
}

func TestMCPAsk_MissingQuery(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpAsk(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("IsError = false, want error result")
	}
}

func TestMCPAsk_PipelineError(t *testing.T) {
	deps, _, proc := newTestMCPDeps(t)
	proc.err = errors.New("store unavailable")
	handler := mcpAsk(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"query": "hi",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("IsError = false, want error result")
	}
}

func TestMCPAddKnowledge(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	handler := mcpAddKnowledge(deps)

	result, err := handler(context.Background(), makeCallToolRequest("add_knowledge", map[string]interface{}{
		"title":   "Open source",
		"content": "Maintains a popular HTTP router.",
		"tags":    []interface{}{"oss"},
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("IsError = true: %s", toolText(t, result))
	}

	text := toolText(t, result)
	docID := strings.TrimPrefix(text, "Stored knowledge doc ")
	doc, err := store.GetKnowledgeDoc(docID)
	if err != nil {
		t.Fatalf("GetKnowledgeDoc(%q): %v", docID, err)
	}
	if doc.Content != "Maintains a popular HTTP router." {
		t.Errorf("Content = %q", doc.Content)
	}
	if doc.Source != "mcp" {
		t.Errorf("Source = %q, want %q", doc.Source, "mcp")
	}
	if doc.Tags != `["oss"]` {
		t.Errorf("Tags = %q", doc.Tags)
	}

	job, err := store.ClaimNextJob([]string{ingest.JobTypeEmbed})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no embed job queued")
	}
}

func TestMCPRecall(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	deps.Retriever = &mockMCPRetriever{chunks: []retrieval.ContextChunk{
		{ID: "v1", SourceID: "doc-1", SourceType: "knowledge_doc", Text: "Led the infra team.", Score: 0.9},
	}}
	handler := mcpRecall(deps)

	result, err := handler(context.Background(), makeCallToolRequest("recall", map[string]interface{}{
		"query": "leadership",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("IsError = true: %s", toolText(t, result))
	}

	var results []map[string]interface{}
	if err := json.Unmarshal([]byte(toolText(t, result)), &results); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0]["text"] != "Led the infra team." {
		t.Errorf("text = %v", results[0]["text"])
	}
}

func TestMCPRecall_Empty(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpRecall(deps)

	result, err := handler(context.Background(), makeCallToolRequest("recall", map[string]interface{}{
		"query": "anything",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("result = %q, want %q", got, "[]")
	}
}

func TestMCPResourceProfile(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	deps.OwnerName = "Morgan Whitfield"

	doc := storage.KnowledgeDoc{
		ID: "k1", Title: "Work history", Content: "Led the storage team.",
		Source: "text", Tags: "[]", CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveKnowledgeDoc(doc); err != nil {
		t.Fatalf("SaveKnowledgeDoc: %v", err)
	}

	handler := mcpResourceProfile(deps)
	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "foliochat://owner/profile"},
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}

	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var profile struct {
		Owner           string `json:"owner"`
		ResumeAvailable bool   `json:"resume_available"`
		KnowledgeDocs   int    `json:"knowledge_docs"`
	}
	if err := json.Unmarshal([]byte(text.Text), &profile); err != nil {
		t.Fatalf("decode contents: %v", err)
	}
	if profile.Owner != "Morgan Whitfield" {
		t.Errorf("owner = %q", profile.Owner)
	}
	if profile.ResumeAvailable {
		t.Error("resume_available = true with no resume path configured")
	}
	if profile.KnowledgeDocs != 1 {
		t.Errorf("knowledge_docs = %d, want 1", profile.KnowledgeDocs)
	}
}

func TestMCPResourceSessions(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)

	row := storage.SessionRow{
		ID: "s1", Role: "developer",
		StateJSON: `{"id":"s1","mode":"awaiting_email"}`,
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.PutSession(row); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	handler := mcpResourceSessions(deps)
	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "foliochat://sessions/recent"},
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}

	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []map[string]string
	if err := json.Unmarshal([]byte(text.Text), &summaries); err != nil {
		t.Fatalf("decode contents: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d sessions, want 1", len(summaries))
	}
	if summaries[0]["mode"] != "awaiting_email" {
		t.Errorf("mode = %q, want %q", summaries[0]["mode"], "awaiting_email")
	}
}
