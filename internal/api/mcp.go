package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mwhitfield/foliochat/internal/ingest"
	"github.com/mwhitfield/foliochat/internal/retrieval"
	"github.com/mwhitfield/foliochat/internal/storage"
	"github.com/mwhitfield/foliochat/internal/turn"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string, topK int, minScore float32) ([]retrieval.ContextChunk, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store      *storage.Store
	Turns      TurnProcessor
	Retriever  MCPRetriever
	MinScore   float32
	OwnerName  string
	ResumePath string
}

// NewMCPServer exposes the chat pipeline and knowledge base as MCP tools
// so the owner can drive the assistant from an MCP-capable client.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"foliochat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("foliochat — portfolio chat assistant with resume disclosure and a local knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Send a visitor message through the chat pipeline and return the assistant's reply."),
			mcp.WithString("query", mcp.Description("The visitor's message"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; omit to start a new one")),
			mcp.WithString("role", mcp.Description("Visitor persona for a new session: developer, hiring-manager-technical, hiring-manager-nontechnical, or explorer")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("add_knowledge",
			mcp.WithDescription("Store a piece of the owner's background into the knowledge base and queue it for embedding."),
			mcp.WithString("title", mcp.Description("Title for the knowledge entry")),
			mcp.WithString("content", mcp.Description("The text content to store"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
		),
		mcpAddKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Semantically search the knowledge base and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"foliochat://owner/profile",
			"Owner Profile",
			mcp.WithResourceDescription("Owner name, resume availability, and knowledge base size"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"foliochat://sessions/recent",
			"Recent Sessions",
			mcp.WithResourceDescription("Last 10 conversation sessions (id, role, disclosure mode)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		turnReq := turn.Request{
			SessionID: req.GetString("session_id", ""),
			Role:      req.GetString("role", ""),
			Query:     query,
		}

		resp, err := deps.Turns.Process(ctx, turnReq)
		if err != nil {
			return mcpError(fmt.Sprintf("turn failed: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		title := req.GetString("title", "")
		tags := req.GetStringSlice("tags", nil)

		docID := uuid.New().String()
		tagsJSON := "[]"
		if len(tags) > 0 {
			b, err := json.Marshal(tags)
			if err != nil {
				return mcpError(fmt.Sprintf("marshaling tags: %v", err)), nil
			}
			tagsJSON = string(b)
		}

		doc := storage.KnowledgeDoc{
			ID:        docID,
			Title:     title,
			Content:   content,
			Source:    "mcp",
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveKnowledgeDoc(doc); err != nil {
			return mcpError(fmt.Sprintf("saving doc: %v", err)), nil
		}

		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobTypeEmbed,
			PayloadJSON: ingest.EmbedJobPayload(docID),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			return mcpError(fmt.Sprintf("saved doc but failed to queue embedding: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored knowledge doc %s", docID)), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		chunks, err := deps.Retriever.Retrieve(ctx, query, limit, deps.MinScore)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}

		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ID         string  `json:"id"`
			SourceID   string  `json:"source_id"`
			SourceType string  `json:"source_type"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
			Tags       string  `json:"tags,omitempty"`
		}

		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				ID:         c.ID,
				SourceID:   c.SourceID,
				SourceType: c.SourceType,
				Text:       c.Text,
				Score:      c.Score,
				Tags:       c.Tags,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Store.ListKnowledgeDocs(100, 0)
		if err != nil {
			return nil, fmt.Errorf("listing knowledge docs: %w", err)
		}

		resumeAvailable := false
		if deps.ResumePath != "" {
			if _, err := os.Stat(deps.ResumePath); err == nil {
				resumeAvailable = true
			}
		}

		profile := struct {
			Owner           string `json:"owner"`
			ResumeAvailable bool   `json:"resume_available"`
			KnowledgeDocs   int    `json:"knowledge_docs"`
		}{
			Owner:           deps.OwnerName,
			ResumeAvailable: resumeAvailable,
			KnowledgeDocs:   len(docs),
		}

		b, err := json.Marshal(profile)
		if err != nil {
			return nil, fmt.Errorf("marshaling profile: %w", err)
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

func mcpResourceSessions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rows, err := deps.Store.ListSessions(10)
		if err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}

		type sessionSummary struct {
			ID        string `json:"id"`
			Role      string `json:"role"`
			Mode      string `json:"mode"`
			UpdatedAt string `json:"updated_at"`
		}

		summaries := make([]sessionSummary, len(rows))
		for i, row := range rows {
			summaries[i] = sessionSummary{
				ID:        row.ID,
				Role:      row.Role,
				Mode:      modeFromState(row.StateJSON),
				UpdatedAt: row.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("marshaling sessions: %w", err)
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

// modeFromState pulls the disclosure mode out of the stored state blob
// without deserializing the whole session.
func modeFromState(stateJSON string) string {
	var partial struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal([]byte(stateJSON), &partial); err != nil {
		return ""
	}
	return truncateRunes(partial.Mode, 64)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
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
