package compose

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mwhitfield/foliochat/internal/engine"
	"github.com/mwhitfield/foliochat/internal/retrieval"
	"github.com/mwhitfield/foliochat/internal/session"
)

// ChunkRetriever finds background chunks for a query. Implemented by
// retrieval.Retriever.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, topK int, minScore float32) ([]retrieval.ContextChunk, error)
}

// Generator produces grounded answers: retrieve background, compose the
// prompt, call the engine. Retrieval failures degrade to an un-grounded
// answer instead of failing the turn.
type Generator struct {
	retriever ChunkRetriever
	composer  *Composer
	engine    engine.Engine
	chatModel string
	topK      int
	minScore  float32
	logger    *slog.Logger
}

// NewGenerator wires a Generator. logger may be nil, in which case the
// default slog logger is used.
func NewGenerator(r ChunkRetriever, c *Composer, e engine.Engine, chatModel string, topK int, minScore float32, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		retriever: r,
		composer:  c,
		engine:    e,
		chatModel: chatModel,
		topK:      topK,
		minScore:  minScore,
		logger:    logger,
	}
}

// Generate answers the visitor's question using the knowledge base.
func (g *Generator) Generate(ctx context.Context, role session.Role, history []session.Message, query string) (string, error) {
	chunks, err := g.retriever.Retrieve(ctx, query, g.topK, g.minScore)
	if err != nil {
		g.logger.Warn("retrieval failed, answering without background", "error", err)
		chunks = nil
	}

	msgs := g.composer.Compose(role, history, chunks, query)
	answer, err := g.engine.Chat(ctx, g.chatModel, msgs, nil)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return answer, nil
}
