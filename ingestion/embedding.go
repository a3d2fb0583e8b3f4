package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/policykb/ai"
	"github.com/poiesic/policykb/core"
)

// chunkEmbedder splits policy text and embeds the pieces in one batch.
type chunkEmbedder struct {
	chunker      ai.Chunker
	embedder     ai.Embedder
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

// newChunkEmbedder creates a chunkEmbedder.
func newChunkEmbedder(chunker ai.Chunker, embedder ai.Embedder, size, overlap int, logger *slog.Logger) (*chunkEmbedder, error) {
	if chunker == nil {
		return nil, fmt.Errorf("chunker required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if err := ai.ValidateChunking(size, overlap); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &chunkEmbedder{
		chunker:      chunker,
		embedder:     embedder,
		chunkSize:    size,
		chunkOverlap: overlap,
		logger:       logger.With("processor", "embeddings"),
	}, nil
}

// build returns the chunks to store for a policy.
//
// The error return fails the whole item. childErr reports a failure that
// leaves the policy stored: on an embedder error the chunks come back
// without embeddings; on an embedding count mismatch no chunks come back.
func (ce *chunkEmbedder) build(ctx context.Context, policy *core.Policy) (chunks []*core.PolicyChunk, childErr error, err error) {
	texts, err := ce.chunker.Chunk(policy.TextContent, ce.chunkSize, ce.chunkOverlap)
	if err != nil {
		return nil, nil, fmt.Errorf("chunk %q: %w", policy.Title, err)
	}
	if len(texts) == 0 {
		ce.logger.Info("no chunks produced, skipping embeddings", "title", policy.Title)
		return nil, nil, nil
	}

	ce.logger.Debug("generating embeddings for policy", "title", policy.Title, "chunks", len(texts))
	embeddings, embedErr := ce.embedder.EmbedTexts(ctx, texts)
	if embedErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		ce.logger.Error("error generating embeddings, storing chunks without vectors", "title", policy.Title, "err", embedErr)
		embeddings = nil
		childErr = fmt.Errorf("embed %q: %w", policy.Title, embedErr)
	} else if len(embeddings) != len(texts) {
		childErr = fmt.Errorf("%w: %q expected %d, received %d",
			core.ErrEmbeddingCountMismatch, policy.Title, len(texts), len(embeddings))
		ce.logger.Error("embedding result mismatch, no chunks written", "title", policy.Title, "err", childErr)
		return nil, childErr, nil
	}

	chunks = make([]*core.PolicyChunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.PolicyChunk{Index: i, Content: text}
		if embeddings != nil {
			chunks[i].Embedding = embeddings[i]
		}
	}
	return chunks, childErr, nil
}
