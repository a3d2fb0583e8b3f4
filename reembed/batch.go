package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/policykb/ai"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

// BatchProcessor embeds batches of chunks and writes the vectors back.
type BatchProcessor struct {
	chunks         storage.ChunkRepository
	embedder       ai.Embedder
	maxAttempts    int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxAttempts: maximum number of embedding calls per batch
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(chunks storage.ChunkRepository, embedder ai.Embedder, maxAttempts int, retryBaseDelay time.Duration, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		chunks:         chunks,
		embedder:       embedder,
		maxAttempts:    maxAttempts,
		retryBaseDelay: retryBaseDelay,
		logger:         logger.With("component", "reembed-batch"),
	}
}

// Process embeds the content of every chunk in one request and stores the
// new vectors. Vectors are stored as returned; cosine ranking does not
// depend on their magnitude.
func (bp *BatchProcessor) Process(ctx context.Context, batch []*core.PolicyChunk) error {
	if len(batch) == 0 {
		return nil
	}

	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, bp.logger, bp.maxAttempts, bp.retryBaseDelay, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxAttempts, err)
	}

	if len(embeddings) != len(batch) {
		return fmt.Errorf("%w: expected %d, got %d", core.ErrEmbeddingCountMismatch, len(batch), len(embeddings))
	}

	updated := make([]*core.PolicyChunk, len(batch))
	for i, chunk := range batch {
		updated[i] = &core.PolicyChunk{
			Id:        chunk.Id,
			PolicyId:  chunk.PolicyId,
			Index:     chunk.Index,
			Content:   chunk.Content,
			Embedding: embeddings[i],
		}
	}

	if err := bp.chunks.UpdateEmbeddings(ctx, updated...); err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}
	return nil
}
