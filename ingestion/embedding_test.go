package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/policykb/ai"
	"github.com/poiesic/policykb/ai/mock"
	"github.com/poiesic/policykb/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunkEmbedder(t *testing.T) {
	_, err := newChunkEmbedder(nil, mock.NewMockEmbedder(), 10, 2, nil)
	assert.Error(t, err)
	_, err = newChunkEmbedder(mock.NewMockChunker(), nil, 10, 2, nil)
	assert.Error(t, err)
	_, err = newChunkEmbedder(mock.NewMockChunker(), mock.NewMockEmbedder(), 10, 10, nil)
	assert.ErrorIs(t, err, ai.ErrInvalidChunking)
}

func TestChunkEmbedder_Build(t *testing.T) {
	ctx := context.Background()
	policy := &core.Policy{Title: "HandHygiene", TextContent: "abcdefghij"}

	t.Run("embeds every chunk in one call", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		ce, err := newChunkEmbedder(mock.NewMockChunker(), embedder, 4, 1, nil)
		require.NoError(t, err)

		chunks, childErr, err := ce.build(ctx, policy)
		require.NoError(t, err)
		require.NoError(t, childErr)
		require.Len(t, chunks, 3)
		for i, chunk := range chunks {
			assert.Equal(t, i, chunk.Index)
			assert.Len(t, chunk.Embedding, mock.DefaultDimension)
		}
		assert.Equal(t, []string{"abcd", "defg", "ghij"}, embedder.Texts())
		assert.Equal(t, 1, embedder.CallCount())
	})

	t.Run("blank text yields no chunks", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		ce, err := newChunkEmbedder(mock.NewMockChunker(), embedder, 4, 1, nil)
		require.NoError(t, err)

		chunks, childErr, err := ce.build(ctx, &core.Policy{Title: "Blank", TextContent: "  "})
		require.NoError(t, err)
		assert.NoError(t, childErr)
		assert.Empty(t, chunks)
		assert.Zero(t, embedder.CallCount())
	})

	t.Run("embed error keeps chunks without vectors", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("service unavailable")
		}
		ce, err := newChunkEmbedder(mock.NewMockChunker(), embedder, 4, 1, nil)
		require.NoError(t, err)

		chunks, childErr, err := ce.build(ctx, policy)
		require.NoError(t, err)
		assert.Error(t, childErr)
		require.Len(t, chunks, 3)
		for _, chunk := range chunks {
			assert.Nil(t, chunk.Embedding)
		}
	})

	t.Run("count mismatch drops chunks", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		}
		ce, err := newChunkEmbedder(mock.NewMockChunker(), embedder, 4, 1, nil)
		require.NoError(t, err)

		chunks, childErr, err := ce.build(ctx, policy)
		require.NoError(t, err)
		assert.ErrorIs(t, childErr, core.ErrEmbeddingCountMismatch)
		assert.Nil(t, chunks)
	})

	t.Run("cancellation fails the item", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			cancel()
			return nil, ctx.Err()
		}
		ce, err := newChunkEmbedder(mock.NewMockChunker(), embedder, 4, 1, nil)
		require.NoError(t, err)

		_, _, err = ce.build(cctx, policy)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("chunker error fails the item", func(t *testing.T) {
		chunker := mock.NewMockChunker()
		chunker.ChunkFunc = func(text string, size, overlap int) ([]string, error) {
			return nil, errors.New("bad input")
		}
		ce, err := newChunkEmbedder(chunker, mock.NewMockEmbedder(), 4, 1, nil)
		require.NoError(t, err)

		_, _, err = ce.build(ctx, policy)
		assert.Error(t, err)
	})
}
