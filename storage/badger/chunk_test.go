package badger

import (
	"context"
	"math"
	"testing"

	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindSimilar_EmptyDatabase(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Chunks.FindSimilar(context.Background(), []float32{0.1, 0.2, 0.3}, 0.5, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilar_WithRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	policy := seedPolicy(t, store, &core.Policy{Title: "Vectors"},
		[]string{"exact match", "similar", "orthogonal", "no embedding"},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}, nil})

	results, err := store.Chunks.FindSimilar(ctx, []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "exact match", results[0].Chunk.Content)
	assert.InDelta(t, 1.0, results[0].Score, 0.0001)
	assert.Equal(t, results[0].Score, results[0].VectorScore)
	assert.Equal(t, "similar", results[1].Chunk.Content)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, policy.Id, results[1].Chunk.PolicyId)
}

func TestFindSimilar_ThresholdFiltering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedPolicy(t, store, &core.Policy{Title: "Thresholds"},
		[]string{"high", "medium", "low"},
		[][]float32{{1, 0}, {0.8, 0.6}, {0.2, 0.98}})

	var previous int
	for _, threshold := range []float32{0.95, 0.7, 0.1, -1} {
		results, err := store.Chunks.FindSimilar(ctx, []float32{1, 0}, threshold, 0)
		require.NoError(t, err)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, threshold)
		}
		// Lowering the threshold never removes results
		assert.GreaterOrEqual(t, len(results), previous)
		previous = len(results)
	}
	assert.Equal(t, 3, previous)
}

func TestFindSimilar_SkipsNaNSimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	nan := float32(math.NaN())

	seedPolicy(t, store, &core.Policy{Title: "Corrupt"},
		[]string{"finite", "not a number"},
		[][]float32{{1, 0}, {nan, 1}})

	results, err := store.Chunks.FindSimilar(ctx, []float32{1, 0}, -1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "finite", results[0].Chunk.Content)

	results, err = store.Chunks.FindSimilar(ctx, []float32{nan, 1}, -1, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilar_LimitResults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	contents := make([]string, 10)
	embeddings := make([][]float32, 10)
	for i := range contents {
		contents[i] = "chunk"
		embeddings[i] = []float32{1, float32(i) * 0.1}
	}
	seedPolicy(t, store, &core.Policy{Title: "Many"}, contents, embeddings)

	results, err := store.Chunks.FindSimilar(ctx, []float32{1, 0}, 0, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, 0, results[0].Chunk.Index)

	_, err = store.Chunks.FindSimilar(ctx, []float32{1, 0}, 0, -1)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestFindSimilar_TiesOrderByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedPolicy(t, store, &core.Policy{Title: "Ties"},
		[]string{"one", "two", "three"},
		[][]float32{{1, 1}, {2, 2}, {3, 3}})

	results, err := store.Chunks.FindSimilar(ctx, []float32{1, 1}, 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Less(t, results[0].Chunk.Id, results[1].Chunk.Id)
	assert.Less(t, results[1].Chunk.Id, results[2].Chunk.Id)
}

func TestFindSimilar_DimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	seedPolicy(t, store, &core.Policy{Title: "Dims"}, []string{"x"}, [][]float32{{1, 0, 0}})

	_, err := store.Chunks.FindSimilar(context.Background(), []float32{1, 0}, 0, 10)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestSearchText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedPolicy(t, store, &core.Policy{Title: "Hygiene"}, []string{
		"Hand hygiene is required before and after patient contact.",
		"Alcohol based hand rub may be used for hygiene.",
		"Visitors must sign in at the front desk.",
	}, nil)

	t.Run("terms are ANDed", func(t *testing.T) {
		results, err := store.Chunks.SearchText(ctx, []string{"hand", "hygiene"}, 0)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Greater(t, r.Score, float32(0))
			assert.Less(t, r.Score, float32(1))
			assert.Equal(t, r.Score, r.TextScore)
		}
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

		results, err = store.Chunks.SearchText(ctx, []string{"hand", "visitors"}, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unknown term", func(t *testing.T) {
		results, err := store.Chunks.SearchText(ctx, []string{"ventilator"}, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("no terms", func(t *testing.T) {
		results, err := store.Chunks.SearchText(ctx, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("limit", func(t *testing.T) {
		results, err := store.Chunks.SearchText(ctx, []string{"hygiene"}, 1)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestGetChunkRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := seedPolicy(t, store, &core.Policy{Title: "First"}, []string{"a0", "a1", "a2", "a3", "a4"}, nil)
	seedPolicy(t, store, &core.Policy{Title: "Second"}, []string{"b0", "b1"}, nil)

	tests := []struct {
		name     string
		from, to int
		expected []string
	}{
		{"middle", 1, 4, []string{"a1", "a2", "a3"}},
		{"clamped start", -3, 2, []string{"a0", "a1"}},
		{"past end", 3, 100, []string{"a3", "a4"}},
		{"empty", 2, 2, nil},
		{"inverted", 4, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := store.Chunks.GetChunkRange(ctx, first.Id, tt.from, tt.to)
			require.NoError(t, err)
			var contents []string
			for _, c := range chunks {
				contents = append(contents, c.Content)
			}
			assert.Equal(t, tt.expected, contents)
		})
	}
}

func TestGetChunk(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	policy := seedPolicy(t, store, &core.Policy{Title: "Lookup"}, []string{"zero", "one"}, [][]float32{{1, 2}, nil})

	chunks, err := store.Chunks.GetChunksForPolicy(ctx, policy.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	chunk, err := store.Chunks.GetChunk(ctx, chunks[1].Id)
	require.NoError(t, err)
	assert.Equal(t, "one", chunk.Content)
	assert.Nil(t, chunk.Embedding)

	_, err = store.Chunks.GetChunk(ctx, 424242)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateEmbeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	policy := seedPolicy(t, store, &core.Policy{Title: "Reembed"}, []string{"missing vector"}, nil)

	chunks, err := store.Chunks.GetChunksForPolicy(ctx, policy.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunks[0].Embedding = []float32{0, 1}
	require.NoError(t, store.Chunks.UpdateEmbeddings(ctx, chunks[0]))

	results, err := store.Chunks.FindSimilar(ctx, []float32{0, 1}, 0.9, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[0].Id, results[0].Chunk.Id)

	err = store.Chunks.UpdateEmbeddings(ctx, &core.PolicyChunk{Id: 999, Embedding: []float32{1}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
