package reembed

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
	"github.com/poiesic/policykb/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedPolicy stores a policy with n chunks; every chunk whose index is in
// missing has no embedding.
func seedPolicy(t *testing.T, store *badger.Store, title string, n int, missing ...int) []*core.PolicyChunk {
	t.Helper()
	skip := make(map[int]bool, len(missing))
	for _, i := range missing {
		skip[i] = true
	}
	chunks := make([]*core.PolicyChunk, n)
	for i := range chunks {
		chunks[i] = &core.PolicyChunk{Index: i, Content: fmt.Sprintf("%s chunk %d", title, i)}
		if !skip[i] {
			chunks[i].Embedding = []float32{1, 0, 0}
		}
	}
	err := store.Policies.WithUnitOfWork(context.Background(), func(uow storage.UnitOfWork) error {
		policy := &core.Policy{Title: title, TextContent: title}
		if err := uow.CreatePolicy(policy); err != nil {
			return err
		}
		return uow.ReplaceChunks(policy.Id, chunks)
	})
	require.NoError(t, err)
	return chunks
}

func TestChunkIterator_Batches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedPolicy(t, store, "One", 3)
	seedPolicy(t, store, "Two", 4)

	it := NewChunkIterator(store.Policies, store.Chunks, 3, false)

	policies, chunks, err := it.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, policies)
	assert.Equal(t, 7, chunks)

	var sizes []int
	var contents []string
	err = it.ForEach(ctx, func(batch []*core.PolicyChunk) error {
		sizes = append(sizes, len(batch))
		for _, c := range batch {
			contents = append(contents, c.Content)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Equal(t, "One chunk 0", contents[0])
	assert.Equal(t, "Two chunk 3", contents[6])
}

func TestChunkIterator_OnlyMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedPolicy(t, store, "One", 3, 1)
	seedPolicy(t, store, "Two", 2)
	seedPolicy(t, store, "Three", 2, 0, 1)

	it := NewChunkIterator(store.Policies, store.Chunks, 10, true)
	policies, chunks, err := it.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, policies)
	assert.Equal(t, 3, chunks)

	var contents []string
	require.NoError(t, it.ForEach(ctx, func(batch []*core.PolicyChunk) error {
		for _, c := range batch {
			contents = append(contents, c.Content)
		}
		return nil
	}))
	assert.Equal(t, []string{"One chunk 1", "Three chunk 0", "Three chunk 1"}, contents)
}

func TestChunkIterator_Empty(t *testing.T) {
	store := newTestStore(t)
	it := NewChunkIterator(store.Policies, store.Chunks, 0, false)
	assert.Equal(t, DefaultBatchSize, it.batchSize)

	called := false
	require.NoError(t, it.ForEach(context.Background(), func([]*core.PolicyChunk) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

func TestChunkIterator_StopsOnError(t *testing.T) {
	store := newTestStore(t)
	seedPolicy(t, store, "One", 5)

	it := NewChunkIterator(store.Policies, store.Chunks, 2, false)
	boom := fmt.Errorf("boom")
	calls := 0
	err := it.ForEach(context.Background(), func([]*core.PolicyChunk) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestChunkIterator_Cancelled(t *testing.T) {
	store := newTestStore(t)
	seedPolicy(t, store, "One", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewChunkIterator(store.Policies, store.Chunks, 2, false).ForEach(ctx, func([]*core.PolicyChunk) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
