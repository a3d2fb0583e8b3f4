package badger

import (
	"context"
	"testing"

	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_CreatePolicy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	policy := &core.Policy{
		Title:       "Hand Hygiene",
		Description: "Washing requirements",
		TextContent: "Wash hands before patient contact.",
		Metadata:    core.PolicyMetadata{ScrapeTimestamp: "20250101000000000000", SourceFolder: "Hand_Hygiene_20250101000000000000"},
	}
	err := store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		return uow.CreatePolicy(policy)
	})
	require.NoError(t, err)

	assert.NotZero(t, policy.Id)
	assert.False(t, policy.CreatedAt.IsZero())
	assert.Equal(t, policy.CreatedAt, policy.UpdatedAt)

	stored, err := store.Policies.GetPolicy(ctx, policy.Id)
	require.NoError(t, err)
	assert.Equal(t, policy.Title, stored.Title)
	assert.Equal(t, policy.Metadata, stored.Metadata)
	assert.True(t, policy.CreatedAt.Equal(stored.CreatedAt))
}

func TestUnitOfWork_CreatePolicy_Invalid(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name   string
		policy *core.Policy
	}{
		{"blank title", &core.Policy{Title: "  "}},
		{"bad timestamp", &core.Policy{Title: "T", Metadata: core.PolicyMetadata{ScrapeTimestamp: "2025"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.backend.WithUnitOfWork(context.Background(), func(uow storage.UnitOfWork) error {
				return uow.CreatePolicy(tt.policy)
			})
			assert.ErrorIs(t, err, core.ErrInvalidPolicy)
		})
	}
}

func TestUnitOfWork_CreatePolicy_DuplicateTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedPolicy(t, store, &core.Policy{Title: "Visitors"}, nil, nil)

	err := store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		return uow.CreatePolicy(&core.Policy{Title: "Visitors"})
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestUnitOfWork_UpdatePolicy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	policy := seedPolicy(t, store, &core.Policy{Title: "Old Title", TextContent: "alpha"}, nil, nil)
	created := policy.CreatedAt

	updated := *policy
	updated.Title = "New Title"
	updated.TextContent = "beta"
	updated.Metadata.ScrapeTimestamp = "20250202000000000000"
	err := store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		return uow.UpdatePolicy(&updated)
	})
	require.NoError(t, err)

	assert.True(t, updated.CreatedAt.Equal(created))
	assert.True(t, updated.UpdatedAt.After(policy.UpdatedAt))

	_, err = store.Policies.FindPolicyByTitle(ctx, "Old Title")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	stored, err := store.Policies.FindPolicyByTitle(ctx, "New Title")
	require.NoError(t, err)
	assert.Equal(t, policy.Id, stored.Id)
	assert.Equal(t, core.ScrapeTimestamp("20250202000000000000"), stored.Metadata.ScrapeTimestamp)

	// The policy index follows the new text
	results, err := store.Policies.SearchPolicies(ctx, []string{"alpha"}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	results, err = store.Policies.SearchPolicies(ctx, []string{"beta"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, policy.Id, results[0].Policy.Id)
}

func TestUnitOfWork_UpdatePolicy_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedPolicy(t, store, &core.Policy{Title: "First"}, nil, nil)
	second := seedPolicy(t, store, &core.Policy{Title: "Second"}, nil, nil)

	t.Run("not found", func(t *testing.T) {
		err := store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
			return uow.UpdatePolicy(&core.Policy{Id: 9999, Title: "Ghost"})
		})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("title taken", func(t *testing.T) {
		renamed := *second
		renamed.Title = "First"
		err := store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
			return uow.UpdatePolicy(&renamed)
		})
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})
}

func TestUnitOfWork_ReplaceChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	policy := seedPolicy(t, store, &core.Policy{Title: "Chunks"},
		[]string{"old zero", "old one", "old two"}, nil)

	oldChunks, err := store.Chunks.GetChunksForPolicy(ctx, policy.Id)
	require.NoError(t, err)
	require.Len(t, oldChunks, 3)

	err = store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		return uow.ReplaceChunks(policy.Id, []*core.PolicyChunk{
			{Index: 0, Content: "new zero"},
			{Index: 1, Content: "new one"},
		})
	})
	require.NoError(t, err)

	chunks, err := store.Chunks.GetChunksForPolicy(ctx, policy.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "new zero", chunks[0].Content)
	assert.Equal(t, "new one", chunks[1].Content)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, policy.Id, chunk.PolicyId)
	}

	// Old chunks are gone from every index
	for _, old := range oldChunks {
		_, err := store.Chunks.GetChunk(ctx, old.Id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
	results, err := store.Chunks.SearchText(ctx, []string{"old"}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUnitOfWork_ReplaceChunks_NonContiguous(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	policy := seedPolicy(t, store, &core.Policy{Title: "Gaps"}, []string{"kept"}, nil)

	err := store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		return uow.ReplaceChunks(policy.Id, []*core.PolicyChunk{
			{Index: 0, Content: "zero"},
			{Index: 2, Content: "two"},
		})
	})
	assert.ErrorIs(t, err, core.ErrInvalidChunk)

	// Rolled back: the original chunk survives
	chunks, err := store.Chunks.GetChunksForPolicy(ctx, policy.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "kept", chunks[0].Content)
}

func TestUnitOfWork_ReplaceImages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	policy := seedPolicy(t, store, &core.Policy{Title: "Images"}, nil, nil)

	replace := func(names ...string) {
		images := make([]*core.Image, len(names))
		for i, name := range names {
			images[i] = &core.Image{Filename: name, RelativePath: "folder/" + name}
		}
		err := store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
			return uow.ReplaceImages(policy.Id, images)
		})
		require.NoError(t, err)
	}

	replace("b.png", "a.png")
	images, err := store.Policies.GetImages(ctx, policy.Id)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "a.png", images[0].Filename)
	assert.Equal(t, core.ImageID(policy.Id, "a.png"), images[0].Id)

	replace("c.gif")
	images, err = store.Policies.GetImages(ctx, policy.Id)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "c.gif", images[0].Filename)
	assert.Equal(t, "folder/c.gif", images[0].RelativePath)
}

func TestUnitOfWork_DeletePolicy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	policy := seedPolicy(t, store, &core.Policy{Title: "Doomed", TextContent: "ephemeral"},
		[]string{"ephemeral chunk"}, [][]float32{{1, 0}})
	other := seedPolicy(t, store, &core.Policy{Title: "Survivor"}, []string{"lasting chunk"}, [][]float32{{1, 0}})

	err := store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		if err := uow.ReplaceImages(policy.Id, []*core.Image{{Filename: "x.png"}}); err != nil {
			return err
		}
		return uow.DeletePolicy(policy.Id)
	})
	require.NoError(t, err)

	_, err = store.Policies.GetPolicy(ctx, policy.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Policies.FindPolicyByTitle(ctx, "Doomed")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	chunks, err := store.Chunks.GetChunksForPolicy(ctx, policy.Id)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	images, err := store.Policies.GetImages(ctx, policy.Id)
	require.NoError(t, err)
	assert.Empty(t, images)

	results, err := store.Chunks.FindSimilar(ctx, []float32{1, 0}, 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, other.Id, results[0].Chunk.PolicyId)

	policies, err := store.Policies.SearchPolicies(ctx, []string{"ephemeral"}, 0)
	require.NoError(t, err)
	assert.Empty(t, policies)

	err = store.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		return uow.DeletePolicy(policy.Id)
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
