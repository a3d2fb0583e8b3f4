package reembed

import (
	"context"

	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

const (
	// DefaultBatchSize is the default number of chunks embedded per request
	DefaultBatchSize = 100
)

// ChunkIterator walks the chunks of every stored policy in batches.
// Policies are visited in ID order and chunks in index order; a batch may
// hold chunks of several policies.
type ChunkIterator struct {
	policies    storage.PolicyRepository
	chunks      storage.ChunkRepository
	batchSize   int
	onlyMissing bool
}

// NewChunkIterator creates a new chunk iterator.
// When onlyMissing is set, chunks that already have an embedding are skipped.
func NewChunkIterator(policies storage.PolicyRepository, chunks storage.ChunkRepository, batchSize int, onlyMissing bool) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		policies:    policies,
		chunks:      chunks,
		batchSize:   batchSize,
		onlyMissing: onlyMissing,
	}
}

// Count returns the number of policies and chunks ForEach would visit.
func (it *ChunkIterator) Count(ctx context.Context) (policies, chunks int, err error) {
	err = it.walk(ctx, func(_ *core.Policy, selected []*core.PolicyChunk) error {
		if len(selected) > 0 {
			policies++
			chunks += len(selected)
		}
		return nil
	})
	return policies, chunks, err
}

// ForEach calls fn with successive batches of at most batchSize chunks.
// Each batch is a fresh slice that fn may keep.
// Iteration stops on the first error from fn or when ctx is cancelled.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.PolicyChunk) error) error {
	batch := make([]*core.PolicyChunk, 0, it.batchSize)
	err := it.walk(ctx, func(_ *core.Policy, selected []*core.PolicyChunk) error {
		for _, chunk := range selected {
			batch = append(batch, chunk)
			if len(batch) == it.batchSize {
				if err := fn(batch); err != nil {
					return err
				}
				batch = make([]*core.PolicyChunk, 0, it.batchSize)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

func (it *ChunkIterator) walk(ctx context.Context, fn func(*core.Policy, []*core.PolicyChunk) error) error {
	policies, err := it.policies.ListPolicies(ctx)
	if err != nil {
		return err
	}

	for _, policy := range policies {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunks, err := it.chunks.GetChunksForPolicy(ctx, policy.Id)
		if err != nil {
			return err
		}
		if it.onlyMissing {
			missing := chunks[:0]
			for _, chunk := range chunks {
				if len(chunk.Embedding) == 0 {
					missing = append(missing, chunk)
				}
			}
			chunks = missing
		}
		if err := fn(policy, chunks); err != nil {
			return err
		}
	}
	return nil
}
