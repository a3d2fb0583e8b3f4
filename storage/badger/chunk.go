package badger

import (
	"cmp"
	"context"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{
		backend: backend,
	}
}

// Close releases resources. ChunkRepository has no resources to release.
func (r *ChunkRepository) Close() error {
	return nil
}

// WithUnitOfWork delegates to the backend.
func (r *ChunkRepository) WithUnitOfWork(ctx context.Context, fn func(uow storage.UnitOfWork) error) error {
	return r.backend.WithUnitOfWork(ctx, fn)
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.PolicyChunk, error) {
	var result *core.PolicyChunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunkByID(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetChunksForPolicy returns every chunk of a policy in index order.
func (r *ChunkRepository) GetChunksForPolicy(ctx context.Context, policyID core.ID) ([]*core.PolicyChunk, error) {
	var result []*core.PolicyChunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunksForPolicy(tx, policyID)
		return err
	}, false)
	return result, err
}

// GetChunkRange returns the chunks of a policy with from <= index < to.
// Keys are ordered by index, so this is a bounded forward scan.
func (r *ChunkRepository) GetChunkRange(ctx context.Context, policyID core.ID, from, to int) ([]*core.PolicyChunk, error) {
	if from < 0 {
		from = 0
	}
	if to <= from {
		return nil, nil
	}

	var result []*core.PolicyChunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(policyID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		end := makeChunkKey(policyID, to)
		for iter.Seek(makeChunkKey(policyID, from)); iter.Valid(); iter.Next() {
			item := iter.Item()
			if slices.Compare(item.Key(), end) >= 0 {
				break
			}
			var chunk *core.PolicyChunk
			if err := item.Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			}); err != nil {
				return err
			}
			result = append(result, chunk)
		}
		return nil
	}, false)
	return result, err
}

// FindSimilar scans every embedded chunk and ranks it by cosine similarity.
func (r *ChunkRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkResult, error) {
	if limit < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.ChunkResult
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var chunk *core.PolicyChunk
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			}); err != nil {
				return err
			}

			// Skip chunks whose embedding failed
			if len(chunk.Embedding) == 0 {
				continue
			}

			similarity, ok, err := cosineSimilarity(vector, chunk.Embedding)
			if err != nil {
				return err
			}
			// NaN similarities fail the comparison and are dropped
			if !ok || !(similarity >= minSimilarity) {
				continue
			}
			results = append(results, &core.ChunkResult{
				Chunk:       chunk,
				Score:       similarity,
				VectorScore: similarity,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sortChunkResults(results)
	return capResults(results, limit), nil
}

// SearchText ranks chunks containing every term with BM25.
func (r *ChunkRepository) SearchText(ctx context.Context, terms []string, limit int) ([]*core.ChunkResult, error) {
	if limit < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.ChunkResult
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		scores, err := rankTerms(tx, chunkTermPrefix, chunkStatsKey, terms)
		if err != nil {
			return err
		}
		for id, score := range scores {
			chunk, err := readChunkByID(tx, id)
			if err != nil {
				return err
			}
			if chunk == nil {
				continue
			}
			rank := normalizeRank(score)
			results = append(results, &core.ChunkResult{
				Chunk:     chunk,
				Score:     rank,
				TextScore: rank,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sortChunkResults(results)
	return capResults(results, limit), nil
}

// UpdateEmbeddings overwrites the embeddings of existing chunks.
func (r *ChunkRepository) UpdateEmbeddings(ctx context.Context, chunks ...*core.PolicyChunk) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			stored, err := readChunkByID(tx, chunk.Id)
			if err != nil {
				return err
			}
			if stored == nil {
				return storage.ErrNotFound
			}
			stored.Embedding = chunk.Embedding
			if err := tx.Set(makeChunkKey(stored.PolicyId, stored.Index), storage.MarshalChunk(stored)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// sortChunkResults orders by score descending, breaking ties by ascending chunk ID.
func sortChunkResults(results []*core.ChunkResult) {
	slices.SortFunc(results, func(a, b *core.ChunkResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Id, b.Chunk.Id)
	})
}

func capResults[T any](results []T, limit int) []T {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
