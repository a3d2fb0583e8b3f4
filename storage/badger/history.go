package badger

import (
	"context"
	"encoding/binary"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

// HistoryRepository implements storage.HistoryRepository for BadgerDB.
type HistoryRepository struct {
	backend *Backend
}

var _ storage.HistoryRepository = (*HistoryRepository)(nil)

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(backend *Backend) *HistoryRepository {
	return &HistoryRepository{
		backend: backend,
	}
}

// Close releases resources. HistoryRepository has no resources to release.
func (r *HistoryRepository) Close() error {
	return nil
}

// WithUnitOfWork delegates to the backend.
func (r *HistoryRepository) WithUnitOfWork(ctx context.Context, fn func(uow storage.UnitOfWork) error) error {
	return r.backend.WithUnitOfWork(ctx, fn)
}

// AppendUpdate appends a single entry in its own committed transaction.
func (r *HistoryRepository) AppendUpdate(ctx context.Context, update *core.PolicyUpdate) (*core.PolicyUpdate, error) {
	err := r.backend.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		return uow.AppendUpdate(update)
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// GetHistory returns the entries recorded for a policy in append order.
func (r *HistoryRepository) GetHistory(ctx context.Context, policyID core.ID) ([]*core.PolicyUpdate, error) {
	var results []*core.PolicyUpdate
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialUpdatePolicyKey(policyID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		var ids []core.ID
		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			ids = append(ids, core.ID(binary.BigEndian.Uint64(key[len(key)-8:])))
		}

		for _, id := range ids {
			update, err := readValue(tx, makeUpdateKey(id), storage.UnmarshalUpdate)
			if err != nil {
				return err
			}
			if update != nil {
				results = append(results, update)
			}
		}
		return nil
	}, false)
	return results, err
}

// GetRecentHistory returns up to limit entries, newest first.
func (r *HistoryRepository) GetRecentHistory(ctx context.Context, limit int) ([]*core.PolicyUpdate, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.PolicyUpdate
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Use reverse iterator to get most recent entries first
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(updatePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		startKey := makeUpdateKey(core.ID(^uint64(0)))
		for iter.Seek(startKey); iter.Valid() && len(results) < limit; iter.Next() {
			var update *core.PolicyUpdate
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				update, err = storage.UnmarshalUpdate(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, update)
		}
		return nil
	}, false)
	return results, err
}
