package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

// RunRepository implements storage.RunRepository for BadgerDB.
type RunRepository struct {
	backend *Backend
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{
		backend: backend,
	}
}

// SaveRun records a finished run, replacing the previous one for the same base directory.
func (r *RunRepository) SaveRun(ctx context.Context, run *core.IngestionRun) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeRunKey(run.BaseDir), storage.MarshalIngestionRun(run)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadRun returns the last run recorded for baseDir, or nil if there is none.
func (r *RunRepository) LoadRun(ctx context.Context, baseDir string) (*core.IngestionRun, error) {
	var run *core.IngestionRun
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		run, err = readValue(tx, makeRunKey(baseDir), storage.UnmarshalIngestionRun)
		return err
	}, false)
	return run, err
}
