package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

const (
	defaultSequenceBandwidth = 100
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db        *badger.DB
	logger    *slog.Logger
	mu        sync.Mutex
	sequences map[string]*badger.Sequence
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(filePath, 0755); err != nil {
				return nil, err
			}
			if info, err = os.Stat(filePath); err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:        db,
		logger:    logger,
		sequences: make(map[string]*badger.Sequence),
	}, nil
}

// Close releases the ID sequences and closes the BadgerDB database.
func (b *Backend) Close() error {
	b.mu.Lock()
	var errs []error
	for name, seq := range b.sequences {
		if err := seq.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release sequence %s: %w", name, err))
		}
	}
	b.sequences = nil
	b.mu.Unlock()

	if err := b.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// GetSequence returns the BadgerDB sequence with the given name, leasing it on first use.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sequences == nil {
		return nil, storage.ErrStorageClosed
	}
	if seq, ok := b.sequences[name]; ok {
		return seq, nil
	}
	seq, err := b.db.GetSequence([]byte(name), defaultSequenceBandwidth)
	if err != nil {
		return nil, err
	}
	b.sequences[name] = seq
	return seq, nil
}

// nextID draws the next non-zero ID from a named sequence.
func (b *Backend) nextID(name string) (core.ID, error) {
	seq, err := b.GetSequence(name)
	if err != nil {
		return 0, err
	}
	next, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences return 0 on first call, so we skip it
	if next == 0 {
		if next, err = seq.Next(); err != nil {
			return 0, err
		}
	}
	return core.ID(next), nil
}

// WithUnitOfWork runs fn inside a read-write transaction and commits it if fn succeeds.
// Implements storage.Repository.
func (b *Backend) WithUnitOfWork(ctx context.Context, fn func(uow storage.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.WithTx(func(tx *badger.Txn) error {
		if err := fn(&unitOfWork{tx: tx, backend: b}); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			if errors.Is(err, badger.ErrConflict) {
				return fmt.Errorf("%w: %w", storage.ErrConflict, err)
			}
			return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
		}
		return nil
	}, true)
}

// now returns the current UTC time at the precision records are stored with.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
