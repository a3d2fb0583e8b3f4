package badger

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

// readValue decodes the value stored at key.
// Returns nil (and no error) if the key doesn't exist.
func readValue[T any](tx *badger.Txn, key []byte, decode func([]byte) (*T, error)) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var result *T
	err = item.Value(func(val []byte) error {
		var err error
		result, err = decode(val)
		return err
	})
	return result, err
}

func readPolicy(tx *badger.Txn, id core.ID) (*core.Policy, error) {
	return readValue(tx, makePolicyKey(id), storage.UnmarshalPolicy)
}

func readPolicyID(tx *badger.Txn, title string) (core.ID, bool, error) {
	id, err := readValue(tx, makePolicyTitleKey(title), func(val []byte) (*core.ID, error) {
		id, err := storage.UnmarshalID(val)
		return &id, err
	})
	if err != nil || id == nil {
		return 0, false, err
	}
	return *id, true, nil
}

func readPolicyByTitle(tx *badger.Txn, title string) (*core.Policy, error) {
	id, ok, err := readPolicyID(tx, title)
	if err != nil || !ok {
		return nil, err
	}
	return readPolicy(tx, id)
}

// readChunkByID resolves a chunk through the chunk ID index.
func readChunkByID(tx *badger.Txn, id core.ID) (*core.PolicyChunk, error) {
	item, err := tx.Get(makeChunkIDKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var location []byte
	if location, err = item.ValueCopy(nil); err != nil {
		return nil, err
	}
	policyID, index, ok := parseChunkLocation(location)
	if !ok {
		return nil, storage.ErrSerializationFailed
	}
	return readValue(tx, makeChunkKey(policyID, index), storage.UnmarshalChunk)
}

// scanPrefix decodes every value under prefix in key order.
func scanPrefix[T any](tx *badger.Txn, prefix []byte, decode func([]byte) (*T, error)) ([]*T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var results []*T
	for iter.Rewind(); iter.Valid(); iter.Next() {
		var value *T
		err := iter.Item().Value(func(val []byte) error {
			var err error
			value, err = decode(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		if value != nil {
			results = append(results, value)
		}
	}
	return results, nil
}

func readChunksForPolicy(tx *badger.Txn, policyID core.ID) ([]*core.PolicyChunk, error) {
	return scanPrefix(tx, makePartialChunkKey(policyID), storage.UnmarshalChunk)
}

func readImagesForPolicy(tx *badger.Txn, policyID core.ID) ([]*core.Image, error) {
	return scanPrefix(tx, makePartialImageKey(policyID), storage.UnmarshalImage)
}
