package badger

import (
	"cmp"
	"context"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

// PolicyRepository implements storage.PolicyRepository for BadgerDB.
type PolicyRepository struct {
	backend *Backend
}

var _ storage.PolicyRepository = (*PolicyRepository)(nil)

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(backend *Backend) *PolicyRepository {
	return &PolicyRepository{
		backend: backend,
	}
}

// Close releases resources. PolicyRepository has no resources to release.
func (r *PolicyRepository) Close() error {
	return nil
}

// WithUnitOfWork delegates to the backend.
func (r *PolicyRepository) WithUnitOfWork(ctx context.Context, fn func(uow storage.UnitOfWork) error) error {
	return r.backend.WithUnitOfWork(ctx, fn)
}

// GetPolicy retrieves a single policy by ID.
func (r *PolicyRepository) GetPolicy(ctx context.Context, id core.ID) (*core.Policy, error) {
	var result *core.Policy
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readPolicy(tx, id)
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

// GetPolicies retrieves policies with their images, in the order of ids.
func (r *PolicyRepository) GetPolicies(ctx context.Context, ids ...core.ID) ([]*core.Policy, error) {
	var result []*core.Policy
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			policy, err := readPolicy(tx, id)
			if err != nil {
				return err
			}
			if policy == nil {
				continue
			}
			if policy.Images, err = readImagesForPolicy(tx, id); err != nil {
				return err
			}
			result = append(result, policy)
		}
		return nil
	}, false)
	return result, err
}

// FindPolicyByTitle looks up a policy through the title index.
func (r *PolicyRepository) FindPolicyByTitle(ctx context.Context, title string) (*core.Policy, error) {
	var result *core.Policy
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readPolicyByTitle(tx, title)
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

// ListPolicies returns every policy ordered by ID.
func (r *PolicyRepository) ListPolicies(ctx context.Context) ([]*core.Policy, error) {
	var result []*core.Policy
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = scanPrefix(tx, []byte(policyPrefix), storage.UnmarshalPolicy)
		return err
	}, false)
	return result, err
}

// GetImages returns the images owned by a policy ordered by filename.
func (r *PolicyRepository) GetImages(ctx context.Context, policyID core.ID) ([]*core.Image, error) {
	var result []*core.Image
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readImagesForPolicy(tx, policyID)
		return err
	}, false)
	return result, err
}

// SearchPolicies ranks policies containing every term with BM25 over the
// field-weighted policy index.
func (r *PolicyRepository) SearchPolicies(ctx context.Context, terms []string, limit int) ([]*core.PolicyResult, error) {
	if limit < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.PolicyResult
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		scores, err := rankTerms(tx, policyTermPrefix, policyStatsKey, terms)
		if err != nil {
			return err
		}
		for id, score := range scores {
			policy, err := readPolicy(tx, id)
			if err != nil {
				return err
			}
			if policy == nil {
				continue
			}
			results = append(results, &core.PolicyResult{Policy: policy, Score: normalizeRank(score)})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.PolicyResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Policy.Id, b.Policy.Id)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
