package badger

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

// unitOfWork implements storage.UnitOfWork over a single read-write transaction.
// Committing is left to Backend.WithUnitOfWork.
type unitOfWork struct {
	tx      *badger.Txn
	backend *Backend
}

var _ storage.UnitOfWork = (*unitOfWork)(nil)

func (u *unitOfWork) FindPolicyByTitle(title string) (*core.Policy, error) {
	policy, err := readPolicyByTitle(u.tx, title)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, storage.ErrNotFound
	}
	return policy, nil
}

func (u *unitOfWork) CreatePolicy(policy *core.Policy) error {
	if err := core.ValidatePolicy(policy); err != nil {
		return err
	}
	if _, exists, err := readPolicyID(u.tx, policy.Title); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: title %q", storage.ErrDuplicateKey, policy.Title)
	}

	id, err := u.backend.nextID(policyIDSeq)
	if err != nil {
		return err
	}
	policy.Id = id
	policy.CreatedAt = now()
	policy.UpdatedAt = policy.CreatedAt

	if err := u.tx.Set(makePolicyKey(policy.Id), storage.MarshalPolicy(policy)); err != nil {
		return err
	}
	if err := u.tx.Set(makePolicyTitleKey(policy.Title), storage.MarshalID(policy.Id)); err != nil {
		return err
	}
	terms, length := policyTerms(policy)
	return addPostings(u.tx, policyTermPrefix, policyStatsKey, policy.Id, terms, length)
}

func (u *unitOfWork) UpdatePolicy(policy *core.Policy) error {
	if err := core.ValidatePolicy(policy); err != nil {
		return err
	}
	old, err := readPolicy(u.tx, policy.Id)
	if err != nil {
		return err
	}
	if old == nil {
		return storage.ErrNotFound
	}

	if old.Title != policy.Title {
		if _, exists, err := readPolicyID(u.tx, policy.Title); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: title %q", storage.ErrDuplicateKey, policy.Title)
		}
		if err := u.tx.Delete(makePolicyTitleKey(old.Title)); err != nil {
			return err
		}
		if err := u.tx.Set(makePolicyTitleKey(policy.Title), storage.MarshalID(policy.Id)); err != nil {
			return err
		}
	}

	policy.CreatedAt = old.CreatedAt
	policy.UpdatedAt = now()
	if !policy.UpdatedAt.After(old.UpdatedAt) {
		policy.UpdatedAt = old.UpdatedAt.Add(time.Microsecond)
	}

	if err := u.tx.Set(makePolicyKey(policy.Id), storage.MarshalPolicy(policy)); err != nil {
		return err
	}

	oldTerms, oldLength := policyTerms(old)
	if err := removePostings(u.tx, policyTermPrefix, policyStatsKey, old.Id, oldTerms, oldLength); err != nil {
		return err
	}
	terms, length := policyTerms(policy)
	return addPostings(u.tx, policyTermPrefix, policyStatsKey, policy.Id, terms, length)
}

func (u *unitOfWork) ReplaceChunks(policyID core.ID, chunks []*core.PolicyChunk) error {
	if err := u.deleteChunks(policyID); err != nil {
		return err
	}

	for i, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
		if chunk.Index != i {
			return fmt.Errorf("%w: index %d at position %d", core.ErrInvalidChunk, chunk.Index, i)
		}

		id, err := u.backend.nextID(chunkIDSeq)
		if err != nil {
			return err
		}
		chunk.Id = id
		chunk.PolicyId = policyID

		if err := u.tx.Set(makeChunkKey(policyID, chunk.Index), storage.MarshalChunk(chunk)); err != nil {
			return err
		}
		if err := u.tx.Set(makeChunkIDKey(chunk.Id), makeChunkLocation(policyID, chunk.Index)); err != nil {
			return err
		}
		terms, length := chunkTerms(chunk)
		if err := addPostings(u.tx, chunkTermPrefix, chunkStatsKey, chunk.Id, terms, length); err != nil {
			return err
		}
	}
	return nil
}

func (u *unitOfWork) ReplaceImages(policyID core.ID, images []*core.Image) error {
	if err := u.deleteImages(policyID); err != nil {
		return err
	}
	for _, image := range images {
		image.PolicyId = policyID
		image.Id = core.ImageID(policyID, image.Filename)
		if err := u.tx.Set(makeImageKey(policyID, image.Filename), storage.MarshalImage(image)); err != nil {
			return err
		}
	}
	return nil
}

func (u *unitOfWork) DeletePolicy(policyID core.ID) error {
	policy, err := readPolicy(u.tx, policyID)
	if err != nil {
		return err
	}
	if policy == nil {
		return storage.ErrNotFound
	}

	if err := u.deleteChunks(policyID); err != nil {
		return err
	}
	if err := u.deleteImages(policyID); err != nil {
		return err
	}
	terms, length := policyTerms(policy)
	if err := removePostings(u.tx, policyTermPrefix, policyStatsKey, policyID, terms, length); err != nil {
		return err
	}
	if err := u.tx.Delete(makePolicyTitleKey(policy.Title)); err != nil {
		return err
	}
	return u.tx.Delete(makePolicyKey(policyID))
}

func (u *unitOfWork) AppendUpdate(update *core.PolicyUpdate) error {
	if err := core.ValidateUpdateAction(update.Action); err != nil {
		return err
	}
	id, err := u.backend.nextID(updateIDSeq)
	if err != nil {
		return err
	}
	update.Id = id
	update.CreatedAt = now()

	if err := u.tx.Set(makeUpdateKey(update.Id), storage.MarshalUpdate(update)); err != nil {
		return err
	}
	if update.PolicyId != nil {
		return u.tx.Set(makeUpdatePolicyKey(*update.PolicyId, update.Id), nil)
	}
	return nil
}

// deleteChunks removes every chunk of a policy along with its index entries.
func (u *unitOfWork) deleteChunks(policyID core.ID) error {
	chunks, err := readChunksForPolicy(u.tx, policyID)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		terms, length := chunkTerms(chunk)
		if err := removePostings(u.tx, chunkTermPrefix, chunkStatsKey, chunk.Id, terms, length); err != nil {
			return err
		}
		if err := u.tx.Delete(makeChunkIDKey(chunk.Id)); err != nil {
			return err
		}
		if err := u.tx.Delete(makeChunkKey(policyID, chunk.Index)); err != nil {
			return err
		}
	}
	return nil
}

func (u *unitOfWork) deleteImages(policyID core.ID) error {
	images, err := readImagesForPolicy(u.tx, policyID)
	if err != nil {
		return err
	}
	for _, image := range images {
		if err := u.tx.Delete(makeImageKey(policyID, image.Filename)); err != nil {
			return err
		}
	}
	return nil
}
