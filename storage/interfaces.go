package storage

import (
	"context"

	"github.com/poiesic/policykb/core"
)

// UnitOfWork is a single read-write transaction over the knowledge store.
// Writes become visible to other readers only when the owning
// WithUnitOfWork call commits.
type UnitOfWork interface {
	// FindPolicyByTitle returns the live policy with the given title.
	// Returns ErrNotFound if the title is unknown.
	FindPolicyByTitle(title string) (*core.Policy, error)

	// CreatePolicy inserts a new policy, assigning its ID and timestamps.
	// Returns ErrDuplicateKey if the title is already taken.
	CreatePolicy(policy *core.Policy) error

	// UpdatePolicy overwrites the scalar fields and metadata of an existing policy.
	// Returns ErrNotFound if the policy doesn't exist.
	UpdatePolicy(policy *core.Policy) error

	// ReplaceChunks deletes every chunk owned by the policy, then inserts chunks.
	// Chunk IDs are assigned; indices must be 0..len(chunks)-1.
	ReplaceChunks(policyID core.ID, chunks []*core.PolicyChunk) error

	// ReplaceImages deletes every image owned by the policy, then inserts images.
	ReplaceImages(policyID core.ID, images []*core.Image) error

	// DeletePolicy removes a policy with all of its chunks and images.
	// Returns ErrNotFound if the policy doesn't exist.
	DeletePolicy(policyID core.ID) error

	// AppendUpdate appends a history entry, assigning its ID and CreatedAt.
	AppendUpdate(update *core.PolicyUpdate) error
}

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithUnitOfWork runs fn inside a read-write transaction.
	// If fn returns an error, the transaction is discarded.
	// If fn returns nil, the transaction is committed; a concurrent
	// conflicting commit surfaces as ErrConflict.
	WithUnitOfWork(ctx context.Context, fn func(uow UnitOfWork) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// PolicyRepository provides lookups and weighted search over policies.
type PolicyRepository interface {
	Repository

	// GetPolicy retrieves a single policy by ID.
	// Returns ErrNotFound if the policy doesn't exist.
	GetPolicy(ctx context.Context, id core.ID) (*core.Policy, error)

	// GetPolicies retrieves policies in the order of ids, each with its images.
	// Missing policies are omitted (no error).
	GetPolicies(ctx context.Context, ids ...core.ID) ([]*core.Policy, error)

	// FindPolicyByTitle retrieves the policy with the given title.
	// Returns ErrNotFound if no policy has that title.
	FindPolicyByTitle(ctx context.Context, title string) (*core.Policy, error)

	// ListPolicies returns every policy ordered by ID.
	ListPolicies(ctx context.Context) ([]*core.Policy, error)

	// GetImages returns the images owned by a policy ordered by filename.
	GetImages(ctx context.Context, policyID core.ID) ([]*core.Image, error)

	// SearchPolicies ranks policies containing every term, weighting
	// title matches above description matches above body matches.
	// A limit of 0 returns every match.
	SearchPolicies(ctx context.Context, terms []string, limit int) ([]*core.PolicyResult, error)
}

// ChunkRepository provides positional lookups and ranked search over chunks.
type ChunkRepository interface {
	Repository

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.PolicyChunk, error)

	// GetChunksForPolicy returns every chunk of a policy in index order.
	GetChunksForPolicy(ctx context.Context, policyID core.ID) ([]*core.PolicyChunk, error)

	// GetChunkRange returns the chunks of a policy with from <= index < to, in index order.
	GetChunkRange(ctx context.Context, policyID core.ID, from, to int) ([]*core.PolicyChunk, error)

	// FindSimilar returns chunks whose cosine similarity to vector is >= minSimilarity,
	// highest first. Chunks without embeddings are ignored.
	// A limit of 0 returns every match.
	// Returns ErrDimensionMismatch if a stored embedding differs in length from vector.
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.ChunkResult, error)

	// SearchText returns chunks containing every term, ranked by BM25 relevance
	// mapped into [0, 1). A limit of 0 returns every match.
	SearchText(ctx context.Context, terms []string, limit int) ([]*core.ChunkResult, error)

	// UpdateEmbeddings overwrites the embeddings of existing chunks.
	// Returns ErrNotFound if any chunk doesn't exist.
	UpdateEmbeddings(ctx context.Context, chunks ...*core.PolicyChunk) error
}

// HistoryRepository provides access to the append-only policy history.
type HistoryRepository interface {
	Repository

	// AppendUpdate appends and commits a single history entry.
	AppendUpdate(ctx context.Context, update *core.PolicyUpdate) (*core.PolicyUpdate, error)

	// GetHistory returns the entries recorded for a policy in append order.
	GetHistory(ctx context.Context, policyID core.ID) ([]*core.PolicyUpdate, error)

	// GetRecentHistory returns up to limit entries, newest first.
	GetRecentHistory(ctx context.Context, limit int) ([]*core.PolicyUpdate, error)
}

// RunRepository stores the outcome of ingestion runs.
type RunRepository interface {
	// SaveRun records a finished run, keyed by its base directory.
	SaveRun(ctx context.Context, run *core.IngestionRun) error

	// LoadRun returns the last run recorded for baseDir, or nil if none exists.
	LoadRun(ctx context.Context, baseDir string) (*core.IngestionRun, error)
}
