// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package policykb

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/policykb/ai"
	"github.com/poiesic/policykb/ai/openai"
	"github.com/poiesic/policykb/config"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/ingestion"
	"github.com/poiesic/policykb/metrics"
	"github.com/poiesic/policykb/reembed"
	"github.com/poiesic/policykb/search"
	"github.com/poiesic/policykb/storage"
	"github.com/poiesic/policykb/storage/badger"
)

// KnowledgeBase ties the store, the embedding provider and the configuration together.
type KnowledgeBase struct {
	store    *badger.Store
	provider ai.AIProvider
	config   *config.Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a KnowledgeBase.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// WithProvider replaces the OpenAI-compatible provider built from the configuration.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithMetrics passes m to every ingester and searcher the KnowledgeBase creates.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open opens the store described by cfg. Failing to open the store is the
// only fatal ingestion error; everything downstream reports per item.
func Open(cfg *config.Config, opts ...Option) (*KnowledgeBase, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Apply options
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	var (
		store *badger.Store
		err   error
	)
	if cfg.Store.InMemory {
		store, err = badger.NewMemoryStore()
	} else {
		store, err = badger.NewStore(cfg.Store.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider := o.provider
	if provider == nil {
		provider, err = openai.NewProvider(cfg.EmbeddingConfig())
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	return &KnowledgeBase{
		store:    store,
		provider: provider,
		config:   cfg,
		metrics:  o.metrics,
		logger:   o.logger.With("component", "knowledge-base"),
	}, nil
}

// Close closes the AI provider and the store.
func (kb *KnowledgeBase) Close() error {
	// Close AI provider first
	if err := kb.provider.Close(); err != nil {
		kb.logger.Error("error closing AI provider", "err", err)
	}

	if err := kb.store.Close(); err != nil {
		kb.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Store returns the underlying store.
func (kb *KnowledgeBase) Store() *badger.Store {
	return kb.store
}

// Provider returns the AI provider used for chunking and embedding.
func (kb *KnowledgeBase) Provider() ai.AIProvider {
	return kb.provider
}

// Config returns the configuration the KnowledgeBase was opened with.
func (kb *KnowledgeBase) Config() *config.Config {
	return kb.config
}

// NewIngester creates an ingester using the configured chunking and image pattern.
// opts are applied after the configured ones.
func (kb *KnowledgeBase) NewIngester(opts ...ingestion.Option) (*ingestion.Ingester, error) {
	cfg := kb.config.Ingestion
	base := []ingestion.Option{
		ingestion.WithLogger(kb.logger),
		ingestion.WithChunking(cfg.ChunkSize, cfg.ChunkOverlap),
		ingestion.WithMetrics(kb.metrics),
	}
	if cfg.ImagePattern != "" {
		base = append(base, ingestion.WithImagePattern(cfg.ImagePattern))
	}
	return ingestion.NewIngester(kb.store.Policies, kb.store.Runs, kb.provider, append(base, opts...)...)
}

// Ingest runs one ingestion batch over baseDir, appending to the configured
// audit log if there is one.
func (kb *KnowledgeBase) Ingest(ctx context.Context, baseDir string) (*ingestion.Summary, error) {
	var opts []ingestion.Option
	if path := kb.config.Ingestion.AuditLog; path != "" {
		audit, err := ingestion.OpenAuditLog(path)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		defer func() {
			if err := audit.Close(); err != nil {
				kb.logger.Error("error closing audit log", "path", path, "err", err)
			}
		}()
		opts = append(opts, ingestion.WithAuditLog(audit))
	}

	ingester, err := kb.NewIngester(opts...)
	if err != nil {
		return nil, err
	}
	return ingester.Run(ctx, baseDir)
}

// NewSearcher creates a searcher using the configured retrieval defaults.
// Call Close on the searcher when done.
func (kb *KnowledgeBase) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	cfg := kb.config.Retrieval
	base := []search.Option{
		search.WithLogger(kb.logger),
		search.WithMetrics(kb.metrics),
		search.WithDefaultThreshold(cfg.SimilarityThreshold),
		search.WithDefaultVectorWeight(cfg.VectorWeight),
		search.WithDimension(cfg.Dimension),
	}
	return search.NewSearcher(kb.store.Policies, kb.store.Chunks, kb.provider, append(base, opts...)...)
}

// NewReembedder creates a reembedder over every stored chunk.
func (kb *KnowledgeBase) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(kb.store.Policies, kb.store.Chunks, kb.provider.Embedder(), cfg, progress, kb.logger)
}

// DeletePolicy removes a policy with its chunks and images.
//
// A delete entry is committed to the history before the policy is touched.
// If the delete then fails, a delete_failed entry follows and the error is
// returned. adminID may be nil for automated deletes.
func (kb *KnowledgeBase) DeletePolicy(ctx context.Context, id core.ID, adminID *core.ID) error {
	policy, err := kb.store.Policies.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	return kb.deletePolicy(ctx, kb.store.Policies, policy, adminID)
}

func (kb *KnowledgeBase) deletePolicy(ctx context.Context, repo storage.Repository, policy *core.Policy, adminID *core.ID) error {
	id := policy.Id
	if _, err := kb.store.History.AppendUpdate(ctx, &core.PolicyUpdate{
		PolicyId: &id,
		AdminId:  adminID,
		Action:   core.UpdateActionDelete,
		Details:  fmt.Sprintf("delete %q", policy.Title),
	}); err != nil {
		return fmt.Errorf("record delete of policy %d: %w", id, err)
	}

	err := repo.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		return uow.DeletePolicy(id)
	})
	if err == nil {
		kb.logger.Info("deleted policy", "id", id, "title", policy.Title)
		return nil
	}

	kb.logger.Error("error deleting policy", "id", id, "title", policy.Title, "err", err)
	if _, logErr := kb.store.History.AppendUpdate(context.WithoutCancel(ctx), &core.PolicyUpdate{
		PolicyId: &id,
		AdminId:  adminID,
		Action:   core.UpdateActionDeleteFailed,
		Details:  fmt.Sprintf("delete %q failed: %v", policy.Title, err),
	}); logErr != nil {
		kb.logger.Error("error recording failed delete", "id", id, "err", logErr)
	}
	return fmt.Errorf("delete policy %d: %w", id, err)
}

// GetPolicy returns the policy with the given ID, with its images.
func (kb *KnowledgeBase) GetPolicy(ctx context.Context, id core.ID) (*core.Policy, error) {
	policy, err := kb.store.Policies.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if policy.Images, err = kb.store.Policies.GetImages(ctx, id); err != nil {
		return nil, err
	}
	return policy, nil
}

// GetPolicyByTitle returns the live policy with the given title.
func (kb *KnowledgeBase) GetPolicyByTitle(ctx context.Context, title string) (*core.Policy, error) {
	return kb.store.Policies.FindPolicyByTitle(ctx, title)
}

// ListPolicies returns every policy ordered by ID.
func (kb *KnowledgeBase) ListPolicies(ctx context.Context) ([]*core.Policy, error) {
	return kb.store.Policies.ListPolicies(ctx)
}

// GetChunk returns a single chunk.
func (kb *KnowledgeBase) GetChunk(ctx context.Context, id core.ID) (*core.PolicyChunk, error) {
	return kb.store.Chunks.GetChunk(ctx, id)
}

// ChunksForPolicy returns the chunks of a policy in index order.
func (kb *KnowledgeBase) ChunksForPolicy(ctx context.Context, policyID core.ID) ([]*core.PolicyChunk, error) {
	return kb.store.Chunks.GetChunksForPolicy(ctx, policyID)
}

// History returns the entries recorded for a policy in append order.
// Entries outlive the policy they describe.
func (kb *KnowledgeBase) History(ctx context.Context, policyID core.ID) ([]*core.PolicyUpdate, error) {
	return kb.store.History.GetHistory(ctx, policyID)
}

// RecentHistory returns up to limit entries across all policies, newest first.
func (kb *KnowledgeBase) RecentHistory(ctx context.Context, limit int) ([]*core.PolicyUpdate, error) {
	return kb.store.History.GetRecentHistory(ctx, limit)
}

// LastRun returns the last ingestion run recorded for baseDir, or nil.
func (kb *KnowledgeBase) LastRun(ctx context.Context, baseDir string) (*core.IngestionRun, error) {
	return kb.store.Runs.LoadRun(ctx, baseDir)
}
