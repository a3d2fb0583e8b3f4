package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/policykb/ai"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/metrics"
	"github.com/poiesic/policykb/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Defaults used when no option overrides them.
const (
	DefaultThreshold    float32 = 0.6
	DefaultVectorWeight float32 = 0.7
)

const tracerName = "github.com/poiesic/policykb/search"

// Operation kinds, used as metric labels and span names.
const (
	kindFullText  = "fulltext"
	kindVector    = "vector"
	kindHybrid    = "hybrid"
	kindNeighbors = "neighbors"
	kindFanOut    = "fanout"
	kindPolicies  = "policies"
)

// Searcher provides full-text, vector and hybrid retrieval over policy chunks.
// It is safe for concurrent use.
type Searcher struct {
	policies     storage.PolicyRepository
	chunks       storage.ChunkRepository
	embedder     ai.Embedder
	pool         *ants.Pool
	threshold    float32
	vectorWeight float32
	dimension    int
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	logger       *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics records request counts, latencies and result sizes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) error {
		s.metrics = m
		return nil
	}
}

// WithPoolSize sets the number of workers running the legs of hybrid searches.
// Default is runtime.NumCPU(), at least 2.
func WithPoolSize(size int) Option {
	return func(s *Searcher) error {
		if size < 1 {
			return fmt.Errorf("pool size must be positive, got %d", size)
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithDefaultThreshold sets the similarity threshold used when a query does not supply one.
func WithDefaultThreshold(threshold float32) Option {
	return func(s *Searcher) error {
		if err := validateThreshold(threshold); err != nil {
			return err
		}
		s.threshold = threshold
		return nil
	}
}

// WithDefaultVectorWeight sets the hybrid vector weight used when a query does not supply one.
func WithDefaultVectorWeight(weight float32) Option {
	return func(s *Searcher) error {
		if err := validateWeight(weight); err != nil {
			return err
		}
		s.vectorWeight = weight
		return nil
	}
}

// WithDimension requires query embeddings to have exactly dim components.
// Zero disables the check; mismatches against stored vectors still fail in the store.
func WithDimension(dim int) Option {
	return func(s *Searcher) error {
		if dim < 0 {
			return fmt.Errorf("dimension cannot be negative, got %d", dim)
		}
		s.dimension = dim
		return nil
	}
}

// NewSearcher creates a new searcher.
// Call Close to release its worker pool.
func NewSearcher(
	policies storage.PolicyRepository,
	chunks storage.ChunkRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Searcher, error) {
	if policies == nil {
		return nil, ErrPolicyRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		policies:     policies,
		chunks:       chunks,
		embedder:     provider.Embedder(),
		threshold:    DefaultThreshold,
		vectorWeight: DefaultVectorWeight,
		tracer:       otel.Tracer(tracerName),
		logger:       slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Close()
			return nil, err
		}
	}

	if s.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU(), 2))
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Close releases the worker pool.
func (s *Searcher) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// QueryOption overrides a Searcher default for a single query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	threshold    float32
	vectorWeight float32
}

// Threshold sets the minimum cosine similarity of vector candidates.
func Threshold(threshold float32) QueryOption {
	return func(o *queryOptions) {
		o.threshold = threshold
	}
}

// VectorWeight sets the weight w of the vector signal in hybrid scores.
func VectorWeight(weight float32) QueryOption {
	return func(o *queryOptions) {
		o.vectorWeight = weight
	}
}

func (s *Searcher) queryOptions(opts []QueryOption) (queryOptions, error) {
	o := queryOptions{threshold: s.threshold, vectorWeight: s.vectorWeight}
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateThreshold(o.threshold); err != nil {
		return o, err
	}
	if err := validateWeight(o.vectorWeight); err != nil {
		return o, err
	}
	return o, nil
}

// FullText returns up to limit chunks containing every query term, best first.
// A query with no indexable terms matches nothing. A limit of 0 returns every match.
func (s *Searcher) FullText(ctx context.Context, query string, limit int) (results []*core.ChunkResult, err error) {
	ctx, done := s.observe(ctx, kindFullText)
	defer func() { done(len(results), err) }()

	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	terms := core.UniqueTerms(query)
	if len(terms) == 0 {
		return []*core.ChunkResult{}, nil
	}

	results, err = s.chunks.SearchText(ctx, terms, limit)
	if err != nil {
		s.logger.Error("error searching chunk text", "terms", terms, "err", err)
		return nil, err
	}
	return results, nil
}

// Vector returns up to limit chunks whose cosine similarity to embedding
// is at least the threshold, best first.
func (s *Searcher) Vector(ctx context.Context, embedding []float32, limit int, opts ...QueryOption) (results []*core.ChunkResult, err error) {
	ctx, done := s.observe(ctx, kindVector)
	defer func() { done(len(results), err) }()

	q, err := s.queryOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	if err := s.validateEmbedding(embedding); err != nil {
		return nil, err
	}

	results, err = s.chunks.FindSimilar(ctx, embedding, q.threshold, limit)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	return results, nil
}

// Hybrid blends vector and full-text relevance.
// Candidates are the union of the threshold-filtered vector matches and the
// full-text matches; a signal a candidate lacks scores 0. Each result's Score
// is w*VectorScore + (1-w)*TextScore.
func (s *Searcher) Hybrid(ctx context.Context, query string, embedding []float32, limit int, opts ...QueryOption) ([]*core.ChunkResult, error) {
	return s.HybridWithMonitor(ctx, query, embedding, limit, nil, opts...)
}

// HybridWithMonitor runs Hybrid, reporting each stage to monitor.
func (s *Searcher) HybridWithMonitor(
	ctx context.Context,
	query string,
	embedding []float32,
	limit int,
	monitor SearchMonitor,
	opts ...QueryOption,
) (results []*core.ChunkResult, err error) {
	ctx, done := s.observe(ctx, kindHybrid)
	defer func() { done(len(results), err) }()

	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	q, err := s.queryOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	if err := s.validateEmbedding(embedding); err != nil {
		return nil, err
	}

	monitor.Start(query)
	terms := core.UniqueTerms(query)

	// Both legs are uncapped; the limit applies to the blended ranking.
	var (
		wg                         sync.WaitGroup
		vectorResults, textResults []*core.ChunkResult
		vectorErr, textErr         error
	)
	wg.Add(2)
	if err := s.pool.Submit(func() {
		defer wg.Done()
		vectorResults, vectorErr = s.chunks.FindSimilar(ctx, embedding, q.threshold, 0)
	}); err != nil {
		wg.Done()
		vectorErr = err
	}
	if err := s.pool.Submit(func() {
		defer wg.Done()
		if len(terms) > 0 {
			textResults, textErr = s.chunks.SearchText(ctx, terms, 0)
		}
	}); err != nil {
		wg.Done()
		textErr = err
	}
	wg.Wait()

	if err := errors.Join(vectorErr, textErr); err != nil {
		s.logger.Error("error running hybrid search", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(vectorResults)
	monitor.AfterTextSearch(terms, textResults)

	results = blend(vectorResults, textResults, q.vectorWeight)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	monitor.Finish(results)

	return results, nil
}

// HybridText embeds query with the configured Embedder and runs Hybrid.
func (s *Searcher) HybridText(ctx context.Context, query string, limit int, opts ...QueryOption) ([]*core.ChunkResult, error) {
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	return s.Hybrid(ctx, query, embedding, limit, opts...)
}

// VectorText embeds query with the configured Embedder and runs Vector.
func (s *Searcher) VectorText(ctx context.Context, query string, limit int, opts ...QueryOption) ([]*core.ChunkResult, error) {
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	return s.Vector(ctx, embedding, limit, opts...)
}

// blend merges the two candidate lists by chunk ID and ranks the union.
func blend(vectorResults, textResults []*core.ChunkResult, weight float32) []*core.ChunkResult {
	merged := make(map[core.ID]*core.ChunkResult, len(vectorResults)+len(textResults))
	for _, r := range vectorResults {
		merged[r.Chunk.Id] = &core.ChunkResult{Chunk: r.Chunk, VectorScore: r.VectorScore}
	}
	for _, r := range textResults {
		if existing, ok := merged[r.Chunk.Id]; ok {
			existing.TextScore = r.TextScore
			continue
		}
		merged[r.Chunk.Id] = &core.ChunkResult{Chunk: r.Chunk, TextScore: r.TextScore}
	}

	results := make([]*core.ChunkResult, 0, len(merged))
	for _, r := range merged {
		r.Score = weight*r.VectorScore + (1-weight)*r.TextScore
		results = append(results, r)
	}
	slices.SortFunc(results, func(a, b *core.ChunkResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Id, b.Chunk.Id)
	})
	return results
}

// Neighbors returns up to window chunks on each side of chunkID within its policy.
// An unknown chunk yields empty sides.
func (s *Searcher) Neighbors(ctx context.Context, chunkID core.ID, window int) (neighbors *core.Neighbors, err error) {
	ctx, done := s.observe(ctx, kindNeighbors)
	defer func() {
		n := 0
		if neighbors != nil {
			n = len(neighbors.Previous) + len(neighbors.Next)
		}
		done(n, err)
	}()

	if window < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, window)
	}

	chunk, err := s.chunks.GetChunk(ctx, chunkID)
	if errors.Is(err, storage.ErrNotFound) {
		return &core.Neighbors{}, nil
	}
	if err != nil {
		return nil, err
	}
	if window == 0 {
		return &core.Neighbors{}, nil
	}

	previous, err := s.chunks.GetChunkRange(ctx, chunk.PolicyId, chunk.Index-window, chunk.Index)
	if err != nil {
		return nil, err
	}
	// Keep Index+window+1 from overflowing
	window = min(window, math.MaxInt-chunk.Index-1)
	next, err := s.chunks.GetChunkRange(ctx, chunk.PolicyId, chunk.Index+1, chunk.Index+window+1)
	if err != nil {
		return nil, err
	}
	return &core.Neighbors{Previous: previous, Next: next}, nil
}

// FanOut returns the distinct policies of results with their images,
// in order of first appearance.
func (s *Searcher) FanOut(ctx context.Context, results []*core.ChunkResult) (policies []*core.Policy, err error) {
	ctx, done := s.observe(ctx, kindFanOut)
	defer func() { done(len(policies), err) }()

	seen := make(map[core.ID]bool, len(results))
	ids := make([]core.ID, 0, len(results))
	for _, r := range results {
		id := r.Chunk.PolicyId
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []*core.Policy{}, nil
	}
	return s.policies.GetPolicies(ctx, ids...)
}

// SearchPolicies ranks policies containing every query term, weighting
// title matches above description matches above body matches.
func (s *Searcher) SearchPolicies(ctx context.Context, query string, limit int) (results []*core.PolicyResult, err error) {
	ctx, done := s.observe(ctx, kindPolicies)
	defer func() { done(len(results), err) }()

	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	terms := core.UniqueTerms(query)
	if len(terms) == 0 {
		return []*core.PolicyResult{}, nil
	}
	return s.policies.SearchPolicies(ctx, terms, limit)
}

// observe starts a span for one operation. The returned func ends it and
// records metrics.
func (s *Searcher) observe(ctx context.Context, kind string) (context.Context, func(int, error)) {
	ctx, span := s.tracer.Start(ctx, "search."+kind)
	start := time.Now()
	return ctx, func(n int, err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("results", n))
		span.End()
		s.metrics.RecordSearch(kind, err, time.Since(start), n)
	}
}

func (s *Searcher) validateEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidEmbedding)
	}
	if s.dimension > 0 && len(embedding) != s.dimension {
		return fmt.Errorf("%w: query has %d components, expected %d", storage.ErrDimensionMismatch, len(embedding), s.dimension)
	}
	nonZero := false
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrInvalidEmbedding, i, v)
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return fmt.Errorf("%w: zero vector", ErrInvalidEmbedding)
	}
	return nil
}

func validateThreshold(threshold float32) error {
	if !(threshold >= -1 && threshold <= 1) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

func validateWeight(weight float32) error {
	if !(weight >= 0 && weight <= 1) {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, weight)
	}
	return nil
}

func validateLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return nil
}
