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


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/policykb/ai"
	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks sent in each embedding request
	BatchSize int

	// Workers is the number of batches embedded concurrently
	Workers int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxAttempts is the maximum number of embedding calls per batch
	MaxAttempts int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// OnlyMissing restricts the run to chunks without an embedding
	OnlyMissing bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		Workers:        4,
		ReportInterval: 100,
		MaxAttempts:    3,
		RetryDelay:     1 * time.Second,
	}
}

// Validate checks that every field is in range.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidMaxAttempts)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Stats summarizes a finished run.
type Stats struct {
	Policies int
	Chunks   int
	Updated  int
	Failed   int
	Elapsed  time.Duration
}

// Reembedder orchestrates the reembedding of stored chunks.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(
	policies storage.PolicyRepository,
	chunks storage.ChunkRepository,
	embedder ai.Embedder,
	config *Config,
	progress io.Writer,
	logger *slog.Logger,
) (*Reembedder, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(chunks, embedder, config.MaxAttempts, config.RetryDelay, logger),
		iterator:  NewChunkIterator(policies, chunks, config.BatchSize, config.OnlyMissing),
		logger:    logger.With("component", "reembedder"),
	}, nil
}

// Run re-embeds every selected chunk.
// A failed batch does not stop the run; the failures are joined into the
// returned error and counted in Stats.
func (r *Reembedder) Run(ctx context.Context) (*Stats, error) {
	policyCount, chunkCount, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	stats := &Stats{Policies: policyCount, Chunks: chunkCount}
	if chunkCount == 0 {
		fmt.Fprintf(r.progress, "No chunks to reembed\n")
		return stats, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks across %d policies (batch size: %d, workers: %d)\n",
		chunkCount, policyCount, r.config.BatchSize, r.config.Workers)

	pool, err := ants.NewPool(r.config.Workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	tracker := NewProgressTracker(r.progress, chunkCount, r.config.ReportInterval)
	tracker.Start()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(batch []*core.PolicyChunk, err error) {
		r.logger.Error("error reembedding batch", "first_chunk", batch[0].Id, "chunks", len(batch), "err", err)
		mu.Lock()
		errs = append(errs, err)
		stats.Failed += len(batch)
		mu.Unlock()
		tracker.Fail(len(batch))
	}

	iterErr := r.iterator.ForEach(ctx, func(batch []*core.PolicyChunk) error {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := r.processor.Process(ctx, batch); err != nil {
				fail(batch, err)
				return
			}
			mu.Lock()
			stats.Updated += len(batch)
			mu.Unlock()
			tracker.Add(len(batch))
		})
		if err != nil {
			wg.Done()
			return err
		}
		return nil
	})
	wg.Wait()

	tracker.Finish()
	stats.Elapsed = tracker.Elapsed()

	if iterErr != nil {
		return stats, iterErr
	}

	fmt.Fprintf(r.progress, "Reembedding complete. Updated %d of %d chunks in %v (%.1f chunks/sec)\n",
		stats.Updated, chunkCount, stats.Elapsed.Round(time.Second), float64(stats.Updated)/stats.Elapsed.Seconds())

	return stats, errors.Join(errs...)
}
