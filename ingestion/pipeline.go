package ingestion

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/policykb/ai"
	"github.com/poiesic/policykb/metrics"
	"github.com/poiesic/policykb/snapshot"
	"github.com/poiesic/policykb/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

const tracerName = "github.com/poiesic/policykb/ingestion"

// now returns the current UTC time. Replaced in tests.
var now = func() time.Time {
	return time.Now().UTC()
}

// Ingester runs batch ingestion of snapshot folders.
// Folders are processed sequentially; an Ingester may run many batches
// but not concurrently.
type Ingester struct {
	repo         storage.Repository
	runs         storage.RunRepository
	provider     ai.AIProvider
	chunkSize    int
	chunkOverlap int
	imagePattern *regexp.Regexp
	audit        *AuditLog
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	logger       *slog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// WithChunking sets the chunk size and overlap passed to the Chunker.
// Default is DefaultChunkSize and DefaultChunkOverlap.
func WithChunking(size, overlap int) Option {
	return func(i *Ingester) error {
		if err := ai.ValidateChunking(size, overlap); err != nil {
			return err
		}
		i.chunkSize = size
		i.chunkOverlap = overlap
		return nil
	}
}

// WithImagePattern sets the regular expression image filenames must match.
// Default is snapshot.DefaultImagePattern.
func WithImagePattern(pattern string) Option {
	return func(i *Ingester) error {
		re, err := snapshot.CompileImagePattern(pattern)
		if err != nil {
			return err
		}
		i.imagePattern = re
		return nil
	}
}

// WithAuditLog writes one CSV row per processed folder to log.
// The Ingester does not close it.
func WithAuditLog(log *AuditLog) Option {
	return func(i *Ingester) error {
		i.audit = log
		return nil
	}
}

// WithMetrics records ingestion counters and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingester) error {
		i.metrics = m
		return nil
	}
}

// NewIngester creates a new Ingester.
func NewIngester(
	repo storage.Repository,
	runs storage.RunRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Ingester, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if runs == nil {
		return nil, ErrRunRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	imagePattern, err := snapshot.CompileImagePattern("")
	if err != nil {
		return nil, err
	}

	i := &Ingester{
		repo:         repo,
		runs:         runs,
		provider:     provider,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		imagePattern: imagePattern,
		tracer:       otel.Tracer(tracerName),
		logger:       slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	i.logger = i.logger.With("component", "ingester")

	return i, nil
}

// Run ingests every snapshot folder under baseDir.
//
// Each folder commits or rolls back on its own; item failures are counted
// in the Summary and never stop the run. Run returns an error only when
// baseDir cannot be scanned or ctx is cancelled, in which case the Summary
// covers the folders processed so far.
func (i *Ingester) Run(ctx context.Context, baseDir string) (*Summary, error) {
	ctx, span := i.tracer.Start(ctx, "ingest.run", trace.WithAttributes(attribute.String("base_dir", baseDir)))
	defer span.End()

	summary := &Summary{
		RunID:     uuid.NewString(),
		BaseDir:   baseDir,
		StartedAt: now(),
	}
	logger := i.logger.With("run", summary.RunID)

	scan, err := snapshot.NewScanner(logger).Scan(baseDir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	summary.Unrecognized = scan.Skipped

	chunks, err := newChunkEmbedder(i.provider.Chunker(), i.provider.Embedder(), i.chunkSize, i.chunkOverlap, logger)
	if err != nil {
		return nil, err
	}
	processor := &folderProcessor{
		repo:     i.repo,
		resolver: NewResolver(logger),
		writer: &Writer{
			chunks:       chunks,
			imagePattern: i.imagePattern,
			logger:       logger.With("component", "writer"),
		},
		runID: summary.RunID,
	}

	logger.Info("starting ingestion", "base_dir", baseDir, "folders", len(scan.Folders))
	var runErr error
	for _, folder := range scan.Folders {
		if runErr = ctx.Err(); runErr != nil {
			break
		}
		var result Result
		if result, runErr = i.processFolder(ctx, processor, folder, logger); runErr != nil {
			break
		}
		summary.add(result)
	}
	summary.FinishedAt = now()

	if runErr != nil {
		logger.Warn("ingestion interrupted", "err", runErr)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}

	if err := i.runs.SaveRun(context.WithoutCancel(ctx), summary.Run()); err != nil {
		logger.Error("error saving ingestion run", "err", err)
	}
	i.metrics.RecordIngestRun(summary.FinishedAt.Sub(summary.StartedAt))

	span.SetAttributes(
		attribute.Int("created", summary.Created),
		attribute.Int("updated", summary.Updated),
		attribute.Int("skipped", summary.Skipped),
		attribute.Int("errored", summary.Errored),
	)
	logger.Info("ingestion finished",
		"created", summary.Created,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"errored", summary.Errored,
		"unrecognized", len(summary.Unrecognized),
	)
	return summary, runErr
}

func (i *Ingester) processFolder(ctx context.Context, processor *folderProcessor, folder snapshot.Folder, logger *slog.Logger) (Result, error) {
	ctx, span := i.tracer.Start(ctx, "ingest.folder", trace.WithAttributes(
		attribute.String("folder", folder.Name),
		attribute.String("title", folder.Title),
	))
	defer span.End()

	result, err := processor.process(ctx, folder)
	if err != nil {
		return result, err
	}

	span.SetAttributes(attribute.String("status", string(result.Status)))
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		logger.Error("error ingesting folder",
			"folder", folder.Name, "title", folder.Title, "action", result.Action.String(), "err", result.Err)
	} else {
		logger.Debug("ingested folder",
			"folder", folder.Name, "title", folder.Title, "status", result.Status, "reason", result.Reason)
	}

	i.metrics.RecordIngestItem(string(result.Status), result.Chunks)
	if i.audit != nil {
		if err := i.audit.Write(result); err != nil {
			logger.Warn("error writing audit log", "err", err)
		}
	}
	return result, nil
}
