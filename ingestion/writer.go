package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/snapshot"
	"github.com/poiesic/policykb/storage"
)

// WriteResult describes what the Writer stored for one folder.
type WriteResult struct {
	Policy  *core.Policy
	Content *snapshot.Content
	Chunks  int
	Images  int
	// ChildErr is set when the policy was stored but its chunks were not
	// fully populated (embedding failure or count mismatch).
	ChildErr error
}

// Writer performs the create-or-replace of a policy and its children
// inside a caller-owned unit of work.
type Writer struct {
	chunks       *chunkEmbedder
	imagePattern *regexp.Regexp
	logger       *slog.Logger
}

// Create reads the snapshot and inserts a new policy with its images and chunks.
// Returns core.ErrMissingContent if the folder lacks content files.
func (w *Writer) Create(ctx context.Context, uow storage.UnitOfWork, folder snapshot.Folder, runID string) (*WriteResult, error) {
	content, images, err := w.read(folder)
	if err != nil {
		return nil, err
	}

	policy := &core.Policy{Title: folder.Title}
	w.apply(policy, folder, content, runID)
	if err := uow.CreatePolicy(policy); err != nil {
		return nil, err
	}

	return w.populate(ctx, uow, policy, content, images)
}

// Update reads the snapshot and overwrites existing, replacing every chunk
// and image it owned.
func (w *Writer) Update(ctx context.Context, uow storage.UnitOfWork, existing *core.Policy, folder snapshot.Folder, runID string) (*WriteResult, error) {
	content, images, err := w.read(folder)
	if err != nil {
		return nil, err
	}

	policy := *existing
	policy.Images = nil
	w.apply(&policy, folder, content, runID)
	if err := uow.UpdatePolicy(&policy); err != nil {
		return nil, err
	}

	return w.populate(ctx, uow, &policy, content, images)
}

func (w *Writer) read(folder snapshot.Folder) (*snapshot.Content, []*core.Image, error) {
	content, err := snapshot.ReadContent(folder.Path)
	if err != nil {
		return nil, nil, err
	}
	images, err := snapshot.ScanImages(folder, w.imagePattern)
	if err != nil {
		return nil, nil, fmt.Errorf("scan images in %s: %w", folder.Name, err)
	}
	return content, images, nil
}

func (w *Writer) apply(policy *core.Policy, folder snapshot.Folder, content *snapshot.Content, runID string) {
	policy.SourceURL = content.SourceURL
	policy.Description = content.Description
	policy.MarkdownContent = content.Markdown
	policy.TextContent = content.Text
	policy.Metadata = core.PolicyMetadata{
		ScrapeTimestamp: folder.Timestamp,
		SourceFolder:    folder.Name,
		ProcessedAt:     now(),
		ContentHash:     core.ContentHash(content.Text),
		IngestionRun:    runID,
	}
}

// populate replaces the images and chunks of policy.
func (w *Writer) populate(ctx context.Context, uow storage.UnitOfWork, policy *core.Policy, content *snapshot.Content, images []*core.Image) (*WriteResult, error) {
	if err := uow.ReplaceImages(policy.Id, images); err != nil {
		return nil, err
	}

	chunks, childErr, err := w.chunks.build(ctx, policy)
	if err != nil {
		return nil, err
	}
	if err := uow.ReplaceChunks(policy.Id, chunks); err != nil {
		return nil, err
	}

	w.logger.Debug("wrote policy", "title", policy.Title, "id", policy.Id,
		"chunks", len(chunks), "images", len(images), "folder", policy.Metadata.SourceFolder)
	return &WriteResult{
		Policy:   policy,
		Content:  content,
		Chunks:   len(chunks),
		Images:   len(images),
		ChildErr: childErr,
	}, nil
}
