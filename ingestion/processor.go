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


package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/snapshot"
	"github.com/poiesic/policykb/storage"
)

// folderProcessor handles one snapshot folder inside its own unit of work.
type folderProcessor struct {
	repo     storage.Repository
	resolver *Resolver
	writer   *Writer
	runID    string
}

// process resolves and writes folder, then classifies the outcome.
// Only context cancellation is returned as an error; every other failure
// is reported in the Result.
func (fp *folderProcessor) process(ctx context.Context, folder snapshot.Folder) (Result, error) {
	result := Result{Folder: folder}

	var (
		decision Decision
		written  *WriteResult
	)
	err := fp.repo.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
		var err error
		written = nil
		decision, err = fp.resolver.Resolve(uow, folder)
		if err != nil {
			return err
		}

		var action core.UpdateAction
		switch decision.Action {
		case ActionSkip:
			return nil
		case ActionCreate:
			action = core.UpdateActionCreate
			written, err = fp.writer.Create(ctx, uow, folder, fp.runID)
		case ActionUpdate:
			action = core.UpdateActionUpdate
			written, err = fp.writer.Update(ctx, uow, decision.Existing, folder, fp.runID)
		}
		if err != nil {
			return err
		}

		return uow.AppendUpdate(&core.PolicyUpdate{
			PolicyId: &written.Policy.Id,
			Action:   action,
			Details:  fmt.Sprintf("%s from %s (scrape %s)", action, folder.Name, folder.Timestamp),
		})
	})

	result.Action = decision.Action
	result.Reason = decision.Reason

	switch {
	case err == nil && decision.Action == ActionSkip:
		result.Status = StatusSkipped
	case err == nil:
		fp.resolver.MarkHandled(folder.Title)
		result.PolicyID = written.Policy.Id
		result.Chunks = written.Chunks
		result.Images = written.Images
		result.Content = written.Content
		result.Stored = true
		result.Status = StatusCreated
		if decision.Action == ActionUpdate {
			result.Status = StatusUpdated
		}
		if written.ChildErr != nil {
			result.Status = StatusErrored
			result.Err = written.ChildErr
		}
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.Is(err, storage.ErrDuplicateKey), errors.Is(err, storage.ErrConflict):
		fp.resolver.MarkHandled(folder.Title)
		result.Status = StatusErrored
		result.Err = fmt.Errorf("%w: %q: %w", core.ErrDuplicateTitle, folder.Title, err)
	case errors.Is(err, core.ErrMissingContent):
		result.Status = StatusErrored
		result.Err = err
	default:
		result.Status = StatusErrored
		result.Err = fmt.Errorf("%w: %s: %w", ErrUnexpectedWriter, folder.Name, err)
	}
	return result, nil
}
