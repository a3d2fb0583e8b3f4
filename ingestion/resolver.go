package ingestion

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/snapshot"
	"github.com/poiesic/policykb/storage"
)

// Action is the resolver's decision for a snapshot folder.
type Action int

const (
	ActionSkip Action = iota
	ActionCreate
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "skip"
	}
}

// Decision is the outcome of resolving one folder.
type Decision struct {
	Action Action
	// Existing is the stored policy for ActionUpdate, nil otherwise.
	Existing *core.Policy
	Reason   string
}

// PolicyID returns the target policy of an update, or 0.
func (d Decision) PolicyID() core.ID {
	if d.Existing == nil {
		return 0
	}
	return d.Existing.Id
}

// Resolver decides per folder whether a snapshot is new, newer or stale.
// It remembers titles written earlier in the run; a Resolver serves one run.
type Resolver struct {
	handled map[string]bool
	logger  *slog.Logger
}

// NewResolver creates a Resolver for a single run.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		handled: make(map[string]bool),
		logger:  logger.With("component", "resolver"),
	}
}

// Resolve compares folder against the stored policy with the same title.
// Timestamps compare as fixed-width strings.
func (r *Resolver) Resolve(uow storage.UnitOfWork, folder snapshot.Folder) (Decision, error) {
	if r.handled[folder.Title] {
		r.logger.Warn("title already handled in this run, skipping", "title", folder.Title, "folder", folder.Name)
		return Decision{Action: ActionSkip, Reason: "title already handled in this run"}, nil
	}

	existing, err := uow.FindPolicyByTitle(folder.Title)
	if errors.Is(err, storage.ErrNotFound) {
		return Decision{Action: ActionCreate, Reason: "new title"}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	stored := existing.Metadata.ScrapeTimestamp
	switch {
	case stored.IsZero():
		return Decision{Action: ActionUpdate, Existing: existing, Reason: "stored version unknown"}, nil
	case folder.Timestamp.After(stored):
		return Decision{
			Action:   ActionUpdate,
			Existing: existing,
			Reason:   fmt.Sprintf("snapshot %s newer than stored %s", folder.Timestamp, stored),
		}, nil
	default:
		return Decision{
			Action: ActionSkip,
			Reason: fmt.Sprintf("snapshot %s not newer than stored %s", folder.Timestamp, stored),
		}, nil
	}
}

// MarkHandled excludes title from the rest of the run.
func (r *Resolver) MarkHandled(title string) {
	r.handled[title] = true
}

// Handled reports whether title was written or lost a race earlier in the run.
func (r *Resolver) Handled(title string) bool {
	return r.handled[title]
}
