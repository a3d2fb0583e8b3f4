package ingestion

import (
	"errors"
	"time"

	"github.com/poiesic/policykb/core"
	"github.com/poiesic/policykb/snapshot"
)

// Status is the counted outcome of one folder.
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusErrored Status = "errored"
)

// Result is the outcome of processing one snapshot folder.
type Result struct {
	Folder   snapshot.Folder
	Status   Status
	Action   Action
	Reason   string
	PolicyID core.ID // 0 when nothing was written
	Chunks   int
	Images   int
	// Stored reports whether the folder's content is now the live policy.
	// An errored result can be stored when only its chunks failed.
	Stored  bool
	Content *snapshot.Content // nil when the folder was not read
	Err     error
}

// Summary aggregates the results of one run.
type Summary struct {
	RunID      string
	BaseDir    string
	StartedAt  time.Time
	FinishedAt time.Time
	Created    int
	Updated    int
	Skipped    int
	Errored    int
	// Unrecognized lists directories that are not snapshot folders.
	Unrecognized []string
	Results      []Result
}

func (s *Summary) add(r Result) {
	switch r.Status {
	case StatusCreated:
		s.Created++
	case StatusUpdated:
		s.Updated++
	case StatusSkipped:
		s.Skipped++
	case StatusErrored:
		s.Errored++
	}
	s.Results = append(s.Results, r)
}

// Err joins the errors of every errored folder, or returns nil.
func (s *Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Run converts the summary into the record persisted by the store.
func (s *Summary) Run() *core.IngestionRun {
	return &core.IngestionRun{
		RunId:      s.RunID,
		BaseDir:    s.BaseDir,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Created:    s.Created,
		Updated:    s.Updated,
		Skipped:    s.Skipped,
		Errored:    s.Errored,
	}
}
