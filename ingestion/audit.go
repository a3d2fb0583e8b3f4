package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/poiesic/policykb/snapshot"
)

// auditHeader is the column layout of the ingestion CSV log.
var auditHeader = []string{
	"url",
	"file_path",
	"include",
	"found_links_count",
	"definite_links",
	"probable_links",
	"timestamp",
	"contains_policy",
	"policy_title",
	"policy_content_path",
	"extraction_reasoning",
}

// AuditLog writes one CSV row per processed folder.
type AuditLog struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
}

// NewAuditLog writes a header and rows to w.
func NewAuditLog(w io.Writer) (*AuditLog, error) {
	log := &AuditLog{w: csv.NewWriter(w)}
	if err := log.writeRecord(auditHeader); err != nil {
		return nil, err
	}
	return log, nil
}

// OpenAuditLog appends to the CSV file at path, writing the header only
// when the file is new or empty.
func OpenAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	log := &AuditLog{w: csv.NewWriter(f), closer: f}
	if info.Size() == 0 {
		if err := log.writeRecord(auditHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return log, nil
}

// Write appends the row for r.
func (a *AuditLog) Write(r Result) error {
	var (
		url       string
		contains  bool
		stats     snapshot.LinkStats
		reasoning = r.Reason
	)
	if r.Content != nil {
		url = r.Content.SourceURL
		contains = strings.TrimSpace(r.Content.Text) != ""
		stats = snapshot.AnalyzeLinks(r.Content.Markdown)
	}
	if r.Err != nil {
		reasoning = strings.TrimSpace(reasoning + "; " + r.Err.Error())
		reasoning = strings.TrimPrefix(reasoning, "; ")
	}

	return a.writeRecord([]string{
		url,
		r.Folder.Path,
		strconv.FormatBool(r.Stored),
		strconv.Itoa(stats.Found),
		strings.Join(stats.Definite, ";"),
		strings.Join(stats.Probable, ";"),
		r.Folder.Timestamp.String(),
		strconv.FormatBool(contains),
		r.Folder.Title,
		filepath.Join(r.Folder.Path, snapshot.MarkdownFile),
		reasoning,
	})
}

func (a *AuditLog) writeRecord(record []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.w.Write(record); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	a.w.Flush()
	return a.w.Error()
}

// Close flushes pending rows and closes the underlying file, if any.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	a.w.Flush()
	err := a.w.Error()
	a.mu.Unlock()
	if a.closer != nil {
		if closeErr := a.closer.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
