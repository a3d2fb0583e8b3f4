// Package snapshot reads versioned policy snapshot folders from disk.
//
// A base directory holds one folder per scraped version of a policy, named
// <title>_<20-digit timestamp>, each containing content.md, content.txt and
// any number of image files.
package snapshot

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/poiesic/policykb/core"
)

// folderPattern matches <title>_<timestamp>. The title may itself contain underscores.
var folderPattern = regexp.MustCompile(`^(.+)_(\d{20})$`)

// Folder is one snapshot folder of a policy.
type Folder struct {
	Name      string // directory name
	Title     string
	Timestamp core.ScrapeTimestamp
	Path      string // absolute or base-relative path to the directory
}

// ScanResult is the outcome of scanning a base directory.
type ScanResult struct {
	// Folders are ordered by folder name.
	Folders []Folder
	// Skipped lists directories whose names do not match the snapshot pattern.
	Skipped []string
}

// Scanner lists snapshot folders. It never modifies the filesystem.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner creates a Scanner that logs skipped folders to logger.
// A nil logger uses slog.Default().
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger.With("component", "snapshot-scanner")}
}

// ParseFolderName splits a folder name into title and timestamp.
func ParseFolderName(name string) (string, core.ScrapeTimestamp, bool) {
	m := folderPattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], core.ScrapeTimestamp(m[2]), true
}

// Scan lists the immediate subdirectories of baseDir that are snapshot folders.
func (s *Scanner) Scan(baseDir string) (*ScanResult, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", baseDir, err)
	}

	result := &ScanResult{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		title, ts, ok := ParseFolderName(name)
		if !ok {
			s.logger.Debug("skipping folder", "folder", name)
			result.Skipped = append(result.Skipped, name)
			continue
		}
		result.Folders = append(result.Folders, Folder{
			Name:      name,
			Title:     title,
			Timestamp: ts,
			Path:      filepath.Join(baseDir, name),
		})
	}

	slices.SortFunc(result.Folders, func(a, b Folder) int {
		return cmp.Compare(a.Name, b.Name)
	})

	s.logger.Info("scanned snapshots", "base_dir", baseDir, "folders", len(result.Folders), "skipped", len(result.Skipped))
	return result, nil
}
