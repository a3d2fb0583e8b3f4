package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/policykb/core"
)

// File names inside a snapshot folder.
const (
	MarkdownFile = "content.md"
	TextFile     = "content.txt"
)

// Header lines recognized at the start of a line in content.md.
const (
	sourceURLHeader   = "# Source URL:"
	descriptionHeader = "# Description:"
)

// Content is the text of one snapshot.
type Content struct {
	Markdown    string
	Text        string
	SourceURL   string // empty when content.md has no source header
	Description string // empty when content.md has no description header
}

// ReadContent reads content.md and content.txt from a snapshot folder.
// Returns core.ErrMissingContent if either file is absent.
func ReadContent(dir string) (*Content, error) {
	markdown, err := readRequired(dir, MarkdownFile)
	if err != nil {
		return nil, err
	}
	text, err := readRequired(dir, TextFile)
	if err != nil {
		return nil, err
	}
	return &Content{
		Markdown:    markdown,
		Text:        text,
		SourceURL:   headerValue(markdown, sourceURLHeader),
		Description: headerValue(markdown, descriptionHeader),
	}, nil
}

func readRequired(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", core.ErrMissingContent, filepath.Join(filepath.Base(dir), name))
		}
		return "", err
	}
	return string(data), nil
}

// ExtractSourceURL returns the URL of the first "# Source URL: <url>" line, or "".
func ExtractSourceURL(markdown string) string {
	return headerValue(markdown, sourceURLHeader)
}

// headerValue has no line length limit; scraped markdown can hold very long lines.
func headerValue(markdown, header string) string {
	for line := range strings.Lines(markdown) {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, header); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
