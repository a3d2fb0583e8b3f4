// Package splitter implements ai.Chunker with langchaingo's recursive
// character splitter, which prefers paragraph, then line, then word boundaries.
package splitter

import (
	"strings"

	"github.com/poiesic/policykb/ai"
	"github.com/tmc/langchaingo/textsplitter"
)

// Chunker splits text on natural boundaries. The zero value is ready to use.
type Chunker struct{}

var _ ai.Chunker = Chunker{}

// New returns a Chunker.
func New() Chunker {
	return Chunker{}
}

// Chunk splits text into pieces of at most size runes where a boundary allows,
// overlapping neighbors by up to overlap runes. Blank pieces are dropped.
func (Chunker) Chunk(text string, size, overlap int) ([]string, error) {
	if err := ai.ValidateChunking(size, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	split := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	pieces, err := split.SplitText(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		if strings.TrimSpace(piece) != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks, nil
}
