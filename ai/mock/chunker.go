package mock

import (
	"strings"
	"sync"

	"github.com/poiesic/policykb/ai"
)

// MockChunker is a test double for ai.Chunker.
type MockChunker struct {
	// ChunkFunc is called by Chunk if set.
	// If nil, text is cut into fixed windows of size runes.
	ChunkFunc func(text string, size, overlap int) ([]string, error)

	mu        sync.Mutex
	callCount int
}

// NewMockChunker creates a mock chunker with fixed-window behavior.
func NewMockChunker() *MockChunker {
	return &MockChunker{}
}

// Chunk splits text into windows of size runes that advance by size-overlap.
func (m *MockChunker) Chunk(text string, size, overlap int) ([]string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ChunkFunc != nil {
		return m.ChunkFunc(text, size, overlap)
	}
	if err := ai.ValidateChunking(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(strings.TrimSpace(text))
	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// CallCount returns the number of times Chunk was called.
func (m *MockChunker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
