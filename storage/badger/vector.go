package badger

import (
	"fmt"
	"math"

	"github.com/poiesic/policykb/storage"
)

// cosineSimilarity returns 1 - cosine distance of a and b.
// ok is false when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) (similarity float32, ok bool, err error) {
	if len(a) != len(b) {
		return 0, false, fmt.Errorf("%w: %d vs %d", storage.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false, nil
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), true, nil
}
