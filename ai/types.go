package ai

import (
	"errors"
	"fmt"
)

// ErrInvalidChunking indicates chunk size or overlap parameters are unusable.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// ValidateChunking checks the size and overlap passed to a Chunker.
func ValidateChunking(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunking, overlap, size)
	}
	return nil
}
