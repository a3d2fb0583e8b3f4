package openai

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/policykb/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiter(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		assert.Nil(t, newLimiter(ai.NewConfig()))
	})

	t.Run("configured rate", func(t *testing.T) {
		limiter := newLimiter(ai.NewConfig(ai.WithRateLimit(4, 2)))
		require.NotNil(t, limiter)
		assert.Equal(t, 2, limiter.Burst())
		assert.InDelta(t, 4.0, float64(limiter.Limit()), 0.0001)
	})
}

func TestEmbedderWait(t *testing.T) {
	e := &Embedder{limiter: newLimiter(ai.NewConfig(ai.WithRateLimit(0.001, 1)))}

	// The burst token is available immediately
	require.NoError(t, e.wait(context.Background()))

	// The next token is ~1000s away, so a short deadline fails fast
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, e.wait(ctx))
}

func TestNewEmbedder_InvalidConfig(t *testing.T) {
	_, err := NewEmbedder(&ai.Config{})
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(ai.NewConfig())
	require.NoError(t, err)
	defer provider.Close()

	assert.NotNil(t, provider.Embedder())
	chunks, err := provider.Chunker().Chunk("one short policy", 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"one short policy"}, chunks)
}
