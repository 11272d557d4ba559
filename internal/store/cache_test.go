package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlqrecover/pipeline/internal/model"
)

func TestSemanticCache_SetThenGet(t *testing.T) {
	c, err := NewSemanticCache(10, time.Hour)
	require.NoError(t, err)

	want := model.Classification{Category: model.CategoryTransient, Confidence: 0.96, ModelTag: model.ModelTagHeuristic}
	c.Set("hash-1", want)

	got, ok := c.Get("hash-1")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSemanticCache_MissForUnknownHash(t *testing.T) {
	c, err := NewSemanticCache(10, time.Hour)
	require.NoError(t, err)

	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestSemanticCache_ExpiresAfterTTL(t *testing.T) {
	c, err := NewSemanticCache(10, 10*time.Millisecond)
	require.NoError(t, err)

	c.Set("hash-1", model.Classification{Category: model.CategorySystemic})
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("hash-1")
	assert.False(t, ok)
}

func TestSemanticCache_ModelTagOverriddenByCallerOnHit(t *testing.T) {
	// The cache itself stores whatever classification was written; callers
	// are responsible for rewriting model_tag to "cache" on return, per the
	// spec's rule that cache hits never alter reasoning beyond the tag.
	c, err := NewSemanticCache(10, time.Hour)
	require.NoError(t, err)

	c.Set("hash-1", model.Classification{Category: model.CategoryPoisonPill, ModelTag: model.ModelTagHeuristic, Reasoning: "pattern match"})
	got, ok := c.Get("hash-1")
	require.True(t, ok)
	assert.Equal(t, "pattern match", got.Reasoning)
}

func TestSemanticCache_Stats_TracksHitsAndMisses(t *testing.T) {
	c, err := NewSemanticCache(10, time.Hour)
	require.NoError(t, err)

	c.Set("hash-1", model.Classification{})
	c.Get("hash-1")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestSemanticCache_NilSafe(t *testing.T) {
	var c *SemanticCache
	_, ok := c.Get("x")
	assert.False(t, ok)
	c.Set("x", model.Classification{})
	assert.Equal(t, CacheStats{}, c.Stats())
}
