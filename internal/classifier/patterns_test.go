package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dlqrecover/pipeline/internal/model"
)

func TestMatchPattern_NetworkTimeout(t *testing.T) {
	rule, ok := matchPattern("ETIMEDOUT: socket hang up", 0.85)
	assert.True(t, ok)
	assert.Equal(t, model.CategoryTransient, rule.category)
}

func TestMatchPattern_RateLimit(t *testing.T) {
	rule, ok := matchPattern("received 429 too many requests", 0.85)
	assert.True(t, ok)
	assert.Equal(t, model.CategoryTransient, rule.category)
}

func TestMatchPattern_NullDeref(t *testing.T) {
	rule, ok := matchPattern("TypeError: Cannot read property 'id' of undefined", 0.85)
	assert.True(t, ok)
	assert.Equal(t, model.CategoryPoisonPill, rule.category)
}

func TestMatchPattern_ZeroDivision(t *testing.T) {
	rule, ok := matchPattern("ZeroDivisionError: division by zero", 0.85)
	assert.True(t, ok)
	assert.Equal(t, model.CategoryPoisonPill, rule.category)
}

func TestMatchPattern_NoMatch(t *testing.T) {
	_, ok := matchPattern("completely unrelated business exception", 0.85)
	assert.False(t, ok)
}

func TestMatchPattern_ThresholdExcludesLowerConfidenceRule(t *testing.T) {
	_, ok := matchPattern("invalid argument supplied", 0.90)
	assert.False(t, ok)
}

func TestMatchPattern_FirstMatchWins(t *testing.T) {
	rule, ok := matchPattern("connection timed out while rate limited", 0.85)
	assert.True(t, ok)
	assert.Equal(t, "network_timeout", rule.name)
}
