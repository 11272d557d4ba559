package featureflag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatic_ReturnsConfiguredValues(t *testing.T) {
	s := NewStatic(true, false, true)
	assert.True(t, s.AutoReplayEnabled())
	assert.False(t, s.LLMClassificationEnabled())
	assert.True(t, s.IncidentIntegrationEnabled())
}

func TestStatic_AllFalse(t *testing.T) {
	s := NewStatic(false, false, false)
	assert.False(t, s.AutoReplayEnabled())
	assert.False(t, s.LLMClassificationEnabled())
	assert.False(t, s.IncidentIntegrationEnabled())
}
