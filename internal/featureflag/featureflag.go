// Package featureflag provides the three boolean feature flags named in
// spec.md §6 (auto_replay_enabled, llm_classification_enabled,
// incident_integration_enabled), backed by the static config by default
// but abstracted behind an interface so a future dynamic source doesn't
// require touching call sites.
package featureflag

// Store reads named boolean flags. Callers poll it at decision time
// rather than capturing a value once, so a flip takes effect on the next
// message without restarting the process.
type Store interface {
	AutoReplayEnabled() bool
	LLMClassificationEnabled() bool
	IncidentIntegrationEnabled() bool
}

// Static is a Store backed by fixed values loaded once from config. It's
// the default implementation; nothing in this pipeline currently needs a
// dynamically-updated flag source.
type Static struct {
	autoReplay        bool
	llmClassification bool
	incidentIntegration bool
}

// NewStatic builds a Store from config-loaded flag values.
func NewStatic(autoReplay, llmClassification, incidentIntegration bool) *Static {
	return &Static{
		autoReplay:          autoReplay,
		llmClassification:   llmClassification,
		incidentIntegration: incidentIntegration,
	}
}

func (s *Static) AutoReplayEnabled() bool          { return s.autoReplay }
func (s *Static) LLMClassificationEnabled() bool   { return s.llmClassification }
func (s *Static) IncidentIntegrationEnabled() bool { return s.incidentIntegration }

var _ Store = (*Static)(nil)
