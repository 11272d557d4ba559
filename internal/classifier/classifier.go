// Package classifier implements the Analyzer's layered decision engine:
// semantic-cache lookup, heuristic fast-path, LLM classification, and a
// conservative fallback, in that order, plus the deterministic
// recommended-action computation derived from the resulting category.
package classifier

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dlqrecover/pipeline/internal/fingerprint"
	"github.com/dlqrecover/pipeline/internal/llm"
	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/security"
	"github.com/dlqrecover/pipeline/internal/store"
)

// Config tunes the decision engine's thresholds.
type Config struct {
	ConfidenceThreshold float64
	SystemicMinSimilar  int
	CacheTTL            time.Duration
	MaxRetriesExecutor  int
	// ModelName is recorded as model_tag on LLM-produced classifications
	// (spec.md §3: model_tag is one of heuristic/cache/fallback, or an LLM
	// model identifier).
	ModelName string
}

// Classifier runs the full cache -> heuristics -> LLM -> fallback pipeline.
type Classifier struct {
	cfg        Config
	cache      *store.SemanticCache
	llm        llm.Classifier
	llmEnabled func() bool
}

// New builds a Classifier. llmEnabled is polled at classification time
// (not captured once) so a feature-flag flip takes effect on the next
// message without restarting the process.
func New(cfg Config, cache *store.SemanticCache, llmClassifier llm.Classifier, llmEnabled func() bool) *Classifier {
	return &Classifier{cfg: cfg, cache: cache, llm: llmClassifier, llmEnabled: llmEnabled}
}

// Result bundles the classification with the semantic hash it was keyed
// by and whether it was a fresh decision (cache miss) that still needs a
// cache write.
type Result struct {
	Classification model.Classification
	SemanticHash   string
	CacheMiss      bool
}

// Classify runs the decision pipeline for one enriched message.
func (c *Classifier) Classify(ctx context.Context, msg model.EnrichedMessage) Result {
	hash := fingerprint.Compute(msg.ErrorPattern)

	if cached, ok := c.cache.Get(hash); ok {
		cached.ModelTag = model.ModelTagCache
		return Result{Classification: cached, SemanticHash: hash, CacheMiss: false}
	}

	if cls, ok := c.deploymentCorrelation(msg); ok {
		return Result{Classification: cls, SemanticHash: hash, CacheMiss: true}
	}

	if cls, ok := c.patternMatch(msg); ok {
		return Result{Classification: cls, SemanticHash: hash, CacheMiss: true}
	}

	if c.llmEnabled == nil || c.llmEnabled() {
		if cls, ok := c.classifyWithLLM(ctx, msg); ok {
			return Result{Classification: cls, SemanticHash: hash, CacheMiss: true}
		}
	}

	return Result{Classification: c.fallback(), SemanticHash: hash, CacheMiss: true}
}

func (c *Classifier) deploymentCorrelation(msg model.EnrichedMessage) (model.Classification, bool) {
	minSimilar := c.cfg.SystemicMinSimilar
	if minSimilar <= 0 {
		minSimilar = 10
	}
	if msg.SimilarFailuresLastHour >= minSimilar && len(msg.RecentDeployments) > 0 {
		return model.Classification{
			Category:   model.CategorySystemic,
			Confidence: 0.92,
			Reasoning:  "spike correlated with recent deployment",
			ModelTag:   model.ModelTagHeuristic,
		}, true
	}
	return model.Classification{}, false
}

func (c *Classifier) patternMatch(msg model.EnrichedMessage) (model.Classification, bool) {
	threshold := c.cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.85
	}
	rule, ok := matchPattern(msg.ErrorPattern.Message, threshold)
	if !ok {
		return model.Classification{}, false
	}
	return model.Classification{
		Category:   rule.category,
		Confidence: rule.confidence,
		Reasoning:  fmt.Sprintf("matched %s pattern", rule.name),
		ModelTag:   model.ModelTagHeuristic,
	}, true
}

func (c *Classifier) classifyWithLLM(ctx context.Context, msg model.EnrichedMessage) (model.Classification, bool) {
	if c.llm == nil {
		return model.Classification{}, false
	}

	req := llm.Request{
		ErrorType:         msg.ErrorPattern.Type,
		ErrorCode:         msg.ErrorPattern.Code,
		Message:           security.RedactPII(truncate(msg.ErrorPattern.Message, 500)),
		StackTop:          redactStack(msg.ErrorPattern.StackTop),
		RetryCount:        msg.RetryCount,
		SimilarFailures:   msg.SimilarFailuresLastHour,
		AffectedService:   msg.ErrorPattern.AffectedService,
		SourceQueue:       msg.SourceQueue,
		RecentDeployments: redactDeployments(msg.RecentDeployments),
	}

	resp, err := c.llm.Classify(ctx, req)
	if err != nil {
		return model.Classification{}, false
	}

	tag := c.cfg.ModelName
	if tag == "" {
		tag = "llm"
	}
	return model.Classification{
		Category:   resp.Category,
		Confidence: resp.Confidence,
		Reasoning:  resp.Reasoning,
		ModelTag:   model.ModelTag(tag),
		Tokens:     resp.Tokens,
	}, true
}

func (c *Classifier) fallback() model.Classification {
	return model.Classification{
		Category:   model.CategorySystemic,
		Confidence: 0.6,
		Reasoning:  "LLM classification failed, requires human review",
		ModelTag:   model.ModelTagFallback,
	}
}

// RecommendedAction computes the deterministic follow-up action from a
// category (spec.md §4.2 "Recommended action").
// retryCount is the message's current retry count. The recommended
// max_retries is always 3 — a property of the recommendation itself, not
// the Executor's separate (and higher) hard-cap configuration.
func RecommendedAction(category model.Category, retryCount int) model.RecommendedAction {
	switch category {
	case model.CategoryTransient:
		return model.RecommendedAction{
			Action:      model.ActionReplay,
			RetryDelayS: backoffDelay(retryCount),
			MaxRetries:  3,
			HumanReview: false,
		}
	case model.CategoryPoisonPill:
		return model.RecommendedAction{
			Action:      model.ActionArchive,
			HumanReview: true,
		}
	case model.CategorySystemic:
		return model.RecommendedAction{
			Action:      model.ActionEscalate,
			Severity:    "P1",
			HumanReview: true,
		}
	default:
		return model.RecommendedAction{Action: model.ActionEscalate, Severity: "P1", HumanReview: true}
	}
}

// backoffDelay implements min(30 * 2^retryCount, 900).
func backoffDelay(retryCount int) int {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := 30 * math.Pow(2, float64(retryCount))
	if delay > 900 {
		delay = 900
	}
	return int(delay)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func redactStack(frames []string) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = security.RedactPII(f)
	}
	return out
}

func redactDeployments(deployments []model.Deployment) []string {
	out := make([]string, len(deployments))
	for i, d := range deployments {
		out[i] = security.RedactPII(fmt.Sprintf("%s@%s by %s", d.ID, d.Version, d.Author))
	}
	return out
}
