// Package analyzer implements the pipeline's Analyzer stage: it runs an
// enriched message through the classifier's decision engine, persists the
// resulting classification record and (on a cache miss) the semantic-cache
// entry, then publishes MessageClassified for the Executor to act on.
package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/dlqrecover/pipeline/internal/bus"
	"github.com/dlqrecover/pipeline/internal/classifier"
	"github.com/dlqrecover/pipeline/internal/metrics"
	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/store"
)

// SemanticCache is the subset of *store.SemanticCache the Analyzer writes
// to on a cache miss.
type SemanticCache interface {
	Set(hash string, classification model.Classification)
}

// Config tunes record retention.
type Config struct {
	RecordTTL time.Duration
}

// Analyzer composes the classifier with persistence and publication.
type Analyzer struct {
	cfg        Config
	classifier *classifier.Classifier
	records    store.RecordStore
	cache      SemanticCache
	publisher  bus.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New builds an Analyzer.
func New(cfg Config, c *classifier.Classifier, records store.RecordStore, cache SemanticCache, publisher bus.Publisher, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		cfg: cfg, classifier: c, records: records, cache: cache,
		publisher: publisher, metrics: m, logger: logger, now: time.Now,
	}
}

// Handle classifies one enriched message, persists the audit record
// (required — the method returns an error and does not publish if this
// fails), warms the semantic cache on a fresh decision (best-effort), and
// publishes MessageClassified with the deterministic recommended action.
func (a *Analyzer) Handle(ctx context.Context, msg model.EnrichedMessage) error {
	result := a.classifier.Classify(ctx, msg)
	cls := result.Classification

	a.metrics.RecordClassification(string(cls.Category), string(cls.ModelTag))

	recommended := classifier.RecommendedAction(cls.Category, msg.RetryCount)

	record := model.ClassificationRecord{
		MessageID:            msg.MessageID,
		Timestamp:            a.now(),
		SourceQueue:          msg.SourceQueue,
		Category:             cls.Category,
		Confidence:           cls.Confidence,
		Reasoning:            cls.Reasoning,
		ModelTag:             cls.ModelTag,
		Tokens:               cls.Tokens,
		ActionTaken:          actionTakenForCategory(cls.Category),
		Outcome:              model.OutcomePending,
		RetryCount:           msg.RetryCount,
		SimilarFailuresCount: msg.SimilarFailuresLastHour,
		SemanticHash:         result.SemanticHash,
		TTL:                  a.recordTTL(),
	}
	if len(msg.RecentDeployments) > 0 {
		record.SuspectedDeployment = msg.RecentDeployments[0].ID
	}

	if err := a.records.Put(ctx, record); err != nil {
		a.logger.Error("classification record write failed", "message_id", msg.MessageID, "error", err)
		return err
	}

	if result.CacheMiss && a.cache != nil {
		a.cache.Set(result.SemanticHash, cls)
	}

	detail := bus.ClassifiedDetail{
		Message:        msg,
		Classification: cls,
		Recommended:    recommended,
	}
	if err := a.publisher.PublishMessageClassified(ctx, detail); err != nil {
		a.logger.Error("classified-event publish failed", "message_id", msg.MessageID, "error", err)
		return err
	}

	return nil
}

func (a *Analyzer) recordTTL() time.Duration {
	if a.cfg.RecordTTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return a.cfg.RecordTTL
}

// actionTakenForCategory is the fixed category<->action_taken mapping a
// freshly written record starts in; the Executor's outcome update is what
// may later deviate it to FAILED without changing this field.
func actionTakenForCategory(category model.Category) model.ActionTaken {
	switch category {
	case model.CategoryTransient:
		return model.ActionTakenReplayed
	case model.CategoryPoisonPill:
		return model.ActionTakenArchived
	default:
		return model.ActionTakenEscalated
	}
}
