// Package executor implements the pipeline's Executor stage: it consumes
// a MessageClassified event and dispatches to the Retry, Archive, or
// Escalate handler named by the classification's recommended action,
// writing the handler's outcome back to the classification record.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dlqrecover/pipeline/internal/alert"
	"github.com/dlqrecover/pipeline/internal/bus"
	"github.com/dlqrecover/pipeline/internal/errorsx"
	"github.com/dlqrecover/pipeline/internal/incident"
	"github.com/dlqrecover/pipeline/internal/metrics"
	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/objectstore"
	"github.com/dlqrecover/pipeline/internal/queue"
	"github.com/dlqrecover/pipeline/internal/store"
)

// Config tunes retry backoff and the Executor's own hard cap — a
// separate, generally higher, ceiling than the recommendation's fixed
// max_retries of 3 (spec.md §4.2 vs §4.3).
type Config struct {
	MaxRetriesExecutor int
	BackoffBaseS       int
	BackoffMaxS        int
	Project            string
}

// Executor dispatches classified messages to their action handler.
type Executor struct {
	cfg         Config
	queue       queue.Client
	objectStore *objectstore.Store
	alerts      *alert.Publisher
	incidents   *incident.Client
	records     store.RecordStore
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// New builds an Executor.
func New(cfg Config, q queue.Client, objectStore *objectstore.Store, alerts *alert.Publisher, incidents *incident.Client, records store.RecordStore, m *metrics.Metrics, logger *slog.Logger) *Executor {
	return &Executor{
		cfg: cfg, queue: q, objectStore: objectStore, alerts: alerts,
		incidents: incidents, records: records, metrics: m, logger: logger,
		now: time.Now,
	}
}

// Handle dispatches detail to the handler matching its recommended
// action and writes the outcome back to the classification record.
func (e *Executor) Handle(ctx context.Context, detail bus.ClassifiedDetail) error {
	var (
		outcome model.Outcome
		fields  store.OutcomeFields
		err     error
	)

	switch detail.Recommended.Action {
	case model.ActionReplay:
		outcome, fields, err = e.handleReplay(ctx, detail)
	case model.ActionArchive:
		outcome, fields, err = e.handleArchive(ctx, detail)
	case model.ActionEscalate:
		outcome, fields, err = e.handleEscalate(ctx, detail)
	default:
		outcome, fields, err = model.OutcomeFailed, store.OutcomeFields{}, fmt.Errorf("executor: unknown action %q", detail.Recommended.Action)
	}

	e.metrics.RecordAction(string(detail.Recommended.Action), string(outcome))

	if updateErr := e.records.UpdateOutcome(ctx, detail.Message.MessageID, outcome, fields); updateErr != nil {
		e.logger.Error("outcome write-back failed", "message_id", detail.Message.MessageID, "error", updateErr)
		if err == nil {
			err = updateErr
		}
	}

	return err
}

// handleReplay re-enqueues the message onto its original source queue
// with the computed backoff delay, unless the Executor's own (higher)
// hard cap has been reached. That hard cap is a second belt-and-braces
// guard behind the Ledger's — it fails the outcome outright rather than
// escalating, since an escalation here would paper over a retry budget
// that was already exhausted once (spec.md §4.3 "Retry handler").
func (e *Executor) handleReplay(ctx context.Context, detail bus.ClassifiedDetail) (model.Outcome, store.OutcomeFields, error) {
	hardCap := e.cfg.MaxRetriesExecutor
	if hardCap <= 0 {
		hardCap = 5
	}
	if detail.Message.RetryCount >= hardCap {
		return model.OutcomeFailed, store.OutcomeFields{}, fmt.Errorf("executor: retry hard cap exceeded: max retries: %w", errorsx.ErrRetryBudgetExhausted)
	}

	delay := time.Duration(e.backoffDelay(detail.Message.RetryCount)) * time.Second
	e.metrics.RecordRetryDelay(detail.Message.SourceQueue, int(delay.Seconds()))

	attrs := map[string]string{
		"retryCount":             fmt.Sprintf("%d", detail.Message.RetryCount+1),
		"originalMessageId":      detail.Message.MessageID,
		"classificationCategory": string(detail.Classification.Category),
	}

	if err := e.queue.SendWithDelay(ctx, detail.Message.SourceQueueURL, detail.Message.Body, attrs, delay); err != nil {
		return model.OutcomeFailed, store.OutcomeFields{}, fmt.Errorf("executor: replay send failed: %w", err)
	}

	scheduledFor := e.now().Add(delay)
	return model.OutcomeSuccess, store.OutcomeFields{RetryScheduledFor: &scheduledFor}, nil
}

// handleArchive writes the message to object storage then publishes the
// required alert. The archive write must succeed before the alert is
// attempted; alert failure fails the outcome even though the archive
// itself succeeded (spec.md §4.3 "Archive handler").
func (e *Executor) handleArchive(ctx context.Context, detail bus.ClassifiedDetail) (model.Outcome, store.OutcomeFields, error) {
	now := e.now()
	entry := objectstore.ArchiveEntry{
		Message:        detail.Message,
		Classification: detail.Classification,
		ArchivedAt:     now,
		Reasoning:      detail.Classification.Reasoning,
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return model.OutcomeFailed, store.OutcomeFields{}, fmt.Errorf("executor: encode archive entry: %w", err)
	}

	location, err := e.objectStore.Put(ctx, entry, body)
	if err != nil {
		return model.OutcomeFailed, store.OutcomeFields{}, fmt.Errorf("executor: %w: %w", errorsx.ErrArchiveIncomplete, err)
	}
	fields := store.OutcomeFields{ArchiveLocation: location}

	if err := e.alerts.Publish(ctx, detail.Message.SourceQueue, location, detail.Message.ErrorPattern.Message); err != nil {
		return model.OutcomeFailed, fields, fmt.Errorf("executor: archive alert failed: %w", err)
	}

	return model.OutcomeSuccess, fields, nil
}

// handleEscalate posts a deduplicated incident. Non-2xx responses and
// network failures (surfaced through the circuit breaker inside
// internal/incident) both fail the outcome (spec.md §4.3 "Escalate
// handler").
func (e *Executor) handleEscalate(ctx context.Context, detail bus.ClassifiedDetail) (model.Outcome, store.OutcomeFields, error) {
	project := e.cfg.Project
	if project == "" {
		project = "dlqrecover"
	}

	req := incident.Request{
		Summary:  fmt.Sprintf("%s failures in %s", detail.Classification.Category, detail.Message.SourceQueue),
		Severity: incident.MapSeverity(string(detail.Recommended.Severity)),
		Source:   incident.SourceIdentifier(project, detail.Message.SourceQueue),
		DedupKey: incident.DedupKey(project, detail.Message.SourceQueue, detail.Message.ErrorPattern.Type),
		Details: incident.Details{
			MessageID:         detail.Message.MessageID,
			SourceQueue:       detail.Message.SourceQueue,
			ErrorType:         detail.Message.ErrorPattern.Type,
			SimilarFailures:   detail.Message.SimilarFailuresLastHour,
			RecentDeployments: deploymentIDs(detail.Message.RecentDeployments),
			RetryCount:        detail.Message.RetryCount,
			Reasoning:         detail.Classification.Reasoning,
			RecommendedAction: string(detail.Recommended.Action),
		},
	}

	dedupKey, err := e.incidents.Post(ctx, req)
	if err != nil {
		return model.OutcomeFailed, store.OutcomeFields{}, fmt.Errorf("executor: incident post failed: %w", err)
	}

	return model.OutcomeSuccess, store.OutcomeFields{IncidentKey: dedupKey}, nil
}

// backoffDelay mirrors internal/classifier's min(30*2^retryCount, 900)
// formula; the Executor needs its own copy since it does not depend on
// internal/classifier for anything but the category->action mapping
// already applied upstream by the Analyzer.
func (e *Executor) backoffDelay(retryCount int) int {
	base := e.cfg.BackoffBaseS
	if base <= 0 {
		base = 30
	}
	cap := e.cfg.BackoffMaxS
	if cap <= 0 {
		cap = 900
	}
	if retryCount < 0 {
		retryCount = 0
	}
	delay := float64(base) * math.Pow(2, float64(retryCount))
	if delay > float64(cap) {
		delay = float64(cap)
	}
	return int(delay)
}

func deploymentIDs(deployments []model.Deployment) []string {
	out := make([]string, len(deployments))
	for i, d := range deployments {
		out[i] = d.ID
	}
	return out
}
