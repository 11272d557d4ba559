// Package monitor implements the pipeline's Monitor stage: DLQ discovery,
// parallel per-queue polling, dedup/retry accounting against the ledger,
// enrichment, and publish-then-delete.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/dlqrecover/pipeline/internal/bus"
	"github.com/dlqrecover/pipeline/internal/deployment"
	"github.com/dlqrecover/pipeline/internal/errorpattern"
	"github.com/dlqrecover/pipeline/internal/ledger"
	"github.com/dlqrecover/pipeline/internal/metrics"
	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/queue"
	"github.com/dlqrecover/pipeline/internal/store"
	"github.com/dlqrecover/pipeline/internal/worker"
)

// Config tunes the Monitor's discovery/poll/enrichment behavior
// (spec.md §6).
type Config struct {
	DLQNamePattern     string
	MaxMessagesPerPoll int
	VisibilityTimeoutS int
	LongPollWaitS      int
	HardCapRetries     int
	DeploymentWindow   time.Duration
	SimilarWindow      time.Duration
	NumWorkers         int
}

// Monitor runs one discover-and-poll-all-queues invocation.
type Monitor struct {
	cfg        Config
	queue      queue.Client
	ledger     ledger.Ledger
	records    store.RecordStore
	deployments deployment.Lookup
	publisher  bus.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New builds a Monitor.
func New(cfg Config, q queue.Client, l ledger.Ledger, records store.RecordStore, deployments deployment.Lookup, publisher bus.Publisher, m *metrics.Metrics, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg: cfg, queue: q, ledger: l, records: records,
		deployments: deployments, publisher: publisher, metrics: m, logger: logger,
		now: time.Now,
	}
}

// Run discovers all matching DLQs and polls them concurrently — one
// worker-pool job per queue, per spec.md §5's "one task per DLQ, messages
// within a queue processed sequentially" model. Discovery failures yield
// an empty list rather than aborting (spec.md §4.1).
func (m *Monitor) Run(ctx context.Context) error {
	handles, err := m.queue.Discover(ctx, m.cfg.DLQNamePattern)
	if err != nil {
		m.logger.Error("queue discovery failed", "error", err)
		return nil
	}
	if len(handles) == 0 {
		return nil
	}

	jobQueue := make(chan worker.Job, len(handles))
	numWorkers := m.cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = len(handles)
	}
	wg := worker.SpawnWorkerPool(ctx, numWorkers, jobQueue, m.logger)

	for _, h := range handles {
		jobQueue <- pollJob{monitor: m, handle: h}
	}
	close(jobQueue)
	wg.Wait()

	return nil
}

// pollQueue polls one DLQ and processes every received message
// sequentially, isolating this queue's failures from the others
// (spec.md §4.1: "A queue's poll failure is isolated").
func (m *Monitor) pollQueue(ctx context.Context, handle queue.Handle) (int, error) {
	maxMessages := m.cfg.MaxMessagesPerPoll
	if maxMessages <= 0 {
		maxMessages = 10
	}
	visibilityS := m.cfg.VisibilityTimeoutS
	if visibilityS <= 0 {
		visibilityS = 300
	}
	waitS := m.cfg.LongPollWaitS
	if waitS <= 0 {
		waitS = 20
	}

	messages, err := m.queue.Receive(ctx, handle.URL, maxMessages, waitS, visibilityS)
	if err != nil {
		m.logger.Error("queue poll failed", "queue", handle.Name, "error", err)
		return 0, err
	}

	processed := 0
	for _, msg := range messages {
		if err := m.processMessage(ctx, handle, msg); err != nil {
			m.logger.Error("message processing failed", "queue", handle.Name, "message_id", msg.MessageID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (m *Monitor) processMessage(ctx context.Context, handle queue.Handle, msg queue.Message) error {
	hardCap := m.cfg.HardCapRetries
	if hardCap <= 0 {
		hardCap = 3
	}

	now := m.now()
	result, err := m.ledger.CheckAndRecord(ctx, msg.MessageID, handle.SourceName, hardCap, now)
	if err != nil {
		// CheckAndRecord already fails open internally; reaching here means
		// something unexpected happened. Proceed as if absent rather than
		// drop the message.
		m.logger.Warn("ledger check returned error despite fail-open contract", "error", err)
	}

	if result.HardCapHit {
		m.metrics.RecordLedgerHardCapHit(handle.Name)
		m.logger.Warn("retry hard cap exceeded, dropping message", "queue", handle.Name, "message_id", msg.MessageID, "retry_count", result.Entry.RetryCount)
		return m.queue.Delete(ctx, handle.URL, msg.ReceiptHandle)
	}

	enriched := m.enrich(ctx, handle, msg, result.Entry)

	if err := m.publisher.PublishMessageEnriched(ctx, enriched); err != nil {
		// Per spec.md §4.1: do not delete on publish failure; the message
		// will be re-received after the visibility timeout.
		return err
	}

	m.metrics.RecordEnriched(handle.Name)
	return m.queue.Delete(ctx, handle.URL, msg.ReceiptHandle)
}

func (m *Monitor) enrich(ctx context.Context, handle queue.Handle, msg queue.Message, entry model.LedgerEntry) model.EnrichedMessage {
	now := m.now()

	similarWindow := m.cfg.SimilarWindow
	if similarWindow <= 0 {
		similarWindow = time.Hour
	}
	similar := 0
	if count, err := m.records.CountByQueueSince(ctx, handle.SourceName, now.Add(-similarWindow)); err != nil {
		m.logger.Debug("similar-failure count query failed, using 0", "error", err)
	} else {
		similar = count - 1
		if similar < 0 {
			similar = 0
		}
	}

	deploymentWindow := m.cfg.DeploymentWindow
	if deploymentWindow <= 0 {
		deploymentWindow = 15 * time.Minute
	}
	var recentDeployments []model.Deployment
	if m.deployments != nil {
		service := errorpattern.AffectedService(handle.SourceName)
		if deps, err := m.deployments.Recent(ctx, service, deploymentWindow, now); err != nil {
			m.logger.Debug("deployment lookup failed, proceeding without it", "error", err)
		} else {
			recentDeployments = deps
		}
	}

	pattern := errorpattern.Extract(msg.Body, handle.SourceName)

	return model.EnrichedMessage{
		MessageID:               msg.MessageID,
		ReceiptToken:            msg.ReceiptHandle,
		SourceQueue:             handle.SourceName,
		SourceQueueURL:          handle.SourceURL,
		Body:                    msg.Body,
		ReceiveCount:            msg.ReceiveCount,
		FirstSeenAt:             entry.FirstSeenAt,
		LastFailedAt:            now,
		RetryCount:              entry.RetryCount,
		SimilarFailuresLastHour: similar,
		RecentDeployments:       recentDeployments,
		ErrorPattern:            pattern,
	}
}
