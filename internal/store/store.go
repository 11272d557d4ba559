// Package store implements the classification record store — the
// Analyzer's audit trail, keyed by message_id with four secondary access
// patterns — and the in-process semantic cache layered in front of it.
package store

import (
	"context"
	"time"

	"github.com/dlqrecover/pipeline/internal/model"
)

// RecordStore is the classification-record persistence contract.
type RecordStore interface {
	// Put writes (or overwrites) the record keyed by MessageID. Required:
	// the Analyzer's publish step does not proceed without this succeeding.
	Put(ctx context.Context, record model.ClassificationRecord) error

	// Get looks up a record by message_id. Returns errorsx.ErrNotFound
	// when absent.
	Get(ctx context.Context, messageID string) (model.ClassificationRecord, error)

	// UpdateOutcome idempotently sets a record's terminal outcome and the
	// action-specific field an Executor handler produced. Safe to call
	// more than once for the same message_id with the same arguments.
	UpdateOutcome(ctx context.Context, messageID string, outcome model.Outcome, fields OutcomeFields) error

	// CountByQueueSince implements the ByQueue index query the Monitor's
	// enrichment step uses for similar_failures_last_hour.
	CountByQueueSince(ctx context.Context, sourceQueue string, since time.Time) (int, error)

	// ListByCategorySince implements the by-category-by-timestamp index.
	ListByCategorySince(ctx context.Context, category model.Category, since time.Time) ([]model.ClassificationRecord, error)

	// ListBySemanticHash implements the by-semantic-hash index.
	ListBySemanticHash(ctx context.Context, hash string) ([]model.ClassificationRecord, error)

	// ListByDeploymentSince implements the by-deployment-by-timestamp index.
	ListByDeploymentSince(ctx context.Context, deploymentID string, since time.Time) ([]model.ClassificationRecord, error)
}

// OutcomeFields carries the action-specific fields an Executor handler
// writes back alongside an outcome transition.
type OutcomeFields struct {
	RetryScheduledFor *time.Time
	ArchiveLocation   string
	IncidentKey       string
}
