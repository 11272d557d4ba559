package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dlqrecover/pipeline/internal/errorsx"
	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/pgpool"
)

// PostgresRecordStore is the Postgres-backed RecordStore implementation.
type PostgresRecordStore struct {
	pool *pgpool.Pool
	ttl  time.Duration
}

// NewPostgresRecordStore builds a RecordStore with the given record TTL
// (default 30 days per the spec).
func NewPostgresRecordStore(pool *pgpool.Pool, ttl time.Duration) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool, ttl: ttl}
}

// Put implements RecordStore. Unlike the ledger's cache writes, this is
// required: the Analyzer does not publish MessageClassified if this fails.
func (s *PostgresRecordStore) Put(ctx context.Context, r model.ClassificationRecord) error {
	if !s.pool.IsHealthy() {
		return errorsx.ErrStoreUnavailable
	}

	expiresAt := r.Timestamp.Add(s.ttl)
	_, err := s.pool.Pool().Exec(ctx, queryUpsertRecord,
		r.MessageID, r.Timestamp, r.SourceQueue, r.Category, r.Confidence, r.Reasoning,
		r.ModelTag, r.Tokens.Input, r.Tokens.Output, r.ActionTaken, r.Outcome,
		r.RetryCount, r.RetryScheduledFor, nullableString(r.ArchiveLocation), nullableString(r.IncidentKey),
		nullableString(r.SuspectedDeployment), r.SimilarFailuresCount, r.SemanticHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("store: put record: %w", err)
	}
	return nil
}

// Get implements RecordStore.
func (s *PostgresRecordStore) Get(ctx context.Context, messageID string) (model.ClassificationRecord, error) {
	if !s.pool.IsHealthy() {
		return model.ClassificationRecord{}, errorsx.ErrStoreUnavailable
	}

	row := s.pool.Pool().QueryRow(ctx, queryGetRecord, messageID)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ClassificationRecord{}, errorsx.ErrNotFound
	}
	if err != nil {
		return model.ClassificationRecord{}, fmt.Errorf("store: get record: %w", err)
	}
	return r, nil
}

// UpdateOutcome implements RecordStore. It is idempotent: reissuing the
// same (messageID, outcome, fields) tuple is a no-op update.
func (s *PostgresRecordStore) UpdateOutcome(ctx context.Context, messageID string, outcome model.Outcome, fields OutcomeFields) error {
	if !s.pool.IsHealthy() {
		return errorsx.ErrStoreUnavailable
	}

	_, err := s.pool.Pool().Exec(ctx, queryUpdateOutcome,
		messageID, outcome, fields.RetryScheduledFor,
		nullableString(fields.ArchiveLocation), nullableString(fields.IncidentKey),
	)
	if err != nil {
		return fmt.Errorf("store: update outcome: %w", err)
	}
	return nil
}

// CountByQueueSince implements RecordStore. Failures degrade to 0 at the
// call site (the Monitor's enrichment step), not here: the store reports
// the real error so callers can choose to log it.
func (s *PostgresRecordStore) CountByQueueSince(ctx context.Context, sourceQueue string, since time.Time) (int, error) {
	if !s.pool.IsHealthy() {
		return 0, errorsx.ErrStoreUnavailable
	}

	var count int
	if err := s.pool.Pool().QueryRow(ctx, queryCountByQueueSince, sourceQueue, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count by queue: %w", err)
	}
	return count, nil
}

// ListByCategorySince implements RecordStore.
func (s *PostgresRecordStore) ListByCategorySince(ctx context.Context, category model.Category, since time.Time) ([]model.ClassificationRecord, error) {
	return s.queryList(ctx, queryListByCategorySince, category, since)
}

// ListBySemanticHash implements RecordStore.
func (s *PostgresRecordStore) ListBySemanticHash(ctx context.Context, hash string) ([]model.ClassificationRecord, error) {
	return s.queryList(ctx, queryListBySemanticHash, hash)
}

// ListByDeploymentSince implements RecordStore.
func (s *PostgresRecordStore) ListByDeploymentSince(ctx context.Context, deploymentID string, since time.Time) ([]model.ClassificationRecord, error) {
	return s.queryList(ctx, queryListByDeploymentSince, deploymentID, since)
}

func (s *PostgresRecordStore) queryList(ctx context.Context, query string, args ...interface{}) ([]model.ClassificationRecord, error) {
	if !s.pool.IsHealthy() {
		return nil, errorsx.ErrStoreUnavailable
	}

	rows, err := s.pool.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list query: %w", err)
	}
	defer rows.Close()

	var records []model.ClassificationRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// rowScanner abstracts pgx.Row / pgx.Rows, both of which implement Scan.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (model.ClassificationRecord, error) {
	var r model.ClassificationRecord
	var archiveLocation, incidentKey, suspectedDeployment *string

	err := row.Scan(
		&r.MessageID, &r.Timestamp, &r.SourceQueue, &r.Category, &r.Confidence, &r.Reasoning,
		&r.ModelTag, &r.Tokens.Input, &r.Tokens.Output, &r.ActionTaken, &r.Outcome,
		&r.RetryCount, &r.RetryScheduledFor, &archiveLocation, &incidentKey,
		&suspectedDeployment, &r.SimilarFailuresCount, &r.SemanticHash,
	)
	if err != nil {
		return model.ClassificationRecord{}, err
	}

	if archiveLocation != nil {
		r.ArchiveLocation = *archiveLocation
	}
	if incidentKey != nil {
		r.IncidentKey = *incidentKey
	}
	if suspectedDeployment != nil {
		r.SuspectedDeployment = *suspectedDeployment
	}
	return r, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ RecordStore = (*PostgresRecordStore)(nil)
