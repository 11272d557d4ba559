package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/pgpool"
)

const (
	queryLookupEntry = `
		SELECT first_seen_at, last_seen_at, retry_count
		FROM dedup_ledger
		WHERE message_id = $1 AND source_queue = $2
	`

	queryInsertEntry = `
		INSERT INTO dedup_ledger (message_id, source_queue, first_seen_at, last_seen_at, retry_count, expires_at)
		VALUES ($1, $2, $3, $3, 0, $4)
	`

	queryIncrementEntry = `
		UPDATE dedup_ledger
		SET last_seen_at = $3, retry_count = retry_count + 1
		WHERE message_id = $1 AND source_queue = $2
		RETURNING retry_count
	`
)

// PostgresLedger is the Postgres-backed Ledger implementation, built on the
// shared health-checked connection pool.
type PostgresLedger struct {
	pool *pgpool.Pool
	ttl  time.Duration
}

// NewPostgresLedger builds a Ledger with the given entry TTL (default 7
// days per the spec).
func NewPostgresLedger(pool *pgpool.Pool, ttl time.Duration) *PostgresLedger {
	return &PostgresLedger{pool: pool, ttl: ttl}
}

// CheckAndRecord implements Ledger. Any error from the pool — including an
// unhealthy pool observed before the query runs — degrades to the
// fail-open result instead of being returned to the caller, per the
// spec's single sanctioned fail-open path.
func (l *PostgresLedger) CheckAndRecord(ctx context.Context, messageID, sourceQueue string, hardCap int, now time.Time) (CheckResult, error) {
	if !l.pool.IsHealthy() {
		return failOpenResult(messageID, sourceQueue, now), nil
	}

	var firstSeen, lastSeen time.Time
	var retryCount int
	err := l.pool.Pool().QueryRow(ctx, queryLookupEntry, messageID, sourceQueue).Scan(&firstSeen, &lastSeen, &retryCount)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, insertErr := l.pool.Pool().Exec(ctx, queryInsertEntry, messageID, sourceQueue, now, now.Add(l.ttl)); insertErr != nil {
			return failOpenResult(messageID, sourceQueue, now), nil
		}
		return CheckResult{Entry: model.LedgerEntry{
			MessageID:   messageID,
			SourceQueue: sourceQueue,
			FirstSeenAt: now,
			LastSeenAt:  now,
			RetryCount:  0,
		}}, nil

	case err != nil:
		return failOpenResult(messageID, sourceQueue, now), nil

	case retryCount >= hardCap:
		return CheckResult{
			Entry: model.LedgerEntry{
				MessageID:   messageID,
				SourceQueue: sourceQueue,
				FirstSeenAt: firstSeen,
				LastSeenAt:  lastSeen,
				RetryCount:  retryCount,
			},
			HardCapHit: true,
		}, nil

	default:
		var newCount int
		if scanErr := l.pool.Pool().QueryRow(ctx, queryIncrementEntry, messageID, sourceQueue, now).Scan(&newCount); scanErr != nil {
			return failOpenResult(messageID, sourceQueue, now), nil
		}
		return CheckResult{Entry: model.LedgerEntry{
			MessageID:   messageID,
			SourceQueue: sourceQueue,
			FirstSeenAt: firstSeen,
			LastSeenAt:  now,
			RetryCount:  newCount,
		}}, nil
	}
}

func failOpenResult(messageID, sourceQueue string, now time.Time) CheckResult {
	return CheckResult{Entry: model.LedgerEntry{
		MessageID:   messageID,
		SourceQueue: sourceQueue,
		FirstSeenAt: now,
		LastSeenAt:  now,
		RetryCount:  0,
	}}
}

var _ Ledger = (*PostgresLedger)(nil)
