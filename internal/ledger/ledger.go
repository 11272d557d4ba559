// Package ledger implements the Monitor's deduplication/retry ledger: a
// per (message_id, source_queue) row tracking how many times a message has
// been seen, with a hard cap beyond which the Monitor drops it as a
// runaway loop.
package ledger

import (
	"context"
	"time"

	"github.com/dlqrecover/pipeline/internal/model"
)

// CheckResult is the outcome of recording one delivery against the ledger.
type CheckResult struct {
	Entry      model.LedgerEntry
	HardCapHit bool
}

// Ledger is the Monitor's dedup/retry-accounting contract. Implementations
// MUST fail open: when the backing store is unavailable, CheckAndRecord
// returns a result as if the (message_id, source_queue) pair were absent
// (RetryCount 0, HardCapHit false) with a nil error, favoring duplicate
// work over message loss.
type Ledger interface {
	// CheckAndRecord performs the conditional read/insert/increment
	// described by the spec: absent -> insert at retry_count 0; present
	// and below hardCap -> increment and proceed; present and at or above
	// hardCap -> HardCapHit true (caller must delete the source message
	// without enrichment).
	CheckAndRecord(ctx context.Context, messageID, sourceQueue string, hardCap int, now time.Time) (CheckResult, error)
}
