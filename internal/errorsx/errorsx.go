// Package errorsx collects the sentinel errors shared across the pipeline's
// stages, so callers can branch on failure mode with errors.Is instead of
// string matching.
package errorsx

import "errors"

var (
	// ErrNotFound is returned by record-store lookups that find no row.
	ErrNotFound = errors.New("not found")

	// ErrLedgerUnavailable names an unreachable ledger backing store. The
	// Postgres ledger does not return it: it fails open, reporting the
	// message as unseen with a nil error, so the message is processed
	// rather than blocked.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrStoreUnavailable is returned by the classification record store
	// when its backing store cannot be reached. Unlike the ledger, the
	// Analyzer fails closed on this: persistence is required before a
	// classification is considered complete.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrRetryBudgetExhausted is returned by the Executor's retry handler
	// once a message's retry count has reached the configured maximum.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrInvalidClassification is returned when an LLM response fails the
	// strict JSON contract (unknown category, confidence out of range,
	// missing required field).
	ErrInvalidClassification = errors.New("invalid classification response")

	// ErrQueueNotFound names a DLQ matching the configured pattern whose
	// source queue cannot be resolved to a concrete queue URL. The SQS
	// client's Discover does not return it; it skips such queues.
	ErrQueueNotFound = errors.New("dlq not found")

	// ErrCircuitOpen is returned by the incident client when its breaker is
	// open and a call is rejected without being attempted.
	ErrCircuitOpen = errors.New("incident client circuit open")

	// ErrArchiveIncomplete is returned by the Archive handler when the
	// object-store write failed; the SNS alert is never published in this
	// case, since must-succeed-before-alert ordering is an invariant.
	ErrArchiveIncomplete = errors.New("archive write incomplete")
)
