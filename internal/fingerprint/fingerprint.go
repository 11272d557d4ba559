// Package fingerprint computes the semantic fingerprint used to key the
// Analyzer's cross-message cache: a short stable hash over a normalized
// error identity, so that two failures differing only in timestamps, IDs,
// or magnitudes are recognized as "the same problem."
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/dlqrecover/pipeline/internal/model"
)

// Normalization patterns, applied in order. Digit runs of fewer than 3
// characters survive because none of these patterns match runs that short;
// 3-digit runs in the message, HTTP status codes like 429/503 included, are
// normalized (the separate Code field is never normalized).
var (
	uuidPattern = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)

	// RFC3339-ish timestamps: 2024-01-02T03:04:05(.123)?(Z|+00:00)?
	isoTimestampPattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?\b`)

	// Numeric value immediately followed by a unit, e.g. 5000ms, 2kb, 30s.
	numericUnitPattern = regexp.MustCompile(`(?i)\b(\d+)(ms|s|kb|mb|gb|ns|us)\b`)

	// Bare integers of 3 or more digits (not already consumed above).
	longIntegerPattern = regexp.MustCompile(`\b\d{3,}\b`)

	// Hex runs of 8 or more characters (request IDs, commit SHAs, etc).
	hexRunPattern = regexp.MustCompile(`(?i)\b[0-9a-f]{8,}\b`)

	// Collapses consecutive normalization placeholders left adjacent by
	// the substitutions above.
	collapseXPattern = regexp.MustCompile(`(?:X[\s-]*)+X`)
)

// Normalize applies the spec's value-normalization rules to a single line
// of error-message text. It is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	s = uuidPattern.ReplaceAllString(s, "X")
	s = isoTimestampPattern.ReplaceAllString(s, "X")
	s = numericUnitPattern.ReplaceAllString(s, "X$2")
	s = longIntegerPattern.ReplaceAllString(s, "X")
	s = hexRunPattern.ReplaceAllString(s, "X")
	s = collapseXPattern.ReplaceAllString(s, "X")
	return s
}

// firstLine returns the text up to the first newline, trimmed.
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// Compute derives the 16-hex-char semantic fingerprint for an error
// pattern: lowercased type, uppercased code, normalized first line of the
// message, and lowercased affected service. Stack traces, message bodies
// beyond the first line, and identifiers are never inputs.
func Compute(p model.ErrorPattern) string {
	parts := []string{
		strings.ToLower(p.Type),
		strings.ToUpper(p.Code),
		Normalize(firstLine(p.Message)),
		strings.ToLower(p.AffectedService),
	}
	joined := strings.Join(parts, "|")

	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16]
}
