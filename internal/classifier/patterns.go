package classifier

import (
	"regexp"

	"github.com/dlqrecover/pipeline/internal/model"
)

// patternRule is one entry of the ordered heuristic pattern-match table.
// The first rule whose regexp matches the message, and whose Confidence
// meets the configured threshold, wins.
type patternRule struct {
	name       string
	pattern    *regexp.Regexp
	category   model.Category
	confidence float64
}

// patternTable is checked in order; network/rate-limit/throttle patterns
// resolve TRANSIENT, null-deref/parse/schema/type/zero-div/invalid-argument
// patterns resolve POISON_PILL.
var patternTable = []patternRule{
	{"network_timeout", regexp.MustCompile(`(?i)\b(timed?\s?out|timeout|etimedout|econnreset|econnrefused|socket hang up)\b`), model.CategoryTransient, 0.96},
	{"rate_limit", regexp.MustCompile(`(?i)\b(rate.?limit(ed)?|too many requests|429)\b`), model.CategoryTransient, 0.94},
	{"throttle", regexp.MustCompile(`(?i)\b(throttl(ed|ing)|service unavailable|503|slow.?down)\b`), model.CategoryTransient, 0.90},
	{"connection_refused", regexp.MustCompile(`(?i)\b(connection refused|connection reset|no route to host|dns resolution failed)\b`), model.CategoryTransient, 0.88},
	{"null_deref", regexp.MustCompile(`(?i)\b(nullpointerexception|null reference|cannot read propert(y|ies) (?:'[^']*' )?of (null|undefined)|nil pointer dereference)\b`), model.CategoryPoisonPill, 0.98},
	{"parse_error", regexp.MustCompile(`(?i)\b(json ?parse ?error|unexpected token|syntax ?error|unmarshal(l)?ing|malformed (json|payload|body))\b`), model.CategoryPoisonPill, 0.93},
	{"schema_violation", regexp.MustCompile(`(?i)\b(schema validation failed|missing required field|does not match schema)\b`), model.CategoryPoisonPill, 0.91},
	{"type_error", regexp.MustCompile(`(?i)\b(typeerror|type mismatch|cannot convert|invalid type)\b`), model.CategoryPoisonPill, 0.89},
	{"zero_division", regexp.MustCompile(`(?i)\b(division by zero|divide by zero|zerodivisionerror)\b`), model.CategoryPoisonPill, 0.97},
	{"invalid_argument", regexp.MustCompile(`(?i)\b(invalid argument|illegalargumentexception|validationerror)\b`), model.CategoryPoisonPill, 0.86},
}

// matchPattern returns the first pattern-table rule matching message,
// provided its confidence meets threshold, and reports whether such a rule
// was found; a match whose confidence is below threshold reports false.
func matchPattern(message string, threshold float64) (patternRule, bool) {
	for _, rule := range patternTable {
		if rule.pattern.MatchString(message) && rule.confidence >= threshold {
			return rule, true
		}
	}
	return patternRule{}, false
}
