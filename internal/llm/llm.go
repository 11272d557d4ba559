// Package llm wraps the Anthropic client for the Analyzer's classification
// call: a strict JSON-only request/response contract, low temperature, and
// a hard timeout, with every failure mode funneled to the caller's
// conservative fallback rather than "repaired."
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dlqrecover/pipeline/internal/errorsx"
	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/ratelimit"
)

// Request is the classification prompt's structured inputs. Building the
// actual prompt text (and PII redaction) is the classifier package's job;
// this package only knows how to turn a Request into one Anthropic call.
type Request struct {
	ErrorType          string
	ErrorCode          string
	Message            string
	StackTop           []string
	RetryCount         int
	SimilarFailures    int
	AffectedService    string
	SourceQueue        string
	RecentDeployments  []string
}

// Response is the parsed, validated classification.
type Response struct {
	Category   model.Category
	Confidence float64
	Reasoning  string
	Tokens     model.TokenUsage
}

const systemPrompt = `You are a failure classification engine for a dead-letter-queue recovery pipeline.
Classify the failure into exactly one category: TRANSIENT, POISON_PILL, or SYSTEMIC.
Respond with a single JSON object and nothing else: {"category": "...", "confidence": 0.0, "reasoning": "..."}.
Do not wrap the JSON in markdown fencing unless unavoidable; if you do, it must still be the only content.`

// Classifier is the Analyzer's LLM classification contract.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Response, error)
}

// anthropicAPI is the subset of the Anthropic client this package depends
// on, narrowed for testability.
type anthropicAPI interface {
	CreateMessage(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64, temperature float64) (text string, usage model.TokenUsage, err error)
}

// AnthropicClassifier classifies failures via the Anthropic Messages API.
type AnthropicClassifier struct {
	api         anthropicAPI
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	limiter     *ratelimit.TimeBasedRateLimiter
	minInterval time.Duration
}

// rateLimitKey is the single TimeBasedRateLimiter key this package uses —
// there is only one outbound Anthropic credential, so no per-credential or
// per-model keying is needed.
const rateLimitKey = "anthropic"

// NewAnthropicClassifier builds a Classifier. temperature is clamped to
// 0.2 per the spec's requirement that the call use temperature <= 0.2.
// rps caps the outbound call rate against the account's Anthropic quota;
// rps <= 0 disables rate limiting.
func NewAnthropicClassifier(api anthropicAPI, maxTokens int64, temperature float64, timeout time.Duration, rps float64) *AnthropicClassifier {
	if temperature > 0.2 {
		temperature = 0.2
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var minInterval time.Duration
	if rps > 0 {
		minInterval = time.Duration(float64(time.Second) / rps)
	}
	return &AnthropicClassifier{
		api: api, maxTokens: maxTokens, temperature: temperature, timeout: timeout,
		limiter: ratelimit.NewTimeBasedRateLimiter(), minInterval: minInterval,
	}
}

// Classify builds the prompt, calls the model under the configured
// timeout, and validates the strict JSON contract. Any failure — network
// error, timeout, or a response that doesn't validate — is returned as an
// error; the caller (internal/classifier) is responsible for taking the
// conservative SYSTEMIC fallback rather than retrying or repairing output.
func (c *AnthropicClassifier) Classify(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx, rateLimitKey, c.minInterval); err != nil {
		return Response{}, fmt.Errorf("llm: rate limit wait: %w", err)
	}

	userPrompt := buildUserPrompt(req)

	text, usage, err := c.api.CreateMessage(ctx, systemPrompt, userPrompt, c.maxTokens, c.temperature)
	if err != nil {
		return Response{}, fmt.Errorf("llm: classify call failed: %w", err)
	}

	parsed, err := parseResponse(text)
	if err != nil {
		return Response{}, fmt.Errorf("llm: invalid response: %w: %w", errorsx.ErrInvalidClassification, err)
	}
	parsed.Tokens = usage
	return parsed, nil
}

func buildUserPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "error_type: %s\n", req.ErrorType)
	fmt.Fprintf(&sb, "error_code: %s\n", req.ErrorCode)
	fmt.Fprintf(&sb, "message: %s\n", req.Message)
	if len(req.StackTop) > 0 {
		fmt.Fprintf(&sb, "stack_top: %s\n", strings.Join(req.StackTop, " | "))
	}
	fmt.Fprintf(&sb, "retry_count: %d\n", req.RetryCount)
	fmt.Fprintf(&sb, "similar_failures_last_hour: %d\n", req.SimilarFailures)
	fmt.Fprintf(&sb, "affected_service: %s\n", req.AffectedService)
	fmt.Fprintf(&sb, "source_queue: %s\n", req.SourceQueue)
	if len(req.RecentDeployments) > 0 {
		fmt.Fprintf(&sb, "recent_deployments: %s\n", strings.Join(req.RecentDeployments, " | "))
	}
	return sb.String()
}

type rawResponse struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseResponse finds the first JSON object in text — tolerating markdown
// fencing around it — and validates it against the strict contract.
func parseResponse(text string) (Response, error) {
	obj := extractFirstJSONObject(text)
	if obj == "" {
		return Response{}, fmt.Errorf("no JSON object found in response")
	}

	var raw rawResponse
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Response{}, fmt.Errorf("malformed JSON: %w", err)
	}

	category := model.Category(raw.Category)
	switch category {
	case model.CategoryTransient, model.CategoryPoisonPill, model.CategorySystemic:
	default:
		return Response{}, fmt.Errorf("unknown category %q", raw.Category)
	}

	if raw.Confidence < 0 || raw.Confidence > 1 {
		return Response{}, fmt.Errorf("confidence %v out of range [0,1]", raw.Confidence)
	}

	if strings.TrimSpace(raw.Reasoning) == "" {
		return Response{}, fmt.Errorf("reasoning is empty")
	}

	return Response{Category: category, Confidence: raw.Confidence, Reasoning: raw.Reasoning}, nil
}

// extractFirstJSONObject scans text for the first balanced {...} span,
// tolerating markdown code fences around it.
func extractFirstJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

var _ Classifier = (*AnthropicClassifier)(nil)
