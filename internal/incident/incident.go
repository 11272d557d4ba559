// Package incident posts deduplicated incident events to an external
// incident-management API for the Executor's Escalate handler, wrapped in
// a circuit breaker so a degraded incident API doesn't pile up in-flight
// requests against it.
package incident

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/dlqrecover/pipeline/internal/errorsx"
	"github.com/dlqrecover/pipeline/internal/model"
)

const (
	defaultTimeout       = 10 * time.Second
	maxResponseSizeBytes = 1 << 20
)

// Details mirrors the Escalate handler's custom-details payload
// (spec.md §4.3).
type Details struct {
	MessageID         string   `json:"message_id"`
	SourceQueue       string   `json:"source_queue"`
	ErrorType         string   `json:"error_type"`
	SimilarFailures   int      `json:"similar_failures_count"`
	RecentDeployments []string `json:"recent_deployments,omitempty"`
	RetryCount        int      `json:"retry_count"`
	Reasoning         string   `json:"classification_reasoning"`
	RecommendedAction string   `json:"recommended_action"`
}

// Request is one incident post.
type Request struct {
	Summary  string          `json:"summary"`
	Severity model.Severity  `json:"severity"`
	Source   string          `json:"source"`
	Details  Details         `json:"details"`
	DedupKey string          `json:"dedup_key"`
}

type incidentResponse struct {
	DedupKey string `json:"dedup_key"`
}

// Client posts incidents over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	logger     *slog.Logger
	breaker    *gobreaker.CircuitBreaker[string]
}

// NewClient builds an incident Client. The breaker opens after 5
// consecutive failures and probes again after 30 seconds, matching the
// reference codebase's conservative outbound-call defaults.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    "incident-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		logger:     logger,
		breaker:    gobreaker.NewCircuitBreaker[string](settings),
	}
}

// Post submits an incident and returns the dedup key the API echoed back,
// which becomes the incident identifier (spec.md §4.3). A non-2xx
// response, a network failure, or an open circuit are all reported as
// errors; the Escalate handler translates any of them into a FAILED
// outcome.
func (c *Client) Post(ctx context.Context, req Request) (string, error) {
	dedupKey, err := c.breaker.Execute(func() (string, error) {
		return c.post(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return "", fmt.Errorf("incident: %w: %w", errorsx.ErrCircuitOpen, err)
	}
	if err != nil {
		return "", err
	}
	return dedupKey, nil
}

func (c *Client) post(ctx context.Context, req Request) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("incident: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/incidents", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("incident: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("incident post failed", "error", err, "dedup_key", req.DedupKey)
		return "", fmt.Errorf("incident: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("incident post returned non-2xx",
			"status", resp.StatusCode, "dedup_key", req.DedupKey)
		return "", fmt.Errorf("incident: unexpected status %d", resp.StatusCode)
	}

	var parsed incidentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("incident: decode response: %w", err)
	}
	if parsed.DedupKey == "" {
		parsed.DedupKey = req.DedupKey
	}
	return parsed.DedupKey, nil
}

// DedupKey builds the deterministic dedup key for a systemic escalation
// (spec.md §4.3: "<project>-systemic-<source_queue>-<error_type>").
func DedupKey(project, sourceQueue, errorType string) string {
	return fmt.Sprintf("%s-systemic-%s-%s", project, sourceQueue, errorType)
}

// SourceIdentifier builds the incident's source identifier
// ("<project>-dlq-<source_queue>").
func SourceIdentifier(project, sourceQueue string) string {
	return fmt.Sprintf("%s-dlq-%s", project, sourceQueue)
}

// MapSeverity maps P1/P2/P3 to critical/error/warning, defaulting to error.
func MapSeverity(priority string) model.Severity {
	switch priority {
	case "P1":
		return model.SeverityCritical
	case "P2":
		return model.SeverityError
	case "P3":
		return model.SeverityWarning
	default:
		return model.SeverityError
	}
}
