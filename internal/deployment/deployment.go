// Package deployment looks up recent deployments for a service within a
// configurable trailing window, feeding the Monitor's enrichment step and
// the Analyzer's deployment-correlation heuristic.
package deployment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/dlqrecover/pipeline/internal/model"
)

// defaultRPS caps outbound calls to the deployment-tracking API so a
// discovery run across many DLQs can't burst-overwhelm it.
const defaultRPS = 20

// Lookup is the recent-deployments contract.
type Lookup interface {
	// Recent returns deployments to service within window before now.
	Recent(ctx context.Context, service string, window time.Duration, now time.Time) ([]model.Deployment, error)
}

// HTTPLookup calls a deployment-tracking API over HTTP, authenticating
// with an OAuth2 client-credentials flow the way the reference codebase
// authenticates its own outbound service calls.
type HTTPLookup struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config configures the OAuth2 client-credentials flow and target API.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// NewHTTPLookup builds a Lookup backed by an oauth2.TokenSource-wrapped
// HTTP client: the client transparently acquires and refreshes the
// client-credentials token per request, so this package carries none of
// the bespoke token-caching logic a manual implementation would need.
func NewHTTPLookup(cfg Config) *HTTPLookup {
	ccConfig := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := ccConfig.Client(context.Background())
	httpClient.Timeout = timeout

	return &HTTPLookup{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(defaultRPS), 1),
	}
}

type deploymentsResponse struct {
	Deployments []deploymentDTO `json:"deployments"`
}

type deploymentDTO struct {
	ID         string    `json:"id"`
	Version    string    `json:"version"`
	DeployedAt time.Time `json:"deployed_at"`
	Author     string    `json:"author"`
}

// Recent implements Lookup.
func (l *HTTPLookup) Recent(ctx context.Context, service string, window time.Duration, now time.Time) ([]model.Deployment, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("deployment: rate limit wait: %w", err)
		}
	}

	since := now.Add(-window)
	url := fmt.Sprintf("%s/deployments?service=%s&since=%s", l.baseURL, service, since.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("deployment: build request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deployment: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deployment: unexpected status %d", resp.StatusCode)
	}

	var parsed deploymentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("deployment: decode response: %w", err)
	}

	deployments := make([]model.Deployment, 0, len(parsed.Deployments))
	for _, d := range parsed.Deployments {
		if d.DeployedAt.Before(since) {
			continue
		}
		deployments = append(deployments, model.Deployment{
			ID:         d.ID,
			Version:    d.Version,
			DeployedAt: d.DeployedAt,
			Author:     d.Author,
		})
	}
	return deployments, nil
}

var _ Lookup = (*HTTPLookup)(nil)
