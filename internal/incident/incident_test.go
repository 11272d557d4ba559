package incident

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlqrecover/pipeline/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_Post_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(incidentResponse{DedupKey: req.DedupKey})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", testLogger())
	dedupKey, err := c.Post(context.Background(), Request{
		Summary:  "spike",
		Severity: model.SeverityCritical,
		Source:   "proj-dlq-orders",
		DedupKey: "proj-systemic-orders-dlq-NetworkError",
	})
	require.NoError(t, err)
	assert.Equal(t, "proj-systemic-orders-dlq-NetworkError", dedupKey)
}

func TestClient_Post_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", testLogger())
	_, err := c.Post(context.Background(), Request{DedupKey: "x"})
	require.Error(t, err)
}

func TestDedupKey(t *testing.T) {
	got := DedupKey("proj", "orders-dlq", "NetworkError")
	assert.Equal(t, "proj-systemic-orders-dlq-NetworkError", got)
}

func TestSourceIdentifier(t *testing.T) {
	assert.Equal(t, "proj-dlq-orders-dlq", SourceIdentifier("proj", "orders-dlq"))
}

func TestMapSeverity(t *testing.T) {
	assert.Equal(t, model.SeverityCritical, MapSeverity("P1"))
	assert.Equal(t, model.SeverityError, MapSeverity("P2"))
	assert.Equal(t, model.SeverityWarning, MapSeverity("P3"))
	assert.Equal(t, model.SeverityError, MapSeverity("unknown"))
}
