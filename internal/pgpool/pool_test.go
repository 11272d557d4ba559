package pgpool

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), Config{DatabaseURL: "not-a-url", ConnectTimeout: time.Second})
	assert.Error(t, err)
}

func TestNew_MissingURLUnreachable(t *testing.T) {
	_, err := New(context.Background(), Config{DatabaseURL: "postgres://localhost:1/nonexistent", ConnectTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestPool_IsHealthy_Transitions(t *testing.T) {
	p := &Pool{}
	p.healthy.Store(true)
	assert.True(t, p.IsHealthy())

	p.healthy.Store(false)
	assert.False(t, p.IsHealthy())
}

func TestPool_Close_Idempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config: Config{Logger: testLogger()},
		logger: testLogger(),
		ctx:    ctx,
		cancel: cancel,
	}

	p.Close()
	assert.True(t, p.closed.Load())
	p.Close() // no-op, must not panic
	assert.True(t, p.closed.Load())
}

func TestMinDuration(t *testing.T) {
	assert.Equal(t, time.Second, minDuration(time.Second, 2*time.Second))
	assert.Equal(t, time.Second, minDuration(2*time.Second, time.Second))
	assert.Equal(t, 30*time.Second, minDuration(40*time.Second, 30*time.Second))
}

func TestPool_ConcurrentHealthReads(t *testing.T) {
	p := &Pool{}
	p.healthy.Store(true)

	var wg sync.WaitGroup
	results := make([]bool, 500)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = p.IsHealthy()
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.True(t, r)
	}
}

// TestNew_Integration requires a reachable Postgres instance and is skipped
// unless DLQRECOVER_TEST_DATABASE_URL is set.
func TestNew_Integration(t *testing.T) {
	dbURL := os.Getenv("DLQRECOVER_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("DLQRECOVER_TEST_DATABASE_URL not set, skipping integration test")
	}

	pool, err := New(context.Background(), Config{
		DatabaseURL:         dbURL,
		MaxConns:            5,
		MinConns:            1,
		HealthCheckInterval: time.Second,
		ConnectTimeout:      2 * time.Second,
	})
	require.NoError(t, err)
	defer pool.Close()

	assert.True(t, pool.IsHealthy())

	var result int
	err = pool.Pool().QueryRow(context.Background(), "SELECT 1").Scan(&result)
	require.NoError(t, err)
	assert.Equal(t, 1, result)
}

