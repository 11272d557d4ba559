// Package pgpool provides a health-checked, auto-reconnecting Postgres
// connection pool shared by the ledger and the classification record
// store, the pipeline's only two stateful backing stores.
package pgpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dlqrecover/pipeline/internal/security"
)

// Config configures a Pool.
type Config struct {
	DatabaseURL         string
	MaxConns            int32
	MinConns            int32
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
	Logger              *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 1
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pool wraps pgxpool.Pool with a background health-check loop and
// exponential-backoff reconnect, mirroring a pattern proven on another
// pgx-backed store in this codebase's lineage.
type Pool struct {
	pool   *pgxpool.Pool
	config Config
	logger *slog.Logger

	healthy atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	reconnectMu    sync.Mutex
	lastReconnect  time.Time
	reconnectDelay time.Duration
}

// New connects to Postgres and starts the background health-check loop.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	cfg.applyDefaults()

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		config:         cfg,
		logger:         cfg.Logger,
		ctx:            poolCtx,
		cancel:         cancel,
		reconnectDelay: time.Second,
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pgpool: invalid database url: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.HealthCheckPeriod = cfg.HealthCheckInterval
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	connectCtx, connectCancel := context.WithTimeout(poolCtx, cfg.ConnectTimeout)
	defer connectCancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pgpool: connect failed: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		cancel()
		return nil, fmt.Errorf("pgpool: ping failed: %w", err)
	}

	p.pool = pool
	p.healthy.Store(true)

	p.wg.Add(1)
	go p.healthCheckLoop()

	p.logger.Info("postgres pool initialized",
		"max_conns", cfg.MaxConns,
		"min_conns", cfg.MinConns,
		"database", security.MaskDatabaseURL(cfg.DatabaseURL),
	)

	return p, nil
}

// Pool returns the underlying pgxpool.Pool for issuing queries.
func (p *Pool) Pool() *pgxpool.Pool {
	return p.pool
}

// IsHealthy reports the pool's last observed health-check result. Callers
// on the fail-open path (the ledger) check this before treating an
// unavailable pool as "absent" rather than blocking.
func (p *Pool) IsHealthy() bool {
	return p.healthy.Load()
}

// Close stops the health-check loop and closes the pool.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		p.logger.Warn("postgres pool health-check goroutine did not stop within timeout")
	}

	if p.pool != nil {
		p.pool.Close()
	}
	p.logger.Info("postgres pool closed")
}

func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.performHealthCheck()
		}
	}
}

func (p *Pool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	var result int
	err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		wasHealthy := p.healthy.Swap(false)
		if wasHealthy {
			p.logger.Error("postgres health check failed", "error", err)
		}
		p.tryReconnect()
		return
	}

	wasUnhealthy := !p.healthy.Swap(true)
	if wasUnhealthy {
		p.logger.Info("postgres connection restored")
		p.reconnectDelay = time.Second
	}
}

func (p *Pool) tryReconnect() {
	p.reconnectMu.Lock()
	defer p.reconnectMu.Unlock()

	if time.Since(p.lastReconnect) < p.reconnectDelay {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.config.ConnectTimeout)
	defer cancel()

	err := p.pool.Ping(ctx)
	p.lastReconnect = time.Now().UTC()

	if err != nil {
		p.reconnectDelay = minDuration(p.reconnectDelay*2, 30*time.Second)
		p.logger.Error("postgres reconnect failed", "error", err, "next_delay", p.reconnectDelay)
		return
	}

	p.healthy.Store(true)
	p.reconnectDelay = time.Second
	p.logger.Info("postgres reconnect successful")
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
