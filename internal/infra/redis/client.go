package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/config"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/telemetry"
)

const connectTimeout = 5 * time.Second

// Client owns the connection pool backing the persisted local state.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// Options renders the go-redis options for the local state store. The daemon serves one
// client, so the pool stays small and commands retry a few times before surfacing an error.
func Options(cfg config.RedisSettings) *redis.Options {
	opts := &redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:        4,
		MinIdleConns:    1,
		MaxRetries:      3,
		DialTimeout:     connectTimeout,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewClient connects and pings once so a misconfigured store fails startup instead of the first sign-in.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}

	logger.Info("redis connection established",
		zap.String("addr", client.Options().Addr),
		zap.Int("db", cfg.DB),
		zap.String("namespace", cfg.Namespace),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
	)

	return &Client{client: client, logger: logger}, nil
}

// Client returns the underlying go-redis client.
func (c *Client) Client() *redis.Client {
	return c.client
}

// RegisterPoolMetrics exposes connection pool statistics as gauges sampled at scrape time.
func (c *Client) RegisterPoolMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	gauges := []struct {
		name  string
		help  string
		value func(*redis.PoolStats) float64
	}{
		{"total_connections", "Connections currently held by the pool.", func(s *redis.PoolStats) float64 { return float64(s.TotalConns) }},
		{"idle_connections", "Idle connections in the pool.", func(s *redis.PoolStats) float64 { return float64(s.IdleConns) }},
		{"timeouts", "Times a caller gave up waiting PoolTimeout for a connection.", func(s *redis.PoolStats) float64 { return float64(s.Timeouts) }},
	}

	for _, g := range gauges {
		value := g.value
		if _, err := telemetry.Register(reg, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "hrms",
			Subsystem: "store_pool",
			Name:      g.name,
			Help:      g.help,
		}, func() float64 { return value(c.client.PoolStats()) })); err != nil {
			return fmt.Errorf("register redis %s: %w", g.name, err)
		}
	}
	return nil
}

// Close drains the pool.
func (c *Client) Close() error {
	c.logger.Info("closing redis connection")
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
