package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	// Used when batch_size or flush_interval is unset.
	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Logger defines the logging interface used by the client.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// WriteStats counts points since Connect.
type WriteStats struct {
	// Queued points were handed to the batch writer.
	Queued uint64
	// Dropped points arrived after Close.
	Dropped uint64
	// FailedBatches were rejected by the server or never delivered.
	FailedBatches uint64
}

// Client exports points to one bucket through the library's batched,
// non-blocking write API. A frame never waits on the network.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	logger Logger
	bucket string

	// mu guards open; writers hold it shared so Close cannot race an enqueue.
	mu   sync.RWMutex
	open bool

	queued  atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Connect pings the server and starts the batch writer.
//
// Parameters:
//   - cfg: InfluxDB section of the daemon configuration
//   - logger: receives asynchronous batch failures; nil discards them
//
// Returns:
//   - *Client: client ready for WritePointAt
//   - error: ErrDisabled, or ErrConnectionFailed if the server is unreachable
func Connect(cfg config.InfluxDBConfig, logger Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, batchOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 2*pingTimeout)
	defer cancel()
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
		logger: logger,
		bucket: cfg.Bucket,
		open:   true,
	}
	go c.drainErrors(c.writer.Errors())
	return c, nil
}

// batchOptions applies batch_size and flush_interval (seconds).
func batchOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	size := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		size = uint(cfg.BatchSize) // #nosec G115 -- checked positive
	}
	interval := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		interval = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(size).
		SetFlushInterval(uint(interval.Milliseconds())) // #nosec G115 -- positive duration
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	ok, err := influx.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnhealthy
	}
	return nil
}

// drainErrors runs until the write API closes its error channel.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		n := c.failed.Add(1)
		c.logger.Warn("influxdb batch rejected",
			"bucket", c.bucket,
			"failed_batches", n,
			"error", fmt.Errorf("%w: %w", ErrWriteFailed, err),
		)
	}
}

// Close flushes queued points and closes the connection. Later calls are
// no-ops.
func (c *Client) Close() error {
	if c == nil || c.influx == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}
	c.open = false
	c.writer.Flush()
	c.influx.Close()
	return nil
}

// HealthCheck pings the server.
//
// Returns:
//   - error: nil if healthy, ErrNotConnected after Close
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether Close has not been called yet.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Stats returns the write counters.
func (c *Client) Stats() WriteStats {
	return WriteStats{
		Queued:        c.queued.Load(),
		Dropped:       c.dropped.Load(),
		FailedBatches: c.failed.Load(),
	}
}
