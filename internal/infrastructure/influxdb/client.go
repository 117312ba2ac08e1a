package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// A node writes a point per link or session transition, so batches stay
	// small and are pushed out on the flush interval rather than on size.
	nodeBatchSize     = 20
	nodeFlushInterval = 5 * time.Second

	// Points queued while the link is down. Older points are dropped first.
	nodeRetryBuffer = 500
	nodeMaxRetries  = 3
)

// Client is the node's telemetry sink. Writes are batched in the
// background and dropped once the client is closed.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu      sync.RWMutex
	closed  bool
	onError func(err error)
	// bootID tags every point so restarts of the same node are distinguishable.
	bootID string
}

// writeOptions builds the client options for cfg. Non-positive batch
// settings fall back to the node defaults.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(nodeBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := nodeFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())).
		SetRetryBufferLimit(nodeRetryBuffer).
		SetMaxRetries(nodeMaxRetries).
		SetPrecision(time.Millisecond)
}

// Connect opens a telemetry client and pings the server once. It returns
// ErrDisabled when telemetry is off in cfg.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// forwardErrors hands batch write failures to the error callback.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// live returns the write API, or nil once the client is closed.
func (c *Client) live() api.WriteAPI {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	return c.writeAPI
}

// Close flushes pending points and releases the client.
func (c *Client) Close() error {
	c.mu.Lock()
	w := c.writeAPI
	if c.closed || w == nil {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	w.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.live() == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c.live() != nil
}

// SetOnError sets the callback for batch write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// SetBootID sets the boot id tag attached to every point.
func (c *Client) SetBootID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bootID = id
}

func (c *Client) boot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bootID
}

// Flush sends queued points now. A node calls it before a restart so the
// last transitions are not lost with the batch.
func (c *Client) Flush() {
	if w := c.live(); w != nil {
		w.Flush()
	}
}
