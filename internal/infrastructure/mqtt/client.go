package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/session"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures a Transport. Zero values select defaults.
type Options struct {
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	// QueueSize bounds the inbound queue; the oldest message is dropped
	// when a tick falls behind.
	QueueSize int

	Logger Logger
}

// Transport implements session.Transport on paho.mqtt.golang.
//
// Each Connect builds a fresh paho client for the given target, so the
// session manager decides which broker, credentials and will apply.
// Inbound messages arrive on paho goroutines and are queued until Poll.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Transport struct {
	opts      Options
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	// client is the current paho client; gen identifies it so callbacks
	// from a replaced client are ignored.
	client    pahomqtt.Client
	gen       uint64
	connected bool
	connMu    sync.RWMutex

	inbound []session.Message
	dropped int
	inMu    sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Transport. No connection is made until Connect.
func New(opts Options) *Transport {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Transport{
		opts:      opts,
		newClient: pahomqtt.NewClient,
		logger:    opts.Logger,
	}
}

// Connect opens a session to target with will armed.
//
// It performs the following setup:
//  1. Disconnects any previous client
//  2. Builds connection options (broker URL, auth, will, TLS pin)
//  3. Waits for the handshake until ctx is done
//
// Parameters:
//   - ctx: Bounds the handshake
//   - target: Broker endpoint and credentials
//   - will: Message the broker publishes if the session is lost
//
// Returns:
//   - error: wrapping ErrConnectionFailed if the handshake fails
func (t *Transport) Connect(ctx context.Context, target session.Target, will session.Will) error {
	t.Disconnect(0)

	opts, err := buildClientOptions(target, will, t.opts.KeepAlive, t.opts.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t.connMu.Lock()
	t.gen++
	gen := t.gen
	t.connMu.Unlock()

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		t.handleDisconnect(gen, err)
	})

	client := t.newClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t.connMu.Lock()
	t.client = client
	t.connected = true
	t.connMu.Unlock()

	t.inMu.Lock()
	t.inbound = nil
	t.inMu.Unlock()
	return nil
}

// handleDisconnect is called by paho when the connection is lost.
func (t *Transport) handleDisconnect(gen uint64, err error) {
	t.connMu.Lock()
	if gen != t.gen {
		t.connMu.Unlock()
		return
	}
	t.connected = false
	t.connMu.Unlock()

	if logger := t.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
}

// Disconnect closes the session, waiting up to quiesce for in-flight
// publishes. Safe to call when not connected.
func (t *Transport) Disconnect(quiesce time.Duration) {
	t.connMu.Lock()
	client := t.client
	t.client = nil
	t.connected = false
	t.gen++
	t.connMu.Unlock()

	if client != nil {
		client.Disconnect(uint(quiesce.Milliseconds()))
	}
}

// Alive reports whether the session is still up: false once paho has
// reported the connection lost or the socket has closed.
func (t *Transport) Alive() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.connected && t.client != nil && t.client.IsConnectionOpen()
}

// current returns the live client or ErrNotConnected.
func (t *Transport) current() (pahomqtt.Client, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if !t.connected || t.client == nil {
		return nil, ErrNotConnected
	}
	return t.client, nil
}

// Poll returns and clears the inbound queue.
func (t *Transport) Poll() []session.Message {
	t.inMu.Lock()
	msgs := t.inbound
	dropped := t.dropped
	t.inbound = nil
	t.dropped = 0
	t.inMu.Unlock()

	if dropped > 0 {
		if logger := t.getLogger(); logger != nil {
			logger.Warn("MQTT inbound queue overflowed", "dropped", dropped)
		}
	}
	return msgs
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (t *Transport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (t *Transport) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}
