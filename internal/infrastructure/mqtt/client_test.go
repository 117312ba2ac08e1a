package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-node/internal/session"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	ch := make(chan struct{})
	close(ch)
	return &fakeToken{err: err, done: ch}
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient stands in for a paho client.
type fakeClient struct {
	mu          sync.Mutex
	opts        *pahomqtt.ClientOptions
	connectErr  error
	hang        bool
	open        bool
	published   []published
	handlers    map[string]pahomqtt.MessageHandler
	disconnects int
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool { return c.IsConnectionOpen() }

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Connect() pahomqtt.Token {
	if c.hang {
		return pendingToken()
	}
	if c.connectErr != nil {
		return doneToken(c.connectErr)
	}
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	return doneToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	return doneToken(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
	return doneToken(nil)
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return doneToken(nil)
}

func (c *fakeClient) Unsubscribe(...string) pahomqtt.Token        { return doneToken(nil) }
func (c *fakeClient) AddRoute(string, pahomqtt.MessageHandler)    {}
func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader { return pahomqtt.ClientOptionsReader{} }

// deliver invokes the handler registered for filter.
func (c *fakeClient) deliver(filter, topic, payload string) {
	c.mu.Lock()
	cb := c.handlers[filter]
	c.mu.Unlock()
	cb(c, &fakeMessage{topic: topic, payload: []byte(payload)})
}

// loseConnection simulates paho reporting a dropped connection.
func (c *fakeClient) loseConnection() {
	c.mu.Lock()
	c.open = false
	lost := c.opts.OnConnectionLost
	c.mu.Unlock()
	lost(c, errors.New("EOF"))
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.Warn(msg) }

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// newTestTransport returns a transport whose clients are fc.
func newTestTransport(fc *fakeClient, opts Options) *Transport {
	tr := New(opts)
	tr.newClient = func(o *pahomqtt.ClientOptions) pahomqtt.Client {
		fc.mu.Lock()
		fc.opts = o
		fc.mu.Unlock()
		return fc
	}
	return tr
}

var (
	testTarget = session.Target{Host: "broker.lan", Port: 1883, ClientID: "GL-0042", Username: "node", Password: "secret"}
	testWill   = session.Will{Topic: "state/Thermo/GL-0042", Payload: []byte("0 Fail"), QoS: 1, Retain: true}
)

func connected(t *testing.T, opts Options) (*Transport, *fakeClient) {
	t.Helper()
	fc := newFakeClient()
	tr := newTestTransport(fc, opts)
	if err := tr.Connect(context.Background(), testTarget, testWill); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return tr, fc
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	tr, fc := connected(t, Options{KeepAlive: 20 * time.Second})

	if !tr.Alive() {
		t.Error("Alive() = false after Connect()")
	}

	o := fc.opts
	if len(o.Servers) != 1 || o.Servers[0].String() != "tcp://broker.lan:1883" {
		t.Errorf("Servers = %v, want tcp://broker.lan:1883", o.Servers)
	}
	if o.ClientID != "GL-0042" {
		t.Errorf("ClientID = %q, want GL-0042", o.ClientID)
	}
	if o.Username != "node" || o.Password != "secret" {
		t.Errorf("credentials = %q/%q", o.Username, o.Password)
	}
	if !o.WillEnabled || o.WillTopic != testWill.Topic || string(o.WillPayload) != "0 Fail" || !o.WillRetained || o.WillQos != 1 {
		t.Errorf("will = %v %q %q %v %d", o.WillEnabled, o.WillTopic, o.WillPayload, o.WillRetained, o.WillQos)
	}
	if o.AutoReconnect || o.ConnectRetry {
		t.Error("paho reconnection must be disabled")
	}
	if !o.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if o.KeepAlive != 20 {
		t.Errorf("KeepAlive = %d, want 20", o.KeepAlive)
	}
	if o.TLSConfig != nil && o.TLSConfig.VerifyPeerCertificate != nil {
		t.Error("unpinned target must not install a pin check")
	}
}

func TestConnectPinnedUsesTLS(t *testing.T) {
	fc := newFakeClient()
	tr := newTestTransport(fc, Options{})

	target := testTarget
	target.Port = 8883
	target.Pin = make([]byte, 20)
	if err := tr.Connect(context.Background(), target, testWill); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if got := fc.opts.Servers[0].String(); got != "ssl://broker.lan:8883" {
		t.Errorf("broker = %q, want ssl://broker.lan:8883", got)
	}
	if fc.opts.TLSConfig == nil || fc.opts.TLSConfig.VerifyPeerCertificate == nil {
		t.Error("pinned target must verify the certificate fingerprint")
	}
}

func TestConnectBadPin(t *testing.T) {
	tr := newTestTransport(newFakeClient(), Options{})
	target := testTarget
	target.Pin = []byte{1, 2}

	err := tr.Connect(context.Background(), target, testWill)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectRefused(t *testing.T) {
	fc := newFakeClient()
	fc.connectErr = errors.New("not authorised")
	tr := newTestTransport(fc, Options{})

	err := tr.Connect(context.Background(), testTarget, testWill)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if tr.Alive() {
		t.Error("Alive() = true after refused connect")
	}
}

func TestConnectContextTimeout(t *testing.T) {
	fc := newFakeClient()
	fc.hang = true
	tr := newTestTransport(fc, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tr.Connect(ctx, testTarget, testWill)
	if !errors.Is(err, ErrConnectionFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed wrapping DeadlineExceeded", err)
	}
	if fc.disconnects == 0 {
		t.Error("abandoned handshake should be disconnected")
	}
}

func TestConnectionLost(t *testing.T) {
	log := &recordingLogger{}
	tr, fc := connected(t, Options{Logger: log})

	fc.loseConnection()

	if tr.Alive() {
		t.Error("Alive() = true after connection lost")
	}
	if err := tr.Publish("a/b", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if len(log.warns) == 0 {
		t.Error("connection loss should be logged")
	}
}

func TestStaleConnectionLostIgnored(t *testing.T) {
	first := newFakeClient()
	tr := newTestTransport(first, Options{})
	if err := tr.Connect(context.Background(), testTarget, testWill); err != nil {
		t.Fatal(err)
	}
	lost := first.opts.OnConnectionLost

	second := newFakeClient()
	tr.newClient = func(o *pahomqtt.ClientOptions) pahomqtt.Client {
		second.opts = o
		return second
	}
	if err := tr.Connect(context.Background(), testTarget, testWill); err != nil {
		t.Fatal(err)
	}

	// The first client's late callback must not take down the second.
	lost(first, errors.New("late"))
	if !tr.Alive() {
		t.Error("Alive() = false after a stale connection-lost callback")
	}
	if first.disconnects == 0 {
		t.Error("previous client should be disconnected on reconnect")
	}
}

func TestDisconnect(t *testing.T) {
	tr, fc := connected(t, Options{})

	tr.Disconnect(100 * time.Millisecond)
	tr.Disconnect(0) // second call is a no-op

	if tr.Alive() {
		t.Error("Alive() = true after Disconnect()")
	}
	if fc.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", fc.disconnects)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	tr, fc := connected(t, Options{})

	if err := tr.Publish("state/Thermo/GL-0042", []byte("1 v1"), 1, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(fc.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(fc.published))
	}
	p := fc.published[0]
	if p.topic != "state/Thermo/GL-0042" || string(p.payload) != "1 v1" || !p.retained || p.qos != 1 {
		t.Errorf("published %+v", p)
	}
}

func TestPublishValidation(t *testing.T) {
	tr, _ := connected(t, Options{})

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "a/b", make([]byte, session.MaxPayloadLen+1), 1, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tr.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishDisconnected(t *testing.T) {
	tr := New(Options{})

	if err := tr.Publish("a/b", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSubscribeQueuesUntilPoll(t *testing.T) {
	tr, fc := connected(t, Options{})

	filter := "command/Thermo/GL-0042/#"
	if err := tr.Subscribe(filter, 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fc.deliver(filter, "command/Thermo/GL-0042/restart", "")
	fc.deliver(filter, "command/Thermo/GL-0042/upgrade", "Minimal")

	msgs := tr.Poll()
	if len(msgs) != 2 {
		t.Fatalf("Poll() returned %d messages, want 2", len(msgs))
	}
	if msgs[1].Topic != "command/Thermo/GL-0042/upgrade" || string(msgs[1].Payload) != "Minimal" {
		t.Errorf("second message = %+v", msgs[1])
	}
	if again := tr.Poll(); len(again) != 0 {
		t.Errorf("Poll() after drain returned %d messages", len(again))
	}
}

func TestSubscribeQueueOverflowDropsOldest(t *testing.T) {
	log := &recordingLogger{}
	tr, fc := connected(t, Options{QueueSize: 2, Logger: log})
	if err := tr.Subscribe("x/#", 0); err != nil {
		t.Fatal(err)
	}

	fc.deliver("x/#", "x/1", "")
	fc.deliver("x/#", "x/2", "")
	fc.deliver("x/#", "x/3", "")

	msgs := tr.Poll()
	if len(msgs) != 2 || msgs[0].Topic != "x/2" || msgs[1].Topic != "x/3" {
		t.Errorf("Poll() = %+v, want x/2 and x/3", msgs)
	}
	if len(log.warns) == 0 {
		t.Error("overflow should be logged")
	}
}

func TestSubscribeValidation(t *testing.T) {
	tr, _ := connected(t, Options{})

	if err := tr.Subscribe("", 1); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := tr.Subscribe("a/#", 3); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}

	tr.Disconnect(0)
	if err := tr.Subscribe("a/#", 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() while disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestTransportSatisfiesSession(t *testing.T) {
	var _ session.Transport = New(Options{})
}
