package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/scheduler"
	"github.com/nerrad567/gray-logic-node/internal/settings"
)

// Default tunables.
const (
	DefaultBackoffFloor   = time.Second
	DefaultBackoffCap     = 30 * time.Second
	DefaultFailoverAfter  = 2 * time.Minute
	DefaultConnectTimeout = 10 * time.Second
	DefaultTeardownDelay  = 100 * time.Millisecond
	DefaultQoS            = 1

	plainPort  = 1883
	securePort = 8883
)

// Router events delivered through Notifier.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Phase is the session connection phase.
type Phase int

// Session phases.
const (
	Closed Phase = iota
	Connecting
	Open
)

// String returns the phase name.
func (s Phase) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Config is the read side of the settings store.
type Config interface {
	String(tag string) string
	Bytes(tag string) []byte
	Int(tag string) int
}

// LinkControl lets the session ask the link to re-associate.
type LinkControl interface {
	Drop(reason string)
}

// Notifier receives synthetic session transitions; broker is the active host.
type Notifier interface {
	Notify(event, broker string)
}

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Manager.
type Options struct {
	Transport Transport
	Config    Config
	Identity  *identity.Identity
	Scheduler *scheduler.Scheduler
	Link      LinkControl
	Notifier  Notifier

	// Info returns the diagnostic snapshot published after connect.
	Info func() any

	// QoS is the default publish and subscribe level, 0 to 2.
	QoS            byte
	BackoffFloor   time.Duration
	BackoffCap     time.Duration
	FailoverAfter  time.Duration
	ConnectTimeout time.Duration
	TeardownDelay  time.Duration

	Logger Logger
}

// Manager owns the session. Not safe for concurrent use; it is driven by
// the supervisor tick.
type Manager struct {
	tr     Transport
	cfg    Config
	id     *identity.Identity
	sched  *scheduler.Scheduler
	link   LinkControl
	notify Notifier
	info   func() any
	opts   Options
	logger Logger

	state    Phase
	held     bool
	notified bool
	backup   bool
	broker   string
	backoff  time.Duration
	retryAt  scheduler.Deadline
	atCap    scheduler.Deadline
	attempts int

	now     uint32
	linkUp  bool
	started bool
	okAt    uint32
	latched bool
}

// NewManager creates a Manager in the Closed state.
func NewManager(opts Options) *Manager {
	if opts.BackoffFloor <= 0 {
		opts.BackoffFloor = DefaultBackoffFloor
	}
	if opts.BackoffCap < opts.BackoffFloor {
		opts.BackoffCap = DefaultBackoffCap
	}
	if opts.FailoverAfter <= 0 {
		opts.FailoverAfter = DefaultFailoverAfter
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.TeardownDelay <= 0 {
		opts.TeardownDelay = DefaultTeardownDelay
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Manager{
		tr:      opts.Transport,
		cfg:     opts.Config,
		id:      opts.Identity,
		sched:   opts.Scheduler,
		link:    opts.Link,
		notify:  opts.Notifier,
		info:    opts.Info,
		opts:    opts,
		logger:  opts.Logger,
		backoff: opts.BackoffFloor,
	}
}

// SetLogger replaces the logger.
func (m *Manager) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	m.logger = l
}

// SetNotifier replaces the transition notifier.
func (m *Manager) SetNotifier(n Notifier) { m.notify = n }

// Tick drives the session toward Open and returns the inbound messages
// queued since the previous tick.
func (m *Manager) Tick(now uint32, linkUp bool) []Message {
	m.now = now
	m.linkUp = linkUp
	if !m.started {
		m.started = true
		m.okAt = now
	}
	defer m.checkDownLimit(now)

	if m.cfg.String(settings.TagMQTTHost) == "" {
		if m.state == Open {
			m.lost("no broker configured")
		}
		m.state = Closed
		return nil
	}

	if m.state == Open {
		if !m.tr.Alive() {
			m.lost("heartbeat failed")
			return nil
		}
		m.okAt = now
		return m.tr.Poll()
	}

	if m.held || !linkUp {
		return nil
	}
	if m.retryAt.IsSet() && !m.retryAt.Due(now) {
		return nil
	}
	if err := m.connect(false); err != nil {
		m.failed(now, err)
		return nil
	}
	return m.tr.Poll()
}

// lost handles an Open session going away. The next tick reconnects.
func (m *Manager) lost(reason string) {
	m.logger.Warn("session lost", "broker", m.broker, "reason", reason)
	m.state = Connecting
	m.retryAt = scheduler.At(m.now, 0)
	m.tr.Disconnect(0)
	m.emit(EventDisconnect)
}

// emit notifies connect and disconnect transitions. A disconnect is only
// reported after a connect.
func (m *Manager) emit(event string) {
	up := event == EventConnect
	if up == m.notified {
		return
	}
	m.notified = up
	if m.notify != nil {
		m.notify.Notify(event, m.broker)
	}
}

// target returns the active broker endpoint.
func (m *Manager) target() Target {
	t := Target{ClientID: m.id.Hostname()}
	if m.backup {
		t.Host = m.cfg.String(settings.TagMQTTHost2)
		t.Pin = m.pin(settings.TagMQTT2SHA1)
		t.Port = defaultPort(t.Pin)
		return t
	}
	t.Host = m.cfg.String(settings.TagMQTTHost)
	t.Pin = m.pin(settings.TagMQTTSHA1)
	t.Port = m.cfg.Int(settings.TagMQTTPort)
	if t.Port == 0 {
		t.Port = defaultPort(t.Pin)
	}
	t.Username = m.cfg.String(settings.TagMQTTUser)
	t.Password = m.cfg.String(settings.TagMQTTPass)
	return t
}

func (m *Manager) pin(tag string) []byte {
	if b := m.cfg.Bytes(tag); len(b) == settings.SHA1Len {
		return b
	}
	return nil
}

func defaultPort(pin []byte) int {
	if pin != nil {
		return securePort
	}
	return plainPort
}

// hasBackup reports whether failing over would reach a different broker.
func (m *Manager) hasBackup() bool {
	host2 := m.cfg.String(settings.TagMQTTHost2)
	if host2 == "" {
		return false
	}
	return m.pin(settings.TagMQTTSHA1) != nil || !strings.EqualFold(host2, m.cfg.String(settings.TagMQTTHost))
}

func (m *Manager) topics() Topics {
	return Topics{App: m.id.App(), Host: m.id.Hostname()}
}

// connect runs the connect sequence. When silent, the online announcement
// and info snapshot are skipped.
func (m *Manager) connect(silent bool) error {
	target := m.target()
	if target.Host == "" {
		return ErrNoBroker
	}
	willTopic, err := m.topics().Topic(m.cfg.String(settings.TagPrefixState), "")
	if err != nil {
		return err
	}

	m.attempts++
	m.state = Connecting
	m.broker = target.Host
	m.logger.Info("session connecting",
		"broker", target.Host,
		"port", target.Port,
		"tls", target.Pin != nil,
		"backup", m.backup,
		"attempt", m.attempts,
	)

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	defer cancel()
	will := Will{Topic: willTopic, Payload: []byte("0 Fail"), QoS: m.opts.QoS, Retain: true}
	if err := m.tr.Connect(ctx, target, will); err != nil {
		return fmt.Errorf("connecting to %s:%d: %w", target.Host, target.Port, err)
	}

	for _, sub := range m.topics().Subscriptions(
		m.cfg.String(settings.TagPrefixCommand),
		m.cfg.String(settings.TagPrefixSetting),
	) {
		if err := m.tr.Subscribe(sub, m.opts.QoS); err != nil {
			m.tr.Disconnect(0)
			return fmt.Errorf("subscribing to %s: %w", sub, err)
		}
	}

	m.state = Open
	m.backoff = m.opts.BackoffFloor
	m.retryAt = scheduler.Deadline{}
	m.atCap = scheduler.Deadline{}
	m.okAt = m.now
	m.logger.Info("session open", "broker", target.Host)

	if !silent {
		m.announce()
	}
	if m.state != Open {
		return fmt.Errorf("announcing on %s: %w", target.Host, ErrNotOpen)
	}
	m.emit(EventConnect)
	return nil
}

// announce publishes the online state and the info snapshot.
func (m *Manager) announce() {
	if err := m.Publish(State("").Text("1 " + m.id.Version()).Retained()); err != nil {
		m.logger.Warn("publishing online state failed", "error", err)
	}
	if m.info == nil {
		return
	}
	msg, err := Info("").JSON(m.info())
	if err == nil {
		err = m.Publish(msg)
	}
	if err != nil {
		m.logger.Warn("publishing info failed", "error", err)
	}
}

// failed applies backoff after a connect failure, failing over once the
// backoff has been at the cap for FailoverAfter.
func (m *Manager) failed(now uint32, err error) {
	m.logger.Warn("session connect failed", "broker", m.broker, "error", err, "backoff_ms", m.backoff.Milliseconds())
	m.state = Connecting

	if m.backoff >= m.opts.BackoffCap {
		if !m.atCap.IsSet() {
			m.atCap = scheduler.At(now, m.opts.FailoverAfter)
		} else if m.atCap.Due(now) {
			m.failover(now)
			return
		}
	}

	m.retryAt = scheduler.At(now, m.backoff)
	m.backoff *= 2
	if m.backoff > m.opts.BackoffCap {
		m.backoff = m.opts.BackoffCap
	}
}

func (m *Manager) failover(now uint32) {
	if m.hasBackup() {
		m.backup = !m.backup
		m.backoff = m.opts.BackoffFloor
		m.atCap = scheduler.Deadline{}
		m.retryAt = scheduler.At(now, 0)
		m.logger.Warn("failing over broker", "backup", m.backup, "broker", m.target().Host)
		return
	}
	m.logger.Warn("broker unreachable, dropping link")
	if m.link != nil {
		m.link.Drop("broker unreachable")
	}
	m.atCap = scheduler.At(now, m.opts.FailoverAfter)
	m.retryAt = scheduler.At(now, m.backoff)
}

// checkDownLimit schedules one restart once the session has been down
// longer than the mqttreset threshold.
func (m *Manager) checkDownLimit(now uint32) {
	if m.state == Open {
		m.latched = false
		return
	}
	limit := m.cfg.Int(settings.TagMQTTReset)
	if limit <= 0 || m.latched || m.sched == nil || m.cfg.String(settings.TagMQTTHost) == "" {
		return
	}
	if scheduler.Since(m.okAt, now) > time.Duration(limit)*time.Second {
		m.logger.Error("session down too long, restarting", "limit_s", limit)
		m.sched.Schedule(scheduler.Restart, now, 0)
		m.latched = true
	}
}

// Publish sends o on the open session. A transport failure drops the
// session and the next tick reconnects.
func (m *Manager) Publish(o Outbound) error {
	if m.state != Open {
		return ErrNotOpen
	}
	topic, err := m.topics().Topic(m.cfg.String(o.Kind.prefixTag()), o.Suffix)
	if err != nil {
		return err
	}
	if len(o.Payload) > MaxPayloadLen {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(o.Payload))
	}
	qos := m.opts.QoS
	if o.hasQoS {
		qos = o.QoS
	}
	if qos > 2 {
		return ErrInvalidQoS
	}
	if err := m.tr.Publish(topic, o.Payload, qos, o.Retain); err != nil {
		m.lost("publish failed")
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Close announces reason on the retained state topic and closes the
// session. It stays closed until Open is called.
func (m *Manager) Close(reason string) {
	m.held = true
	m.shutdown(reason)
}

// shutdown closes an Open session with a final state message.
func (m *Manager) shutdown(reason string) {
	if m.state != Open {
		m.state = Closed
		return
	}
	if err := m.Publish(State("").Text("0 " + reason).Retained()); err != nil {
		m.logger.Warn("publishing offline state failed", "error", err)
	}
	if m.state != Open {
		m.state = Closed
		return
	}
	m.tr.Disconnect(m.opts.TeardownDelay)
	m.state = Closed
	m.logger.Info("session closed", "broker", m.broker, "reason", reason)
	m.emit(EventDisconnect)
}

// Open clears a Close and connects straight away when the link is up.
// When silent, the online announcement is skipped.
func (m *Manager) Open(silent bool) error {
	m.held = false
	if m.state == Open {
		return nil
	}
	if !m.linkUp {
		return fmt.Errorf("%w: link down", ErrNotOpen)
	}
	if err := m.connect(silent); err != nil {
		m.failed(m.now, err)
		return err
	}
	return nil
}

// ConfigChanged reconnects with new broker parameters after an mqtt* tag changes.
func (m *Manager) ConfigChanged(tag string) {
	if !strings.HasPrefix(tag, "mqtt") || m.state != Open {
		return
	}
	m.shutdown("Config change")
	m.state = Connecting
	m.retryAt = scheduler.At(m.now, 0)
}

// State returns the session phase.
func (m *Manager) State() Phase { return m.state }

// Backoff returns the delay that will follow the next connect failure.
func (m *Manager) Backoff() time.Duration { return m.backoff }

// Active returns the host of the active broker.
func (m *Manager) Active() string { return m.target().Host }

// Backup reports whether the backup broker is active.
func (m *Manager) Backup() bool { return m.backup }

// Attempts returns the number of connect attempts.
func (m *Manager) Attempts() int { return m.attempts }
