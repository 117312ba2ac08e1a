package link

import (
	"bytes"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/scheduler"
	"github.com/nerrad567/gray-logic-node/internal/settings"
)

// Default tunables.
const (
	DefaultScanInterval     = 5 * time.Minute
	DefaultRoamMargin       = 5
	DefaultAssociateTimeout = 15 * time.Second
)

// candidates is the round-robin length: last successful plus the credential slots.
const candidates = 1 + settings.Credentials

// State is the link state.
type State int

// Link states.
const (
	Disconnected State = iota
	Associating
	Associated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Associating:
		return "associating"
	case Associated:
		return "associated"
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

// Logger is the logging interface used by the supervisor.
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

// Options configures a Supervisor.
type Options struct {
	Radio     Radio
	Config    Config
	Scheduler *scheduler.Scheduler

	// ScanInterval is the time between roaming scans.
	ScanInterval time.Duration

	// RoamMargin is how many dB stronger another access point must be
	// before the link migrates to it.
	RoamMargin int

	// AssociateTimeout abandons an attempt that neither succeeds nor fails.
	AssociateTimeout time.Duration

	Logger Logger
}

// Status is a snapshot of the link for diagnostics.
type Status struct {
	State    State
	SSID     string
	BSSID    string
	Channel  int
	RSSI     int
	Attempts int
	LastDown time.Duration
}

// Supervisor drives the link toward Associated. Tick, Drop and the
// accessors are called from the supervisor tick only; the loss callback
// may be called from any goroutine.
type Supervisor struct {
	radio  Radio
	cfg    Config
	sched  *scheduler.Scheduler
	opts   Options
	logger Logger

	mu     sync.Mutex
	events []int

	state    State
	seq      int
	attempt  Credential
	deadline scheduler.Deadline
	last     Credential
	attempts int

	started  bool
	okAt     uint32
	lastDown time.Duration
	latched  bool

	scanAt   scheduler.Deadline
	scanning bool
}

// New creates a Supervisor and registers for link-loss events.
func New(opts Options) *Supervisor {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.RoamMargin <= 0 {
		opts.RoamMargin = DefaultRoamMargin
	}
	if opts.AssociateTimeout <= 0 {
		opts.AssociateTimeout = DefaultAssociateTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	s := &Supervisor{
		radio:  opts.Radio,
		cfg:    opts.Config,
		sched:  opts.Scheduler,
		opts:   opts,
		logger: opts.Logger,
	}
	s.radio.OnLinkLoss(s.linkLost)
	return s
}

// SetLogger replaces the logger.
func (s *Supervisor) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

func (s *Supervisor) linkLost(reason int) {
	s.mu.Lock()
	s.events = append(s.events, reason)
	s.mu.Unlock()
}

func (s *Supervisor) drain() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.events
	s.events = nil
	return ev
}

// Tick advances the state machine and reports whether the link is up.
func (s *Supervisor) Tick(now uint32) bool {
	if !s.started {
		s.started = true
		s.okAt = now
	}

	for _, reason := range s.drain() {
		if s.state != Disconnected {
			s.logger.Warn("link lost", "state", s.state.String(), "reason", reason, "ssid", s.attempt.SSID)
			s.state = Disconnected
			s.scanning = false
		}
	}

	switch s.state {
	case Disconnected:
		s.associate(now)
	case Associating:
		s.checkAttempt(now)
	case Associated:
		if !s.radio.Connected() {
			s.logger.Warn("link down", "ssid", s.last.SSID)
			s.state = Disconnected
			s.scanning = false
		} else {
			s.roam(now)
		}
	}

	if s.state == Associated {
		s.okAt = now
		s.latched = false
	}
	s.checkDownLimit(now)

	return s.state == Associated
}

// associate starts an attempt with the next non-empty candidate.
func (s *Supervisor) associate(now uint32) {
	c, err := s.next()
	if err != nil {
		return
	}
	s.attempts++
	s.attempt = c
	if err := s.radio.Associate(c); err != nil {
		s.logger.Warn("association failed to start", "ssid", c.SSID, "error", err)
		return
	}
	s.logger.Info("associating", "ssid", c.SSID, "channel", c.Channel, "bssid", FormatBSSID(c.BSSID))
	s.state = Associating
	s.deadline = scheduler.At(now, s.opts.AssociateTimeout)
}

// next returns the candidate at the round-robin pointer, skipping empty
// slots, and advances the pointer past it.
func (s *Supervisor) next() (Credential, error) {
	for i := 0; i < candidates; i++ {
		pos := s.seq
		s.seq = (s.seq + 1) % candidates
		var c Credential
		if pos == 0 {
			c = s.last
		} else {
			c = s.credential(pos)
		}
		if !c.IsZero() {
			return c, nil
		}
	}
	return Credential{}, ErrNoCredentials
}

// credential reads slot n (1-based) from settings.
func (s *Supervisor) credential(n int) Credential {
	c := Credential{
		SSID:       s.cfg.String(settings.CredentialTag(settings.TagWiFiSSID, n)),
		Passphrase: s.cfg.String(settings.CredentialTag(settings.TagWiFiPass, n)),
		Channel:    s.cfg.Int(settings.CredentialTag(settings.TagWiFiChan, n)),
	}
	if bssid := s.cfg.Bytes(settings.CredentialTag(settings.TagWiFiBSSID, n)); len(bssid) == settings.BSSIDLen {
		c.BSSID = bytes.Clone(bssid)
		c.Pinned = true
	}
	return c
}

func (s *Supervisor) checkAttempt(now uint32) {
	if s.radio.Connected() {
		c := s.attempt
		bssid, channel := s.radio.Current()
		if c.Channel == 0 {
			c.Channel = channel
		}
		if len(c.BSSID) == 0 {
			c.BSSID = bytes.Clone(bssid)
		}
		s.last = c
		s.seq = 0
		s.state = Associated
		s.lastDown = scheduler.Since(s.okAt, now)
		s.scanAt = scheduler.At(now, s.opts.ScanInterval)
		s.logger.Info("link associated",
			"ssid", c.SSID,
			"channel", c.Channel,
			"bssid", FormatBSSID(c.BSSID),
			"rssi", s.radio.RSSI(),
			"down_ms", s.lastDown.Milliseconds(),
		)
		return
	}
	if s.deadline.Due(now) {
		s.logger.Warn("association timed out", "ssid", s.attempt.SSID)
		_ = s.radio.Disconnect() //nolint:errcheck // Moving on to the next candidate
		s.state = Disconnected
	}
}

// roam runs the periodic scan and migrates to a clearly stronger access
// point on the same network.
func (s *Supervisor) roam(now uint32) {
	if s.last.Pinned {
		return
	}
	if !s.scanning {
		if !s.scanAt.Due(now) {
			return
		}
		if err := s.radio.StartScan(s.last.SSID); err != nil {
			s.logger.Debug("scan not started", "error", err)
			s.scanAt = scheduler.At(now, s.opts.ScanInterval)
			return
		}
		s.scanning = true
		return
	}

	results, done := s.radio.ScanResults()
	if !done {
		return
	}
	s.scanning = false
	s.scanAt = scheduler.At(now, s.opts.ScanInterval)

	best := -1
	for i, r := range results {
		if r.SSID != s.last.SSID {
			continue
		}
		if best < 0 || r.RSSI > results[best].RSSI {
			best = i
		}
	}
	if best < 0 {
		return
	}
	current := s.radio.RSSI()
	b := results[best]
	if b.RSSI < current+s.opts.RoamMargin || bytes.Equal(b.BSSID, s.last.BSSID) {
		return
	}

	s.logger.Info("roaming to stronger access point",
		"ssid", s.last.SSID,
		"bssid", FormatBSSID(b.BSSID),
		"channel", b.Channel,
		"rssi", b.RSSI,
		"current_rssi", current,
	)
	s.last.BSSID = bytes.Clone(b.BSSID)
	s.last.Channel = b.Channel
	s.Drop("roam")
}

// checkDownLimit schedules one restart once the link has been down longer
// than the wifireset threshold. The latch clears when the link returns.
func (s *Supervisor) checkDownLimit(now uint32) {
	limit := s.cfg.Int(settings.TagWiFiReset)
	if limit <= 0 || s.latched || s.sched == nil {
		return
	}
	if scheduler.Since(s.okAt, now) > time.Duration(limit)*time.Second {
		s.logger.Error("link down too long, restarting", "limit_s", limit)
		s.sched.Schedule(scheduler.Restart, now, 0)
		s.latched = true
	}
}

// Drop tears the link down so the next tick re-associates, starting with
// the last successful network.
func (s *Supervisor) Drop(reason string) {
	s.logger.Info("dropping link", "reason", reason)
	_ = s.radio.Disconnect() //nolint:errcheck // State is reset regardless
	s.state = Disconnected
	s.scanning = false
	s.seq = 0
}

// State returns the current state.
func (s *Supervisor) State() State { return s.state }

// Credential returns the last network that associated successfully.
func (s *Supervisor) Credential() Credential { return s.last }

// DownFor returns how long the link has been down, zero while associated.
func (s *Supervisor) DownFor(now uint32) time.Duration {
	if s.state == Associated || !s.started {
		return 0
	}
	return scheduler.Since(s.okAt, now)
}

// Status returns a diagnostic snapshot.
func (s *Supervisor) Status() Status {
	st := Status{
		State:    s.state,
		SSID:     s.last.SSID,
		BSSID:    FormatBSSID(s.last.BSSID),
		Channel:  s.last.Channel,
		Attempts: s.attempts,
		LastDown: s.lastDown,
	}
	if s.state == Associated {
		st.RSSI = s.radio.RSSI()
	}
	return st
}
