package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/link"
	"github.com/nerrad567/gray-logic-node/internal/nvram"
	"github.com/nerrad567/gray-logic-node/internal/router"
	"github.com/nerrad567/gray-logic-node/internal/scheduler"
	"github.com/nerrad567/gray-logic-node/internal/session"
	"github.com/nerrad567/gray-logic-node/internal/settings"
	"github.com/nerrad567/gray-logic-node/internal/update"
)

// DefaultTickInterval is the Run loop period.
const DefaultTickInterval = 100 * time.Millisecond

// Session close reasons published on the retained state topic.
const (
	ReasonRestart  = "Restart"
	ReasonSleep    = "Sleep"
	ReasonShutdown = "Shutdown"
)

// Platform restarts and suspends the host.
type Platform interface {
	// Restart restarts the node. It returns only if the restart could not
	// be carried out in-process.
	Restart() error

	// Sleep suspends the host for d and returns after waking.
	Sleep(d time.Duration) error
}

// Application is the application collaborator: it is offered settings and
// commands the core does not own, plus the synthetic session events.
type Application interface {
	settings.App
	router.App
}

// Telemetry receives state transitions. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteLinkMetric(node, state string, rssi, attempts int)
	WriteSessionMetric(node, state, broker string, attempts int)
	WriteUpdateResult(node, path string, attempts int, err error)
	// Flush sends queued points before the node restarts.
	Flush()
}

type noopTelemetry struct{}

func (noopTelemetry) WriteLinkMetric(string, string, int, int)       {}
func (noopTelemetry) WriteSessionMetric(string, string, string, int) {}
func (noopTelemetry) WriteUpdateResult(string, string, int, error)   {}
func (noopTelemetry) Flush()                                         {}

// Options configures a Supervisor. Identity, NVRAM, Radio, Transport,
// Fetcher and Platform are required.
type Options struct {
	Identity    *identity.Identity
	NVRAM       nvram.Store
	Radio       link.Radio
	Transport   session.Transport
	Fetcher     update.Fetcher
	Platform    Platform
	Application Application
	Telemetry   Telemetry

	// Clock supplies ticks. Defaults to a monotonic clock.
	Clock scheduler.Clock

	// Defaults are factory values reported for absent settings.
	Defaults map[string]string

	// PlatformName names the build target in firmware image paths.
	PlatformName string

	ScanInterval     time.Duration
	RoamMargin       int
	AssociateTimeout time.Duration

	QoS            byte
	BackoffFloor   time.Duration
	BackoffCap     time.Duration
	FailoverAfter  time.Duration
	ConnectTimeout time.Duration
	TeardownDelay  time.Duration

	FetchTimeout time.Duration
	TickInterval time.Duration

	Logger *logging.Logger
}

// Supervisor is the node context object. It is driven by Tick from a
// single goroutine.
type Supervisor struct {
	opts      Options
	id        *identity.Identity
	clock     scheduler.Clock
	sched     *scheduler.Scheduler
	store     *settings.Store
	link      *link.Supervisor
	session   *session.Manager
	router    *router.Router
	update    *update.Controller
	platform  Platform
	telemetry Telemetry
	logger    *logging.Logger

	started   time.Time
	linkState link.State
	sessState session.Phase
	stopped   bool
	err       error
}

// New builds every component, wires them together and loads the persisted
// settings. An integrity error in the stored log is logged and the node
// starts with no prior configuration.
func New(opts Options) (*Supervisor, error) {
	switch {
	case opts.Identity == nil:
		return nil, errors.New("supervisor: identity is required")
	case opts.NVRAM == nil:
		return nil, errors.New("supervisor: nvram store is required")
	case opts.Radio == nil:
		return nil, errors.New("supervisor: radio is required")
	case opts.Transport == nil:
		return nil, errors.New("supervisor: transport is required")
	case opts.Fetcher == nil:
		return nil, errors.New("supervisor: fetcher is required")
	case opts.Platform == nil:
		return nil, errors.New("supervisor: platform is required")
	}
	if opts.Clock == nil {
		opts.Clock = scheduler.NewMonotonicClock()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = noopTelemetry{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	s := &Supervisor{
		opts:      opts,
		id:        opts.Identity,
		clock:     opts.Clock,
		sched:     scheduler.New(),
		platform:  opts.Platform,
		telemetry: opts.Telemetry,
		logger:    opts.Logger.With("component", "supervisor"),
		started:   time.Now(),
	}

	var appSettings settings.App
	var appCommands router.App
	if opts.Application != nil {
		appSettings = opts.Application
		appCommands = opts.Application
	}

	store, err := settings.New(settings.Options{
		NVRAM:       opts.NVRAM,
		App:         opts.Identity.App(),
		Clock:       opts.Clock,
		Scheduler:   s.sched,
		Application: appSettings,
		Defaults:    opts.Defaults,
		Logger:      opts.Logger.With("component", "settings"),
	})
	if err != nil {
		return nil, err
	}
	s.store = store

	s.link = link.New(link.Options{
		Radio:            opts.Radio,
		Config:           store,
		Scheduler:        s.sched,
		ScanInterval:     opts.ScanInterval,
		RoamMargin:       opts.RoamMargin,
		AssociateTimeout: opts.AssociateTimeout,
		Logger:           opts.Logger.With("component", "link"),
	})

	s.session = session.NewManager(session.Options{
		Transport:      opts.Transport,
		Config:         store,
		Identity:       opts.Identity,
		Scheduler:      s.sched,
		Link:           s.link,
		Info:           func() any { return s.Status() },
		QoS:            opts.QoS,
		BackoffFloor:   opts.BackoffFloor,
		BackoffCap:     opts.BackoffCap,
		FailoverAfter:  opts.FailoverAfter,
		ConnectTimeout: opts.ConnectTimeout,
		TeardownDelay:  opts.TeardownDelay,
		Logger:         opts.Logger.With("component", "session"),
	})

	s.router = router.New(router.Options{
		Identity:  opts.Identity,
		Settings:  store,
		Publisher: s.session,
		Scheduler: s.sched,
		Clock:     opts.Clock,
		App:       appCommands,
		Logger:    opts.Logger.With("component", "router"),
	})
	s.session.SetNotifier(s.router)
	store.SetOnChange(s.session.ConfigChanged)

	s.update = update.New(update.Options{
		Identity:     opts.Identity,
		Config:       store,
		Session:      s.session,
		Fetcher:      opts.Fetcher,
		Restart:      s.restart,
		Platform:     opts.PlatformName,
		FetchTimeout: opts.FetchTimeout,
		Logger:       opts.Logger.With("component", "update"),
	})

	if err := store.Load(); err != nil {
		s.logger.Warn("no valid stored settings, starting fresh", "error", err)
	}
	if name := store.String(settings.TagHostname); name != "" {
		if err := s.id.SetHostname(name); err != nil {
			s.logger.Warn("ignoring stored hostname", "hostname", name, "error", err)
		}
	}

	s.logger.Info("node ready",
		"app", s.id.App(),
		"version", s.id.Version(),
		"device_id", s.id.DeviceID(),
		"hostname", s.id.Hostname(),
		"boot_id", s.id.BootID(),
	)
	return s, nil
}

// Tick runs one pass of the supervisor and reports whether it is still
// running. It returns false once control has been handed to the platform
// for a restart or sleep.
func (s *Supervisor) Tick(ctx context.Context) bool {
	if s.stopped {
		return false
	}
	now := s.clock.Now()

	if action, ok := s.sched.Due(now); ok {
		s.execute(ctx, action)
		if s.stopped {
			return false
		}
	}

	if err := s.store.Tick(now); err != nil {
		s.logger.Error("saving settings failed", "error", err)
	}

	up := s.link.Tick(now)
	for _, msg := range s.session.Tick(now, up) {
		s.router.Route(msg.Topic, msg.Payload)
	}

	s.observe()
	return true
}

// Run calls Tick every tick interval until ctx is cancelled or the node
// restarts. On cancellation settings are saved and the session is closed.
// The error, if any, is the platform's restart outcome; an *ExitError from
// the platform package asks the caller to exit with its status.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		if !s.Tick(ctx) {
			return s.err
		}
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) execute(ctx context.Context, a scheduler.Action) {
	s.logger.Info("running scheduled action", "action", a.Kind.String())
	switch a.Kind {
	case scheduler.Restart:
		_ = s.restart() //nolint:errcheck // Outcome kept in s.err
	case scheduler.Upgrade:
		err := s.update.Perform(ctx, a.Asset)
		last := s.update.Last()
		path := ""
		if n := len(last.Attempts); n > 0 {
			path = last.Attempts[n-1]
		}
		s.telemetry.WriteUpdateResult(s.id.Hostname(), path, len(last.Attempts), err)
		if err != nil && !s.stopped {
			s.logger.Error("update failed, keeping current image", "error", err)
		}
	case scheduler.Sleep:
		s.sleep(a.Duration)
	}
}

// restart saves settings, announces the restart, closes the session, drops
// the link and hands over to the platform.
func (s *Supervisor) restart() error {
	if err := s.store.Save(); err != nil {
		s.logger.Error("saving settings before restart failed", "error", err)
	}
	s.session.Close(ReasonRestart)
	s.link.Drop("restart")
	s.stopped = true
	s.telemetry.Flush()

	s.logger.Warn("restarting")
	s.err = s.platform.Restart()
	if s.err != nil {
		s.logger.Error("platform restart returned", "error", s.err)
	}
	return s.err
}

// sleep tears everything down, suspends the host and restarts on wake.
func (s *Supervisor) sleep(d time.Duration) {
	if err := s.store.Save(); err != nil {
		s.logger.Error("saving settings before sleep failed", "error", err)
	}
	s.session.Close(ReasonSleep)
	s.link.Drop("sleep")

	s.logger.Warn("sleeping", "duration", d)
	if err := s.platform.Sleep(d); err != nil {
		s.logger.Error("platform sleep failed", "error", err)
	}
	_ = s.restart() //nolint:errcheck // Outcome kept in s.err
}

func (s *Supervisor) shutdown() {
	if err := s.store.Save(); err != nil {
		s.logger.Error("saving settings on shutdown failed", "error", err)
	}
	s.session.Close(ReasonShutdown)
	s.logger.Info("supervisor stopped")
}

// observe reports link and session transitions to telemetry.
func (s *Supervisor) observe() {
	if st := s.link.State(); st != s.linkState {
		s.linkState = st
		status := s.link.Status()
		s.telemetry.WriteLinkMetric(s.id.Hostname(), st.String(), status.RSSI, status.Attempts)
	}
	if st := s.session.State(); st != s.sessState {
		s.sessState = st
		s.telemetry.WriteSessionMetric(s.id.Hostname(), st.String(), s.session.Active(), s.session.Attempts())
	}
}
