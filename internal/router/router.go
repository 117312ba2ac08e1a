// Package router dispatches inbound session messages.
//
// Topics have the shape prefix/app/host[/suffix]. The setting prefix
// applies suffix as a tag; the command prefix handles upgrade, restart and
// factory itself and offers every other command to the application.
// Messages under any other prefix are ignored.
package router

import (
	"bytes"
	"strings"

	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/scheduler"
	"github.com/nerrad567/gray-logic-node/internal/session"
	"github.com/nerrad567/gray-logic-node/internal/settings"
)

// Built-in commands.
const (
	CommandUpgrade = "upgrade"
	CommandRestart = "restart"
	CommandFactory = "factory"
)

// Reply payloads.
const (
	ReplyOK         = "OK"
	ReplyBadSetting = "Bad setting"
	ReplyBadCommand = "Bad command"
	ReplyBadFactory = "Bad factory reset"
)

// Settings is the part of the settings store the router uses.
type Settings interface {
	Apply(tag string, value []byte) error
	Reset() error
	String(tag string) string
}

// Publisher sends replies.
type Publisher interface {
	Publish(o session.Outbound) error
}

// App is the application collaborator. Command is offered every command the
// router does not handle itself, plus the synthetic "connect" and
// "disconnect" events; it reports whether the command was understood.
type App interface {
	Command(name string, payload []byte) bool
}

// AppFunc adapts a function to the App interface.
type AppFunc func(name string, payload []byte) bool

// Command implements App.
func (f AppFunc) Command(name string, payload []byte) bool { return f(name, payload) }

// Logger is the logging interface used by the router.
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

// Options configures a Router.
type Options struct {
	Identity  *identity.Identity
	Settings  Settings
	Publisher Publisher
	Scheduler *scheduler.Scheduler
	Clock     scheduler.Clock
	App       App
	Logger    Logger
}

// Router maps inbound messages to handlers.
type Router struct {
	id     *identity.Identity
	set    Settings
	pub    Publisher
	sched  *scheduler.Scheduler
	clock  scheduler.Clock
	app    App
	logger Logger
}

// New creates a Router.
func New(opts Options) *Router {
	if opts.Clock == nil {
		opts.Clock = scheduler.NewMonotonicClock()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Router{
		id:     opts.Identity,
		set:    opts.Settings,
		pub:    opts.Publisher,
		sched:  opts.Scheduler,
		clock:  opts.Clock,
		app:    opts.App,
		logger: opts.Logger,
	}
}

// SetPublisher replaces the reply publisher.
func (r *Router) SetPublisher(p Publisher) { r.pub = p }

// SetLogger replaces the logger.
func (r *Router) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	r.logger = l
}

// Route handles one inbound message and reports whether it was addressed
// to a namespace the router owns.
func (r *Router) Route(topic string, payload []byte) bool {
	addr, ok := session.ParseTopic(topic)
	if !ok || addr.Suffix == "" {
		return false
	}
	if !strings.EqualFold(addr.App, r.id.App()) {
		return false
	}
	if addr.Host != session.AllHosts && !strings.EqualFold(addr.Host, r.id.Hostname()) {
		return false
	}

	switch {
	case strings.EqualFold(addr.Prefix, r.set.String(settings.TagPrefixCommand)):
		r.command(addr.Suffix, payload)
		return true
	case strings.EqualFold(addr.Prefix, r.set.String(settings.TagPrefixSetting)):
		r.setting(addr.Suffix, payload)
		return true
	default:
		r.logger.Debug("ignoring message", "topic", topic)
		return false
	}
}

func (r *Router) command(name string, payload []byte) {
	now := r.clock.Now()
	switch strings.ToLower(name) {
	case CommandUpgrade:
		r.logger.Info("upgrade requested", "asset", string(payload))
		r.sched.ScheduleUpgrade(now, 0, string(payload))
	case CommandRestart:
		r.logger.Info("restart requested")
		r.sched.Schedule(scheduler.Restart, now, 0)
	case CommandFactory:
		if !bytes.Equal(payload, r.id.FactoryToken()) {
			r.logger.Warn("factory reset refused: token mismatch")
			r.reply(session.Error(name).Text(ReplyBadFactory))
			return
		}
		if err := r.set.Reset(); err != nil {
			r.logger.Error("factory reset failed", "error", err)
			r.reply(session.Error(name).Text(err.Error()))
			return
		}
		r.logger.Warn("factory reset")
		r.sched.Schedule(scheduler.Restart, now, 0)
	default:
		if r.app == nil || !r.app.Command(name, payload) {
			r.logger.Debug("command not handled", "command", name)
			r.reply(session.Error(name).Text(ReplyBadCommand))
		}
	}
}

func (r *Router) setting(tag string, value []byte) {
	if err := r.set.Apply(tag, value); err != nil {
		r.logger.Warn("setting rejected", "tag", tag, "error", err)
		r.reply(session.Error(tag).Text(ReplyBadSetting))
		return
	}
	r.reply(session.Info(tag).Text(ReplyOK))
}

func (r *Router) reply(o session.Outbound) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(o); err != nil {
		r.logger.Warn("reply failed", "suffix", o.Suffix, "error", err)
	}
}

// Notify delivers a synthetic session event to the application.
func (r *Router) Notify(event, broker string) {
	if r.app != nil {
		r.app.Command(event, []byte(broker))
	}
}
