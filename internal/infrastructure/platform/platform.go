// Package platform restarts and suspends the host a node runs on.
//
// A restart either runs a configured command or asks the caller to exit
// with a status the service manager treats as "restart me". Sleep runs a
// configured suspend command, or simply waits, and returns once the host
// is awake again.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// ExitError asks the process to exit with Code so the service manager
// restarts it.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("platform: exit with status %d to restart", e.Code)
}

// ErrNoCommand is returned when a command slice is empty.
var ErrNoCommand = errors.New("platform: empty command")

// Runner executes a command to completion.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run() //nolint:gosec // Commands come from host configuration
}

// Logger is the logging interface used by Host.
type Logger interface {
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}

// Options configures a Host.
type Options struct {
	// RestartCommand restarts the host or service. Empty means exit with
	// RestartExitCode instead.
	RestartCommand []string

	// RestartExitCode is carried by the ExitError returned when no restart
	// command is set.
	RestartExitCode int

	// SleepCommand suspends the host; the duration in whole seconds is
	// appended as the last argument. Empty means wait in-process.
	SleepCommand []string

	// CommandTimeout bounds the restart command.
	// Default: 30s
	CommandTimeout time.Duration

	Runner Runner
	Logger Logger

	// wait is replaced in tests.
	wait func(time.Duration)
}

// Host restarts and sleeps the local machine.
type Host struct {
	opts   Options
	logger Logger
}

// New creates a Host.
func New(opts Options) *Host {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.wait == nil {
		opts.wait = time.Sleep
	}
	return &Host{opts: opts, logger: opts.Logger}
}

// Restart runs the restart command. Without one it returns *ExitError.
func (h *Host) Restart() error {
	if len(h.opts.RestartCommand) == 0 {
		h.logger.Info("restarting via exit", "status", h.opts.RestartExitCode)
		return &ExitError{Code: h.opts.RestartExitCode}
	}
	h.logger.Info("restarting", "command", h.opts.RestartCommand[0])
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.CommandTimeout)
	defer cancel()
	return run(ctx, h.opts.Runner, h.opts.RestartCommand)
}

// Sleep suspends the host for d and returns after waking.
func (h *Host) Sleep(d time.Duration) error {
	if len(h.opts.SleepCommand) == 0 {
		h.logger.Info("sleeping in-process", "duration", d)
		h.opts.wait(d)
		return nil
	}
	secs := int64((d + time.Second - 1) / time.Second)
	cmd := append(append([]string{}, h.opts.SleepCommand...), strconv.FormatInt(secs, 10))
	h.logger.Info("suspending host", "command", cmd[0], "seconds", secs)

	// The command returns on wake, so allow the full duration plus slack.
	ctx, cancel := context.WithTimeout(context.Background(), d+h.opts.CommandTimeout)
	defer cancel()
	return run(ctx, h.opts.Runner, cmd)
}

func run(ctx context.Context, r Runner, cmd []string) error {
	if len(cmd) == 0 {
		return ErrNoCommand
	}
	if err := r(ctx, cmd[0], cmd[1:]...); err != nil {
		return fmt.Errorf("platform: %s: %w", cmd[0], err)
	}
	return nil
}
