// Package update replaces the running firmware image.
//
// Perform saves settings, closes the session with an announcement, and
// fetches the image. A fetch that fails for lack of space is retried once
// against the minimal image; any other failure is retried once against
// the same image. On success the node restarts; on failure the session is
// reopened, the error is published, and the node keeps running.
package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/identity"
	"github.com/nerrad567/gray-logic-node/internal/session"
	"github.com/nerrad567/gray-logic-node/internal/settings"
)

// MinimalAsset is the reduced image assumed to always fit.
const MinimalAsset = "Minimal"

// DefaultFetchTimeout bounds one fetch attempt.
const DefaultFetchTimeout = 5 * time.Minute

// Request is one image to fetch.
type Request struct {
	Host string
	Path string

	// Pin is the SHA-1 fingerprint of the host certificate; nil uses the
	// system trust store.
	Pin []byte
}

// URL returns the https URL of the request.
func (r Request) URL() string {
	return "https://" + r.Host + r.Path
}

// Fetcher is the firmware-fetch collaborator. It streams the image from
// the request and stages it for the next start.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) error
}

// Session is the part of the session manager the controller uses.
type Session interface {
	Close(reason string)
	Open(silent bool) error
	Publish(o session.Outbound) error
}

// Config is the read side of the settings store, plus Save.
type Config interface {
	String(tag string) string
	Bytes(tag string) []byte
	Save() error
}

// Logger is the logging interface used by the controller.
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

// Options configures a Controller.
type Options struct {
	Identity *identity.Identity
	Config   Config
	Session  Session
	Fetcher  Fetcher

	// Restart performs the restart sequence after a successful fetch.
	// It only returns on failure.
	Restart func() error

	// Platform names the target platform in the image path.
	Platform string

	FetchTimeout time.Duration
	Logger       Logger
}

// Result records one Perform run for diagnostics.
type Result struct {
	Attempts []string
	Err      error
}

// Controller runs firmware updates.
type Controller struct {
	opts   Options
	logger Logger
	last   Result
}

// New creates a Controller.
func New(opts Options) *Controller {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Controller{opts: opts, logger: opts.Logger}
}

// SetLogger replaces the logger.
func (c *Controller) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	c.logger = l
}

// Path returns the image path for asset, or for the application when asset is empty.
//
// Example: /Thermo.linux-arm64.bin
func (c *Controller) Path(asset string) string {
	if asset == "" {
		asset = c.opts.Identity.App()
	}
	return fmt.Sprintf("/%s.%s.bin", asset, c.opts.Platform)
}

// Last returns the outcome of the most recent Perform.
func (c *Controller) Last() Result { return c.last }

// Perform fetches and installs the image. It does not return on success
// unless the restart itself fails.
func (c *Controller) Perform(ctx context.Context, asset string) error {
	c.last = Result{}
	err := c.perform(ctx, asset)
	c.last.Err = err
	return err
}

func (c *Controller) perform(ctx context.Context, asset string) error {
	if err := c.opts.Config.Save(); err != nil {
		c.logger.Warn("saving settings before update failed", "error", err)
	}

	req := Request{
		Host: c.opts.Config.String(settings.TagOTAHost),
		Path: c.Path(asset),
	}
	if pin := c.opts.Config.Bytes(settings.TagOTASHA1); len(pin) == settings.SHA1Len {
		req.Pin = pin
	}
	if req.Host == "" {
		c.logger.Error("update aborted", "error", ErrNoHost)
		c.publishFailure(ErrNoHost)
		return ErrNoHost
	}

	c.logger.Info("update starting", "url", req.URL(), "pinned", req.Pin != nil)
	c.opts.Session.Close("OTA " + req.URL())

	err := c.fetch(ctx, req)
	switch {
	case errors.Is(err, ErrInsufficientSpace):
		c.logger.Warn("image does not fit, trying minimal image", "url", req.URL())
		req.Path = c.Path(MinimalAsset)
		err = c.fetch(ctx, req)
	case err != nil:
		c.logger.Warn("fetch failed, retrying", "url", req.URL(), "error", err)
		err = c.fetch(ctx, req)
	}

	if err != nil {
		c.logger.Error("update failed", "url", req.URL(), "error", err)
		if openErr := c.opts.Session.Open(true); openErr != nil {
			c.logger.Warn("reopening session after failed update", "error", openErr)
		}
		c.publishFailure(err)
		return fmt.Errorf("updating from %s: %w", req.URL(), err)
	}

	c.logger.Info("update fetched, restarting", "url", req.URL())
	if c.opts.Restart == nil {
		return nil
	}
	if err := c.opts.Restart(); err != nil {
		return fmt.Errorf("restarting after update: %w", err)
	}
	return nil
}

func (c *Controller) fetch(ctx context.Context, req Request) error {
	c.last.Attempts = append(c.last.Attempts, req.Path)

	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	return c.opts.Fetcher.Fetch(ctx, req)
}

func (c *Controller) publishFailure(err error) {
	msg := session.State("").Text("0 OTA Error " + err.Error()).Retained()
	if pubErr := c.opts.Session.Publish(msg); pubErr != nil {
		c.logger.Debug("failure not published", "error", pubErr)
	}
}
