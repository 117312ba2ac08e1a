// Package ota fetches firmware images over HTTPS and stages them for the
// next start.
//
// The fetcher implements update.Fetcher. The image is streamed to a
// temporary file beside the staged path, synced, and renamed into place,
// so a power cut mid-download never leaves a truncated image staged.
package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/tlspin"
	"github.com/nerrad567/gray-logic-node/internal/update"
)

const (
	filePermissions = 0600
	dirPermissions  = 0750

	defaultHandshakeTimeout = 15 * time.Second
)

// Logger is the logging interface used by the fetcher.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Options configures a Fetcher.
type Options struct {
	// ImagePath is where the fetched image is staged. Required.
	ImagePath string

	// MaxSize is the space available for the image in bytes. Required.
	MaxSize int64

	Logger Logger
}

// Fetcher downloads images. Not safe for concurrent Fetch calls.
type Fetcher struct {
	opts   Options
	logger Logger
}

// New creates a Fetcher.
func New(opts Options) (*Fetcher, error) {
	if opts.ImagePath == "" {
		return nil, errors.New("ota: image path is required")
	}
	if opts.MaxSize <= 0 {
		return nil, errors.New("ota: max size must be positive")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Fetcher{opts: opts, logger: opts.Logger}, nil
}

// Staged returns the path of the staged image.
func (f *Fetcher) Staged() string { return f.opts.ImagePath }

// Fetch downloads req and stages it.
//
// Returns:
//   - update.ErrInsufficientSpace: the image is larger than MaxSize
//   - update.ErrVerifyFailed: the body ended before its declared length
//   - update.ErrFetchFailed: any other transport or server failure
func (f *Fetcher) Fetch(ctx context.Context, req update.Request) error {
	client, err := newClient(req)
	if err != nil {
		return fmt.Errorf("%w: %w", update.ErrFetchFailed, err)
	}
	defer client.CloseIdleConnections()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL(), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", update.ErrFetchFailed, err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", update.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", update.ErrFetchFailed, resp.Status)
	}
	if resp.ContentLength > f.opts.MaxSize {
		return fmt.Errorf("%w: %d bytes, %d available", update.ErrInsufficientSpace, resp.ContentLength, f.opts.MaxSize)
	}

	n, err := f.stage(resp.Body)
	if err != nil {
		return err
	}
	f.logger.Info("image staged", "url", req.URL(), "bytes", n, "path", f.opts.ImagePath)
	return nil
}

// stage writes body to a temporary file and renames it over ImagePath.
func (f *Fetcher) stage(body io.Reader) (int64, error) {
	dir := filepath.Dir(f.opts.ImagePath)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return 0, fmt.Errorf("%w: creating image directory: %w", update.ErrFetchFailed, err)
	}
	tmp, err := os.CreateTemp(dir, ".image-*")
	if err != nil {
		return 0, fmt.Errorf("%w: creating temporary image: %w", update.ErrFetchFailed, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // Gone after a successful rename

	n, err := io.Copy(tmp, io.LimitReader(body, f.opts.MaxSize+1))
	if err == nil && n > f.opts.MaxSize {
		err = fmt.Errorf("%w: more than %d bytes", update.ErrInsufficientSpace, f.opts.MaxSize)
	} else if errors.Is(err, io.ErrUnexpectedEOF) {
		err = fmt.Errorf("%w: image truncated after %d bytes", update.ErrVerifyFailed, n)
	} else if err != nil {
		err = fmt.Errorf("%w: reading image: %w", update.ErrFetchFailed, err)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, err
	}

	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return n, fmt.Errorf("%w: %w", update.ErrFetchFailed, err)
	}
	if err := os.Rename(tmpName, f.opts.ImagePath); err != nil {
		return n, fmt.Errorf("%w: staging image: %w", update.ErrFetchFailed, err)
	}
	return n, nil
}

// newClient builds an HTTP client trusting req.Pin, or the system roots
// when there is no pin.
func newClient(req update.Request) (*http.Client, error) {
	host := req.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	tlsConfig, err := tlspin.Config(host, req.Pin)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     tlsConfig,
			TLSHandshakeTimeout: defaultHandshakeTimeout,
		},
	}, nil
}
