package ota

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/tlspin"
	"github.com/nerrad567/gray-logic-node/internal/update"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, update.Request) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	req := update.Request{
		Host: srv.Listener.Addr().String(),
		Path: "/Thermo.linux-arm64.bin",
		Pin:  tlspin.Fingerprint(srv.Certificate().Raw),
	}
	return srv, req
}

func newFetcher(t *testing.T, max int64) *Fetcher {
	t.Helper()
	f, err := New(Options{ImagePath: filepath.Join(t.TempDir(), "img", "staged.bin"), MaxSize: max})
	require.NoError(t, err)
	return f
}

func TestFetchStagesImage(t *testing.T) {
	image := bytes.Repeat([]byte{0xE9}, 4096)
	_, req := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Thermo.linux-arm64.bin" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(image)
	})
	f := newFetcher(t, 8192)

	require.NoError(t, f.Fetch(context.Background(), req))

	staged, err := os.ReadFile(f.Staged())
	require.NoError(t, err)
	assert.Equal(t, image, staged)

	info, err := os.Stat(f.Staged())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePermissions), info.Mode().Perm())
}

func TestFetchDeclaredTooLarge(t *testing.T) {
	_, req := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	})
	f := newFetcher(t, 1024)

	err := f.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, update.ErrInsufficientSpace)
	assert.NoFileExists(t, f.Staged())
}

func TestFetchStreamedTooLarge(t *testing.T) {
	_, req := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		// Flushing first forces chunked encoding, so no length is declared.
		w.(http.Flusher).Flush()
		for i := 0; i < 4; i++ {
			_, _ = w.Write(make([]byte, 512))
		}
	})
	f := newFetcher(t, 1024)

	err := f.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, update.ErrInsufficientSpace)
	assert.NoFileExists(t, f.Staged())
}

func TestFetchTruncated(t *testing.T) {
	_, req := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write(make([]byte, 10))
	})
	f := newFetcher(t, 4096)

	err := f.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, update.ErrVerifyFailed)
	assert.NoFileExists(t, f.Staged())
}

func TestFetchNotFound(t *testing.T) {
	_, req := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	f := newFetcher(t, 4096)

	err := f.Fetch(context.Background(), req)
	require.ErrorIs(t, err, update.ErrFetchFailed)
	assert.True(t, strings.Contains(err.Error(), "404"), err.Error())
}

func TestFetchPinMismatch(t *testing.T) {
	_, req := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("image"))
	})
	req.Pin = bytes.Repeat([]byte{0xAA}, tlspin.Size)
	f := newFetcher(t, 4096)

	err := f.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, update.ErrFetchFailed)
	assert.NoFileExists(t, f.Staged())
}

func TestFetchCancelled(t *testing.T) {
	_, req := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("image"))
	})
	f := newFetcher(t, 4096)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.Fetch(ctx, req), update.ErrFetchFailed)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{MaxSize: 10})
	assert.Error(t, err)
	_, err = New(Options{ImagePath: "x"})
	assert.Error(t, err)
}

func TestFetcherSatisfiesUpdate(t *testing.T) {
	var _ update.Fetcher = newFetcher(t, 1)
}
