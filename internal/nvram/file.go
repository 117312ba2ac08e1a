package nvram

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// File is a Store backed by a single image file. Sync writes a temporary
// file, fsyncs it and renames it over the image.
type File struct {
	*image
	path string
}

// OpenFile loads the image at path, creating an empty one if it does not
// exist. A file longer than capacity is truncated in memory.
func OpenFile(path string, capacity int64) (*File, error) {
	if capacity <= 0 {
		return nil, ErrBadCapacity
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating nvram directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading nvram image: %w", err)
	}
	if int64(len(data)) > capacity {
		data = data[:capacity]
	}
	return &File{image: newImage(capacity, data), path: path}, nil
}

// Path returns the image file path.
func (f *File) Path() string {
	return f.path
}

// Sync atomically replaces the image file when the image changed.
func (f *File) Sync() error {
	return f.commit(func(snapshot []byte) error {
		tmp, err := os.CreateTemp(filepath.Dir(f.path), ".nvram-*")
		if err != nil {
			return fmt.Errorf("creating temp image: %w", err)
		}
		tmpName := tmp.Name()
		defer os.Remove(tmpName) //nolint:errcheck // Gone after a successful rename

		if _, err := tmp.Write(snapshot); err != nil {
			tmp.Close() //nolint:errcheck // Already failing
			return fmt.Errorf("writing temp image: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close() //nolint:errcheck // Already failing
			return fmt.Errorf("syncing temp image: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("closing temp image: %w", err)
		}
		if err := os.Chmod(tmpName, filePermissions); err != nil {
			return fmt.Errorf("setting image permissions: %w", err)
		}
		if err := os.Rename(tmpName, f.path); err != nil {
			return fmt.Errorf("replacing image: %w", err)
		}
		return nil
	})
}

// Close marks the store closed. Unsynced writes are discarded.
func (f *File) Close() error {
	f.close()
	return nil
}
