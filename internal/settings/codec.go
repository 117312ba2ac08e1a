package settings

import (
	"fmt"
	"io"
)

// Signature marks a log written by this store.
const Signature = "GLN1"

// Record is one persisted tag/value pair.
type Record struct {
	Tag   string
	Value []byte
}

// headerSize is the marker, signature and app name block.
func headerSize(app string) int {
	return 1 + len(Signature) + 1 + len(app)
}

// recordSize is the persisted size of one record.
func recordSize(tag string, value []byte) int {
	return 1 + len(tag) + 1 + len(value)
}

// encodeLog serializes a complete, valid log image.
func encodeLog(app string, records []Record) []byte {
	size := headerSize(app) + 1
	for _, r := range records {
		size += recordSize(r.Tag, r.Value)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, byte(len(Signature)))
	buf = append(buf, Signature...)
	buf = append(buf, byte(len(app)))
	buf = append(buf, app...)
	for _, r := range records {
		buf = append(buf, byte(len(r.Tag)))
		buf = append(buf, r.Tag...)
		buf = append(buf, byte(len(r.Value)))
		buf = append(buf, r.Value...)
	}
	return append(buf, 0)
}

// Inspect decodes the log held in r without checking which application
// wrote it. It returns the stored application name and records.
func Inspect(r io.ReaderAt, size int64) (string, []Record, error) {
	d := &logReader{r: r, size: size}

	marker := d.byte()
	if d.err != nil {
		return "", nil, d.err
	}
	if marker == 0 {
		return "", nil, ErrNoLog
	}
	if int(marker) != len(Signature) || string(d.bytes(int(marker))) != Signature {
		if d.err != nil {
			return "", nil, d.err
		}
		return "", nil, ErrSignatureMismatch
	}

	app := string(d.bytes(int(d.byte())))

	var records []Record
	for d.err == nil {
		n := d.byte()
		if n == 0 || d.err != nil {
			break
		}
		tag := string(d.bytes(int(n)))
		value := d.bytes(int(d.byte()))
		if d.err != nil {
			break
		}
		records = append(records, Record{Tag: tag, Value: value})
	}
	if d.err != nil {
		return "", nil, d.err
	}
	return app, records, nil
}

// decodeLog is Inspect plus the application check.
func decodeLog(r io.ReaderAt, size int64, app string) ([]Record, error) {
	stored, records, err := Inspect(r, size)
	if err != nil {
		return nil, err
	}
	if stored != app {
		return nil, fmt.Errorf("%w: log belongs to %q", ErrAppMismatch, stored)
	}
	return records, nil
}

// logReader reads length-prefixed fields, latching the first error.
type logReader struct {
	r    io.ReaderAt
	size int64
	off  int64
	err  error
}

func (d *logReader) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+int64(n) > d.size {
		d.err = fmt.Errorf("%w: field at offset %d runs past %d", ErrMalformedLog, d.off, d.size)
		return nil
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := d.r.ReadAt(buf, d.off); err != nil {
			d.err = fmt.Errorf("reading log at offset %d: %w", d.off, err)
			return nil
		}
	}
	d.off += int64(n)
	return buf
}

func (d *logReader) byte() byte {
	b := d.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}
