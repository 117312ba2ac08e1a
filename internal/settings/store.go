package settings

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/nvram"
	"github.com/nerrad567/gray-logic-node/internal/scheduler"
)

// SaveDelay is the quiet period after the last change before the store is written.
const SaveDelay = time.Second

// App is the application collaborator. Setting is offered every tag the
// core table does not own and reports whether the application accepts it.
// An empty value clears the setting.
type App interface {
	Setting(tag string, value []byte) bool
}

// AppFunc adapts a function to the App interface.
type AppFunc func(tag string, value []byte) bool

// Setting implements App.
func (f AppFunc) Setting(tag string, value []byte) bool { return f(tag, value) }

// Logger is the logging interface used by the store.
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

// Options configures a Store.
type Options struct {
	// NVRAM is the backing store. Required.
	NVRAM nvram.Store

	// App is the application name written into the log. Required.
	App string

	// Clock supplies ticks for the save debounce. Defaults to a monotonic clock.
	Clock scheduler.Clock

	// Scheduler receives the restart request when the host name changes. Optional.
	Scheduler *scheduler.Scheduler

	// Application is offered unrecognised tags. Optional.
	Application App

	// Defaults are values reported for absent tags. They are never persisted.
	Defaults map[string]string

	// OnChange is called after each accepted runtime change with the tag. Optional.
	OnChange func(tag string)

	Logger Logger
}

// Setting is a tag and its current value.
type Setting struct {
	Tag   string
	Value []byte
	Core  bool
}

// Store is the live settings table. It is owned by the supervisor tick
// and is not safe for concurrent use.
type Store struct {
	nv        nvram.Store
	app       string
	clock     scheduler.Clock
	sched     *scheduler.Scheduler
	appl      App
	defaults  map[string]string
	onChange  func(tag string)
	logger    Logger
	values    map[string][]byte
	used      int
	dirty     bool
	saveAt    scheduler.Deadline
	loading   bool
	saveCount int
	reset     bool
}

// New creates an empty store. Call Load to read the persisted log.
func New(opts Options) (*Store, error) {
	if opts.NVRAM == nil {
		return nil, errors.New("settings: nvram store is required")
	}
	if opts.App == "" || len(opts.App) > MaxValueLen {
		return nil, fmt.Errorf("settings: invalid application name %q", opts.App)
	}
	if opts.Clock == nil {
		opts.Clock = scheduler.NewMonotonicClock()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	defaults := make(map[string]string, len(builtinDefaults)+len(opts.Defaults))
	for k, v := range builtinDefaults {
		defaults[k] = v
	}
	for k, v := range opts.Defaults {
		defaults[strings.ToLower(k)] = v
	}

	s := &Store{
		nv:       opts.NVRAM,
		app:      opts.App,
		clock:    opts.Clock,
		sched:    opts.Scheduler,
		appl:     opts.Application,
		defaults: defaults,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		values:   make(map[string][]byte),
	}
	s.used = headerSize(s.app) + 1
	if int64(s.used) > s.nv.Size() {
		return nil, fmt.Errorf("settings: store of %d bytes cannot hold the log header", s.nv.Size())
	}
	return s, nil
}

// SetLogger replaces the logger.
func (s *Store) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

// SetOnChange replaces the change hook.
func (s *Store) SetOnChange(fn func(tag string)) {
	s.onChange = fn
}

// Apply validates and applies one change. A tag starting with "0x" carries
// hex text that is decoded first. An empty value removes the tag.
//
// Applying an unchanged value, or clearing a tag that is already absent,
// succeeds without scheduling a save.
func (s *Store) Apply(tag string, value []byte) error {
	tag = strings.ToLower(tag)
	if rest, ok := strings.CutPrefix(tag, hexPrefix); ok {
		tag = rest
		if len(value) > 0 {
			decoded, err := decodeHex(value)
			if err != nil {
				return err
			}
			value = decoded
		}
	}
	if tag == "" || len(tag) > MaxTagLen {
		return fmt.Errorf("%w: %d bytes", ErrTagTooLong, len(tag))
	}
	if len(value) > MaxValueLen {
		return fmt.Errorf("%w: %d bytes", ErrValueTooLong, len(value))
	}

	old, exists := s.values[tag]
	if !exists && len(value) == 0 {
		if err := s.offer(tag, nil); err != nil {
			return err
		}
		return nil
	}
	if exists && bytes.Equal(old, value) {
		s.logger.Debug("setting unchanged", "tag", tag)
		return nil
	}

	used := s.used
	if exists {
		used -= recordSize(tag, old)
	}
	if len(value) > 0 {
		used += recordSize(tag, value)
	}
	if int64(used) > s.nv.Size() {
		return fmt.Errorf("%w: %d/%d bytes", ErrStoreFull, used, s.nv.Size())
	}

	if err := s.offer(tag, value); err != nil {
		return err
	}

	s.used = used
	if len(value) == 0 {
		delete(s.values, tag)
	} else {
		s.values[tag] = bytes.Clone(value)
	}
	s.markDirty(SaveDelay)

	if s.loading {
		return nil
	}
	s.logger.Info("setting changed", "tag", tag, "cleared", len(value) == 0)
	if tag == TagHostname && s.sched != nil {
		s.sched.Schedule(scheduler.Restart, s.clock.Now(), 0)
	}
	if s.onChange != nil {
		s.onChange(tag)
	}
	return nil
}

// offer validates a change against the core table, then the application.
func (s *Store) offer(tag string, value []byte) error {
	if def, ok := coreTags[tag]; ok {
		if len(value) == 0 {
			return nil
		}
		return def.validate(value)
	}
	if s.appl != nil && s.appl.Setting(tag, value) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownTag, tag)
}

func (s *Store) markDirty(delay time.Duration) {
	s.dirty = true
	s.saveAt = scheduler.At(s.clock.Now(), delay)
}

// Load reads the persisted log and re-applies every record through Apply.
// On an integrity error the live set stays empty, the store is marked dirty
// so a valid log is written, and the error is returned for logging only.
func (s *Store) Load() error {
	records, err := decodeLog(s.nv, s.nv.Size(), s.app)
	if err != nil {
		s.markDirty(0)
		return err
	}

	s.loading = true
	defer func() { s.loading = false }()

	bad := false
	for _, r := range records {
		if err := s.Apply(r.Tag, r.Value); err != nil {
			s.logger.Warn("dropping stored setting", "tag", r.Tag, "error", err)
			bad = true
		}
	}
	if bad {
		s.markDirty(SaveDelay)
	} else {
		s.dirty = false
		s.saveAt = scheduler.Deadline{}
	}
	s.logger.Info("settings loaded", "count", len(s.values), "used", s.used, "capacity", s.nv.Size())
	return nil
}

// Tick saves the store once the debounce deadline has passed. A failed
// save is retried after another debounce window.
func (s *Store) Tick(now uint32) error {
	if !s.saveAt.Due(now) {
		return nil
	}
	if err := s.Save(); err != nil {
		s.markDirty(SaveDelay)
		return err
	}
	return nil
}

// Save writes the whole live set when anything changed since the last save.
// The body is written before the validity marker.
func (s *Store) Save() error {
	if !s.dirty {
		return nil
	}
	if s.reset {
		s.logger.Debug("save skipped, settings invalidated")
		s.dirty = false
		s.saveAt = scheduler.Deadline{}
		return nil
	}
	image := encodeLog(s.app, s.Records())
	if int64(len(image)) > s.nv.Size() {
		return fmt.Errorf("%w: %d/%d bytes", ErrStoreFull, len(image), s.nv.Size())
	}

	if _, err := s.nv.WriteAt([]byte{0}, 0); err != nil {
		return fmt.Errorf("clearing log marker: %w", err)
	}
	if _, err := s.nv.WriteAt(image[1:], 1); err != nil {
		return fmt.Errorf("writing log: %w", err)
	}
	if _, err := s.nv.WriteAt(image[:1], 0); err != nil {
		return fmt.Errorf("writing log marker: %w", err)
	}
	if err := s.nv.Sync(); err != nil {
		return fmt.Errorf("syncing log: %w", err)
	}

	s.dirty = false
	s.saveAt = scheduler.Deadline{}
	s.saveCount++
	s.logger.Info("settings saved", "used", len(image), "capacity", s.nv.Size())
	return nil
}

// Reset invalidates the persisted log and discards any pending save, so the
// next start has no prior configuration. The live set is unchanged, but no
// later change is saved for the life of the store.
func (s *Store) Reset() error {
	if _, err := s.nv.WriteAt([]byte{0}, 0); err != nil {
		return fmt.Errorf("clearing log marker: %w", err)
	}
	if err := s.nv.Sync(); err != nil {
		return fmt.Errorf("syncing log: %w", err)
	}
	s.dirty = false
	s.saveAt = scheduler.Deadline{}
	s.reset = true
	s.logger.Warn("settings invalidated")
	return nil
}

// Dirty reports whether there are unsaved changes.
func (s *Store) Dirty() bool { return s.dirty }

// Saves returns how many times the log has been written.
func (s *Store) Saves() int { return s.saveCount }

// Used returns the persisted size of the live set in bytes.
func (s *Store) Used() int { return s.used }

// Capacity returns the store capacity in bytes.
func (s *Store) Capacity() int64 { return s.nv.Size() }

// Lookup returns the stored value of tag, ignoring defaults.
func (s *Store) Lookup(tag string) ([]byte, bool) {
	v, ok := s.values[strings.ToLower(tag)]
	return v, ok
}

// Bytes returns the value of tag, or its default, or nil.
func (s *Store) Bytes(tag string) []byte {
	tag = strings.ToLower(tag)
	if v, ok := s.values[tag]; ok {
		return v
	}
	if d, ok := s.defaults[tag]; ok {
		return []byte(d)
	}
	return nil
}

// String returns the value of tag as text.
func (s *Store) String(tag string) string {
	return string(s.Bytes(tag))
}

// Int returns the value of tag as a number, 0 when absent or not numeric.
func (s *Store) Int(tag string) int {
	n, err := strconv.Atoi(s.String(tag))
	if err != nil {
		return 0
	}
	return n
}

// Records returns the live set in tag order.
func (s *Store) Records() []Record {
	out := make([]Record, 0, len(s.values))
	for tag, v := range s.values {
		out = append(out, Record{Tag: tag, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Snapshot returns a copy of the live set in tag order.
func (s *Store) Snapshot() []Setting {
	records := s.Records()
	out := make([]Setting, len(records))
	for i, r := range records {
		out[i] = Setting{Tag: r.Tag, Value: bytes.Clone(r.Value), Core: IsCore(r.Tag)}
	}
	return out
}
