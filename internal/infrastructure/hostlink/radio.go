package hostlink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/link"
)

// Link-loss reasons passed to the OnLinkLoss callback.
const (
	ReasonDown            = 1
	ReasonAssociateFailed = 2
)

const (
	defaultNetRoot        = "/sys/class/net"
	defaultWirelessPath   = "/proc/net/wireless"
	defaultCommandTimeout = 30 * time.Second
	defaultPollInterval   = time.Second
	defaultNmcli          = "nmcli"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output() //nolint:gosec // Fixed binary, arguments from settings
}

// Logger is the logging interface used by the radio.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Radio.
type Options struct {
	// Interface is the wireless interface name. Required.
	Interface string

	// NetRoot is the sysfs network class directory.
	// Default: "/sys/class/net"
	NetRoot string

	// WirelessPath is the kernel wireless statistics file.
	// Default: "/proc/net/wireless"
	WirelessPath string

	// Nmcli is the NetworkManager CLI binary.
	// Default: "nmcli"
	Nmcli string

	CommandTimeout time.Duration

	// AssociateTimeout bounds one association attempt, including the
	// nmcli --wait period. It should match the link supervisor's timeout.
	// Default: CommandTimeout
	AssociateTimeout time.Duration

	PollInterval time.Duration
	Runner       Runner
	Logger       Logger
}

// Radio drives a NetworkManager-managed interface.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Radio struct {
	opts   Options
	logger Logger

	mu       sync.Mutex
	lossFn   func(reason int)
	results  []link.ScanResult
	scanDone bool

	// gen counts association attempts and disconnects. Outcomes from an
	// older generation are not reported.
	gen uint64
	// dropped is set while the current generation is a Disconnect.
	dropped bool
}

// New creates a Radio for opts.Interface.
func New(opts Options) (*Radio, error) {
	if opts.Interface == "" {
		return nil, errors.New("hostlink: interface is required")
	}
	if opts.NetRoot == "" {
		opts.NetRoot = defaultNetRoot
	}
	if opts.WirelessPath == "" {
		opts.WirelessPath = defaultWirelessPath
	}
	if opts.Nmcli == "" {
		opts.Nmcli = defaultNmcli
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.AssociateTimeout <= 0 {
		opts.AssociateTimeout = opts.CommandTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Radio{opts: opts, logger: opts.Logger}, nil
}

func (r *Radio) run(args ...string) ([]byte, error) {
	return r.runFor(r.opts.CommandTimeout, args...)
}

func (r *Radio) runFor(timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := r.opts.Runner(ctx, r.opts.Nmcli, args...)
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", r.opts.Nmcli, strings.Join(redact(args), " "), err)
	}
	return out, nil
}

// redact hides the passphrase argument from errors and logs.
func redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i++ {
		if out[i] == "password" {
			out[i+1] = "***"
		}
	}
	return out
}

// lost reports a link loss unless a newer attempt or disconnect has
// superseded generation gen. A link going down after Disconnect is expected.
func (r *Radio) lost(gen uint64, reason int) {
	r.mu.Lock()
	fn := r.lossFn
	stale := gen != r.gen || (reason == ReasonDown && r.dropped)
	r.mu.Unlock()
	if fn == nil || stale {
		return
	}
	fn(reason)
}

// next starts a new generation and returns it.
func (r *Radio) next(drop bool) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.dropped = drop
	return r.gen
}

func (r *Radio) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// Associate starts joining c in the background. A failure is reported
// through the link-loss callback. The channel hint is not used; the
// BSSID, when set, pins the access point.
func (r *Radio) Associate(c link.Credential) error {
	if c.SSID == "" {
		return errors.New("hostlink: ssid is required")
	}
	wait := strconv.Itoa(max(1, int(r.opts.AssociateTimeout/time.Second)))
	args := []string{"--wait", wait, "device", "wifi", "connect", c.SSID, "ifname", r.opts.Interface}
	if c.Passphrase != "" {
		args = append(args, "password", c.Passphrase)
	}
	if len(c.BSSID) > 0 {
		args = append(args, "bssid", link.FormatBSSID(c.BSSID))
	}
	gen := r.next(false)
	go func() {
		if _, err := r.runFor(r.opts.AssociateTimeout, args...); err != nil {
			r.logger.Warn("association failed", "ssid", c.SSID, "error", err)
			r.lost(gen, ReasonAssociateFailed)
		}
	}()
	return nil
}

// Connected reports whether the interface operstate is up.
func (r *Radio) Connected() bool {
	data, err := os.ReadFile(filepath.Join(r.opts.NetRoot, r.opts.Interface, "operstate"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "up"
}

// Current returns the access point and channel of the active connection.
func (r *Radio) Current() ([]byte, int) {
	out, err := r.run("-t", "-f", "ACTIVE,BSSID,CHAN", "device", "wifi", "list", "ifname", r.opts.Interface, "--rescan", "no")
	if err != nil {
		r.logger.Debug("reading current access point failed", "error", err)
		return nil, 0
	}
	for _, line := range strings.Split(string(out), "\n") {
		f := splitTerse(line)
		if len(f) < 3 || f[0] != "yes" {
			continue
		}
		bssid, _ := parseBSSID(f[1])
		channel, _ := strconv.Atoi(f[2])
		return bssid, channel
	}
	return nil, 0
}

// RSSI returns the signal level of the interface in dBm, zero if unknown.
func (r *Radio) RSSI() int {
	data, err := os.ReadFile(r.opts.WirelessPath)
	if err != nil {
		return 0
	}
	level, _ := parseWireless(data, r.opts.Interface)
	return level
}

// StartScan begins a background scan for ssid.
func (r *Radio) StartScan(ssid string) error {
	r.mu.Lock()
	r.results = nil
	r.scanDone = false
	r.mu.Unlock()

	go func() {
		if _, err := r.run("device", "wifi", "rescan", "ifname", r.opts.Interface, "ssid", ssid); err != nil {
			r.logger.Debug("rescan failed, using cached results", "error", err)
		}
		out, err := r.run("-t", "-f", "SSID,BSSID,CHAN,SIGNAL", "device", "wifi", "list", "ifname", r.opts.Interface, "--rescan", "no")
		if err != nil {
			r.logger.Debug("listing scan results failed", "error", err)
		}
		results := parseScan(out)

		r.mu.Lock()
		r.results = results
		r.scanDone = true
		r.mu.Unlock()
	}()
	return nil
}

// ScanResults returns the last scan once it has finished.
func (r *Radio) ScanResults() ([]link.ScanResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.scanDone {
		return nil, false
	}
	out := make([]link.ScanResult, len(r.results))
	copy(out, r.results)
	return out, true
}

// Disconnect drops the connection on the interface.
func (r *Radio) Disconnect() error {
	r.next(true)
	_, err := r.run("device", "disconnect", r.opts.Interface)
	return err
}

// OnLinkLoss registers fn for link-loss events.
func (r *Radio) OnLinkLoss(fn func(reason int)) {
	r.mu.Lock()
	r.lossFn = fn
	r.mu.Unlock()
}

// Watch polls the interface state until ctx is done and reports each
// up-to-down transition through the link-loss callback. The link must have
// been seen up since the last Associate, and a drop after Disconnect is not
// reported.
func (r *Radio) Watch(ctx context.Context) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	up := r.Connected()
	seen := r.generation()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := r.Connected()
			if up && !now {
				r.lost(seen, ReasonDown)
			}
			if now {
				seen = r.generation()
			}
			up = now
		}
	}
}

// splitTerse splits an nmcli terse line on unescaped colons.
func splitTerse(line string) []string {
	var fields []string
	var cur bytes.Buffer
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case line[i] == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(line[i])
		}
	}
	if line != "" {
		fields = append(fields, cur.String())
	}
	return fields
}

// parseBSSID reads "AA:BB:CC:DD:EE:FF".
func parseBSSID(s string) ([]byte, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return nil, fmt.Errorf("hostlink: bad bssid %q", s)
	}
	b := make([]byte, 6)
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("hostlink: bad bssid %q: %w", s, err)
		}
		b[i] = byte(v)
	}
	return b, nil
}

// signalToDBM maps nmcli's 0-100 signal quality onto dBm.
func signalToDBM(quality int) int {
	return quality/2 - 100
}

// parseScan reads "SSID:BSSID:CHAN:SIGNAL" terse lines.
func parseScan(out []byte) []link.ScanResult {
	var results []link.ScanResult
	for _, line := range strings.Split(string(out), "\n") {
		f := splitTerse(strings.TrimSpace(line))
		if len(f) < 4 || f[0] == "" {
			continue
		}
		bssid, err := parseBSSID(f[1])
		if err != nil {
			continue
		}
		channel, _ := strconv.Atoi(f[2])
		quality, _ := strconv.Atoi(f[3])
		results = append(results, link.ScanResult{
			SSID:    f[0],
			BSSID:   bssid,
			Channel: channel,
			RSSI:    signalToDBM(quality),
		})
	}
	return results
}

// parseWireless extracts the signal level for iface from /proc/net/wireless.
//
//	Inter-| sta-|   Quality        |   Discarded packets
//	 face | tus | link level noise |  nwid  crypt ...
//	 wlan0: 0000   54.  -56.  -256        0      0 ...
func parseWireless(data []byte, iface string) (int, bool) {
	for _, line := range strings.Split(string(data), "\n") {
		name, rest, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || name != iface {
			continue
		}
		f := strings.Fields(rest)
		if len(f) < 3 {
			return 0, false
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(f[2], "."), 64)
		if err != nil {
			return 0, false
		}
		return int(level), true
	}
	return 0, false
}
