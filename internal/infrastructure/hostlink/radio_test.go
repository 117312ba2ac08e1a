package hostlink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-node/internal/link"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	reply func(args []string) ([]byte, error)
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	reply := f.reply
	f.mu.Unlock()
	if reply == nil {
		return nil, nil
	}
	return reply(args)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) call(i int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fixture struct {
	radio    *Radio
	runner   *fakeRunner
	netRoot  string
	wireless string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	netRoot := filepath.Join(dir, "net")
	require.NoError(t, os.MkdirAll(filepath.Join(netRoot, "wlan0"), 0o755))

	f := &fixture{
		runner:   &fakeRunner{},
		netRoot:  netRoot,
		wireless: filepath.Join(dir, "wireless"),
	}
	radio, err := New(Options{
		Interface:      "wlan0",
		NetRoot:        netRoot,
		WirelessPath:   f.wireless,
		CommandTimeout: 5 * time.Second,
		PollInterval:   5 * time.Millisecond,
		Runner:         f.runner.run,
	})
	require.NoError(t, err)
	f.radio = radio
	return f
}

func (f *fixture) setOperstate(t *testing.T, state string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.netRoot, "wlan0", "operstate"), []byte(state+"\n"), 0o644))
}

func TestNew_RequiresInterface(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestConnected_ReadsOperstate(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.radio.Connected(), "missing operstate")

	f.setOperstate(t, "up")
	assert.True(t, f.radio.Connected())

	f.setOperstate(t, "dormant")
	assert.False(t, f.radio.Connected())
}

func TestRSSI_ReadsProcWireless(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 0, f.radio.RSSI(), "missing file")

	content := "Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE\n" +
		" face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22\n" +
		"  eth9: 0000   10.  -90.  -256        0      0      0      0      0        0\n" +
		" wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0\n"
	require.NoError(t, os.WriteFile(f.wireless, []byte(content), 0o644))
	assert.Equal(t, -56, f.radio.RSSI())
}

func TestAssociate_BuildsCommand(t *testing.T) {
	f := newFixture(t)

	err := f.radio.Associate(link.Credential{
		SSID:       "site",
		Passphrase: "secret",
		BSSID:      []byte{0xaa, 0xbb, 0xcc, 0x01, 0x02, 0x03},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.runner.callCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{
		"nmcli", "--wait", "5", "device", "wifi", "connect", "site", "ifname", "wlan0",
		"password", "secret", "bssid", "AA:BB:CC:01:02:03",
	}, f.runner.call(0))
}

func TestAssociate_OpenNetwork(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.radio.Associate(link.Credential{SSID: "guest"}))
	require.Eventually(t, func() bool { return f.runner.callCount() == 1 }, time.Second, time.Millisecond)

	call := strings.Join(f.runner.call(0), " ")
	assert.NotContains(t, call, "password")
	assert.NotContains(t, call, "bssid")
}

func TestAssociate_RequiresSSID(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.radio.Associate(link.Credential{}))
	assert.Equal(t, 0, f.runner.callCount())
}

func TestAssociate_FailureReportsLinkLoss(t *testing.T) {
	f := newFixture(t)
	f.runner.reply = func([]string) ([]byte, error) { return nil, errors.New("exit status 10") }

	reasons := make(chan int, 1)
	f.radio.OnLinkLoss(func(reason int) { reasons <- reason })

	require.NoError(t, f.radio.Associate(link.Credential{SSID: "site", Passphrase: "secret"}))

	select {
	case r := <-reasons:
		assert.Equal(t, ReasonAssociateFailed, r)
	case <-time.After(time.Second):
		t.Fatal("link loss not reported")
	}
}

func TestAssociate_WaitFollowsAssociateTimeout(t *testing.T) {
	runner := &fakeRunner{}
	radio, err := New(Options{
		Interface:        "wlan0",
		NetRoot:          t.TempDir(),
		CommandTimeout:   5 * time.Second,
		AssociateTimeout: 15 * time.Second,
		Runner:           runner.run,
	})
	require.NoError(t, err)

	require.NoError(t, radio.Associate(link.Credential{SSID: "site"}))
	require.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"--wait", "15"}, runner.call(0)[1:3])
}

func TestAssociate_SupersededFailureNotReported(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	finished := make(chan struct{})
	f.runner.reply = func(args []string) ([]byte, error) {
		if args[5] == "old" {
			<-release
			defer close(finished)
			return nil, errors.New("exit status 4")
		}
		return nil, nil
	}

	var mu sync.Mutex
	var reasons []int
	f.radio.OnLinkLoss(func(reason int) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	})

	require.NoError(t, f.radio.Associate(link.Credential{SSID: "old"}))
	require.NoError(t, f.radio.Associate(link.Credential{SSID: "new"}))
	require.Eventually(t, func() bool { return f.runner.callCount() == 2 }, time.Second, time.Millisecond)

	close(release)
	<-finished
	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reasons) > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestAssociate_FailureAfterDisconnectNotReported(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.runner.reply = func(args []string) ([]byte, error) {
		if args[0] == "--wait" {
			<-release
			return nil, errors.New("exit status 4")
		}
		return nil, nil
	}

	reasons := make(chan int, 1)
	f.radio.OnLinkLoss(func(reason int) { reasons <- reason })

	require.NoError(t, f.radio.Associate(link.Credential{SSID: "site"}))
	require.NoError(t, f.radio.Disconnect())
	close(release)

	select {
	case r := <-reasons:
		t.Fatalf("unexpected link loss %d", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCurrent_ParsesActiveEntry(t *testing.T) {
	f := newFixture(t)
	f.runner.reply = func([]string) ([]byte, error) {
		return []byte("no:11\\:22\\:33\\:44\\:55\\:66:1\nyes:AA\\:BB\\:CC\\:DD\\:EE\\:FF:6\n"), nil
	}

	bssid, channel := f.radio.Current()
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}, bssid)
	assert.Equal(t, 6, channel)
}

func TestCurrent_NoActiveEntry(t *testing.T) {
	f := newFixture(t)
	f.runner.reply = func([]string) ([]byte, error) { return []byte("no:11\\:22\\:33\\:44\\:55\\:66:1\n"), nil }

	bssid, channel := f.radio.Current()
	assert.Nil(t, bssid)
	assert.Equal(t, 0, channel)
}

func TestScan_CollectsResults(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.runner.reply = func(args []string) ([]byte, error) {
		if args[len(args)-2] == "ssid" {
			<-release
			return nil, nil
		}
		return []byte("site:AA\\:BB\\:CC\\:DD\\:EE\\:01:6:80\n" +
			"site:AA\\:BB\\:CC\\:DD\\:EE\\:02:11:40\n" +
			":AA\\:BB\\:CC\\:DD\\:EE\\:03:1:90\n"), nil
	}

	require.NoError(t, f.radio.StartScan("site"))

	_, done := f.radio.ScanResults()
	assert.False(t, done, "scan still running")
	close(release)

	var results []link.ScanResult
	require.Eventually(t, func() bool {
		results, done = f.radio.ScanResults()
		return done
	}, time.Second, time.Millisecond)

	require.Len(t, results, 2, "hidden network skipped")
	assert.Equal(t, "site", results[0].SSID)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}, results[0].BSSID)
	assert.Equal(t, 6, results[0].Channel)
	assert.Equal(t, -60, results[0].RSSI)
	assert.Equal(t, -80, results[1].RSSI)
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.radio.Disconnect())
	assert.Equal(t, []string{"nmcli", "device", "disconnect", "wlan0"}, f.runner.call(0))

	f.runner.reply = func([]string) ([]byte, error) { return nil, errors.New("exit status 6") }
	assert.Error(t, f.radio.Disconnect())
}

func TestWatch_ReportsDownTransition(t *testing.T) {
	f := newFixture(t)
	f.setOperstate(t, "up")

	reasons := make(chan int, 4)
	f.radio.OnLinkLoss(func(reason int) { reasons <- reason })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.radio.Watch(ctx)

	time.Sleep(20 * time.Millisecond)
	f.setOperstate(t, "down")

	select {
	case r := <-reasons:
		assert.Equal(t, ReasonDown, r)
	case <-time.After(time.Second):
		t.Fatal("down transition not reported")
	}
}

func TestWatch_IgnoresDropAfterDisconnect(t *testing.T) {
	f := newFixture(t)
	f.setOperstate(t, "up")

	reasons := make(chan int, 4)
	f.radio.OnLinkLoss(func(reason int) { reasons <- reason })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.radio.Watch(ctx)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.radio.Disconnect())
	time.Sleep(20 * time.Millisecond)
	f.setOperstate(t, "down")

	select {
	case r := <-reasons:
		t.Fatalf("unexpected link loss %d", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatch_ReportsDropOfNewAssociation(t *testing.T) {
	f := newFixture(t)
	f.setOperstate(t, "down")

	reasons := make(chan int, 4)
	f.radio.OnLinkLoss(func(reason int) { reasons <- reason })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.radio.Watch(ctx)

	require.NoError(t, f.radio.Disconnect())
	require.NoError(t, f.radio.Associate(link.Credential{SSID: "site"}))
	f.setOperstate(t, "up")
	time.Sleep(20 * time.Millisecond)
	f.setOperstate(t, "down")

	select {
	case r := <-reasons:
		assert.Equal(t, ReasonDown, r)
	case <-time.After(time.Second):
		t.Fatal("down transition not reported")
	}
}

func TestRedact(t *testing.T) {
	got := redact([]string{"connect", "site", "password", "secret"})
	assert.Equal(t, []string{"connect", "site", "password", "***"}, got)
}

func TestSplitTerse(t *testing.T) {
	assert.Equal(t, []string{"yes", "AA:BB", "6"}, splitTerse(`yes:AA\:BB:6`))
	assert.Equal(t, []string{"", "x"}, splitTerse(":x"))
	assert.Nil(t, splitTerse(""))
}
