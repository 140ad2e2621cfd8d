package report

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btrpa/internal/addr"
	"btrpa/internal/advert"
	"btrpa/internal/gps"
	"btrpa/internal/rpa"
	"btrpa/internal/scan"
	"btrpa/internal/util"
)

const keyHex = "ec0234a357c8ad05341010a60a397d9b"

func plainConsole(t *testing.T) {
	t.Helper()
	util.SetConsole(os.Stdout, true)
	t.Cleanup(func() { util.SetConsole(os.Stdout, false) })
}

func testKey(t *testing.T) addr.IdentityKey {
	t.Helper()
	k, err := addr.ParseKey(keyHex)
	require.NoError(t, err)
	return k
}

func TestBanner(t *testing.T) {
	plainConsole(t)
	key := testKey(t)

	tests := []struct {
		name  string
		mode  scan.Mode
		limit scan.Limit
		want  []string
	}{
		{
			name:  "discover bounded",
			mode:  scan.DiscoverAllMode(),
			limit: scan.Within(30 * time.Second),
			want:  []string{"Mode: DISCOVER ALL - showing every broadcasting device", "Timeout: 30s  |  Press Ctrl+C to stop"},
		},
		{
			name:  "targeted fractional",
			mode:  scan.TargetedMode("AA:BB"),
			limit: scan.Within(2500 * time.Millisecond),
			want:  []string{"Mode: TARGETED - searching for AA:BB", "Timeout: 2.5s"},
		},
		{
			name:  "irk unbounded",
			mode:  scan.IRKMode(key),
			limit: scan.Unbounded,
			want: []string{
				"Mode: IRK RESOLUTION - resolving RPAs against provided IRK",
				"IRK fingerprint: " + rpa.Fingerprint(key),
				"Running continuously  |  Press Ctrl+C to stop",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(&buf, Options{}).Banner(tt.mode, tt.limit, "")
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			assert.NotContains(t, buf.String(), keyHex)
		})
	}
}

func TestIrkRunPrintsOnlyMatches(t *testing.T) {
	plainConsole(t)
	key := testKey(t)
	match := "70:81:94:0D:FB:AA"
	miss := "70:81:94:00:00:00"

	var buf bytes.Buffer
	p := New(&buf, Options{})
	s := scan.NewSession(scan.IRKMode(key), scan.WithObserver(p))
	require.NoError(t, s.Start(scan.Unbounded))

	tx := -59
	s.Handle(advert.Event{Address: match, RSSI: -79, TxPower: &tx, Timestamp: time.Date(2026, 1, 1, 12, 30, 5, 0, time.UTC)})
	s.Handle(advert.Event{Address: miss, RSSI: -70})
	s.Stop()

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "IRK RESOLVED"))
	assert.Contains(t, out, "  IRK RESOLVED  -  match #1 (addr seen 1x)")
	assert.Contains(t, out, "  Address      : "+match+"  << IRK MATCH >>")
	assert.Contains(t, out, "  Name         : Unknown")
	assert.Contains(t, out, "  TX Power     : -59 dBm")
	assert.Contains(t, out, "  Est. Distance: ~10.0 m")
	assert.Contains(t, out, "  Timestamp    : 12:30:05")
	assert.NotContains(t, out, miss)

	buf.Reset()
	p.Summary(s.Summary())
	sum := buf.String()
	assert.Contains(t, sum, "  Total detections : 2")
	assert.Contains(t, sum, "  IRK matches      : 1 detections across 1 address(es)")
	assert.Contains(t, sum, "  "+match+strings.Repeat(" ", 13)+"1x")
}

func TestShowMisses(t *testing.T) {
	plainConsole(t)
	var buf bytes.Buffer
	p := New(&buf, Options{ShowMisses: true})

	p.Observe(advert.Event{Address: "70:81:94:00:00:00", RSSI: -70},
		scan.Result{Address: "70:81:94:00:00:00", Seen: 1, Missed: true})
	assert.Contains(t, buf.String(), "70:81:94:00:00:00  (no match)")
	assert.Contains(t, buf.String(), "  Address Type : resolvable_private")
	assert.Contains(t, buf.String(), "  TX Power     : N/A dBm")
	assert.NotContains(t, buf.String(), "Est. Distance")

	buf.Reset()
	New(&buf, Options{}).Observe(advert.Event{Address: "70:81:94:00:00:00"},
		scan.Result{Address: "70:81:94:00:00:00", Seen: 1, Missed: true})
	assert.Empty(t, buf.String())
}

func TestWarningLine(t *testing.T) {
	plainConsole(t)
	var buf bytes.Buffer
	id := "6F1C2B3A-0000-4000-8000-1234567890AB"
	New(&buf, Options{}).Observe(advert.Event{Address: id}, scan.Result{Kind: scan.NonResolvableWarning, Address: id})
	assert.Equal(t, "  [!] UUID address "+id+" - cannot resolve (need real MAC)\n", buf.String())
}

type staticFix struct{ f gps.Fix }

func (s staticFix) Fix() (gps.Fix, bool) { return s.f, true }

func TestDeviceBlockOptionalFields(t *testing.T) {
	plainConsole(t)
	var buf bytes.Buffer
	p := New(&buf, Options{GPS: staticFix{gps.Fix{Lat: 52.1, Lon: 4.3}}})

	ev := advert.Event{
		Address:      "AA:BB:CC:DD:EE:01",
		RSSI:         -60,
		Name:         "Tag",
		LocalName:    "Tag Local",
		Manufacturer: map[uint16][]byte{0x0075: {0x01}, 0x004C: {0x10, 0x05}},
		Services:     []string{"0000180f-0000-1000-8000-00805f9b34fb"},
		ServiceData:  map[string][]byte{"0000feaa-0000-1000-8000-00805f9b34fb": {0xAB}},
		Platform:     []string{"addr_type=random"},
	}
	p.Observe(ev, scan.Result{Kind: scan.NewDevice, Address: ev.Address, Seen: 1, Devices: 3})

	out := buf.String()
	assert.Contains(t, out, "  DEVICE #3  -  seen 1x")
	assert.Contains(t, out, "  Name         : Tag")
	assert.Contains(t, out, "  Local Name   : Tag Local")
	assert.Less(t, strings.Index(out, "0x004C -> 1005"), strings.Index(out, "0x0075 -> 01"))
	assert.Contains(t, out, "  Services     : 0000180f-0000-1000-8000-00805f9b34fb")
	assert.Contains(t, out, "  Service Data : 0000feaa-0000-1000-8000-00805f9b34fb -> ab")
	assert.Contains(t, out, "  Platform Data: addr_type=random")
	assert.Contains(t, out, "  GPS          : 52.100000, 4.300000")
}

func TestSummaryModes(t *testing.T) {
	plainConsole(t)

	t.Run("discover", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, Options{}).Summary(scan.Summary{
			Mode:    scan.DiscoverAllMode(),
			Elapsed: 1500 * time.Millisecond,
			Total:   4,
			Unique:  2,
			Devices: []scan.Entry{{Address: "A", Count: 3}, {Address: "B", Count: 1}},
		})
		out := buf.String()
		assert.Contains(t, out, "Scan complete - 1.5s elapsed")
		assert.Contains(t, out, "  Unique devices   : 2")
		assert.Contains(t, out, "  A"+strings.Repeat(" ", 39)+"     3x")
		assert.Less(t, strings.Index(out, "  A "), strings.Index(out, "  B "))
	})

	t.Run("irk none resolved", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, Options{}).Summary(scan.Summary{Mode: scan.IRKMode(testKey(t)), Total: 5, Unique: 2})
		out := buf.String()
		assert.Contains(t, out, "No addresses resolved - the device may not be broadcasting,")
		assert.Contains(t, out, "or the IRK may be incorrect.")
		assert.NotContains(t, out, "Resolved addresses:")
	})

	t.Run("targeted totals only", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, Options{}).Summary(scan.Summary{Mode: scan.TargetedMode("AA"), Total: 2, Unique: 1})
		out := buf.String()
		assert.Contains(t, out, "  Total detections : 2")
		assert.NotContains(t, out, "Unique")
	})
}

func TestBlocksDoNotInterleaveWithConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	util.SetConsole(&buf, true)
	t.Cleanup(func() { util.SetConsole(os.Stdout, false) })

	ev := advert.Event{
		Address:   "AA:BB:CC:DD:EE:01",
		RSSI:      -60,
		Name:      "Tag",
		Services:  []string{"0000180f-0000-1000-8000-00805f9b34fb"},
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	res := scan.Result{Kind: scan.NewDevice, Address: ev.Address, Seen: 1, Devices: 1}

	var single bytes.Buffer
	New(&single, Options{}).Observe(ev, res)
	block := single.String()
	require.NotEmpty(t, block)

	const blocks = 50
	p := New(&buf, Options{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			util.Line("[GPS]", util.ColorGray, "noise")
		}
	}()
	for i := 0; i < blocks; i++ {
		p.Observe(ev, res)
	}
	<-done

	out := buf.String()
	assert.Equal(t, blocks, strings.Count(out, block))
	assert.Equal(t, 500, strings.Count(out, "[GPS] noise\n"))
}
