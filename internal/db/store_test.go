package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btrpa/internal/advert"
	"btrpa/internal/gps"
	"btrpa/internal/scan"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	fp := "0dfbaa"
	id, err := s.CreateSession(ctx, SessionParams{RunID: "run-1", Mode: "irk", KeyFingerprint: &fp})
	require.NoError(t, err)
	require.Positive(t, id)

	_, err = s.CreateSession(ctx, SessionParams{RunID: "run-1", Mode: "irk"})
	assert.Error(t, err, "run ids are unique")

	require.NoError(t, s.FinishSession(ctx, id, FinishParams{
		StopReason:        "timeout",
		TotalDetections:   4,
		UniqueAddresses:   2,
		ResolvedTotal:     1,
		ResolvedAddresses: 1,
	}))

	var reason string
	var total int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT stop_reason, total_detections FROM scan_sessions WHERE id = ?`, id).Scan(&reason, &total))
	assert.Equal(t, "timeout", reason)
	assert.Equal(t, 4, total)

	assert.Error(t, s.FinishSession(ctx, id+100, FinishParams{}))
}

func TestRecordDetectionAndStatistics(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	id, err := s.CreateSession(ctx, SessionParams{RunID: "run-2", Mode: "discover-all"})
	require.NoError(t, err)

	for _, p := range []DetectionParams{
		{SessionID: id, Address: "aa:bb:cc:dd:ee:01", Kind: "new_device", SeenCount: 1},
		{SessionID: id, Address: "AA:BB:CC:DD:EE:01", Kind: "repeat_device", SeenCount: 2},
		{SessionID: id, Address: "70:81:94:0D:FB:AA", Kind: "irk_resolved", SeenCount: 1},
		{SessionID: id, Address: "6F1C2B3A-0000-4000-8000-1234567890AB", Kind: "non_resolvable"},
	} {
		_, err := s.RecordDetection(ctx, p)
		require.NoError(t, err)
	}
	n, err := s.RecordDetection(ctx, DetectionParams{SessionID: id, Address: "  "})
	require.NoError(t, err)
	assert.Zero(t, n)

	st, err := s.GetStatistics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Statistics{Detections: 4, Addresses: 3, Resolved: 1, Warnings: 1}, st)

	empty, err := s.GetStatistics(ctx, id+1)
	require.NoError(t, err)
	assert.Zero(t, empty)
}

type fixedLocator struct{ fix gps.Fix }

func (f fixedLocator) Fix() (gps.Fix, bool) { return f.fix, true }

func TestJournalRecordsSurfacedResults(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	id, err := s.CreateSession(ctx, SessionParams{RunID: "run-3", Mode: "irk"})
	require.NoError(t, err)

	j := NewJournal(ctx, s, id, fixedLocator{gps.Fix{Lat: 1, Lon: 2, Stale: true}}, nil)
	tx := -59
	ev := advert.Event{
		Address:      "70:81:94:0D:FB:AA",
		RSSI:         -79,
		TxPower:      &tx,
		Manufacturer: map[uint16][]byte{0x004C: {0x10, 0x05}},
		Timestamp:    time.Now(),
	}
	j.Observe(ev, scan.Result{Kind: scan.IrkResolved, Address: ev.Address, Seen: 1, Match: 1})
	j.Observe(ev, scan.Result{Address: ev.Address, Missed: true})

	var (
		kind, subtype, gpsText, payload string
		distance                        float64
		cached                          int
	)
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT kind, subtype, distance_m, gps, gps_cached, payload_json FROM detections WHERE session_id = ?`, id).
		Scan(&kind, &subtype, &distance, &gpsText, &cached, &payload))
	assert.Equal(t, "irk_resolved", kind)
	assert.Equal(t, "resolvable_private", subtype)
	assert.InDelta(t, 10.0, distance, 1e-9)
	assert.Equal(t, "(1.000000, 2.000000)", gpsText)
	assert.Equal(t, 1, cached)
	assert.JSONEq(t, `{"manufacturer":{"0x004C":"1005"}}`, payload)

	st, err := s.GetStatistics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Detections)
}

func TestEventPayloadNamesADTypes(t *testing.T) {
	raw := []byte{
		0x02, 0x01, 0x06,
		0x05, 0x09, 'T', 'a', 'g', '1',
		0x02, 0x2A, 0x00,
	}
	p := eventPayload(advert.Event{Raw: raw})
	assert.Equal(t, []string{"Flags", "Complete Local Name", "0x2A"}, p.ADTypes)
	assert.Equal(t, "020106050954616731022a00", p.RawHex)

	assert.Empty(t, eventPayload(advert.Event{}).ADTypes)
}
