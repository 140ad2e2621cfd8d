package status

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btrpa/internal/advert"
	"btrpa/internal/db"
	"btrpa/internal/metrics"
	"btrpa/internal/scan"
	"btrpa/internal/util"
)

func captureConsole(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	util.SetConsole(&buf, true)
	t.Cleanup(func() { util.SetConsole(os.Stdout, false) })
	return &buf
}

func TestPrintOnce(t *testing.T) {
	buf := captureConsole(t)
	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "j.db"))
	require.NoError(t, err)
	defer store.Close()
	id, err := store.CreateSession(ctx, db.SessionParams{RunID: "r", Mode: "irk"})
	require.NoError(t, err)
	_, err = store.RecordDetection(ctx, db.DetectionParams{SessionID: id, Address: "70:81:94:0D:FB:AA", Kind: "irk_resolved"})
	require.NoError(t, err)

	rec := metrics.NewRecorder(scan.IrkResolve)
	rec.Observe(advert.Event{}, scan.Result{Kind: scan.IrkResolved, Seen: 1, Devices: 1, Match: 1})

	printOnce(ctx, Provider{
		Metrics:   rec,
		Store:     store,
		SessionID: id,
		Battery:   func() (int, bool) { return 42, true },
	})

	out := buf.String()
	assert.Contains(t, out, "[STATUS] adverts: 1, detections: 1, unique: 1, IRK matches: 1, unresolvable: 0")
	assert.Contains(t, out, "[DB STATS] Journaled: 1, Addresses: 1, Resolved: 1, Warnings: 0")
	assert.Contains(t, out, "[BATTERY] 42%")
	assert.NotContains(t, out, "[GPS DATA]")
}

func TestRunDisabledReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		Run(context.Background(), 0, Provider{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with zero interval should return immediately")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	buf := captureConsole(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, 10*time.Millisecond, Provider{Battery: func() (int, bool) { return 0, false }, Metrics: metrics.NewRecorder(scan.DiscoverAll)})
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	assert.Contains(t, buf.String(), "[STATUS]")
}
