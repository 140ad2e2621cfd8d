package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"btrpa/internal/bluetooth"
	"btrpa/internal/db"
	"btrpa/internal/gps"
	"btrpa/internal/ids"
	"btrpa/internal/metrics"
	"btrpa/internal/replay"
	"btrpa/internal/report"
	"btrpa/internal/rpa"
	"btrpa/internal/scan"
	"btrpa/internal/status"
	"btrpa/internal/util"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	opt, err := parseArgs(args, stderr)
	switch {
	case errors.Is(err, flag.ErrHelp), errors.Is(err, errNoMode):
		return 0
	case err != nil:
		fmt.Fprintf(stderr, "btrpa: error: %v\n", err)
		return 2
	}

	level := zerolog.InfoLevel
	if opt.debug {
		level = zerolog.DebugLevel
	}
	closeLog, err := util.SetupLogging(opt.logFile, level)
	if err != nil {
		fmt.Fprintf(stderr, "btrpa: error: %v\n", err)
		return 1
	}
	defer closeLog()

	runID := uuid.NewString()
	log.Logger = log.With().Str("run_id", runID).Logger()
	ev := log.Info().Str("mode", opt.mode.Kind.String()).Str("limit", opt.limit.String())
	if opt.mode.Kind == scan.IrkResolve {
		ev = ev.Str("irk_fingerprint", rpa.Fingerprint(opt.mode.Key))
	}
	ev.Msg("scan starting")

	names, err := ids.Load(ids.LoadConfig{DataDir: opt.dataDir, CustomDir: opt.customDataDir})
	if err != nil {
		util.Linef("[ERROR]", util.ColorRed, "failed to load data files: %v", err)
		return 1
	}
	if names != nil {
		util.Linef("[DATA]", util.ColorGray, "%s", names)
	}

	tracker, err := gps.New(opt.gps)
	if err != nil && !errors.Is(err, gps.ErrDisabled) {
		util.Linef("[ERROR]", util.ColorRed, "%v", err)
		return 1
	}
	var locator report.Locator
	if tracker != nil {
		locator = tracker
		util.Linef("[GPS]", util.ColorGray, "using %s", tracker.Describe())
	}

	src, note, err := openSource(opt)
	if err != nil {
		util.Linef("[ERROR]", util.ColorRed, "%v", err)
		return 1
	}

	printer := report.New(util.Console(), report.Options{Names: names, GPS: locator, ShowMisses: opt.showMisses})
	recorder := metrics.NewRecorder(opt.mode.Kind)
	sessionOpts := []scan.Option{scan.WithObserver(printer), scan.WithObserver(recorder)}

	var (
		store     *db.Store
		sessionID int64
	)
	if opt.dbPath != "" {
		store, err = db.Open(opt.dbPath)
		if err != nil {
			util.Linef("[ERROR]", util.ColorRed, "failed to open database: %v", err)
			return 1
		}
		defer store.Close()

		sessionID, err = store.CreateSession(context.Background(), sessionParams(runID, opt, locator))
		if err != nil {
			util.Linef("[ERROR]", util.ColorRed, "failed to create scan session: %v", err)
			return 1
		}
		util.Linef("[SESSION]", util.ColorGray, "id=%d run=%s", sessionID, runID)
		sessionOpts = append(sessionOpts, scan.WithObserver(db.NewJournal(context.Background(), store, sessionID, locator, names)))
	}

	session := scan.NewSession(opt.mode, sessionOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSignals := handleSignals(session, cancel)
	defer stopSignals()

	bgCtx, bgCancel := context.WithCancel(ctx)
	var eg errgroup.Group
	if tracker != nil {
		eg.Go(func() error { return tracker.Run(bgCtx) })
	}
	if opt.metricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(recorder)
		eg.Go(func() error {
			if err := metrics.Serve(bgCtx, opt.metricsAddr, registry); err != nil {
				util.Linef("[WARN]", util.ColorYellow, "metrics endpoint: %v", err)
				return err
			}
			return nil
		})
	}
	eg.Go(func() error {
		status.Run(bgCtx, opt.statsInterval, status.Provider{
			Metrics:   recorder,
			GPS:       tracker,
			Store:     store,
			SessionID: sessionID,
		})
		return nil
	})

	printer.Banner(opt.mode, opt.limit, note)
	summary, runErr := session.Run(ctx, src, opt.limit)

	bgCancel()
	if err := eg.Wait(); err != nil {
		log.Warn().Err(err).Msg("background task failed")
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("scan failed")
		util.Linef("[ERROR]", util.ColorRed, "%v", runErr)
		finishJournal(store, sessionID, db.FinishParams{StopReason: "error"})
		return 1
	}

	printer.Summary(summary)
	finishJournal(store, sessionID, db.FinishParams{
		StopReason:        string(summary.Reason),
		TotalDetections:   summary.Total,
		UniqueAddresses:   summary.Unique,
		ResolvedTotal:     summary.ResolvedTotal,
		ResolvedAddresses: len(summary.Resolved),
	})
	log.Info().
		Str("reason", string(summary.Reason)).
		Int("total", summary.Total).
		Int("unique", summary.Unique).
		Int("resolved", summary.ResolvedTotal).
		Dur("elapsed", summary.Elapsed).
		Msg("scan complete")
	return 0
}

func openSource(opt options) (scan.Source, string, error) {
	if opt.replay != "" {
		src, err := replay.Load(opt.replay)
		if err != nil {
			return nil, "", err
		}
		return src, fmt.Sprintf("replaying %d advertisements from %s", src.Len(), opt.replay), nil
	}

	var note string
	if opt.mode.Kind == scan.IrkResolve && runtime.GOOS == "linux" {
		note = "Linux/BlueZ - may require root or CAP_NET_ADMIN"
	}
	src := bluetooth.NewAdapterSource(opt.adapter, bluetooth.Options{
		Preflight: bluetooth.PreflightOptions{RestartBluetoothService: opt.restartBluetooth},
	})
	return src, note, nil
}

func sessionParams(runID string, opt options, locator report.Locator) db.SessionParams {
	p := db.SessionParams{RunID: runID, Mode: opt.mode.Kind.String()}
	switch opt.mode.Kind {
	case scan.Targeted:
		t := opt.mode.Target
		p.Target = &t
	case scan.IrkResolve:
		fp := rpa.Fingerprint(opt.mode.Key)
		p.KeyFingerprint = &fp
	}
	if opt.replay == "" {
		a := opt.adapter
		p.Adapter = &a
	}
	if locator != nil {
		if f, ok := locator.Fix(); ok {
			s := f.String()
			p.GPSStart = &s
		}
	}
	return p
}

func finishJournal(store *db.Store, sessionID int64, p db.FinishParams) {
	if store == nil {
		return
	}
	if err := store.FinishSession(context.Background(), sessionID, p); err != nil {
		log.Error().Err(err).Int64("session", sessionID).Msg("finish scan session")
	}
}

// handleSignals turns the first SIGINT/SIGTERM into a graceful stop and a
// second one into cancellation.
func handleSignals(session *scan.Session, cancel context.CancelFunc) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			util.Exclusive(func(w io.Writer) { fmt.Fprintln(w, "\nStopping scan...") })
			session.RequestStop()
		case <-done:
			return
		}
		select {
		case <-ch:
			cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
