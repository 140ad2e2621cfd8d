// Package status prints periodic one-line summaries while a scan runs.
package status

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"btrpa/internal/db"
	"btrpa/internal/gps"
	"btrpa/internal/metrics"
	"btrpa/internal/util"
)

// Provider bundles the read-only sources of a status line. Any of them may be
// nil.
type Provider struct {
	Metrics   *metrics.Recorder
	GPS       *gps.Tracker
	Store     *db.Store
	SessionID int64
	Battery   func() (int, bool)
}

// Run prints status lines every interval until ctx ends. A non-positive
// interval disables it.
func Run(ctx context.Context, interval time.Duration, p Provider) {
	if interval <= 0 {
		return
	}
	if p.Battery == nil {
		p.Battery = util.BatteryPercent
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			printOnce(ctx, p)
		}
	}
}

func printOnce(ctx context.Context, p Provider) {
	if p.Metrics != nil {
		s := p.Metrics.Snapshot()
		util.Linef("[STATUS]", util.ColorCyan, "adverts: %d, detections: %d, unique: %d, IRK matches: %d, unresolvable: %d",
			s.Events, s.Detections, s.Unique, s.Matches, s.Warnings)
	}

	if p.GPS != nil {
		gpsLine := "offline"
		if f, ok := p.GPS.Fix(); ok {
			gpsLine = f.String()
		}
		util.Linef("[GPS DATA]", util.ColorCyan, "%s", gpsLine)
	}

	if p.Store != nil {
		st, err := p.Store.GetStatistics(ctx, p.SessionID)
		if err != nil {
			log.Warn().Err(err).Msg("journal statistics")
		} else {
			util.Linef("[DB STATS]", util.ColorGray, "Journaled: %d, Addresses: %d, Resolved: %d, Warnings: %d",
				st.Detections, st.Addresses, st.Resolved, st.Warnings)
		}
	}

	if pct, ok := p.Battery(); ok {
		util.Linef("[BATTERY]", util.ColorGray, "%d%%", pct)
	}
}
