// Package metrics counts scan results for the status ticker and exposes them to
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"btrpa/internal/advert"
	"btrpa/internal/scan"
)

var (
	descEvents = prometheus.NewDesc(
		"btrpa_advertisements_total",
		"Advertisements handed to the scan session, including filtered ones.",
		[]string{"mode"}, nil,
	)
	descDetections = prometheus.NewDesc(
		"btrpa_detections_total",
		"Advertisements counted as detections by the scan session.",
		[]string{"mode"}, nil,
	)
	descMatches = prometheus.NewDesc(
		"btrpa_irk_matches_total",
		"Resolvable private addresses that resolved against the IRK.",
		nil, nil,
	)
	descMisses = prometheus.NewDesc(
		"btrpa_irk_misses_total",
		"Resolvable private addresses that did not resolve against the IRK.",
		nil, nil,
	)
	descWarnings = prometheus.NewDesc(
		"btrpa_nonresolvable_warnings_total",
		"Opaque platform identifiers that cannot be resolved.",
		nil, nil,
	)
	descUnique = prometheus.NewDesc(
		"btrpa_unique_addresses",
		"Distinct addresses counted in the current session.",
		[]string{"mode"}, nil,
	)
)

// Recorder observes scan results. It keeps its own counters so readers never
// touch session state.
type Recorder struct {
	mode string

	events     atomic.Int64
	detections atomic.Int64
	matches    atomic.Int64
	misses     atomic.Int64
	warnings   atomic.Int64
	unique     atomic.Int64
}

func NewRecorder(mode scan.ModeKind) *Recorder {
	return &Recorder{mode: mode.String()}
}

func (r *Recorder) Observe(_ advert.Event, res scan.Result) {
	r.events.Add(1)
	if res.Seen > 0 {
		r.detections.Add(1)
	}
	switch res.Kind {
	case scan.IrkResolved:
		r.matches.Add(1)
	case scan.NonResolvableWarning:
		r.warnings.Add(1)
	}
	if res.Missed {
		r.misses.Add(1)
	}
	if n := int64(res.Devices); n > r.unique.Load() {
		r.unique.Store(n)
	}
}

type Snapshot struct {
	Events     int64
	Detections int64
	Matches    int64
	Misses     int64
	Warnings   int64
	Unique     int64
}

func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Events:     r.events.Load(),
		Detections: r.detections.Load(),
		Matches:    r.matches.Load(),
		Misses:     r.misses.Load(),
		Warnings:   r.warnings.Load(),
		Unique:     r.unique.Load(),
	}
}

func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(r, ch)
}

func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	s := r.Snapshot()
	ch <- prometheus.MustNewConstMetric(descEvents, prometheus.CounterValue, float64(s.Events), r.mode)
	ch <- prometheus.MustNewConstMetric(descDetections, prometheus.CounterValue, float64(s.Detections), r.mode)
	ch <- prometheus.MustNewConstMetric(descMatches, prometheus.CounterValue, float64(s.Matches))
	ch <- prometheus.MustNewConstMetric(descMisses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(descWarnings, prometheus.CounterValue, float64(s.Warnings))
	ch <- prometheus.MustNewConstMetric(descUnique, prometheus.GaugeValue, float64(s.Unique), r.mode)
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx ends.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: Handler(reg), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("ListenAddress", ln.Addr().String()).Msg("Starting Prometheus server")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
