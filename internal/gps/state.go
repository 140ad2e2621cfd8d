// Package gps tracks the receiver position used to geotag detections, from gpsd
// or a serial NMEA receiver.
package gps

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"btrpa/internal/util"
)

const (
	ModeOff    = "off"
	ModeAuto   = "auto"
	ModeGPSD   = "gpsd"
	ModeSerial = "serial"

	DefaultGPSDAddr = "127.0.0.1:2947"
	DefaultBaud     = 9600
	// DefaultFreshness is how long a fix is reported as current.
	DefaultFreshness = 10 * time.Second
)

var ErrDisabled = errors.New("gps disabled")

type Config struct {
	// Mode: off|auto|gpsd|serial
	Mode string
	// GPSDAddr: host:port, e.g. 127.0.0.1:2947
	GPSDAddr string
	// SerialDev: e.g. /dev/ttyUSB0
	SerialDev  string
	SerialBaud int
	Freshness  time.Duration
}

// Fix is the last known position.
type Fix struct {
	Lat, Lon float64
	At       time.Time
	// Stale marks a fix older than the freshness window.
	Stale bool
}

// String renders "lat, lon", parenthesised when the fix is stale.
func (f Fix) String() string {
	s := fmt.Sprintf("%.6f, %.6f", f.Lat, f.Lon)
	if f.Stale {
		return "(" + s + ")"
	}
	return s
}

// Tracker owns one reader (gpsd or serial) and the latest fix.
type Tracker struct {
	cfg Config
	now func() time.Time

	mu         sync.RWMutex
	lat, lon   float64
	lastFix    time.Time
	lastPacket time.Time

	// activeCloser is set while a reader is connected; the watchdog uses it to
	// force a reconnect when packets stop.
	activeCloser func()
	activeKind   string
}

// New resolves cfg.Mode: auto prefers a reachable gpsd and falls back to a
// detected serial device. Mode off returns ErrDisabled.
func New(cfg Config) (*Tracker, error) {
	cfg = normalizeConfig(cfg)
	switch cfg.Mode {
	case ModeOff:
		return nil, ErrDisabled
	case ModeGPSD:
	case ModeSerial:
		if cfg.SerialDev == "" {
			cfg.SerialDev = GuessSerialDevice()
		}
		if cfg.SerialDev == "" {
			return nil, errors.New("gps serial mode requires a device path (-gps-device /dev/ttyUSB0)")
		}
	case ModeAuto:
		if canConnectGPSD(cfg.GPSDAddr, 800*time.Millisecond) {
			cfg.Mode = ModeGPSD
			break
		}
		if cfg.SerialDev == "" {
			cfg.SerialDev = GuessSerialDevice()
		}
		if cfg.SerialDev == "" {
			return nil, fmt.Errorf("gps auto mode: gpsd not reachable at %s and no serial device detected", cfg.GPSDAddr)
		}
		cfg.Mode = ModeSerial
	default:
		return nil, fmt.Errorf("invalid gps mode: %q (expected off|auto|gpsd|serial)", cfg.Mode)
	}
	return &Tracker{cfg: cfg, now: time.Now}, nil
}

func normalizeConfig(cfg Config) Config {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = ModeOff
	}
	cfg.GPSDAddr = strings.TrimSpace(cfg.GPSDAddr)
	if cfg.GPSDAddr == "" {
		cfg.GPSDAddr = DefaultGPSDAddr
	}
	cfg.SerialDev = strings.TrimSpace(cfg.SerialDev)
	if cfg.SerialBaud <= 0 {
		cfg.SerialBaud = DefaultBaud
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	return cfg
}

func canConnectGPSD(addr string, timeout time.Duration) bool {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Describe names the resolved reader, e.g. "gpsd 127.0.0.1:2947".
func (t *Tracker) Describe() string {
	if t.cfg.Mode == ModeGPSD {
		return "gpsd " + t.cfg.GPSDAddr
	}
	return fmt.Sprintf("serial %s (%d baud)", t.cfg.SerialDev, t.cfg.SerialBaud)
}

// Fix returns the last known position; ok is false until the first fix. Safe
// on a nil Tracker.
func (t *Tracker) Fix() (Fix, bool) {
	if t == nil {
		return Fix{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastFix.IsZero() {
		return Fix{}, false
	}
	return Fix{
		Lat:   t.lat,
		Lon:   t.lon,
		At:    t.lastFix,
		Stale: t.now().Sub(t.lastFix) > t.cfg.Freshness,
	}, true
}

// Status is "online" while the fix is fresh, otherwise "offline".
func (t *Tracker) Status() string {
	if f, ok := t.Fix(); ok && !f.Stale {
		return "online"
	}
	return "offline"
}

// Run reads positions until ctx ends, reconnecting on failure.
func (t *Tracker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t.statusLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		t.watchdogLoop(ctx)
	}()

	read := func(ctx context.Context) error { return t.readGPSD(ctx, t.cfg.GPSDAddr) }
	target := t.cfg.GPSDAddr
	if t.cfg.Mode == ModeSerial {
		read = func(ctx context.Context) error { return t.readSerial(ctx, t.cfg.SerialDev, t.cfg.SerialBaud) }
		target = t.cfg.SerialDev
	}

	connected := false
	for ctx.Err() == nil {
		if !connected {
			util.Linef("[GPS]", util.ColorGray, "connecting to %s %s", t.cfg.Mode, target)
		}
		connected = true
		err := read(ctx)
		if ctx.Err() != nil {
			break
		}
		connected = false
		util.Linef("[GPS]", util.ColorYellow, "%s disconnected: %v", t.cfg.Mode, err)
		log.Warn().Err(err).Str("source", t.cfg.Mode).Msg("gps reader disconnected")

		if t.cfg.Mode == ModeSerial {
			// Hot-plug: the device may come back under another path.
			if guessed := GuessSerialDevice(); guessed != "" && guessed != t.cfg.SerialDev {
				util.Linef("[GPS]", util.ColorGray, "serial device changed -> %s", guessed)
				t.cfg.SerialDev = guessed
				target = guessed
			}
		}
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
	}
	t.closeActive()
	wg.Wait()
	return nil
}

func (t *Tracker) updateFix(lat, lon float64) {
	t.mu.Lock()
	t.lat = lat
	t.lon = lon
	t.lastFix = t.now()
	t.mu.Unlock()
}

func (t *Tracker) updatePacket() {
	t.mu.Lock()
	t.lastPacket = t.now()
	t.mu.Unlock()
}

func (t *Tracker) setActive(kind string, closer func()) {
	t.mu.Lock()
	t.activeKind = kind
	t.activeCloser = closer
	// A fresh connection counts as a packet so the watchdog does not fire at once.
	t.lastPacket = t.now()
	t.mu.Unlock()
}

func (t *Tracker) clearActive() {
	t.mu.Lock()
	t.activeKind = ""
	t.activeCloser = nil
	t.mu.Unlock()
}

func (t *Tracker) closeActive() {
	t.mu.RLock()
	closer := t.activeCloser
	t.mu.RUnlock()
	if closer != nil {
		closer()
	}
}

func (t *Tracker) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	prev := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur := t.Status()
		if prev != "" && cur != prev {
			if cur == "online" {
				util.Line("[GPS]", util.ColorGreen, "signal acquired")
				log.Info().Msg("gps signal acquired")
			} else if f, ok := t.Fix(); ok {
				util.Linef("[GPS]", util.ColorYellow, "signal lost (using last known %s)", f)
				log.Warn().Str("last_fix", f.String()).Msg("gps signal lost")
			} else {
				util.Line("[GPS]", util.ColorYellow, "signal lost (no last known fix)")
				log.Warn().Msg("gps signal lost")
			}
		}
		prev = cur
	}
}

// watchdogLoop forces a reconnect when packets stop arriving, e.g. after a USB
// unplug or a stalled gpsd stream.
func (t *Tracker) watchdogLoop(ctx context.Context) {
	const noPacketTimeout = 12 * time.Second
	const minReconnectPeriod = 10 * time.Second

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	var lastKick time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		t.mu.RLock()
		lp, closer, kind := t.lastPacket, t.activeCloser, t.activeKind
		t.mu.RUnlock()

		if closer == nil || lp.IsZero() || t.now().Sub(lp) <= noPacketTimeout {
			continue
		}
		if !lastKick.IsZero() && time.Since(lastKick) < minReconnectPeriod {
			continue
		}
		lastKick = time.Now()
		util.Linef("[GPS]", util.ColorYellow, "no packets for %s (%s) -> reconnecting", noPacketTimeout, kind)
		log.Warn().Str("source", kind).Dur("silence", noPacketTimeout).Msg("gps watchdog reconnect")
		closer()
	}
}
