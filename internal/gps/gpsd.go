package gps

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"
)

type gpsdTPV struct {
	Class string       `json:"class"`
	Mode  *json.Number `json:"mode"`
	Lat   *float64     `json:"lat"`
	Lon   *float64     `json:"lon"`
}

// parseGPSDLine extracts a position from a gpsd TPV report with at least a 2D
// fix.
func parseGPSDLine(line string) (lat, lon float64, ok bool) {
	var tpv gpsdTPV
	if err := json.Unmarshal([]byte(line), &tpv); err != nil {
		return 0, 0, false
	}
	if tpv.Class != "TPV" || tpv.Mode == nil || tpv.Lat == nil || tpv.Lon == nil {
		return 0, 0, false
	}
	if mode, err := tpv.Mode.Int64(); err != nil || mode < 2 {
		return 0, 0, false
	}
	return *tpv.Lat, *tpv.Lon, true
}

func (t *Tracker) readGPSD(ctx context.Context, addr string) error {
	conn, err := (&net.Dialer{Timeout: 2 * time.Second}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	t.setActive(ModeGPSD, func() { _ = conn.Close() })
	defer t.clearActive()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true}\n")); err != nil {
		return err
	}

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		t.updatePacket()
		if lat, lon, ok := parseGPSDLine(line); ok {
			t.updateFix(lat, lon)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("gpsd connection closed")
}
