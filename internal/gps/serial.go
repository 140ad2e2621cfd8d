package gps

import (
	"bufio"
	"context"
	"errors"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"
)

// parseNMEA extracts a valid position from RMC, GGA, GLL or GNS sentences.
func parseNMEA(line string) (lat, lon float64, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return 0, 0, false
	}
	sent, err := nmea.Parse(line)
	if err != nil {
		return 0, 0, false
	}
	switch v := sent.(type) {
	case nmea.RMC:
		if strings.EqualFold(v.Validity, "A") {
			return v.Latitude, v.Longitude, true
		}
	case nmea.GGA:
		if v.FixQuality != "0" && (v.Latitude != 0 || v.Longitude != 0) {
			return v.Latitude, v.Longitude, true
		}
	case nmea.GLL:
		if strings.EqualFold(v.Validity, "A") {
			return v.Latitude, v.Longitude, true
		}
	case nmea.GNS:
		if v.Latitude != 0 || v.Longitude != 0 {
			return v.Latitude, v.Longitude, true
		}
	}
	return 0, 0, false
}

func (t *Tracker) readSerial(ctx context.Context, dev string, baud int) error {
	port, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return err
	}
	defer port.Close()

	t.setActive(ModeSerial, func() { _ = port.Close() })
	defer t.clearActive()

	// Closing the port is the only way out of a blocking read.
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer stop()

	sc := bufio.NewScanner(port)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "!") {
			continue
		}
		t.updatePacket()
		if lat, lon, ok := parseNMEA(line); ok {
			t.updateFix(lat, lon)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("serial reader stopped")
}
