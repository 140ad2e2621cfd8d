package gps

import (
	"os"
	"path/filepath"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ListSerialPorts returns serial device paths, preferring USB ports (where GPS
// dongles appear as ttyUSB*/ttyACM*).
func ListSerialPorts() ([]string, error) {
	detailed, err := enumerator.GetDetailedPortsList()
	if err == nil && len(detailed) > 0 {
		var usb, other []string
		for _, p := range detailed {
			if p.IsUSB {
				usb = append(usb, p.Name)
				continue
			}
			other = append(other, p.Name)
		}
		return append(usb, other...), nil
	}

	ports, err2 := serial.GetPortsList()
	if err2 != nil {
		if err != nil {
			return nil, err
		}
		return nil, err2
	}
	return ports, nil
}

// GuessSerialDevice returns a likely GPS serial device, or "".
func GuessSerialDevice() string {
	if matches, _ := filepath.Glob("/dev/serial/by-id/*"); len(matches) > 0 {
		return matches[0]
	}
	if ports, _ := ListSerialPorts(); len(ports) > 0 {
		return ports[0]
	}
	for _, c := range []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyAMA0"} {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
