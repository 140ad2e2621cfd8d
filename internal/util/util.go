package util

import (
	"encoding/hex"
	"strings"
	"time"

	"btrpa/internal/addr"
)

// ClockHMS formats t the way detection blocks show it.
func ClockHMS(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("15:04:05")
}

// BytesToHex renders b as contiguous lower-case hex.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// SafeName returns a display name, hiding names that merely repeat an address.
func SafeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown"
	}
	if _, err := addr.Parse(name); err == nil {
		return "Unknown"
	}
	if addr.LooksLikeOpaquePlatformID(name) {
		return "Unknown"
	}
	return name
}
