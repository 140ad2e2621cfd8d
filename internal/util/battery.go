package util

import (
	"os/exec"
	"regexp"
	"strconv"
)

var batteryPctRe = regexp.MustCompile(`(\d{1,3})%`)

// BatteryPercent reads the first battery from `acpi -b`. ok is false on hosts
// without acpi or without a battery, which is the usual case off a Pi HAT.
func BatteryPercent() (pct int, ok bool) {
	out, err := exec.Command("acpi", "-b").CombinedOutput()
	if err != nil {
		return 0, false
	}
	return parseBatteryPercent(string(out))
}

func parseBatteryPercent(s string) (int, bool) {
	m := batteryPctRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > 100 {
		return 0, false
	}
	return n, true
}
