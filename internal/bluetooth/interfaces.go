package bluetooth

import (
	"bufio"
	"bytes"
	"os/exec"
	"regexp"
	"strings"
)

type InterfaceInfo struct {
	ID      string
	BusInfo string
}

var (
	ifaceLineRe = regexp.MustCompile(`^(hci\d+):`)
	busRe       = regexp.MustCompile(`Bus:\s*(USB|UART|PCI|SDIO|Virtual)`)
)

// GetBluetoothInterfaces lists local HCI interfaces via hciconfig.
func GetBluetoothInterfaces() ([]InterfaceInfo, error) {
	out, err := exec.Command("hciconfig").CombinedOutput()
	if err != nil {
		return nil, err
	}
	return parseHCIConfig(out), nil
}

func parseHCIConfig(out []byte) []InterfaceInfo {
	var list []InterfaceInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := ifaceLineRe.FindStringSubmatch(line); m != nil {
			list = append(list, InterfaceInfo{ID: m[1], BusInfo: "Unknown"})
		}
		if len(list) == 0 {
			continue
		}
		cur := &list[len(list)-1]
		if cur.BusInfo != "Unknown" {
			continue
		}
		if bm := busRe.FindStringSubmatch(line); bm != nil {
			cur.BusInfo = bm[1]
		}
	}
	return list
}
