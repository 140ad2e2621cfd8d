package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"btrpa/internal/addr"
	"btrpa/internal/gps"
	"btrpa/internal/scan"
)

const defaultTimeout = 30 * time.Second

var (
	errUsageConflict = errors.New("conflicting arguments")
	// errNoMode means neither a target, -all nor -irk was given; usage is
	// printed and the run ends successfully.
	errNoMode = errors.New("no scan mode selected")
)

type options struct {
	mode  scan.Mode
	limit scan.Limit

	adapter          string
	restartBluetooth bool
	replay           string
	showMisses       bool

	dataDir       string
	customDataDir string
	dbPath        string

	gps gps.Config

	metricsAddr   string
	statsInterval time.Duration

	logFile string
	debug   bool
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		fmt.Fprintf(w, "usage: btrpa [flags] [mac]\n\n")
		fmt.Fprintf(w, "BLE scanner: discover all devices, hunt for one address, or resolve RPAs with an IRK.\n\n")
		fmt.Fprintf(w, "  mac    target MAC address or fragment to search for (omit with -all or -irk)\n\n")
		fs.PrintDefaults()
	}
}

// parseArgs parses the command line. Flags may appear before or after the
// positional target.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	var (
		opt     options
		all     bool
		irkHex  string
		timeout float64
		gpsCfg  gps.Config
		stats   float64
	)

	fs := flag.NewFlagSet("btrpa", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(fs)

	fs.BoolVar(&all, "a", false, "Scan for all broadcasting devices")
	fs.BoolVar(&all, "all", false, "Scan for all broadcasting devices")
	fs.StringVar(&irkHex, "irk", "", "Resolve RPAs using this Identity Resolving Key (32 hex chars, optional 0x prefix or separators)")
	fs.Float64Var(&timeout, "t", 0, "Scan timeout in seconds (default: 30, or infinite for -irk)")
	fs.Float64Var(&timeout, "timeout", 0, "Scan timeout in seconds (default: 30, or infinite for -irk)")

	fs.StringVar(&opt.adapter, "adapter", "hci0", "Bluetooth adapter to scan with")
	fs.BoolVar(&opt.restartBluetooth, "restart-bluetooth", true, "Preflight: restart bluetooth service if the adapter is missing (requires root + systemctl)")
	fs.StringVar(&opt.replay, "replay", "", "Replay advertisements from a YAML fixture instead of the radio")
	fs.BoolVar(&opt.showMisses, "show-misses", false, "IRK mode: also print RPAs that did not resolve")

	fs.StringVar(&opt.dataDir, "data-dir", "./data", "Data directory root (expects default/ and custom/ subfolders)")
	fs.StringVar(&opt.customDataDir, "custom-data-dir", "", "Optional custom data directory path (overrides <data-dir>/custom)")
	fs.StringVar(&opt.dbPath, "db", "", "Record surfaced detections in this sqlite file")

	fs.StringVar(&gpsCfg.Mode, "gps-mode", gps.ModeOff, "GPS mode: off|auto|gpsd|serial")
	fs.StringVar(&gpsCfg.GPSDAddr, "gpsd-addr", gps.DefaultGPSDAddr, "gpsd TCP address")
	fs.StringVar(&gpsCfg.SerialDev, "gps-device", "", "GPS serial device path (e.g., /dev/ttyUSB0)")
	fs.IntVar(&gpsCfg.SerialBaud, "gps-baud", gps.DefaultBaud, "GPS serial baud rate")

	fs.StringVar(&opt.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., :9101)")
	fs.Float64Var(&stats, "stats-interval", 0, "Console status interval in seconds (0 disables)")

	fs.StringVar(&opt.logFile, "log-file", "app.log", "Diagnostic log file (empty disables)")
	fs.BoolVar(&opt.debug, "debug", false, "Log at debug level")

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return opt, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if len(positional) > 1 {
		return opt, fmt.Errorf("%w: unexpected argument %q", errUsageConflict, positional[1])
	}
	var target string
	if len(positional) == 1 {
		target = strings.TrimSpace(positional[0])
	}
	irkGiven := set["irk"]

	switch {
	case irkGiven && all:
		return opt, fmt.Errorf("%w: cannot use -irk with -all", errUsageConflict)
	case irkGiven && target != "":
		return opt, fmt.Errorf("%w: cannot use -irk with a specific MAC address", errUsageConflict)
	case target != "" && all:
		return opt, fmt.Errorf("%w: cannot use -all with a specific MAC address", errUsageConflict)
	case !irkGiven && !all && target == "":
		fs.Usage()
		return opt, errNoMode
	}

	switch {
	case irkGiven:
		key, err := addr.ParseKey(irkHex)
		if err != nil {
			return opt, err
		}
		opt.mode = scan.IRKMode(key)
	case all:
		opt.mode = scan.DiscoverAllMode()
	default:
		opt.mode = scan.TargetedMode(target)
	}

	switch {
	case set["t"] || set["timeout"]:
		if !(timeout > 0) || math.IsInf(timeout, 0) {
			return opt, fmt.Errorf("timeout must be a positive number of seconds, got %v", timeout)
		}
		opt.limit = scan.Within(time.Duration(timeout * float64(time.Second)))
	case irkGiven:
		opt.limit = scan.Unbounded
	default:
		opt.limit = scan.Within(defaultTimeout)
	}

	if stats < 0 {
		return opt, fmt.Errorf("stats-interval must not be negative, got %v", stats)
	}
	opt.statsInterval = time.Duration(stats * float64(time.Second))

	gpsCfg.Mode = strings.ToLower(strings.TrimSpace(gpsCfg.Mode))
	gpsCfg.GPSDAddr = strings.TrimSpace(gpsCfg.GPSDAddr)
	gpsCfg.SerialDev = strings.TrimSpace(gpsCfg.SerialDev)
	opt.gps = gpsCfg

	opt.adapter = strings.TrimSpace(opt.adapter)
	opt.replay = strings.TrimSpace(opt.replay)
	opt.dataDir = strings.TrimSpace(opt.dataDir)
	opt.customDataDir = strings.TrimSpace(opt.customDataDir)
	opt.dbPath = strings.TrimSpace(opt.dbPath)
	return opt, nil
}
