// Package report renders scan results for an operator: the startup banner, one
// block per surfaced detection, and the end-of-session summary.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"btrpa/internal/addr"
	"btrpa/internal/advert"
	"btrpa/internal/gps"
	"btrpa/internal/ids"
	"btrpa/internal/rpa"
	"btrpa/internal/scan"
	"btrpa/internal/util"
)

const width = 60

var (
	heavyRule = strings.Repeat("=", width)
	lightRule = strings.Repeat("-", width)
)

// Locator supplies the position printed on detection blocks.
type Locator interface {
	Fix() (gps.Fix, bool)
}

type Options struct {
	Names *ids.Resolver
	GPS   Locator
	// ShowMisses prints RPA-shaped addresses that failed to resolve, annotated
	// "(no match)". Off by default; IRK runs only show matches.
	ShowMisses bool
}

// Printer writes to w. Each banner, block and summary is rendered first and
// written under the console lock, so util.Line output from other goroutines
// never lands inside one.
type Printer struct {
	w    io.Writer
	opts Options
}

func New(w io.Writer, opts Options) *Printer {
	return &Printer{w: w, opts: opts}
}

type page struct{ strings.Builder }

func (pg *page) printf(format string, args ...any) {
	fmt.Fprintf(pg, format, args...)
}

func (p *Printer) flush(pg *page) {
	if pg.Len() == 0 {
		return
	}
	util.Exclusive(func(io.Writer) {
		io.WriteString(p.w, pg.String())
	})
}

// Banner prints the mode, the run limit and an optional platform note.
func (p *Printer) Banner(mode scan.Mode, limit scan.Limit, note string) {
	var pg page
	defer p.flush(&pg)

	switch mode.Kind {
	case scan.IrkResolve:
		pg.printf("%s\n", util.Colorize("Mode: IRK RESOLUTION - resolving RPAs against provided IRK", util.ColorBold))
		// The key itself never reaches the terminal.
		pg.printf("  IRK fingerprint: %s\n", rpa.Fingerprint(mode.Key))
	case scan.Targeted:
		pg.printf("%s\n", util.Colorize("Mode: TARGETED - searching for "+mode.Target, util.ColorBold))
	default:
		pg.printf("%s\n", util.Colorize("Mode: DISCOVER ALL - showing every broadcasting device", util.ColorBold))
	}
	if note != "" {
		pg.printf("  Note: %s\n", note)
	}
	if limit.Bounded() {
		secs := strconv.FormatFloat(limit.Duration().Seconds(), 'f', -1, 64)
		pg.printf("Timeout: %ss  |  Press Ctrl+C to stop\n", secs)
	} else {
		pg.printf("Running continuously  |  Press Ctrl+C to stop\n")
	}
	pg.printf("%s\n", lightRule)
}

func (p *Printer) Observe(ev advert.Event, res scan.Result) {
	switch res.Kind {
	case scan.TargetFound:
		p.block(ev, res, fmt.Sprintf("TARGET FOUND  -  detection #%d", res.Match), "", util.ColorGreen)
	case scan.NewDevice, scan.RepeatDevice:
		p.block(ev, res, fmt.Sprintf("DEVICE #%d  -  seen %dx", res.Devices, res.Seen), "", util.ColorCyan)
	case scan.IrkResolved:
		p.block(ev, res, fmt.Sprintf("IRK RESOLVED  -  match #%d (addr seen %dx)", res.Match, res.Seen),
			"  << IRK MATCH >>", util.ColorMagenta)
	case scan.NonResolvableWarning:
		var pg page
		pg.printf("  %s UUID address %s - cannot resolve (need real MAC)\n",
			util.Colorize("[!]", util.ColorYellow), res.Address)
		p.flush(&pg)
	case scan.Unclassified:
		if res.Missed && p.opts.ShowMisses {
			p.block(ev, res, fmt.Sprintf("RPA  -  addr seen %dx", res.Seen), "  (no match)", util.ColorGray)
		}
	}
}

func (p *Printer) block(ev advert.Event, res scan.Result, label, annotation, color string) {
	var pg page
	defer p.flush(&pg)

	pg.printf("\n%s\n", heavyRule)
	pg.printf("  %s\n", util.Colorize(label, color))
	pg.printf("%s\n", heavyRule)
	pg.printf("  Address      : %s%s\n", ev.Address, annotation)

	name := util.SafeName(ev.Name)
	pg.printf("  Name         : %s\n", name)
	if a, err := addr.Parse(res.Address); err == nil {
		if v := p.opts.Names.VendorForAddress(a); v != "" && !a.IsResolvablePrivate() {
			pg.printf("  Vendor       : %s\n", v)
		}
		if res.Kind == scan.IrkResolved || res.Missed {
			pg.printf("  Address Type : %s\n", a.Classify())
		}
	}
	pg.printf("  RSSI         : %d dBm\n", ev.RSSI)
	if ev.TxPower != nil {
		pg.printf("  TX Power     : %d dBm\n", *ev.TxPower)
	} else {
		pg.printf("  TX Power     : N/A dBm\n")
	}
	if d, ok := advert.EstimateDistance(ev.RSSI, ev.TxPower); ok {
		pg.printf("  Est. Distance: ~%.1f m\n", d)
	}
	if ev.LocalName != "" && ev.LocalName != ev.Name {
		pg.printf("  Local Name   : %s\n", ev.LocalName)
	}
	for _, id := range ev.ManufacturerIDs() {
		line := fmt.Sprintf("0x%04X -> %s", id, util.BytesToHex(ev.Manufacturer[id]))
		if c := p.opts.Names.CompanyName(id); c != "" {
			line += " (" + c + ")"
		}
		pg.printf("  Manufacturer : %s\n", line)
	}
	if len(ev.Services) > 0 {
		names := make([]string, 0, len(ev.Services))
		for _, u := range ev.Services {
			names = append(names, p.opts.Names.AnnotateServiceUUID(u))
		}
		pg.printf("  Services     : %s\n", strings.Join(names, ", "))
	}
	for _, u := range ev.ServiceDataUUIDs() {
		pg.printf("  Service Data : %s -> %s\n", u, util.BytesToHex(ev.ServiceData[u]))
	}
	for _, item := range ev.Platform {
		pg.printf("  Platform Data: %s\n", item)
	}
	if p.opts.GPS != nil {
		if f, ok := p.opts.GPS.Fix(); ok {
			pg.printf("  GPS          : %s\n", f)
		}
	}
	pg.printf("  Timestamp    : %s\n", util.ClockHMS(ev.Timestamp))
	pg.printf("%s\n", heavyRule)
}

// Summary prints the end-of-session report.
func (p *Printer) Summary(s scan.Summary) {
	var pg page
	defer p.flush(&pg)

	pg.printf("\n%s\n", lightRule)
	pg.printf("Scan complete - %.1fs elapsed\n", s.Elapsed.Seconds())
	pg.printf("  Total detections : %d\n", s.Total)

	switch s.Mode.Kind {
	case scan.IrkResolve:
		pg.printf("  Unique addresses : %d\n", s.Unique)
		pg.printf("  IRK matches      : %d detections across %d address(es)\n", s.ResolvedTotal, len(s.Resolved))
		if s.Warned > 0 {
			pg.printf("  Unresolvable IDs : %d\n", s.Warned)
		}
		if s.NoneResolved() {
			pg.printf("\n  No addresses resolved - the device may not be broadcasting,\n")
			pg.printf("  or the IRK may be incorrect.\n")
			return
		}
		pg.printf("\n  Resolved addresses:\n")
		pg.printf("  %-20s %11s\n", "Address", "Detections")
		pg.printf("  %s %s\n", strings.Repeat("-", 20), strings.Repeat("-", 11))
		for _, e := range s.Resolved {
			pg.printf("  %-20s %10dx\n", e.Address, e.Count)
		}
	case scan.DiscoverAll:
		pg.printf("  Unique devices   : %d\n", s.Unique)
		if len(s.Devices) == 0 {
			return
		}
		pg.printf("\n  %-40s %6s\n", "Address", "Seen")
		pg.printf("  %s %s\n", strings.Repeat("-", 40), strings.Repeat("-", 6))
		for _, e := range s.Devices {
			pg.printf("  %-40s %5dx\n", e.Address, e.Count)
		}
	}
}
