package scan

import (
	"strings"
	"time"

	"btrpa/internal/addr"
)

type ModeKind int

const (
	DiscoverAll ModeKind = iota
	Targeted
	IrkResolve
)

func (k ModeKind) String() string {
	switch k {
	case DiscoverAll:
		return "discover-all"
	case Targeted:
		return "targeted"
	case IrkResolve:
		return "irk"
	default:
		return "unknown"
	}
}

// Mode selects how a session classifies advertisements.
type Mode struct {
	Kind ModeKind
	// Target is the upper-cased (partial) address searched for in Targeted mode.
	Target string
	// Key is the IRK used in IrkResolve mode.
	Key addr.IdentityKey
}

func DiscoverAllMode() Mode {
	return Mode{Kind: DiscoverAll}
}

// TargetedMode matches every address containing target, so partial addresses
// such as "AA:BB" select a whole prefix.
func TargetedMode(target string) Mode {
	return Mode{Kind: Targeted, Target: strings.ToUpper(strings.TrimSpace(target))}
}

func IRKMode(key addr.IdentityKey) Mode {
	return Mode{Kind: IrkResolve, Key: key}
}

// Limit is the run duration policy of a session: either bounded by a duration
// or unbounded (runs until stopped).
type Limit struct {
	d       time.Duration
	bounded bool
}

// Unbounded runs until an explicit stop.
var Unbounded = Limit{}

// Within bounds a session to d. A non-positive d expires immediately.
func Within(d time.Duration) Limit {
	if d < 0 {
		d = 0
	}
	return Limit{d: d, bounded: true}
}

func (l Limit) Bounded() bool { return l.bounded }

func (l Limit) Duration() time.Duration { return l.d }

func (l Limit) String() string {
	if !l.bounded {
		return "unbounded"
	}
	return l.d.String()
}
