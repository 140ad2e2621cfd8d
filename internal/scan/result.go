package scan

import "btrpa/internal/advert"

// Kind tags the outcome of classifying one advertisement.
type Kind int

const (
	// Unclassified events are filtered out and produce no output.
	Unclassified Kind = iota
	NewDevice
	RepeatDevice
	TargetFound
	IrkResolved
	// NonResolvableWarning is raised once per opaque platform identifier seen in
	// IRK mode; such addresses cannot carry RPA semantics.
	NonResolvableWarning
)

func (k Kind) String() string {
	switch k {
	case Unclassified:
		return "unclassified"
	case NewDevice:
		return "new_device"
	case RepeatDevice:
		return "repeat_device"
	case TargetFound:
		return "target_found"
	case IrkResolved:
		return "irk_resolved"
	case NonResolvableWarning:
		return "non_resolvable"
	default:
		return "unknown"
	}
}

// Result is produced exactly once per handled event.
type Result struct {
	Kind Kind
	// Address is the normalized address; empty when the event was discarded.
	Address string
	// Seen is how many times Address has been counted this session.
	Seen int
	// Devices is the number of distinct addresses counted so far.
	Devices int
	// Match is the target match ordinal (TargetFound) or the per-address
	// resolved-match count (IrkResolved).
	Match int
	// Missed is set in IRK mode when an RPA-shaped address failed to resolve.
	Missed bool
}

// Surfaced reports whether the result is meant to be shown to the operator.
func (r Result) Surfaced() bool {
	return r.Kind != Unclassified
}

// Observer receives every handled event with its result, on the session's
// consumer goroutine, in arrival order.
type Observer interface {
	Observe(ev advert.Event, res Result)
}

type ObserverFunc func(ev advert.Event, res Result)

func (f ObserverFunc) Observe(ev advert.Event, res Result) { f(ev, res) }
