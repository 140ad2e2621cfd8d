package scan

import (
	"sort"
	"time"
)

// Entry is one address with the number of times it was counted.
type Entry struct {
	Address string
	Count   int
}

// Summary is the end-of-session report. Devices and Resolved are ordered by
// count, highest first; ties keep first-seen order.
type Summary struct {
	Mode    Mode
	Reason  StopReason
	Started time.Time
	Elapsed time.Duration

	// Total counts detections: every valid event in DiscoverAll, target matches
	// in Targeted, and every non-opaque address checked in IrkResolve.
	Total         int
	Unique        int
	TargetMatches int
	Devices       []Entry

	ResolvedTotal int
	Resolved      []Entry
	// Warned counts opaque platform identifiers that could not be resolved.
	Warned int
}

// NoneResolved reports an IRK session that ended without a single match.
func (s Summary) NoneResolved() bool {
	return s.Mode.Kind == IrkResolve && s.ResolvedTotal == 0
}

// Summary snapshots the session counters. On a running session Elapsed is
// measured up to now.
func (s *Session) Summary() Summary {
	end := s.stopped
	if s.State() != Stopped {
		end = s.now()
	}
	var elapsed time.Duration
	if !s.started.IsZero() {
		elapsed = end.Sub(s.started)
	}
	return Summary{
		Mode:          s.mode,
		Reason:        s.reason,
		Started:       s.started,
		Elapsed:       elapsed,
		Total:         s.total,
		Unique:        len(s.seen),
		TargetMatches: s.targetMatches,
		Devices:       ranked(s.seenOrder, s.seen),
		ResolvedTotal: s.resolvedTotal,
		Resolved:      ranked(s.resolvedOrder, s.resolved),
		Warned:        len(s.warned),
	}
}

func ranked(order []string, counts map[string]int) []Entry {
	out := make([]Entry, 0, len(order))
	for _, a := range order {
		out = append(out, Entry{Address: a, Count: counts[a]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
