package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"btrpa/internal/addr"
	"btrpa/internal/advert"
	"btrpa/internal/rpa"
)

var (
	ErrSourceUnavailable = errors.New("advertisement source unavailable")
	ErrAlreadyStarted    = errors.New("scan session already started")
)

// Source delivers advertisements push-style. Start registers emit and returns once
// the source is producing; emit may be called from any goroutine, including the
// one running Start, until Stop returns. emit never blocks past a stop request or
// ctx cancellation. Stop releases the source and must be safe to call after a
// failed or partial Start.
type Source interface {
	Start(ctx context.Context, emit func(advert.Event)) error
	Stop() error
}

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason records what ended a session.
type StopReason string

const (
	StopRequested StopReason = "stop requested"
	StopDeadline  StopReason = "timeout"
	StopCancelled StopReason = "cancelled"
)

const (
	boundedPoll   = 100 * time.Millisecond
	unboundedPoll = 500 * time.Millisecond
	eventBuffer   = 1024
)

// Session owns all aggregate scan state. Handle, Start, Stop, Summary and Run
// belong to a single consumer goroutine; only RequestStop and State may be
// called from elsewhere.
type Session struct {
	mode      Mode
	resolver  *rpa.Resolver
	now       func() time.Time
	poll      time.Duration
	observers []Observer

	state    atomic.Int32
	stopReq  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	limit   Limit
	started time.Time
	stopped time.Time
	reason  StopReason

	total         int
	seen          map[string]int
	seenOrder     []string
	targetMatches int
	resolved      map[string]int
	resolvedOrder []string
	resolvedTotal int
	warned        map[string]struct{}
}

type Option func(*Session)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithPollInterval overrides how often Run checks for stop and deadline.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) { s.poll = d }
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func NewSession(mode Mode, opts ...Option) *Session {
	s := &Session{
		mode:     mode,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		seen:     map[string]int{},
		resolved: map[string]int{},
		warned:   map[string]struct{}{},
	}
	if mode.Kind == IrkResolve {
		s.resolver = rpa.NewResolver(mode.Key)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Mode() Mode { return s.mode }

func (s *Session) State() State { return State(s.state.Load()) }

// Start moves the session from Idle to Running.
func (s *Session) Start(limit Limit) error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, s.State())
	}
	s.limit = limit
	s.started = s.now()
	log.Info().
		Str("mode", s.mode.Kind.String()).
		Str("limit", limit.String()).
		Msg("scan session started")
	return nil
}

// RequestStop asks a running session to stop at its next poll. Safe from any
// goroutine, including signal handlers.
func (s *Session) RequestStop() {
	s.stopReq.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Stop moves the session from Running to Stopped. It reports whether this call
// made the transition; further calls are no-ops.
func (s *Session) Stop() bool {
	return s.stopWith(StopRequested)
}

func (s *Session) stopWith(reason StopReason) bool {
	if !s.state.CompareAndSwap(int32(Running), int32(Stopped)) {
		return false
	}
	s.stopped = s.now()
	s.reason = reason
	log.Info().
		Str("mode", s.mode.Kind.String()).
		Str("reason", string(reason)).
		Int("detections", s.total).
		Int("unique", len(s.seen)).
		Int("resolved", s.resolvedTotal).
		Dur("elapsed", s.stopped.Sub(s.started)).
		Msg("scan session stopped")
	return true
}

// Expired reports whether a bounded session has reached its deadline.
func (s *Session) Expired() bool {
	if !s.limit.Bounded() || s.State() != Running {
		return false
	}
	return s.now().Sub(s.started) >= s.limit.Duration()
}

// Handle classifies one advertisement and applies its counter updates. Events
// arriving while the session is not Running, and events whose address cannot be
// parsed, are Unclassified and change nothing.
func (s *Session) Handle(ev advert.Event) Result {
	if s.State() != Running {
		return Result{}
	}
	id, err := addr.Normalize(ev.Address)
	if err != nil {
		log.Debug().Err(err).Msg("discarding advertisement")
		return Result{}
	}

	var res Result
	switch s.mode.Kind {
	case DiscoverAll:
		res = s.discover(id)
	case Targeted:
		res = s.target(id, ev.Address)
	case IrkResolve:
		res = s.resolve(id)
	}

	for _, o := range s.observers {
		o.Observe(ev, res)
	}
	return res
}

func (s *Session) markSeen(id string) int {
	n, ok := s.seen[id]
	if !ok {
		s.seenOrder = append(s.seenOrder, id)
	}
	n++
	s.seen[id] = n
	return n
}

func (s *Session) discover(id string) Result {
	s.total++
	seen := s.markSeen(id)
	kind := RepeatDevice
	if seen == 1 {
		kind = NewDevice
	}
	return Result{Kind: kind, Address: id, Seen: seen, Devices: len(s.seen)}
}

func (s *Session) target(id, raw string) Result {
	if !strings.Contains(id, s.mode.Target) && !strings.Contains(strings.ToUpper(raw), s.mode.Target) {
		return Result{Address: id}
	}
	s.total++
	s.targetMatches++
	seen := s.markSeen(id)
	return Result{Kind: TargetFound, Address: id, Seen: seen, Devices: len(s.seen), Match: s.targetMatches}
}

func (s *Session) resolve(id string) Result {
	if addr.LooksLikeOpaquePlatformID(id) {
		if _, ok := s.warned[id]; ok {
			return Result{Address: id}
		}
		s.warned[id] = struct{}{}
		return Result{Kind: NonResolvableWarning, Address: id}
	}

	a, err := addr.Parse(id)
	if err != nil {
		return Result{}
	}
	s.total++
	seen := s.markSeen(id)

	if !s.resolver.Resolve(a) {
		return Result{Address: id, Seen: seen, Devices: len(s.seen), Missed: a.IsResolvablePrivate()}
	}

	n, ok := s.resolved[id]
	if !ok {
		s.resolvedOrder = append(s.resolvedOrder, id)
	}
	n++
	s.resolved[id] = n
	s.resolvedTotal++
	return Result{Kind: IrkResolved, Address: id, Seen: seen, Devices: len(s.seen), Match: n}
}

func (s *Session) pollInterval() time.Duration {
	if s.poll > 0 {
		return s.poll
	}
	if s.limit.Bounded() {
		return boundedPoll
	}
	return unboundedPoll
}

// stopReason returns why the loop should end, or "" to keep running.
func (s *Session) stopReason(ctx context.Context) StopReason {
	switch {
	case s.State() == Stopped:
		return s.reason
	case s.stopReq.Load():
		return StopRequested
	case ctx.Err() != nil:
		return StopCancelled
	case s.Expired():
		return StopDeadline
	default:
		return ""
	}
}

// Run acquires src, processes its events one at a time in arrival order until a
// stop request, ctx cancellation, the deadline or a direct Stop, releases src on
// every path, and returns the final summary. A source that cannot be started
// yields ErrSourceUnavailable and leaves the session Idle.
//
// Start runs on its own goroutine while Run queues whatever it emits, so a
// source may emit any number of events before Start returns. Queued events are
// handled first, in order, once the session is Running.
func (s *Session) Run(ctx context.Context, src Source, limit Limit) (Summary, error) {
	events := make(chan advert.Event, eventBuffer)
	done := make(chan struct{})
	emit := func(ev advert.Event) {
		select {
		case events <- ev:
		case <-done:
		case <-s.stopCh:
		case <-ctx.Done():
		}
	}

	release := func() {
		close(done)
		if err := src.Stop(); err != nil {
			log.Warn().Err(err).Msg("stopping advertisement source")
		}
	}

	startErr := make(chan error, 1)
	go func() { startErr <- src.Start(ctx, emit) }()

	var (
		queued []advert.Event
		err    error
	)
wait:
	for {
		select {
		case ev := <-events:
			queued = append(queued, ev)
		case err = <-startErr:
			break wait
		}
	}
	if err != nil {
		release()
		if errors.Is(err, ErrSourceUnavailable) {
			return Summary{}, err
		}
		return Summary{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer release()

	if err := s.Start(limit); err != nil {
		return Summary{}, err
	}

	reason := s.stopReason(ctx)
	for i := 0; i < len(queued) && reason == ""; i++ {
		s.Handle(queued[i])
		reason = s.stopReason(ctx)
	}

	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	for reason == "" {
		select {
		case ev := <-events:
			s.Handle(ev)
		case <-ticker.C:
		case <-ctx.Done():
		case <-s.stopCh:
		}
		reason = s.stopReason(ctx)
	}
	s.stopWith(reason)
	return s.Summary(), nil
}
