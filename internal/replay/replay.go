// Package replay feeds recorded advertisements from a YAML fixture, standing in
// for the radio.
package replay

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"btrpa/internal/advert"
)

type fixtureFile struct {
	Events []fixtureEvent `yaml:"events"`
}

type fixtureEvent struct {
	Address   string `yaml:"address"`
	RSSI      int    `yaml:"rssi"`
	TxPower   *int   `yaml:"tx_power"`
	Name      string `yaml:"name"`
	LocalName string `yaml:"local_name"`
	// Manufacturer payloads keyed by company id ("0x004C" or decimal), hex values.
	Manufacturer map[string]string `yaml:"manufacturer"`
	Services     []string          `yaml:"services"`
	ServiceData  map[string]string `yaml:"service_data"`
	Platform     []string          `yaml:"platform"`
	Raw          string            `yaml:"raw"`
	// Delay is waited before the event is emitted.
	Delay time.Duration `yaml:"delay"`
}

// Step is one scheduled event.
type Step struct {
	Delay time.Duration
	Event advert.Event
}

// Source emits its steps in order from a single goroutine, then idles until
// stopped.
type Source struct {
	steps []Step

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func New(steps []Step) *Source {
	return &Source{steps: steps}
}

// Events builds an undelayed source, mostly for tests.
func Events(evs ...advert.Event) *Source {
	steps := make([]Step, 0, len(evs))
	for _, ev := range evs {
		steps = append(steps, Step{Event: ev})
	}
	return New(steps)
}

// Load reads a fixture file.
func Load(path string) (*Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	steps, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(steps), nil
}

// Parse decodes fixture YAML into steps.
func Parse(b []byte) ([]Step, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(f.Events))
	for i, fe := range f.Events {
		ev, err := fe.event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		steps = append(steps, Step{Delay: fe.Delay, Event: ev})
	}
	return steps, nil
}

func (fe fixtureEvent) event() (advert.Event, error) {
	ev := advert.Event{
		Address:   fe.Address,
		RSSI:      fe.RSSI,
		TxPower:   fe.TxPower,
		Name:      fe.Name,
		LocalName: fe.LocalName,
		Services:  fe.Services,
		Platform:  fe.Platform,
	}
	if len(fe.Manufacturer) > 0 {
		ev.Manufacturer = make(map[uint16][]byte, len(fe.Manufacturer))
		for k, v := range fe.Manufacturer {
			id, err := strconv.ParseUint(strings.TrimSpace(k), 0, 16)
			if err != nil {
				return ev, fmt.Errorf("manufacturer id %q: %w", k, err)
			}
			data, err := decodeHex(v)
			if err != nil {
				return ev, fmt.Errorf("manufacturer 0x%04X: %w", id, err)
			}
			ev.Manufacturer[uint16(id)] = data
		}
	}
	if len(fe.ServiceData) > 0 {
		ev.ServiceData = make(map[string][]byte, len(fe.ServiceData))
		for k, v := range fe.ServiceData {
			data, err := decodeHex(v)
			if err != nil {
				return ev, fmt.Errorf("service data %s: %w", k, err)
			}
			ev.ServiceData[strings.ToLower(strings.TrimSpace(k))] = data
		}
	}
	if fe.Raw != "" {
		raw, err := decodeHex(fe.Raw)
		if err != nil {
			return ev, fmt.Errorf("raw: %w", err)
		}
		ev.Raw = raw
	}
	return ev, nil
}

// decodeHex accepts "0a1b", "0a 1b" and "0a:1b".
func decodeHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

func (s *Source) Len() int { return len(s.steps) }

func (s *Source) Start(ctx context.Context, emit func(advert.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return fmt.Errorf("replay source already started")
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	log.Info().Int("events", len(s.steps)).Msg("replay started")

	go func(stop, done chan struct{}) {
		defer close(done)
		for i, st := range s.steps {
			if st.Delay > 0 {
				t := time.NewTimer(st.Delay)
				select {
				case <-t.C:
				case <-stop:
					t.Stop()
					return
				case <-ctx.Done():
					t.Stop()
					return
				}
			}
			select {
			case <-stop:
				return
			default:
			}
			ev := st.Event
			if ev.Timestamp.IsZero() {
				ev.Timestamp = time.Now()
			}
			emit(ev.WithAD())
			log.Debug().Int("index", i).Str("mac", ev.Address).Msg("replayed advertisement")
		}
	}(s.stop, s.done)
	return nil
}

// Stop halts emission and waits for the replay goroutine. Safe to call more than
// once and without Start.
func (s *Source) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	s.once.Do(func() { close(stop) })
	<-done
	return nil
}
