// Package bluetooth adapts a BlueZ adapter, driven through tinygo's bluetooth
// package, into an advertisement source for scan sessions.
package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	tg "tinygo.org/x/bluetooth"

	"btrpa/internal/advert"
	"btrpa/internal/scan"
)

const (
	txRefreshInterval = 3 * time.Second
	scanStopTimeout   = 8 * time.Second
	scanSettle        = 300 * time.Millisecond
)

type Options struct {
	Preflight PreflightOptions
}

// AdapterSource scans one adapter continuously between Start and Stop.
type AdapterSource struct {
	id  string
	opt Options

	mu      sync.Mutex
	adapter *tg.Adapter
	scanErr chan error
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	tx *txPowerCache
}

func NewAdapterSource(adapterID string, opt Options) *AdapterSource {
	return &AdapterSource{
		id:  strings.TrimSpace(adapterID),
		opt: opt,
		tx:  newTxPowerCache(),
	}
}

func (s *AdapterSource) Start(ctx context.Context, emit func(advert.Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter != nil {
		return errors.New("adapter source already started")
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("%w: dbus system bus: %w", scan.ErrSourceUnavailable, err)
	}
	if err := Preflight(ctx, conn, s.id, s.opt.Preflight); err != nil {
		return err
	}

	adapter := tg.NewAdapter(s.id)
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("%w: enable %s: %w", scan.ErrSourceUnavailable, s.id, err)
	}
	// A previous run may have left discovery active.
	_ = adapter.StopScan()

	refreshCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refreshTxPower(refreshCtx, conn)
	}()

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- adapter.Scan(func(_ *tg.Adapter, res tg.ScanResult) {
			emit(s.event(res))
		})
	}()

	// Scan reports immediate failures (e.g. InProgress, NotReady) by returning.
	select {
	case err := <-scanErr:
		cancel()
		s.wg.Wait()
		s.cancel = nil
		if err == nil {
			err = errors.New("scan ended immediately")
		}
		return fmt.Errorf("%w: scan on %s: %w", scan.ErrSourceUnavailable, s.id, err)
	case <-time.After(scanSettle):
	}

	s.adapter = adapter
	s.scanErr = scanErr
	log.Info().Str("adapter", s.id).Msg("le scan started")
	return nil
}

// Stop ends the scan and waits a bounded time for the scan goroutine.
func (s *AdapterSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	if s.adapter == nil {
		return nil
	}

	err := s.adapter.StopScan()
	select {
	case scanErr := <-s.scanErr:
		if scanErr != nil {
			log.Debug().Err(scanErr).Msg("scan returned")
		}
	case <-time.After(scanStopTimeout):
		err = errors.Join(err, errors.New("scan stop timeout (bluez still discovering)"))
	}
	s.adapter = nil
	s.scanErr = nil
	log.Info().Str("adapter", s.id).Msg("le scan stopped")
	return err
}

func (s *AdapterSource) refreshTxPower(ctx context.Context, conn *dbus.Conn) {
	t := time.NewTicker(txRefreshInterval)
	defer t.Stop()
	for {
		objs, err := getManagedObjects(ctx, conn)
		if err == nil {
			s.tx.replace(objs.deviceTxPowers(s.id))
		} else if ctx.Err() == nil {
			log.Debug().Err(err).Msg("tx power refresh")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *AdapterSource) event(res tg.ScanResult) advert.Event {
	sr := scanRecord{
		Address:   strings.ToUpper(res.Address.String()),
		RSSI:      int(res.RSSI),
		LocalName: res.LocalName(),
		Raw:       res.Bytes(),
		Platform:  platformTags(res.Address),
	}
	for _, u := range res.ServiceUUIDs() {
		sr.Services = append(sr.Services, u.String())
	}
	for _, m := range res.ManufacturerData() {
		sr.Manufacturer = append(sr.Manufacturer, manufacturerElement{CompanyID: m.CompanyID, Data: m.Data})
	}
	for _, d := range res.ServiceData() {
		sr.ServiceData = append(sr.ServiceData, serviceDataElement{UUID: d.UUID.String(), Data: d.Data})
	}
	return sr.event(s.tx, time.Now())
}

type manufacturerElement struct {
	CompanyID uint16
	Data      []byte
}

type serviceDataElement struct {
	UUID string
	Data []byte
}

// scanRecord is the stack-independent view of one scan callback.
type scanRecord struct {
	Address      string
	RSSI         int
	LocalName    string
	Services     []string
	Manufacturer []manufacturerElement
	ServiceData  []serviceDataElement
	Raw          []byte
	Platform     []string
}

// event copies every slice because the stack may reuse its buffers after the
// callback returns.
func (r scanRecord) event(tx *txPowerCache, now time.Time) advert.Event {
	ev := advert.Event{
		Address:   r.Address,
		RSSI:      r.RSSI,
		Name:      strings.TrimSpace(r.LocalName),
		Services:  append([]string(nil), r.Services...),
		Platform:  append([]string(nil), r.Platform...),
		Timestamp: now,
	}
	if len(r.Raw) > 0 {
		ev.Raw = append([]byte(nil), r.Raw...)
	}
	if len(r.Manufacturer) > 0 {
		ev.Manufacturer = make(map[uint16][]byte, len(r.Manufacturer))
		for _, m := range r.Manufacturer {
			ev.Manufacturer[m.CompanyID] = append([]byte(nil), m.Data...)
		}
	}
	if len(r.ServiceData) > 0 {
		ev.ServiceData = make(map[string][]byte, len(r.ServiceData))
		for _, d := range r.ServiceData {
			ev.ServiceData[strings.ToLower(d.UUID)] = append([]byte(nil), d.Data...)
		}
	}
	ev = ev.WithAD()
	if ev.TxPower == nil && tx != nil {
		if v, ok := tx.get(r.Address); ok {
			ev.TxPower = &v
		}
	}
	return ev
}

// txPowerCache holds the last BlueZ Device1.TxPower snapshot. BlueZ only
// exposes the property when the advertiser includes it.
type txPowerCache struct {
	mu sync.RWMutex
	m  map[string]int
}

func newTxPowerCache() *txPowerCache {
	return &txPowerCache{m: map[string]int{}}
}

func (c *txPowerCache) replace(m map[string]int) {
	c.mu.Lock()
	c.m = m
	c.mu.Unlock()
}

func (c *txPowerCache) get(address string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[strings.ToUpper(address)]
	return v, ok
}
