package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"btrpa/internal/addr"
	"btrpa/internal/advert"
	"btrpa/internal/gps"
	"btrpa/internal/ids"
	"btrpa/internal/scan"
	"btrpa/internal/util"
)

// Locator supplies the current position for geotagging.
type Locator interface {
	Fix() (gps.Fix, bool)
}

// Journal records every surfaced detection of one session.
type Journal struct {
	ctx       context.Context
	store     *Store
	sessionID int64
	gps       Locator
	names     *ids.Resolver
	failed    bool
}

func NewJournal(ctx context.Context, store *Store, sessionID int64, gps Locator, names *ids.Resolver) *Journal {
	return &Journal{ctx: ctx, store: store, sessionID: sessionID, gps: gps, names: names}
}

type payload struct {
	Manufacturer map[string]string `json:"manufacturer,omitempty"`
	Services     []string          `json:"services,omitempty"`
	ServiceData  map[string]string `json:"service_data,omitempty"`
	Platform     []string          `json:"platform,omitempty"`
	RawHex       string            `json:"raw_hex,omitempty"`
	ADTypes      []string          `json:"ad_types,omitempty"`
}

func (j *Journal) Observe(ev advert.Event, res scan.Result) {
	if !res.Surfaced() {
		return
	}
	p := DetectionParams{
		SessionID: j.sessionID,
		Timestamp: ev.Timestamp,
		Address:   res.Address,
		Kind:      res.Kind.String(),
		SeenCount: res.Seen,
		TxPower:   ev.TxPower,
		Name:      strPtrIfNotEmpty(ev.Name),
		LocalName: strPtrIfNotEmpty(ev.LocalName),
	}
	if ev.RSSI != 0 {
		rssi := ev.RSSI
		p.RSSI = &rssi
	}
	if d, ok := advert.EstimateDistance(ev.RSSI, ev.TxPower); ok {
		p.Distance = &d
	}
	if res.Match > 0 {
		m := res.Match
		p.MatchCount = &m
	}
	if a, err := addr.Parse(res.Address); err == nil {
		sub := string(a.Classify())
		p.Subtype = &sub
		p.Vendor = strPtrIfNotEmpty(j.names.VendorForAddress(a))
	}
	if j.gps != nil {
		if f, ok := j.gps.Fix(); ok {
			s := f.String()
			p.GPS = &s
			p.GPSCached = &f.Stale
		}
	}
	if b, err := json.Marshal(eventPayload(ev)); err == nil {
		s := string(b)
		p.PayloadJSON = &s
	}

	if _, err := j.store.RecordDetection(j.ctx, p); err != nil {
		log.Error().Err(err).Str("mac", res.Address).Msg("journal write failed")
		if !j.failed {
			j.failed = true
			util.Linef("[WARN]", util.ColorYellow, "journal write failed: %v", err)
		}
	}
}

func eventPayload(ev advert.Event) payload {
	p := payload{
		Services: ev.Services,
		Platform: ev.Platform,
		RawHex:   util.BytesToHex(ev.Raw),
	}
	for _, st := range advert.DecodeAD(ev.Raw).Structures {
		name := st.Name()
		if name == "" {
			name = fmt.Sprintf("0x%02X", st.Type)
		}
		p.ADTypes = append(p.ADTypes, name)
	}
	if len(ev.Manufacturer) > 0 {
		p.Manufacturer = make(map[string]string, len(ev.Manufacturer))
		for id, data := range ev.Manufacturer {
			p.Manufacturer[fmt.Sprintf("0x%04X", id)] = util.BytesToHex(data)
		}
	}
	if len(ev.ServiceData) > 0 {
		p.ServiceData = make(map[string]string, len(ev.ServiceData))
		for u, data := range ev.ServiceData {
			p.ServiceData[u] = util.BytesToHex(data)
		}
	}
	return p
}

func strPtrIfNotEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
