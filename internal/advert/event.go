package advert

import (
	"math"
	"sort"
	"time"
)

// Event is one observed advertisement. Sources build it once and never modify it
// after handing it over.
type Event struct {
	// Address as reported by the platform: a MAC ("AA:BB:...") or, on some
	// platforms, an opaque device UUID.
	Address   string
	RSSI      int
	TxPower   *int
	Name      string
	LocalName string

	Manufacturer map[uint16][]byte
	Services     []string
	ServiceData  map[string][]byte
	Platform     []string

	// Raw advertising data, when the stack exposes it.
	Raw []byte

	Timestamp time.Time
}

// ManufacturerIDs returns company identifiers in ascending order.
func (e Event) ManufacturerIDs() []uint16 {
	out := make([]uint16, 0, len(e.Manufacturer))
	for id := range e.Manufacturer {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ServiceDataUUIDs returns service data keys in ascending order.
func (e Event) ServiceDataUUIDs() []string {
	out := make([]string, 0, len(e.ServiceData))
	for u := range e.ServiceData {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// WithAD fills fields the platform left empty from the raw advertising data.
func (e Event) WithAD() Event {
	if len(e.Raw) == 0 {
		return e
	}
	ad := DecodeAD(e.Raw)
	if e.LocalName == "" {
		e.LocalName = ad.LocalName
	}
	if e.TxPower == nil && ad.TxPower != nil {
		v := *ad.TxPower
		e.TxPower = &v
	}
	if len(e.Manufacturer) == 0 && len(ad.Manufacturer) > 0 {
		e.Manufacturer = ad.Manufacturer
	}
	if len(e.Services) == 0 && len(ad.ServiceUUIDs) > 0 {
		e.Services = ad.ServiceUUIDs
	}
	if len(e.ServiceData) == 0 && len(ad.ServiceData) > 0 {
		e.ServiceData = ad.ServiceData
	}
	return e
}

const pathLossExponent = 2.0

// EstimateDistance applies the log-distance path loss model,
// d = 10 ^ ((txPower - rssi) / (10 * n)) with n = 2. An absent reference power or
// an RSSI of exactly 0 (unmeasured) yields no estimate.
func EstimateDistance(rssi int, txPower *int) (float64, bool) {
	if txPower == nil || rssi == 0 {
		return 0, false
	}
	return math.Pow(10, float64(*txPower-rssi)/(10*pathLossExponent)), true
}
