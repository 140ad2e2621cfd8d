package ids

import (
	"fmt"
	"strings"

	"btrpa/internal/addr"
)

// Resolver provides display names for identifiers seen in advertisements.
//
// - Vendor names are resolved by MAC OUI (oui.csv).
// - Service UUID names come from service_uuids.yaml.
// - Company names for manufacturer data come from company_identifiers.yaml.
//
// UUID keys are stored in canonical 128-bit, lower-case form. A nil Resolver
// answers every lookup with "".
type Resolver struct {
	vendors          map[string]string
	serviceUUIDNames map[string]string
	companyNames     map[uint16]string
}

// VendorForAddress looks up the OUI of a public address. Random addresses carry
// no OUI, so callers should only ask for addresses the stack reports as public.
func (r *Resolver) VendorForAddress(a addr.Address) string {
	if r == nil || len(r.vendors) == 0 {
		return ""
	}
	return r.vendors[fmt.Sprintf("%02X%02X%02X", a[0], a[1], a[2])]
}

func (r *Resolver) ServiceName(uuid string) string {
	if r == nil || len(r.serviceUUIDNames) == 0 {
		return ""
	}
	u, err := normalizeUUID(uuid)
	if err != nil {
		return ""
	}
	return r.serviceUUIDNames[u]
}

func (r *Resolver) CompanyName(id uint16) string {
	if r == nil {
		return ""
	}
	return r.companyNames[id]
}

// AnnotateServiceUUID appends the known name of uuid in parentheses.
func (r *Resolver) AnnotateServiceUUID(uuid string) string {
	name := r.ServiceName(uuid)
	if name == "" {
		return uuid
	}
	return uuid + " (" + name + ")"
}

func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.vendors) + len(r.serviceUUIDNames) + len(r.companyNames)
}

func (r *Resolver) String() string {
	if r == nil {
		return "no name tables"
	}
	return strings.Join([]string{
		fmt.Sprintf("%d vendors", len(r.vendors)),
		fmt.Sprintf("%d services", len(r.serviceUUIDNames)),
		fmt.Sprintf("%d companies", len(r.companyNames)),
	}, ", ")
}
