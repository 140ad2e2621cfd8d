package addr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidKey     = errors.New("invalid identity resolving key")
)

// Address is a 6-octet Bluetooth device address in display order: octet 0 is the
// leftmost group of "AA:BB:CC:DD:EE:FF" and carries the random-address type bits.
type Address [6]byte

// Subtype of a random device address, from the two MSBs of octet 0.
type Subtype string

const (
	SubtypeNonResolvable Subtype = "non_resolvable_private"
	SubtypeResolvable    Subtype = "resolvable_private"
	SubtypeReserved      Subtype = "reserved"
	SubtypeStatic        Subtype = "static_random"
)

// Parse accepts six 2-digit hex groups separated by ':' or '-', in any case.
func Parse(text string) (Address, error) {
	var a Address
	s := strings.TrimSpace(text)
	parts := strings.Split(strings.ReplaceAll(s, "-", ":"), ":")
	if len(parts) != len(a) {
		return a, fmt.Errorf("%w: %q has %d groups, want 6", ErrInvalidAddress, text, len(parts))
	}
	for i, p := range parts {
		if len(p) != 2 {
			return a, fmt.Errorf("%w: %q group %d is not 2 hex digits", ErrInvalidAddress, text, i+1)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return a, fmt.Errorf("%w: %q group %d is not hex", ErrInvalidAddress, text, i+1)
		}
		a[i] = b[0]
	}
	return a, nil
}

// String returns the canonical upper-case colon form.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsResolvablePrivate reports whether the two MSBs of octet 0 are 01.
func (a Address) IsResolvablePrivate() bool {
	return a[0]>>6 == 0b01
}

// Prand is the random part of a resolvable private address (octets 0..2).
func (a Address) Prand() [3]byte {
	return [3]byte{a[0], a[1], a[2]}
}

// Hash is the hash part of a resolvable private address (octets 3..5).
func (a Address) Hash() [3]byte {
	return [3]byte{a[3], a[4], a[5]}
}

// Classify returns the random-address subtype encoded in the two MSBs of octet 0.
// Whether the address is random at all is only known to the radio stack.
func (a Address) Classify() Subtype {
	switch (a[0] >> 6) & 0x03 {
	case 0:
		return SubtypeNonResolvable
	case 1:
		return SubtypeResolvable
	case 2:
		return SubtypeReserved
	default:
		return SubtypeStatic
	}
}

// LooksLikeOpaquePlatformID reports whether text has the shape of a platform-issued
// device identifier (a UUID, e.g. CoreBluetooth) rather than a hardware address:
// 32 hex characters once '-' is removed, and no ':' at all.
func LooksLikeOpaquePlatformID(text string) bool {
	s := strings.TrimSpace(text)
	if strings.Contains(s, ":") {
		return false
	}
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Normalize returns the identity string used to key per-address counters: the
// canonical form of a hardware address, or the upper-cased text of an opaque
// platform identifier. Anything else is ErrInvalidAddress.
func Normalize(text string) (string, error) {
	if a, err := Parse(text); err == nil {
		return a.String(), nil
	}
	if LooksLikeOpaquePlatformID(text) {
		return strings.ToUpper(strings.TrimSpace(text)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAddress, text)
}
