package addr

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// IdentityKey is a 128-bit Identity Resolving Key.
type IdentityKey [16]byte

// ParseKey accepts 32 hex characters, optionally prefixed with 0x/0X and optionally
// split by ':', '-' or whitespace anywhere. Errors never echo the key text.
func ParseKey(text string) (IdentityKey, error) {
	var k IdentityKey
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	s = strings.Map(func(r rune) rune {
		if r == ':' || r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if len(s) != hex.EncodedLen(len(k)) {
		return k, fmt.Errorf("%w: must be exactly 16 bytes (32 hex chars), got %d hex chars", ErrInvalidKey, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("%w: %d characters, not all hex", ErrInvalidKey, len(s))
	}
	copy(k[:], b)
	return k, nil
}

func (k IdentityKey) String() string {
	return hex.EncodeToString(k[:])
}
