package advert

import (
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
)

// AD type codes from the Bluetooth Assigned Numbers.
const (
	adFlags            = 0x01
	adIncomplete16     = 0x02
	adComplete16       = 0x03
	adIncomplete128    = 0x06
	adComplete128      = 0x07
	adShortName        = 0x08
	adCompleteName     = 0x09
	adTxPower          = 0x0A
	adServiceData16    = 0x16
	adServiceData32    = 0x20
	adServiceData128   = 0x21
	adManufacturerData = 0xFF
)

// Structure is one length/type/value element of advertising data.
type Structure struct {
	Type byte
	Data []byte
}

func (s Structure) Name() string {
	return adTypeName(s.Type)
}

// AD is the decoded view of an advertising payload.
type AD struct {
	Structures   []Structure
	Flags        *byte
	LocalName    string
	TxPower      *int
	ServiceUUIDs []string
	ServiceData  map[string][]byte
	Manufacturer map[uint16][]byte
}

// DecodeAD walks the AD structures of raw. Decoding stops at the first zero
// length or truncated element.
func DecodeAD(raw []byte) AD {
	var ad AD
	for i := 0; i < len(raw); {
		l := int(raw[i])
		if l == 0 || i+1+l > len(raw) {
			break
		}
		typ := raw[i+1]
		data := append([]byte(nil), raw[i+2:i+1+l]...)
		ad.Structures = append(ad.Structures, Structure{Type: typ, Data: data})

		switch typ {
		case adFlags:
			if len(data) >= 1 {
				f := data[0]
				ad.Flags = &f
			}
		case adShortName:
			if ad.LocalName == "" {
				ad.LocalName = safeASCII(data)
			}
		case adCompleteName:
			ad.LocalName = safeASCII(data)
		case adTxPower:
			if len(data) >= 1 {
				v := int(int8(data[0]))
				ad.TxPower = &v
			}
		case adIncomplete16, adComplete16:
			for j := 0; j+2 <= len(data); j += 2 {
				ad.ServiceUUIDs = append(ad.ServiceUUIDs, ShortUUID(uint32(binary.LittleEndian.Uint16(data[j:]))))
			}
		case adIncomplete128, adComplete128:
			for j := 0; j+16 <= len(data); j += 16 {
				ad.ServiceUUIDs = append(ad.ServiceUUIDs, uuid128LE(data[j:j+16]))
			}
		case adServiceData16:
			if len(data) >= 2 {
				ad.putServiceData(ShortUUID(uint32(binary.LittleEndian.Uint16(data))), data[2:])
			}
		case adServiceData32:
			if len(data) >= 4 {
				ad.putServiceData(ShortUUID(binary.LittleEndian.Uint32(data)), data[4:])
			}
		case adServiceData128:
			if len(data) >= 16 {
				ad.putServiceData(uuid128LE(data[:16]), data[16:])
			}
		case adManufacturerData:
			if len(data) >= 2 {
				if ad.Manufacturer == nil {
					ad.Manufacturer = map[uint16][]byte{}
				}
				ad.Manufacturer[binary.LittleEndian.Uint16(data)] = data[2:]
			}
		}
		i += 1 + l
	}
	return ad
}

func (ad *AD) putServiceData(uuid string, payload []byte) {
	if ad.ServiceData == nil {
		ad.ServiceData = map[string][]byte{}
	}
	ad.ServiceData[uuid] = payload
}

// baseUUID is the Bluetooth Base UUID, 00000000-0000-1000-8000-00805f9b34fb.
var baseUUID = uuid.UUID{0, 0, 0, 0, 0, 0, 0x10, 0, 0x80, 0, 0, 0x80, 0x5f, 0x9b, 0x34, 0xfb}

// ShortUUID expands a 16- or 32-bit SIG-assigned UUID onto the Base UUID.
func ShortUUID(v uint32) string {
	u := baseUUID
	binary.BigEndian.PutUint32(u[:4], v)
	return u.String()
}

// uuid128LE formats a 128-bit UUID transmitted least significant octet first.
func uuid128LE(b []byte) string {
	var u uuid.UUID
	for i := range u {
		u[i] = b[15-i]
	}
	return u.String()
}

func adTypeName(t byte) string {
	switch t {
	case adFlags:
		return "Flags"
	case adIncomplete16:
		return "Incomplete List of 16-bit Service Class UUIDs"
	case adComplete16:
		return "Complete List of 16-bit Service Class UUIDs"
	case adIncomplete128:
		return "Incomplete List of 128-bit Service Class UUIDs"
	case adComplete128:
		return "Complete List of 128-bit Service Class UUIDs"
	case adShortName:
		return "Shortened Local Name"
	case adCompleteName:
		return "Complete Local Name"
	case adTxPower:
		return "Tx Power Level"
	case adServiceData16:
		return "Service Data - 16-bit UUID"
	case adServiceData32:
		return "Service Data - 32-bit UUID"
	case adServiceData128:
		return "Service Data - 128-bit UUID"
	case adManufacturerData:
		return "Manufacturer Specific Data"
	default:
		return ""
	}
}

func safeASCII(b []byte) string {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return ""
		}
	}
	return strings.TrimSpace(string(b))
}
