package advert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestEstimateDistance(t *testing.T) {
	d, ok := EstimateDistance(-59, intPtr(-59))
	require.True(t, ok)
	assert.InDelta(t, 1.0, d, 1e-9)

	d, ok = EstimateDistance(-79, intPtr(-59))
	require.True(t, ok)
	assert.InDelta(t, 10.0, d, 1e-9)

	for _, rssi := range []int{-100, -59, -1, 0, 20} {
		_, ok := EstimateDistance(rssi, nil)
		assert.False(t, ok, "rssi %d without tx power", rssi)
	}

	_, ok = EstimateDistance(0, intPtr(-59))
	assert.False(t, ok, "zero rssi is unmeasured")
}

func TestEstimateDistanceMonotonic(t *testing.T) {
	tx := intPtr(-59)
	near, ok := EstimateDistance(-40, tx)
	require.True(t, ok)
	far, ok := EstimateDistance(-80, tx)
	require.True(t, ok)
	assert.Less(t, near, far)

	prev := 0.0
	for rssi := -30; rssi >= -100; rssi-- {
		d, ok := EstimateDistance(rssi, tx)
		require.True(t, ok)
		assert.Greater(t, d, prev, "rssi %d", rssi)
		prev = d
	}
}

func TestDecodeAD(t *testing.T) {
	raw := []byte{
		0x02, 0x01, 0x06, // flags
		0x05, 0x09, 'T', 'a', 'g', '1', // complete local name
		0x02, 0x0A, 0xF4, // tx power -12
		0x03, 0x03, 0x0F, 0x18, // 16-bit service 0x180F
		0x05, 0x16, 0x0F, 0x18, 0x64, 0x01, // service data 0x180F
		0x05, 0xFF, 0x4C, 0x00, 0x10, 0x05, // manufacturer 0x004C
	}

	ad := DecodeAD(raw)
	require.Len(t, ad.Structures, 6)
	require.NotNil(t, ad.Flags)
	assert.Equal(t, byte(0x06), *ad.Flags)
	assert.Equal(t, "Tag1", ad.LocalName)
	require.NotNil(t, ad.TxPower)
	assert.Equal(t, -12, *ad.TxPower)
	assert.Equal(t, []string{"0000180f-0000-1000-8000-00805f9b34fb"}, ad.ServiceUUIDs)
	assert.Equal(t, []byte{0x64, 0x01}, ad.ServiceData["0000180f-0000-1000-8000-00805f9b34fb"])
	assert.Equal(t, []byte{0x10, 0x05}, ad.Manufacturer[0x004C])
	assert.Equal(t, "Complete Local Name", ad.Structures[1].Name())
}

func TestDecodeADTruncated(t *testing.T) {
	ad := DecodeAD([]byte{0x02, 0x01, 0x06, 0x09, 0x09, 'x'})
	assert.Len(t, ad.Structures, 1)
	assert.Empty(t, ad.LocalName)
}

func TestDecodeAD128BitUUID(t *testing.T) {
	// 6e400001-b5a3-f393-e0a9-e50e24dcca9e, little endian on air.
	le := []byte{0x9e, 0xca, 0xdc, 0x24, 0x0e, 0xe5, 0xa9, 0xe0, 0x93, 0xf3, 0xa3, 0xb5, 0x01, 0x00, 0x40, 0x6e}
	raw := append([]byte{0x11, 0x07}, le...)
	ad := DecodeAD(raw)
	assert.Equal(t, []string{"6e400001-b5a3-f393-e0a9-e50e24dcca9e"}, ad.ServiceUUIDs)
}

func TestWithADKeepsPlatformFields(t *testing.T) {
	ev := Event{
		Address:   "AA:BB:CC:DD:EE:FF",
		LocalName: "from-platform",
		Raw:       []byte{0x05, 0x09, 'T', 'a', 'g', '1', 0x02, 0x0A, 0x04},
	}
	got := ev.WithAD()
	assert.Equal(t, "from-platform", got.LocalName)
	require.NotNil(t, got.TxPower)
	assert.Equal(t, 4, *got.TxPower)
	assert.Nil(t, ev.TxPower)
}

func TestSortedKeys(t *testing.T) {
	ev := Event{
		Manufacturer: map[uint16][]byte{0x0075: {1}, 0x004C: {2}},
		ServiceData:  map[string][]byte{"b": nil, "a": nil},
	}
	assert.Equal(t, []uint16{0x004C, 0x0075}, ev.ManufacturerIDs())
	assert.Equal(t, []string{"a", "b"}, ev.ServiceDataUUIDs())
}

func TestShortUUID(t *testing.T) {
	assert.Equal(t, "0000180f-0000-1000-8000-00805f9b34fb", ShortUUID(0x180F))
	assert.Equal(t, "12345678-0000-1000-8000-00805f9b34fb", ShortUUID(0x12345678))
}

func TestDecodeAD32BitServiceData(t *testing.T) {
	ad := DecodeAD([]byte{0x06, 0x20, 0x78, 0x56, 0x34, 0x12, 0xAA})
	assert.Equal(t, []byte{0xAA}, ad.ServiceData["12345678-0000-1000-8000-00805f9b34fb"])
}
