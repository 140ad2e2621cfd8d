package addr

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "colon upper", in: "AA:BB:CC:DD:EE:FF", want: "AA:BB:CC:DD:EE:FF"},
		{name: "colon lower", in: "4a:0b:1c:2d:3e:4f", want: "4A:0B:1C:2D:3E:4F"},
		{name: "dash", in: "11-22-33-44-55-66", want: "11:22:33:44:55:66"},
		{name: "mixed separators", in: "11-22:33-44:55-66", want: "11:22:33:44:55:66"},
		{name: "surrounding space", in: "  01:02:03:04:05:06 ", want: "01:02:03:04:05:06"},
		{name: "five groups", in: "AA:BB:CC:DD:EE", wantErr: true},
		{name: "seven groups", in: "AA:BB:CC:DD:EE:FF:00", wantErr: true},
		{name: "single digit group", in: "A:BB:CC:DD:EE:FF", wantErr: true},
		{name: "non hex", in: "GG:BB:CC:DD:EE:FF", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Parse(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, a.String())
		})
	}
}

func TestIsResolvablePrivate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for top := byte(0); top < 4; top++ {
		for i := 0; i < 64; i++ {
			var a Address
			rng.Read(a[:])
			a[0] = top<<6 | a[0]&0x3F
			assert.Equal(t, top == 0b01, a.IsResolvablePrivate(), "address %s", a)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := map[byte]Subtype{
		0x12: SubtypeNonResolvable,
		0x52: SubtypeResolvable,
		0x92: SubtypeReserved,
		0xD2: SubtypeStatic,
	}
	for first, want := range cases {
		a := Address{first, 1, 2, 3, 4, 5}
		assert.Equal(t, want, a.Classify(), "first octet %#x", first)
	}
}

func TestPrandAndHash(t *testing.T) {
	a, err := Parse("4A:0B:1C:2D:3E:4F")
	require.NoError(t, err)
	assert.Equal(t, [3]byte{0x4A, 0x0B, 0x1C}, a.Prand())
	assert.Equal(t, [3]byte{0x2D, 0x3E, 0x4F}, a.Hash())
}

func TestLooksLikeOpaquePlatformID(t *testing.T) {
	assert.True(t, LooksLikeOpaquePlatformID("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"))
	assert.True(t, LooksLikeOpaquePlatformID("6e400001b5a3f393e0a9e50e24dcca9e"))
	assert.False(t, LooksLikeOpaquePlatformID("AA:BB:CC:DD:EE:FF"))
	assert.False(t, LooksLikeOpaquePlatformID("6E400001-B5A3-F393-E0A9-E50E24DCCA9"))
	assert.False(t, LooksLikeOpaquePlatformID("ZZ400001-B5A3-F393-E0A9-E50E24DCCA9E"))
	assert.False(t, LooksLikeOpaquePlatformID("6E:400001B5A3F393E0A9E50E24DCCA9E"))
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("aa-bb-cc-dd-ee-ff")
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", got)

	got, err = Normalize("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	require.NoError(t, err)
	assert.Equal(t, "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", got)

	_, err = Normalize("not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)
}
