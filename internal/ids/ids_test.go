package ids

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btrpa/internal/addr"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadOverlaysCustom(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "default", ouiFile), `Registry,Assignment,Organization Name,Organization Address
MA-L,001A7D,cyber-blue(HK)Ltd,"Hong Kong"
MA-L,B827EB,Raspberry Pi Foundation,UK
`)
	writeFile(t, filepath.Join(dir, "default", servicesFile), `uuids:
  - uuid: 0x180F
    name: Battery
  - uuid: 0xFE9F
    name: Google LLC
`)
	writeFile(t, filepath.Join(dir, "default", companyFile), `company_identifiers:
  - value: 0x004C
    name: 'Apple, Inc.'
  - value: 0x0075
    name: Samsung Electronics Co. Ltd.
`)
	writeFile(t, filepath.Join(dir, "custom", servicesFile), `uuids:
  - uuid: 6e400001-b5a3-f393-e0a9-e50e24dcca9e
    name: Nordic UART
  - uuid: 0x180F
    name: Battery Service
`)

	r, err := Load(LoadConfig{DataDir: dir})
	require.NoError(t, err)
	require.NotNil(t, r)

	pi, err := addr.Parse("B8:27:EB:01:02:03")
	require.NoError(t, err)
	assert.Equal(t, "Raspberry Pi Foundation", r.VendorForAddress(pi))

	assert.Equal(t, "Battery Service", r.ServiceName("0000180f-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "Battery Service", r.ServiceName("180F"))
	assert.Equal(t, "Nordic UART", r.ServiceName("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"))
	assert.Equal(t, "Apple, Inc.", r.CompanyName(0x004C))
	assert.Equal(t, "0000fe9f-0000-1000-8000-00805f9b34fb (Google LLC)",
		r.AnnotateServiceUUID("0000fe9f-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "00001234-0000-1000-8000-00805f9b34fb",
		r.AnnotateServiceUUID("00001234-0000-1000-8000-00805f9b34fb"))
}

func TestLoadEmptyDirIsNil(t *testing.T) {
	r, err := Load(LoadConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.Nil(t, r)

	// Lookups on a nil resolver are safe.
	assert.Empty(t, r.ServiceName("180f"))
	assert.Empty(t, r.CompanyName(0x004C))
	assert.Empty(t, r.VendorForAddress(addr.Address{}))
	assert.Equal(t, "x", r.AnnotateServiceUUID("x"))
}

func TestLoadMissingCustomDir(t *testing.T) {
	_, err := Load(LoadConfig{DataDir: t.TempDir(), CustomDir: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "0x180f", want: "0000180f-0000-1000-8000-00805f9b34fb"},
		{in: "2A00", want: "00002a00-0000-1000-8000-00805f9b34fb"},
		{in: "0x0000FE9F", want: "0000fe9f-0000-1000-8000-00805f9b34fb"},
		{in: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", want: "6e400001-b5a3-f393-e0a9-e50e24dcca9e"},
		{in: "", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "zzzz", wantErr: true},
		{in: "123456789", wantErr: true},
		{in: "6e40000g-b5a3-f393-e0a9-e50e24dcca9e", wantErr: true},
		{in: "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz", wantErr: true},
		{in: "6e400001-b5a3-f393-e0a9-e50e24dcca9", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeUUID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadUUID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadCompanyYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), companyFile)
	writeFile(t, path, `company_identifiers:
  - value: 0x004C
    name: 'Apple, Inc.'
  - value: "0x0006"
    name: Microsoft
  - value: 0x10000
    name: Out of range
  - value: 0x0075
    name: "  "
`)

	got, err := LoadCompanyYaml(path)
	require.NoError(t, err)
	assert.Equal(t, map[uint16]string{0x004C: "Apple, Inc.", 0x0006: "Microsoft"}, got)

	writeFile(t, path, "company_identifiers: [")
	_, err = LoadCompanyYaml(path)
	assert.ErrorContains(t, err, path)
}
