package ids

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"btrpa/internal/advert"
)

type uuidFile struct {
	UUIDs []uuidEntry `yaml:"uuids"`
}

type uuidEntry struct {
	UUID any    `yaml:"uuid"`
	Name string `yaml:"name"`
}

type companyYAML struct {
	Companies []companyEntry `yaml:"company_identifiers"`
}

type companyEntry struct {
	Value any    `yaml:"value"`
	Name  string `yaml:"name"`
}

// LoadUUIDYaml loads UUID -> name from a Bluetooth SIG assigned-numbers file
// (service_uuids.yaml). Keys are canonical 128-bit lower-case UUID strings.
func LoadUUIDYaml(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f uuidFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make(map[string]string, len(f.UUIDs))
	for _, e := range f.UUIDs {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		u, err := normalizeUUID(yamlNumber(e.UUID))
		if err != nil {
			continue
		}
		out[u] = name
	}
	return out, nil
}

// LoadCompanyYaml loads company identifier -> name from the SIG
// company_identifiers.yaml.
func LoadCompanyYaml(path string) (map[uint16]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f companyYAML
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make(map[uint16]string, len(f.Companies))
	for _, e := range f.Companies {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		v, err := strconv.ParseUint(yamlNumber(e.Value), 0, 16)
		if err != nil {
			continue
		}
		out[uint16(v)] = name
	}
	return out, nil
}

// yamlNumber renders a scalar that YAML may have decoded as an integer (0x180F)
// back to hex text.
func yamlNumber(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case int:
		return fmt.Sprintf("0x%X", t)
	case int64:
		return fmt.Sprintf("0x%X", t)
	case uint64:
		return fmt.Sprintf("0x%X", t)
	default:
		return ""
	}
}

// normalizeUUID accepts 0x-prefixed or bare 16/32-bit values and 128-bit UUIDs,
// returning the canonical lower-case 128-bit form.
func normalizeUUID(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	short := strings.TrimPrefix(s, "0x")
	if short != "" && len(short) <= 8 {
		v, err := strconv.ParseUint(short, 16, 32)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrBadUUID, s)
		}
		return advert.ShortUUID(uint32(v)), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrBadUUID, s, err)
	}
	return u.String(), nil
}
