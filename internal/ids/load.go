package ids

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const (
	ouiFile      = "oui.csv"
	servicesFile = "service_uuids.yaml"
	companyFile  = "company_identifiers.yaml"
)

type LoadConfig struct {
	// DataDir contains default/ and custom/ subfolders, e.g.
	//   data/default/oui.csv
	//   data/custom/service_uuids.yaml
	DataDir string

	// CustomDir overrides <DataDir>/custom.
	CustomDir string
}

// Load reads the name tables, overlaying custom entries on the defaults. Missing
// files are skipped; when nothing loads the Resolver is nil.
func Load(cfg LoadConfig) (*Resolver, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.CustomDir != "" {
		if _, err := os.Stat(cfg.CustomDir); err != nil {
			return nil, fmt.Errorf("custom-data-dir not accessible: %w", err)
		}
	}
	customDir := cfg.CustomDir
	if customDir == "" {
		customDir = filepath.Join(cfg.DataDir, "custom")
	}

	res := &Resolver{
		vendors:          map[string]string{},
		serviceUUIDNames: map[string]string{},
		companyNames:     map[uint16]string{},
	}
	for _, dir := range []string{filepath.Join(cfg.DataDir, "default"), customDir} {
		skipMissing(loadOUIInto(res.vendors, filepath.Join(dir, ouiFile)))
		skipMissing(loadUUIDYamlInto(res.serviceUUIDNames, filepath.Join(dir, servicesFile)))
		skipMissing(loadCompaniesInto(res.companyNames, filepath.Join(dir, companyFile)))
	}

	if res.Len() == 0 {
		return nil, nil
	}
	return res, nil
}

func skipMissing(err error) {
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("name table skipped")
	}
}

func loadOUIInto(dst map[string]string, path string) error {
	items, err := LoadOUI(path)
	if err != nil {
		return err
	}
	for k, v := range items {
		dst[k] = v
	}
	return nil
}

func loadUUIDYamlInto(dst map[string]string, path string) error {
	items, err := LoadUUIDYaml(path)
	if err != nil {
		return err
	}
	for k, v := range items {
		dst[k] = v
	}
	return nil
}

func loadCompaniesInto(dst map[uint16]string, path string) error {
	items, err := LoadCompanyYaml(path)
	if err != nil {
		return err
	}
	for k, v := range items {
		dst[k] = v
	}
	return nil
}

var ErrBadUUID = errors.New("bad uuid")
