package ids

import (
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
)

// LoadOUI loads vendor names keyed by OUI (6 upper-case hex digits) from an IEEE
// registry CSV (Registry, Assignment, Organization Name, ...). The header row is
// optional.
func LoadOUI(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	out := make(map[string]string, 1024)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 3 {
			continue
		}
		oui := strings.ToUpper(strings.NewReplacer("-", "", ":", "").Replace(strings.TrimSpace(rec[1])))
		if len(oui) != 6 {
			continue
		}
		if _, err := hex.DecodeString(oui); err != nil {
			continue
		}
		if org := strings.TrimSpace(rec[2]); org != "" {
			out[oui] = org
		}
	}
	return out, nil
}
