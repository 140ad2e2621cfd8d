package bluetooth

import (
	tg "tinygo.org/x/bluetooth"

	"btrpa/internal/addr"
)

// platformTags describes what the stack reports about an address type, in the
// "key=value" form shown as platform data:
//
//   - addr_type=public_or_unknown when the stack did not mark it random
//   - addr_type=random plus random_subtype=<subtype> from the two MSBs
func platformTags(a tg.Address) []string {
	if !a.IsRandom() {
		return []string{"addr_type=public_or_unknown"}
	}
	tags := []string{"addr_type=random"}
	if parsed, err := addr.Parse(a.String()); err == nil {
		tags = append(tags, "random_subtype="+string(parsed.Classify()))
	}
	return tags
}
