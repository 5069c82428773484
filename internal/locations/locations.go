// Package locations canonicalizes grid zone and hub identifiers.
package locations

import (
	"sort"
	"strings"
)

// Canonical holds the set of zone keys the pipeline stores data under.
var Canonical = map[string]struct{}{
	"NORTH":      {},
	"SOUTH":      {},
	"HOUSTON":    {},
	"WEST":       {},
	"HB_NORTH":   {},
	"HB_SOUTH":   {},
	"HB_HOUSTON": {},
	"HB_WEST":    {},
}

var aliases = map[string]string{
	"NORTH_ZONE":     "NORTH",
	"SOUTH_ZONE":     "SOUTH",
	"HOUSTON_ZONE":   "HOUSTON",
	"WEST_ZONE":      "WEST",
	"LZ_NORTH":       "NORTH",
	"LZ_SOUTH":       "SOUTH",
	"LZ_HOUSTON":     "HOUSTON",
	"LZ_WEST":        "WEST",
	"HB_NORTH_HUB":   "HB_NORTH",
	"HB_SOUTH_HUB":   "HB_SOUTH",
	"HB_HOUSTON_HUB": "HB_HOUSTON",
	"HB_WEST_HUB":    "HB_WEST",
	"NORTH_HUB":      "HB_NORTH",
	"SOUTH_HUB":      "HB_SOUTH",
	"HOUSTON_HUB":    "HB_HOUSTON",
	"WEST_HUB":       "HB_WEST",
}

// prefixes that settlement point feeds prepend to zone names.
var prefixes = []string{"LZ_", "HZ_", "HZON_", "LOAD_ZONE_", "HB_"}

// Normalize maps a raw settlement point or zone name to its canonical key.
// The second return is false when the name cannot be canonicalized.
func Normalize(raw string) (string, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, "-", "_")
	value = strings.ReplaceAll(value, " ", "_")
	if value == "" {
		return "", false
	}

	if _, ok := Canonical[value]; ok {
		return value, true
	}
	if canonical, ok := aliases[value]; ok {
		return canonical, true
	}

	for _, prefix := range prefixes {
		if !strings.HasPrefix(value, prefix) {
			continue
		}
		candidate := strings.TrimPrefix(value, prefix)
		if _, ok := Canonical[candidate]; ok {
			return candidate, true
		}
		if canonical, ok := aliases[candidate]; ok {
			return canonical, true
		}
	}

	return "", false
}

// All returns the canonical zone keys in sorted order.
func All() []string {
	keys := make([]string, 0, len(Canonical))
	for key := range Canonical {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
