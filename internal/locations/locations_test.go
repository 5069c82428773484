package locations

import "testing"

func TestNormalizeCanonical(t *testing.T) {
	zone, ok := Normalize("NORTH")
	if !ok || zone != "NORTH" {
		t.Fatalf("canonical name should pass through, got %q ok=%v", zone, ok)
	}
}

func TestNormalizeAliases(t *testing.T) {
	cases := map[string]string{
		"North Zone":     "NORTH",
		"LZ_SOUTH":       "SOUTH",
		"lz-houston":     "HOUSTON",
		"HB WEST":        "HB_WEST",
		"HB_NORTH_HUB":   "HB_NORTH",
		"south hub":      "HB_SOUTH",
		"LOAD_ZONE_WEST": "WEST",
		" houston zone ": "HOUSTON",
	}
	for raw, want := range cases {
		got, ok := Normalize(raw)
		if !ok {
			t.Fatalf("Normalize(%q) should succeed", raw)
		}
		if got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeUnknown(t *testing.T) {
	for _, raw := range []string{"", "EAST", "DC_TIE", "LZ_EAST", "HB_"} {
		if zone, ok := Normalize(raw); ok {
			t.Fatalf("Normalize(%q) should fail, got %q", raw, zone)
		}
	}
}

func TestAllSorted(t *testing.T) {
	all := All()
	if len(all) != len(Canonical) {
		t.Fatalf("All returned %d zones, want %d", len(all), len(Canonical))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Fatalf("All should be sorted, got %v", all)
		}
	}
}
