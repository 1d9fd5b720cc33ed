package units

import (
	"sort"
	"testing"
)

func TestUnit(t *testing.T) {
	if got := Unit(Temperature); got != "DegCelsius" {
		t.Errorf("Unit(temperature) = %q, want DegCelsius", got)
	}
	if got := Unit("mystery_channel"); got != "" {
		t.Errorf("Unit(mystery_channel) = %q, want empty", got)
	}
}

func TestLabel(t *testing.T) {
	if got := Label(Precipitation); got != "precipitation (mm/h)" {
		t.Errorf("Label(precipitation) = %q", got)
	}
	// Undeclared channels stay unlabelled but usable.
	if got := Label("soil_ec"); got != "soil_ec" {
		t.Errorf("Label(soil_ec) = %q, want bare name", got)
	}
}

func TestDeclaredChannelsSorted(t *testing.T) {
	names := DeclaredChannels()
	if len(names) == 0 {
		t.Fatal("no declared channels")
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("DeclaredChannels() not sorted: %v", names)
	}
	for _, name := range names {
		if !IsDeclared(name) {
			t.Errorf("IsDeclared(%q) = false for declared channel", name)
		}
	}
}
