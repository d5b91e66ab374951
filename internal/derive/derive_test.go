package derive

import (
	"testing"

	"github.com/shopspring/decimal"

	"energy-flow-monitor/internal/delta"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validDeltas(imported, exported, produced, charge, discharge string) delta.EnergyDeltas {
	return delta.EnergyDeltas{
		Imported:  d(imported),
		Exported:  d(exported),
		Produced:  d(produced),
		Charge:    d(charge),
		Discharge: d(discharge),
		Valid:     true,
	}
}

func TestComputeInvalidIntervalYieldsZeroFlows(t *testing.T) {
	f := Compute(delta.EnergyDeltas{Valid: false, Reason: delta.ReasonNegativeDelta}, d("300"))
	if !f.NetEnergyUse.IsZero() || !f.SelfConsumed.IsZero() || !f.EmissionsImported.IsZero() {
		t.Fatalf("invalid interval must derive zero flows, got %+v", f)
	}
}

func TestComputeBasicIdentities(t *testing.T) {
	// imported 0.5, exported 0, produced 0.2, charge 0.1, discharge 0
	f := Compute(validDeltas("0.5", "0", "0.2", "0.1", "0"), decimal.Zero)

	cases := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"net_energy_use", f.NetEnergyUse, "0.7"},
		{"self_consumed", f.SelfConsumed, "0.1"},
		{"self_stored", f.SelfStored, "0.1"},
		{"imported_battery", f.ImportedBattery, "0"},
		{"exported_battery", f.ExportedBattery, "0"},
		{"self_consumed_battery", f.SelfConsumedBattery, "0"},
		{"imported_residual", f.ImportedResidual, "0.5"},
		{"exported_residual", f.ExportedResidual, "0"},
		{"net_battery_flow", f.NetBatteryFlow, "-0.1"},
		{"net_energy_imported_grid", f.NetEnergyImportedGrid, "0.5"},
	}
	for _, c := range cases {
		if !c.got.Equal(d(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestComputeBatterySplit(t *testing.T) {
	// Discharge exceeds export: the remainder was consumed locally.
	f := Compute(validDeltas("0.1", "0.3", "1.0", "0", "0.8"), decimal.Zero)

	if !f.ExportedBattery.Equal(d("0.3")) {
		t.Fatalf("exported_battery = %s, want 0.3", f.ExportedBattery)
	}
	if !f.SelfConsumedBattery.Equal(d("0.5")) {
		t.Fatalf("self_consumed_battery = %s, want 0.5", f.SelfConsumedBattery)
	}
	if !f.ExportedResidual.IsZero() {
		t.Fatalf("exported_residual = %s, want 0", f.ExportedResidual)
	}
}

func TestComputeChargeFromGrid(t *testing.T) {
	// Charging beyond the solar surplus draws the rest from the grid.
	f := Compute(validDeltas("0.6", "0.1", "0.3", "0.5", "0"), decimal.Zero)

	surplus := d("0.2") // produced - exported
	if !f.SelfStored.Equal(surplus) {
		t.Fatalf("self_stored = %s, want %s", f.SelfStored, surplus)
	}
	if !f.ImportedBattery.Equal(d("0.3")) {
		t.Fatalf("imported_battery = %s, want 0.3", f.ImportedBattery)
	}
	if !f.ImportedResidual.Equal(d("0.3")) {
		t.Fatalf("imported_residual = %s, want 0.3", f.ImportedResidual)
	}
	// SelfConsumed is floored at zero when charge exceeds the surplus.
	if !f.SelfConsumed.IsZero() {
		t.Fatalf("self_consumed = %s, want 0", f.SelfConsumed)
	}
}

func TestComputeEmissions(t *testing.T) {
	f := Compute(validDeltas("2", "0.5", "0", "0", "0"), d("400"))

	if !f.EmissionsImported.Equal(d("0.8")) {
		t.Fatalf("emissions_imported = %s, want 0.8", f.EmissionsImported)
	}
	if !f.EmissionsAvoided.Equal(d("0.2")) {
		t.Fatalf("emissions_avoided = %s, want 0.2", f.EmissionsAvoided)
	}
	if !f.EmissionsNet.Equal(d("0.6")) {
		t.Fatalf("emissions_net = %s, want 0.6", f.EmissionsNet)
	}
}

func TestComputeEmissionsCanGoNegative(t *testing.T) {
	f := Compute(validDeltas("0.1", "1.1", "1.5", "0", "0"), d("300"))
	if !f.EmissionsNet.Equal(d("-0.3")) {
		t.Fatalf("emissions_net = %s, want -0.3", f.EmissionsNet)
	}
}

func TestSelfSufficiencyFromParts(t *testing.T) {
	cases := []struct {
		name                         string
		imported, produced, exported string
		want                         string
	}{
		{"all_from_grid", "2", "0", "0", "0"},
		{"all_self", "0", "2", "0", "100"},
		{"half", "1", "1", "0", "50"},
		{"export_reduces_self_share", "1", "4", "2", "66.67"},
		{"degenerate_zero_denominator", "0", "0", "0", "0"},
		{"degenerate_negative_denominator", "0.1", "0", "0.5", "0"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := SelfSufficiencyFromParts(d(c.imported), d(c.produced), d(c.exported))
			if !got.Equal(d(c.want)) {
				t.Fatalf("ss(%s, %s, %s) = %s, want %s", c.imported, c.produced, c.exported, got, c.want)
			}
		})
	}
}

func TestSelfSufficiencyStaysWithinBounds(t *testing.T) {
	got := SelfSufficiencyFromParts(d("-0.5"), d("1"), d("0"))
	if got.GreaterThan(d("100")) || got.IsNegative() {
		t.Fatalf("ss out of [0,100]: %s", got)
	}
}

func TestSpecsTableIsConsistent(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, spec := range Specs() {
		if spec.Key == "" || spec.Name == "" || spec.Unit == "" {
			t.Fatalf("incomplete spec: %+v", spec)
		}
		if spec.Value == nil {
			t.Fatalf("spec %s has no value accessor", spec.Key)
		}
		if seen[spec.Key] {
			t.Fatalf("duplicate spec key %s", spec.Key)
		}
		seen[spec.Key] = true
	}

	// The ratio metric must never participate in period sums.
	ss, ok := SpecFor(KindSelfSufficiency)
	if !ok {
		t.Fatal("self_sufficiency spec missing")
	}
	if ss.IncludePeriods || ss.IncludeOverall {
		t.Fatal("self_sufficiency must not be summed over periods")
	}

	night, ok := SpecFor(KindNightUse)
	if !ok {
		t.Fatal("night_use spec missing")
	}
	if night.TimeGate == nil {
		t.Fatal("night_use must carry a time gate")
	}
}
