package delta

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"energy-flow-monitor/internal/reading"
)

func testGroups() Groups {
	return Groups{
		Imported:  []string{"sensor.grid_import"},
		Exported:  []string{"sensor.grid_export"},
		Produced:  []string{"sensor.solar"},
		Charge:    []string{"sensor.battery_charge"},
		Discharge: []string{"sensor.battery_discharge"},
		CO2:       "sensor.co2",
	}
}

func setAll(adapter *reading.StaticAdapter, imported, exported, produced, charge, discharge string) {
	adapter.Set("sensor.grid_import", imported, "kWh")
	adapter.Set("sensor.grid_export", exported, "kWh")
	adapter.Set("sensor.solar", produced, "kWh")
	adapter.Set("sensor.battery_charge", charge, "kWh")
	adapter.Set("sensor.battery_discharge", discharge, "kWh")
}

func TestFirstTickIsInvalid(t *testing.T) {
	adapter := reading.NewStatic()
	setAll(adapter, "100.0", "50.0", "30.0", "10.0", "5.0")

	engine := NewEngine(adapter, testGroups(), zerolog.Nop())
	tick := engine.Compute(context.Background())

	if tick.Deltas.Valid {
		t.Fatal("first tick must be invalid")
	}
	if tick.Deltas.Reason != ReasonInitial {
		t.Fatalf("reason = %q, want %q", tick.Deltas.Reason, ReasonInitial)
	}
	if !tick.Deltas.Imported.IsZero() {
		t.Fatalf("invalid tick must carry zero deltas, got %s", tick.Deltas.Imported)
	}
	if tick.Seq != 1 {
		t.Fatalf("seq = %d, want 1", tick.Seq)
	}
}

func TestComputeDeltas(t *testing.T) {
	adapter := reading.NewStatic()
	setAll(adapter, "100.0", "50.0", "30.0", "10.0", "5.0")

	engine := NewEngine(adapter, testGroups(), zerolog.Nop())
	engine.Compute(context.Background())

	setAll(adapter, "100.5", "50.0", "30.2", "10.1", "5.0")
	tick := engine.Compute(context.Background())

	if !tick.Deltas.Valid {
		t.Fatalf("tick should be valid, reason %q", tick.Deltas.Reason)
	}
	want := map[string]decimal.Decimal{
		"imported":  decimal.RequireFromString("0.5"),
		"exported":  decimal.Zero,
		"produced":  decimal.RequireFromString("0.2"),
		"charge":    decimal.RequireFromString("0.1"),
		"discharge": decimal.Zero,
	}
	got := map[string]decimal.Decimal{
		"imported":  tick.Deltas.Imported,
		"exported":  tick.Deltas.Exported,
		"produced":  tick.Deltas.Produced,
		"charge":    tick.Deltas.Charge,
		"discharge": tick.Deltas.Discharge,
	}
	for k, w := range want {
		if !got[k].Equal(w) {
			t.Errorf("%s delta = %s, want %s", k, got[k], w)
		}
	}
	if tick.Seq != 2 {
		t.Fatalf("seq = %d, want 2", tick.Seq)
	}
}

func TestNegativeDeltaDiscardsWholeInterval(t *testing.T) {
	adapter := reading.NewStatic()
	setAll(adapter, "100.0", "50.0", "30.0", "10.0", "5.0")

	engine := NewEngine(adapter, testGroups(), zerolog.Nop())
	engine.Compute(context.Background())

	// Meter reset on the production sensor while others advance.
	setAll(adapter, "101.0", "50.5", "2.0", "10.5", "5.5")
	tick := engine.Compute(context.Background())

	if tick.Deltas.Valid {
		t.Fatal("interval with a negative delta must be invalid")
	}
	if tick.Deltas.Reason != ReasonNegativeDelta {
		t.Fatalf("reason = %q, want %q", tick.Deltas.Reason, ReasonNegativeDelta)
	}
	if !tick.Deltas.Imported.IsZero() || !tick.Deltas.Charge.IsZero() {
		t.Fatal("invalid interval must zero all deltas, including positive ones")
	}

	// The reset totals become the new baseline; the next interval recovers.
	setAll(adapter, "101.2", "50.5", "2.3", "10.5", "5.5")
	tick = engine.Compute(context.Background())
	if !tick.Deltas.Valid {
		t.Fatalf("tick after reset should be valid, reason %q", tick.Deltas.Reason)
	}
	if !tick.Deltas.Produced.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("produced delta = %s, want 0.3", tick.Deltas.Produced)
	}
}

func TestUnitNormalization(t *testing.T) {
	adapter := reading.NewStatic()
	adapter.Set("sensor.grid_import", "2500", "Wh")
	adapter.Set("sensor.solar", "1.5", "kWh")
	adapter.Set("sensor.grid_export", "3.0", "MWh") // unknown unit passes through

	engine := NewEngine(adapter, Groups{
		Imported: []string{"sensor.grid_import"},
		Produced: []string{"sensor.solar"},
		Exported: []string{"sensor.grid_export"},
	}, zerolog.Nop())
	tick := engine.Compute(context.Background())

	if !tick.Totals.ImportedKWh.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("imported total = %s, want 2.5", tick.Totals.ImportedKWh)
	}
	if !tick.Totals.ProducedKWh.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("produced total = %s, want 1.5", tick.Totals.ProducedKWh)
	}
	if !tick.Totals.ExportedKWh.Equal(decimal.RequireFromString("3.0")) {
		t.Fatalf("exported total = %s, want 3.0", tick.Totals.ExportedKWh)
	}
}

func TestMissingAndUnparsableReadingsContributeZero(t *testing.T) {
	adapter := reading.NewStatic()
	adapter.Set("sensor.ok", "5.0", "kWh")
	adapter.Set("sensor.bad", "unavailable", "kWh")

	engine := NewEngine(adapter, Groups{
		Imported: []string{"sensor.ok", "sensor.bad", "sensor.missing"},
	}, zerolog.Nop())
	tick := engine.Compute(context.Background())

	if !tick.Totals.ImportedKWh.Equal(decimal.RequireFromString("5.0")) {
		t.Fatalf("imported total = %s, want 5.0", tick.Totals.ImportedKWh)
	}
}

func TestGroupSumsMultipleSensors(t *testing.T) {
	adapter := reading.NewStatic()
	adapter.Set("sensor.phase_a", "1.1", "kWh")
	adapter.Set("sensor.phase_b", "2.2", "kWh")
	adapter.Set("sensor.phase_c", "3.3", "kWh")

	engine := NewEngine(adapter, Groups{
		Imported: []string{"sensor.phase_a", "sensor.phase_b", "sensor.phase_c"},
	}, zerolog.Nop())
	tick := engine.Compute(context.Background())

	if !tick.Totals.ImportedKWh.Equal(decimal.RequireFromString("6.6")) {
		t.Fatalf("imported total = %s, want 6.6", tick.Totals.ImportedKWh)
	}
}

func TestCO2IntensityReadAsPlainNumber(t *testing.T) {
	adapter := reading.NewStatic()
	adapter.Set("sensor.co2", "312.4", "gCO2eq/kWh")

	engine := NewEngine(adapter, testGroups(), zerolog.Nop())
	tick := engine.Compute(context.Background())

	if !tick.Totals.CO2IntensityGPerKWh.Equal(decimal.RequireFromString("312.4")) {
		t.Fatalf("co2 intensity = %s, want 312.4", tick.Totals.CO2IntensityGPerKWh)
	}
}
