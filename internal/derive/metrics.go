package derive

import (
	"time"

	"github.com/shopspring/decimal"

	"energy-flow-monitor/internal/period"
)

// Kind identifies one derived metric.
type Kind string

const (
	KindImported            Kind = "imported_energy"
	KindExported            Kind = "exported_energy"
	KindProduced            Kind = "produced_energy"
	KindBatteryCharge       Kind = "battery_charge_energy"
	KindBatteryDischarge    Kind = "battery_discharge_energy"
	KindNetBatteryFlow      Kind = "net_battery_flow"
	KindSelfConsumed        Kind = "self_consumed_energy"
	KindSelfStored          Kind = "self_stored_energy"
	KindImportedBattery     Kind = "imported_battery_energy"
	KindExportedBattery     Kind = "exported_battery_energy"
	KindSelfConsumedBattery Kind = "self_consumed_battery_energy"
	KindImportedResidual    Kind = "imported_residual_energy"
	KindExportedResidual    Kind = "exported_residual_energy"
	KindNetEnergyUse        Kind = "net_energy_use"
	KindNetImportedGrid     Kind = "net_energy_imported_grid"
	KindSelfSufficiency     Kind = "self_sufficiency"
	KindNightUse            Kind = "night_use"
	KindEmissionsImported   Kind = "emissions_imported"
	KindEmissionsAvoided    Kind = "emissions_avoided"
	KindEmissionsNet        Kind = "emissions_net"
)

// Spec describes how one metric participates in period accounting.
// Value is a pure accessor over Flows; no spec captures mutable state.
type Spec struct {
	Key  Kind
	Name string
	Unit string

	// AllowNegative permits signed contributions to period sums.
	AllowNegative bool
	// IncludePeriods enables calendar period counters at all.
	IncludePeriods bool
	// IncludeOverall enables the never-resetting lifetime counter.
	IncludeOverall bool
	// PeriodKeys restricts the metric to a subset of periods when set.
	PeriodKeys []string
	// TimeGate, when set, zeroes the contribution outside the gate.
	TimeGate func(local time.Time) bool

	Value func(Flows) decimal.Decimal
}

func nightHours(local time.Time) bool {
	return local.Hour() < 7
}

// Specs returns the fixed metric descriptor table, in evaluation order.
func Specs() []Spec {
	return []Spec{
		{Key: KindImported, Name: "Imported Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.Imported }},
		{Key: KindExported, Name: "Exported Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.Exported }},
		{Key: KindProduced, Name: "Produced Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.Produced }},
		{Key: KindBatteryCharge, Name: "Battery Charge Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.Charge }},
		{Key: KindBatteryDischarge, Name: "Battery Discharge Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.Discharge }},
		// Cumulative net battery flow is only meaningful at short horizons.
		{Key: KindNetBatteryFlow, Name: "Net Battery Flow", Unit: "kWh", AllowNegative: true, IncludePeriods: true,
			PeriodKeys: []string{period.Key15m, period.KeyHour, period.KeyDay},
			Value:      func(f Flows) decimal.Decimal { return f.NetBatteryFlow }},
		{Key: KindSelfConsumed, Name: "Self Consumed Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.SelfConsumed }},
		{Key: KindSelfStored, Name: "Self Stored Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.SelfStored }},
		{Key: KindImportedBattery, Name: "Imported Battery Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.ImportedBattery }},
		{Key: KindExportedBattery, Name: "Exported Battery Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.ExportedBattery }},
		{Key: KindSelfConsumedBattery, Name: "Self Consumed Battery Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.SelfConsumedBattery }},
		{Key: KindImportedResidual, Name: "Imported Residual Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.ImportedResidual }},
		{Key: KindExportedResidual, Name: "Exported Residual Energy", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.ExportedResidual }},
		{Key: KindNetEnergyUse, Name: "Net Energy Use", Unit: "kWh", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.NetEnergyUse }},
		{Key: KindNetImportedGrid, Name: "Net Energy Imported (Grid)", Unit: "kWh", AllowNegative: true, IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.NetEnergyImportedGrid }},
		// Percent values must never be summed; the accumulator keeps a
		// dedicated parts record and recomputes the ratio on read.
		{Key: KindSelfSufficiency, Name: "Self Sufficiency", Unit: "%",
			Value: func(f Flows) decimal.Decimal { return f.SelfSufficiencyPct }},
		{Key: KindNightUse, Name: "Night Energy Use", Unit: "kWh", IncludePeriods: true,
			PeriodKeys: []string{period.KeyDay},
			TimeGate:   nightHours,
			Value:      func(f Flows) decimal.Decimal { return f.NetEnergyUse }},
		{Key: KindEmissionsImported, Name: "Emissions Imported", Unit: "kg CO2-eq", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.EmissionsImported }},
		{Key: KindEmissionsAvoided, Name: "Emissions Avoided", Unit: "kg CO2-eq", IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.EmissionsAvoided }},
		{Key: KindEmissionsNet, Name: "Emissions Net", Unit: "kg CO2-eq", AllowNegative: true, IncludePeriods: true, IncludeOverall: true,
			Value: func(f Flows) decimal.Decimal { return f.EmissionsNet }},
	}
}

// SpecFor looks up one descriptor by kind.
func SpecFor(key Kind) (Spec, bool) {
	for _, s := range Specs() {
		if s.Key == key {
			return s, true
		}
	}
	return Spec{}, false
}
