package derive

import (
	"github.com/shopspring/decimal"

	"energy-flow-monitor/internal/delta"
)

var (
	zero     = decimal.Zero
	one      = decimal.NewFromInt(1)
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

// Flows holds every derived per-interval metric. All values are zero when
// the source interval was invalid.
type Flows struct {
	Imported  decimal.Decimal
	Exported  decimal.Decimal
	Produced  decimal.Decimal
	Charge    decimal.Decimal
	Discharge decimal.Decimal

	SelfConsumed        decimal.Decimal
	SelfStored          decimal.Decimal
	ImportedBattery     decimal.Decimal
	ExportedBattery     decimal.Decimal
	SelfConsumedBattery decimal.Decimal
	ImportedResidual    decimal.Decimal
	ExportedResidual    decimal.Decimal

	NetBatteryFlow        decimal.Decimal // signed
	NetEnergyUse          decimal.Decimal
	NetEnergyImportedGrid decimal.Decimal // signed

	SelfSufficiencyPct decimal.Decimal

	EmissionsImported decimal.Decimal
	EmissionsAvoided  decimal.Decimal
	EmissionsNet      decimal.Decimal // signed
}

// Compute maps one validated interval to the full set of derived flows.
// Invalid intervals yield the zero value.
func Compute(d delta.EnergyDeltas, co2Intensity decimal.Decimal) Flows {
	if !d.Valid {
		return Flows{}
	}

	f := Flows{
		Imported:  d.Imported,
		Exported:  d.Exported,
		Produced:  d.Produced,
		Charge:    d.Charge,
		Discharge: d.Discharge,
	}

	surplus := clamp0(d.Produced.Sub(d.Exported))

	f.SelfConsumed = round6(clamp0(d.Produced.Sub(d.Exported).Sub(d.Charge)))
	f.SelfStored = round6(decimal.Min(d.Charge, surplus))
	f.ImportedBattery = round6(clamp0(d.Charge.Sub(surplus)))
	f.ExportedBattery = round6(decimal.Min(d.Discharge, d.Exported))
	f.SelfConsumedBattery = round6(clamp0(d.Discharge.Sub(d.Exported)))
	f.ImportedResidual = round6(clamp0(d.Imported.Sub(f.ImportedBattery)))
	f.ExportedResidual = round6(clamp0(d.Exported.Sub(d.Discharge)))

	f.NetBatteryFlow = round6(d.Discharge.Sub(d.Charge))
	f.NetEnergyUse = round6(d.Imported.Add(d.Produced).Sub(d.Exported))
	f.NetEnergyImportedGrid = round6(d.Imported.Sub(d.Exported))

	f.SelfSufficiencyPct = SelfSufficiencyFromParts(d.Imported, d.Produced, d.Exported)

	f.EmissionsImported = round6(d.Imported.Mul(co2Intensity).Div(thousand))
	f.EmissionsAvoided = round6(d.Exported.Mul(co2Intensity).Div(thousand))
	f.EmissionsNet = round6(d.Imported.Sub(d.Exported).Mul(co2Intensity).Div(thousand))

	return f
}

// SelfSufficiencyFromParts computes the self-sufficiency percentage from
// raw imported/produced/exported sums. The ratio is never summed across
// time; period values are recomputed from accumulated parts with this
// same formula.
func SelfSufficiencyFromParts(imported, produced, exported decimal.Decimal) decimal.Decimal {
	denom := imported.Add(produced.Sub(exported))
	if denom.LessThanOrEqual(zero) {
		return zero
	}
	ss := one.Sub(imported.Div(denom))
	if ss.IsNegative() {
		ss = zero
	}
	if ss.GreaterThan(one) {
		ss = one
	}
	return ss.Mul(hundred).Round(2)
}

func clamp0(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

func round6(d decimal.Decimal) decimal.Decimal {
	return d.Round(6)
}
