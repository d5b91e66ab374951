package delta

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"energy-flow-monitor/internal/reading"
)

// Validity reason codes exposed to downstream consumers.
const (
	ReasonInitial       = "initial"
	ReasonNegativeDelta = "negative_delta"
)

// EnergyTotals is a snapshot of cumulative readings at one tick.
type EnergyTotals struct {
	ImportedKWh         decimal.Decimal
	ExportedKWh         decimal.Decimal
	ProducedKWh         decimal.Decimal
	BatteryChargeKWh    decimal.Decimal
	BatteryDischargeKWh decimal.Decimal
	CO2IntensityGPerKWh decimal.Decimal
}

// EnergyDeltas is the validated per-interval result. When Valid is false
// every delta is zero and Reason carries the rejection code.
type EnergyDeltas struct {
	Imported  decimal.Decimal
	Exported  decimal.Decimal
	Produced  decimal.Decimal
	Charge    decimal.Decimal
	Discharge decimal.Decimal
	Valid     bool
	Reason    string
}

// Groups maps each logical meter group to its member sensor IDs.
type Groups struct {
	Imported  []string
	Exported  []string
	Produced  []string
	Charge    []string
	Discharge []string
	CO2       string
}

// Tick is the delta engine output for one interval.
type Tick struct {
	Totals EnergyTotals
	Deltas EnergyDeltas
	Seq    uint64
}

// Engine converts cumulative meter readings into validated per-interval
// deltas. It owns the previous totals and the tick sequence counter.
type Engine struct {
	adapter reading.Adapter
	groups  Groups
	logger  zerolog.Logger

	prev *EnergyTotals
	seq  uint64
}

// NewEngine constructs a delta engine.
func NewEngine(adapter reading.Adapter, groups Groups, logger zerolog.Logger) *Engine {
	return &Engine{
		adapter: adapter,
		groups:  groups,
		logger:  logger.With().Str("component", "delta").Logger(),
	}
}

// Seq returns the sequence number of the last completed tick.
func (e *Engine) Seq() uint64 {
	return e.seq
}

// Compute runs one tick: sums the configured groups, validates the
// difference against the previous totals, and advances the sequence.
func (e *Engine) Compute(ctx context.Context) Tick {
	totals := EnergyTotals{
		ImportedKWh:         e.sumKWh(ctx, e.groups.Imported),
		ExportedKWh:         e.sumKWh(ctx, e.groups.Exported),
		ProducedKWh:         e.sumKWh(ctx, e.groups.Produced),
		BatteryChargeKWh:    e.sumKWh(ctx, e.groups.Charge),
		BatteryDischargeKWh: e.sumKWh(ctx, e.groups.Discharge),
	}
	if e.groups.CO2 != "" {
		totals.CO2IntensityGPerKWh = e.readNumber(ctx, e.groups.CO2)
	}

	deltas := EnergyDeltas{Valid: true}
	if e.prev == nil {
		// No baseline yet; a delta against assumed zero would be a spike.
		deltas.Valid = false
		deltas.Reason = ReasonInitial
	} else {
		dImported := totals.ImportedKWh.Sub(e.prev.ImportedKWh).Round(6)
		dExported := totals.ExportedKWh.Sub(e.prev.ExportedKWh).Round(6)
		dProduced := totals.ProducedKWh.Sub(e.prev.ProducedKWh).Round(6)
		dCharge := totals.BatteryChargeKWh.Sub(e.prev.BatteryChargeKWh).Round(6)
		dDischarge := totals.BatteryDischargeKWh.Sub(e.prev.BatteryDischargeKWh).Round(6)

		if dImported.IsNegative() || dExported.IsNegative() || dProduced.IsNegative() ||
			dCharge.IsNegative() || dDischarge.IsNegative() {
			// Meter reset or glitch invalidates the whole interval.
			e.logger.Warn().
				Str("d_imported", dImported.String()).
				Str("d_exported", dExported.String()).
				Str("d_produced", dProduced.String()).
				Str("d_charge", dCharge.String()).
				Str("d_discharge", dDischarge.String()).
				Msg("negative delta, interval discarded")
			deltas.Valid = false
			deltas.Reason = ReasonNegativeDelta
		} else {
			deltas.Imported = clamp0(dImported)
			deltas.Exported = clamp0(dExported)
			deltas.Produced = clamp0(dProduced)
			deltas.Charge = clamp0(dCharge)
			deltas.Discharge = clamp0(dDischarge)
		}
	}

	e.prev = &totals
	e.seq++

	return Tick{Totals: totals, Deltas: deltas, Seq: e.seq}
}

// sumKWh normalizes each member reading to kWh and sums the group,
// rounded to 6 decimals. Missing or non-numeric readings contribute 0.
func (e *Engine) sumKWh(ctx context.Context, sensorIDs []string) decimal.Decimal {
	sum := decimal.Zero
	for _, id := range sensorIDs {
		sum = sum.Add(e.readKWh(ctx, id))
	}
	return sum.Round(6)
}

func (e *Engine) readKWh(ctx context.Context, sensorID string) decimal.Decimal {
	r, ok := e.adapter.Get(ctx, sensorID)
	if !ok || r.Value == nil {
		return decimal.Zero
	}
	val, err := decimal.NewFromString(strings.TrimSpace(*r.Value))
	if err != nil {
		return decimal.Zero
	}

	unit := ""
	if r.Unit != nil {
		unit = strings.ToLower(strings.TrimSpace(*r.Unit))
	}
	if unit == "wh" {
		return val.Div(decimal.NewFromInt(1000))
	}
	// Unrecognized or missing unit is assumed to already be kWh.
	return val
}

func (e *Engine) readNumber(ctx context.Context, sensorID string) decimal.Decimal {
	r, ok := e.adapter.Get(ctx, sensorID)
	if !ok || r.Value == nil {
		return decimal.Zero
	}
	val, err := decimal.NewFromString(strings.TrimSpace(*r.Value))
	if err != nil {
		return decimal.Zero
	}
	return val
}

func clamp0(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
