// Package accumulator maintains persistent calendar-period running sums
// for every derived metric. Records survive restarts through the keyed
// document store; the current in-memory value is always authoritative and
// never waits on a persistence write.
package accumulator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"energy-flow-monitor/internal/derive"
	"energy-flow-monitor/internal/period"
	"energy-flow-monitor/internal/storage"
)

// DocumentKey is the store key the accumulator document lives under.
const DocumentKey = "accumulators"

// partsBaseKey stores the self-sufficiency numerator/denominator parts.
// The ratio itself is never summed.
const partsBaseKey = "self_sufficiency_ratio_parts"

func init() {
	// Persisted sums are plain JSON numbers, matching the document schema.
	decimal.MarshalJSONWithoutQuotes = true
}

// Record is one (metric, period) running sum.
type Record struct {
	Start   time.Time
	Sum     decimal.Decimal
	LastSeq uint64
}

type partsRecord struct {
	Start    time.Time
	Imported decimal.Decimal
	Produced decimal.Decimal
	Exported decimal.Decimal
	LastSeq  uint64
}

// TickState is the shared per-tick input every counter folds from.
type TickState struct {
	Seq   uint64
	Valid bool
	Flows derive.Flows
}

// Accumulator owns all period records and serializes persistence through
// a single writer.
type Accumulator struct {
	store  storage.DocumentStore
	specs  []derive.Spec
	loc    *time.Location
	logger zerolog.Logger

	mu      sync.Mutex
	records map[derive.Kind]map[string]*Record
	parts   map[string]*partsRecord

	saveCh chan []byte
	doneCh chan struct{}
}

// New constructs an accumulator over the given metric table.
func New(store storage.DocumentStore, specs []derive.Spec, loc *time.Location, logger zerolog.Logger) *Accumulator {
	if loc == nil {
		loc = time.Local
	}
	return &Accumulator{
		store:   store,
		specs:   specs,
		loc:     loc,
		logger:  logger.With().Str("component", "accumulator").Logger(),
		records: make(map[derive.Kind]map[string]*Record),
		parts:   make(map[string]*partsRecord),
		saveCh:  make(chan []byte, 1),
		doneCh:  make(chan struct{}),
	}
}

// Load restores persisted records. A missing document starts fresh; a
// corrupt one is logged and discarded rather than blocking startup.
func (a *Accumulator) Load(ctx context.Context) error {
	if a.store == nil {
		return nil
	}

	doc, err := a.store.Load(ctx, DocumentKey)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.unmarshalLocked(doc); err != nil {
		a.logger.Error().Err(err).Msg("discarding unreadable accumulator document")
		a.records = make(map[derive.Kind]map[string]*Record)
		a.parts = make(map[string]*partsRecord)
	}
	return nil
}

// Start launches the single-writer persistence loop. Writers never block
// on it; a pending snapshot is replaced by a newer one.
func (a *Accumulator) Start(ctx context.Context) {
	go func() {
		defer close(a.doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case doc := <-a.saveCh:
				if err := a.store.Save(ctx, DocumentKey, doc); err != nil {
					a.logger.Error().Err(err).Msg("persist accumulators failed")
				}
			}
		}
	}()
}

// Flush writes the current state synchronously. Used at shutdown and in
// contexts without the background writer.
func (a *Accumulator) Flush(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	a.mu.Lock()
	doc, err := a.marshalLocked()
	a.mu.Unlock()
	if err != nil {
		return err
	}
	return a.store.Save(ctx, DocumentKey, doc)
}

// Apply folds one tick into every participating (metric, period) record.
// An invalid tick contributes nothing but still advances LastSeq so the
// sequence is never reprocessed.
func (a *Accumulator) Apply(tick TickState, now time.Time) {
	local := now.In(a.loc)

	a.mu.Lock()
	for _, spec := range a.specs {
		if !spec.IncludePeriods && !spec.IncludeOverall {
			continue
		}
		for _, p := range period.All() {
			if !a.participates(spec, p) {
				continue
			}
			rec := a.recordLocked(spec.Key, p.Key)
			a.resetIfNeededLocked(rec, p, now)
			if tick.Seq == rec.LastSeq {
				continue
			}
			if tick.Valid {
				v := spec.Value(tick.Flows)
				if spec.TimeGate != nil && !spec.TimeGate(local) {
					v = decimal.Zero
				}
				if !spec.AllowNegative && v.IsNegative() {
					v = decimal.Zero
				}
				rec.Sum = rec.Sum.Add(v).Round(6)
			}
			rec.LastSeq = tick.Seq
		}
	}

	for _, p := range period.All() {
		rec := a.partsLocked(p.Key)
		a.resetPartsIfNeededLocked(rec, p, now)
		if tick.Seq == rec.LastSeq {
			continue
		}
		if tick.Valid {
			f := tick.Flows
			rec.Imported = rec.Imported.Add(clamp0(f.Imported)).Round(6)
			rec.Produced = rec.Produced.Add(clamp0(f.Produced)).Round(6)
			rec.Exported = rec.Exported.Add(clamp0(f.Exported)).Round(6)
		}
		rec.LastSeq = tick.Seq
	}

	doc, err := a.marshalLocked()
	a.mu.Unlock()

	if err != nil {
		a.logger.Error().Err(err).Msg("marshal accumulators failed")
		return
	}
	a.requestSave(doc)
}

// Value returns the running sum for one (metric, period). Crossing a
// period boundary resets the record even when no tick has occurred.
func (a *Accumulator) Value(key derive.Kind, periodKey string, now time.Time) decimal.Decimal {
	p, ok := period.ByKey(periodKey)
	if !ok {
		return decimal.Zero
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	rec := a.recordLocked(key, periodKey)
	a.resetIfNeededLocked(rec, p, now)
	return rec.Sum
}

// SelfSufficiency recomputes the period ratio from accumulated parts.
func (a *Accumulator) SelfSufficiency(periodKey string, now time.Time) decimal.Decimal {
	p, ok := period.ByKey(periodKey)
	if !ok {
		return decimal.Zero
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	rec := a.partsLocked(periodKey)
	a.resetPartsIfNeededLocked(rec, p, now)
	return derive.SelfSufficiencyFromParts(rec.Imported, rec.Produced, rec.Exported)
}

// PeriodStart reports the stored start of one (metric, period) record.
func (a *Accumulator) PeriodStart(key derive.Kind, periodKey string) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordLocked(key, periodKey).Start
}

func (a *Accumulator) participates(spec derive.Spec, p period.Spec) bool {
	if p.Key == period.KeyOverall {
		if !spec.IncludeOverall {
			return false
		}
	} else if !spec.IncludePeriods {
		return false
	}
	if spec.PeriodKeys != nil {
		for _, k := range spec.PeriodKeys {
			if k == p.Key {
				return true
			}
		}
		return false
	}
	return true
}

func (a *Accumulator) recordLocked(key derive.Kind, periodKey string) *Record {
	byPeriod, ok := a.records[key]
	if !ok {
		byPeriod = make(map[string]*Record)
		a.records[key] = byPeriod
	}
	rec, ok := byPeriod[periodKey]
	if !ok {
		rec = &Record{}
		byPeriod[periodKey] = rec
	}
	return rec
}

func (a *Accumulator) partsLocked(periodKey string) *partsRecord {
	rec, ok := a.parts[periodKey]
	if !ok {
		rec = &partsRecord{}
		a.parts[periodKey] = rec
	}
	return rec
}

func (a *Accumulator) resetIfNeededLocked(rec *Record, p period.Spec, now time.Time) {
	start := p.Start(now, a.loc)
	if !rec.Start.Equal(start) {
		rec.Start = start
		rec.Sum = decimal.Zero
		rec.LastSeq = 0
	}
}

func (a *Accumulator) resetPartsIfNeededLocked(rec *partsRecord, p period.Spec, now time.Time) {
	start := p.Start(now, a.loc)
	if !rec.Start.Equal(start) {
		rec.Start = start
		rec.Imported = decimal.Zero
		rec.Produced = decimal.Zero
		rec.Exported = decimal.Zero
		rec.LastSeq = 0
	}
}

func (a *Accumulator) requestSave(doc []byte) {
	if a.store == nil {
		return
	}
	for {
		select {
		case a.saveCh <- doc:
			return
		default:
			// replace the stale pending snapshot
			select {
			case <-a.saveCh:
			default:
			}
		}
	}
}

func clamp0(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
