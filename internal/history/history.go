// Package history keeps one metrics snapshot per calendar date with
// 90-day retention, and assembles the rolling statistics the rule
// engine evaluates.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"energy-flow-monitor/internal/reading"
	"energy-flow-monitor/internal/rules"
	"energy-flow-monitor/internal/storage"
)

// DocumentKey is the store key the snapshot document lives under.
const DocumentKey = "notification_metrics"

// Snapshot metric keys.
const (
	MetricNetUse          = "net_use"
	MetricProduction      = "production"
	MetricExport          = "export"
	MetricNightUse        = "night_use"
	MetricEmissions       = "emissions"
	MetricSelfSufficiency = "self_sufficiency"
)

const (
	// DefaultRetentionDays prunes snapshots older than 90 days.
	DefaultRetentionDays = 90
	// dataGapThreshold marks a sensor unavailable for longer than this
	// as a data gap.
	dataGapThreshold = time.Hour
	// sufficientHistoryDays is the minimum snapshot count for awards.
	sufficientHistoryDays = 7
)

const dateLayout = "2006-01-02"

// Snapshot is one calendar date's metric values.
type Snapshot struct {
	Date   string
	Values map[string]float64
}

// The persisted form is flat: {"date": "...", "net_use": 1.2, ...}.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(s.Values)+1)
	for k, v := range s.Values {
		flat[k] = v
	}
	flat["date"] = s.Date
	return json.Marshal(flat)
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	s.Values = make(map[string]float64)
	for k, v := range flat {
		if k == "date" {
			if d, ok := v.(string); ok {
				s.Date = d
			}
			continue
		}
		if f, ok := v.(float64); ok {
			s.Values[k] = f
		}
	}
	return nil
}

type document struct {
	DailySnapshots []Snapshot `json:"daily_snapshots"`
	LastUpdated    *string    `json:"last_updated"`
}

// Store is the historical metrics store.
type Store struct {
	store  storage.DocumentStore
	loc    *time.Location
	logger zerolog.Logger

	retentionDays int
	snapshots     []Snapshot // sorted by date descending
}

// NewStore constructs a history store.
func NewStore(store storage.DocumentStore, loc *time.Location, logger zerolog.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		store:         store,
		loc:           loc,
		logger:        logger.With().Str("component", "history").Logger(),
		retentionDays: DefaultRetentionDays,
	}
}

// Load restores persisted snapshots and prunes expired ones.
func (s *Store) Load(ctx context.Context, now time.Time) error {
	if s.store == nil {
		return nil
	}

	data, err := s.store.Load(ctx, DocumentKey)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error().Err(err).Msg("discarding unreadable history document")
		s.snapshots = nil
		return nil
	}
	s.snapshots = doc.DailySnapshots
	s.sortSnapshots()

	if removed := s.prune(now); removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("pruned expired snapshots")
		s.persist(ctx, now)
	}
	return nil
}

// Add inserts or replaces the snapshot for its date, keeps snapshots
// sorted descending, prunes expired ones, and persists. A persistence
// failure is logged; the in-memory state stays authoritative.
func (s *Store) Add(ctx context.Context, snap Snapshot, now time.Time) error {
	if snap.Date == "" {
		return fmt.Errorf("history: snapshot requires a date")
	}
	if _, err := time.ParseInLocation(dateLayout, snap.Date, s.loc); err != nil {
		return fmt.Errorf("history: invalid snapshot date %q: %w", snap.Date, err)
	}

	kept := s.snapshots[:0]
	for _, existing := range s.snapshots {
		if existing.Date != snap.Date {
			kept = append(kept, existing)
		}
	}
	s.snapshots = append(kept, snap)
	s.sortSnapshots()
	s.prune(now)
	s.persist(ctx, now)
	return nil
}

// Average returns the mean of key over snapshots dated within the last
// days, or 0.0 when none qualify.
func (s *Store) Average(key string, days int, now time.Time) float64 {
	values := s.valuesSince(key, days, now)
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Min returns the minimum of key over the window, or the no-data
// sentinel when none qualify. Callers must treat the sentinel as
// "insufficient data", never as a genuine minimum.
func (s *Store) Min(key string, days int, now time.Time) float64 {
	values := s.valuesSince(key, days, now)
	if len(values) == 0 {
		return rules.NoDataSentinel
	}
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the maximum of key over the window, or 0.0.
func (s *Store) Max(key string, days int, now time.Time) float64 {
	values := s.valuesSince(key, days, now)
	if len(values) == 0 {
		return 0.0
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// TodayValue returns today's value for key, or 0.0 when absent.
func (s *Store) TodayValue(key string, now time.Time) float64 {
	today := now.In(s.loc).Format(dateLayout)
	for _, snap := range s.snapshots {
		if snap.Date == today {
			if v, ok := snap.Values[key]; ok {
				return v
			}
			return 0.0
		}
	}
	return 0.0
}

// SnapshotCount reports how many daily snapshots are held.
func (s *Store) SnapshotCount() int {
	return len(s.snapshots)
}

// Snapshots returns a copy of the held snapshots, newest first.
func (s *Store) Snapshots() []Snapshot {
	out := make([]Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// HasDataGap reports whether any configured sensor has no state, or has
// been unavailable/unknown for longer than an hour (or since startup
// when no state change was ever recorded).
func (s *Store) HasDataGap(ctx context.Context, adapter reading.Adapter, inputSensors map[string][]string, now time.Time) bool {
	for group, sensors := range inputSensors {
		for _, id := range sensors {
			r, ok := adapter.Get(ctx, id)
			if !ok {
				s.logger.Warn().Str("group", group).Str("sensor", id).Msg("data gap: sensor not found")
				return true
			}
			if r.Value == nil || *r.Value == "unavailable" || *r.Value == "unknown" {
				if r.LastChanged == nil {
					s.logger.Warn().Str("group", group).Str("sensor", id).Msg("data gap: unavailable since startup")
					return true
				}
				if now.Sub(*r.LastChanged) > dataGapThreshold {
					s.logger.Warn().Str("group", group).Str("sensor", id).Dur("for", now.Sub(*r.LastChanged)).Msg("data gap: sensor unavailable")
					return true
				}
			}
		}
	}
	return false
}

// NotificationData assembles the typed metrics record the rule engine
// consumes: today's values, rolling averages, 30-day extremes, and the
// gating flags.
func (s *Store) NotificationData(ctx context.Context, adapter reading.Adapter, inputSensors map[string][]string, now time.Time, weeklyTrigger bool) rules.Metrics {
	localHour := now.In(s.loc).Hour()

	return rules.Metrics{
		HasDataGap: s.HasDataGap(ctx, adapter, inputSensors, now),

		SSToday:         s.TodayValue(MetricSelfSufficiency, now),
		NetUseToday:     s.TodayValue(MetricNetUse, now),
		ProductionToday: s.TodayValue(MetricProduction, now),
		NightUseToday:   s.TodayValue(MetricNightUse, now),
		EmissionsToday:  s.TodayValue(MetricEmissions, now),

		NetUse7dAvg:     s.Average(MetricNetUse, 7, now),
		NightUse7dAvg:   s.Average(MetricNightUse, 7, now),
		Export7dAvg:     s.Average(MetricExport, 7, now),
		Production7dAvg: s.Average(MetricProduction, 7, now),

		NetUse30dAvg: s.Average(MetricNetUse, 30, now),
		NetUse90dAvg: s.Average(MetricNetUse, 90, now),

		SSMax30d:        s.Max(MetricSelfSufficiency, 30, now),
		EmissionsMin30d: s.Min(MetricEmissions, 30, now),
		NetUseMin30d:    s.Min(MetricNetUse, 30, now),

		SufficientHistory: len(s.snapshots) >= sufficientHistoryDays,
		AwardTime:         localHour >= 17 && localHour < 19,
		WeeklyTrigger:     weeklyTrigger,
	}
}

func (s *Store) valuesSince(key string, days int, now time.Time) []float64 {
	cutoff := now.In(s.loc).AddDate(0, 0, -days).Format(dateLayout)
	var values []float64
	for _, snap := range s.snapshots {
		if snap.Date < cutoff {
			continue
		}
		if v, ok := snap.Values[key]; ok {
			values = append(values, v)
		}
	}
	return values
}

func (s *Store) sortSnapshots() {
	sort.Slice(s.snapshots, func(i, j int) bool {
		return s.snapshots[i].Date > s.snapshots[j].Date
	})
}

func (s *Store) prune(now time.Time) int {
	cutoff := now.In(s.loc).AddDate(0, 0, -s.retentionDays).Format(dateLayout)
	kept := s.snapshots[:0]
	for _, snap := range s.snapshots {
		if snap.Date >= cutoff {
			kept = append(kept, snap)
		}
	}
	removed := len(s.snapshots) - len(kept)
	s.snapshots = kept
	return removed
}

func (s *Store) persist(ctx context.Context, now time.Time) {
	if s.store == nil {
		return
	}
	ts := now.UTC().Format(time.RFC3339)
	doc := document{DailySnapshots: s.snapshots, LastUpdated: &ts}
	data, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal history document failed")
		return
	}
	if err := s.store.Save(ctx, DocumentKey, data); err != nil {
		s.logger.Error().Err(err).Msg("persist history document failed")
	}
}
