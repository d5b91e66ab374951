package history

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"energy-flow-monitor/internal/reading"
	"energy-flow-monitor/internal/rules"
	"energy-flow-monitor/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewFileStore(t.TempDir()), time.UTC, zerolog.Nop())
}

func day(t *testing.T, date string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		t.Fatalf("parse date %s: %v", date, err)
	}
	return d.Add(12 * time.Hour)
}

func addSnapshot(t *testing.T, s *Store, date string, netUse float64) {
	t.Helper()
	err := s.Add(context.Background(), Snapshot{
		Date:   date,
		Values: map[string]float64{MetricNetUse: netUse},
	}, day(t, date))
	if err != nil {
		t.Fatalf("add snapshot %s: %v", date, err)
	}
}

func TestAddReplacesSameDate(t *testing.T) {
	s := newTestStore(t)
	addSnapshot(t, s, "2025-06-18", 5.0)
	addSnapshot(t, s, "2025-06-18", 7.5)

	if s.SnapshotCount() != 1 {
		t.Fatalf("snapshot count = %d, want 1", s.SnapshotCount())
	}
	if got := s.TodayValue(MetricNetUse, day(t, "2025-06-18")); got != 7.5 {
		t.Fatalf("today value = %v, want 7.5", got)
	}
}

func TestAddRejectsInvalidDate(t *testing.T) {
	s := newTestStore(t)
	err := s.Add(context.Background(), Snapshot{Date: "18-06-2025"}, time.Now())
	if err == nil {
		t.Fatal("malformed date must be rejected")
	}
	if err := s.Add(context.Background(), Snapshot{}, time.Now()); err == nil {
		t.Fatal("empty date must be rejected")
	}
}

func TestRetentionPrunesOldSnapshots(t *testing.T) {
	s := newTestStore(t)

	addSnapshot(t, s, "2025-06-17", 1.0)
	addSnapshot(t, s, "2025-03-01", 2.0) // older than 90 days by the next add
	addSnapshot(t, s, "2025-06-18", 3.0)

	if s.SnapshotCount() != 2 {
		t.Fatalf("snapshot count = %d, want 2 after pruning", s.SnapshotCount())
	}
	for _, snap := range s.Snapshots() {
		if snap.Date == "2025-03-01" {
			t.Fatal("expired snapshot survived pruning")
		}
	}
}

func TestLoadRestoresAndPrunes(t *testing.T) {
	dir := t.TempDir()
	fs := storage.NewFileStore(dir)
	ctx := context.Background()

	s := NewStore(fs, time.UTC, zerolog.Nop())
	addSnapshot(t, s, "2025-06-17", 1.0)
	addSnapshot(t, s, "2025-01-01", 2.0)

	restored := NewStore(fs, time.UTC, zerolog.Nop())
	if err := restored.Load(ctx, day(t, "2025-06-18")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored.SnapshotCount() != 1 {
		t.Fatalf("restored count = %d, want 1 after prune-on-load", restored.SnapshotCount())
	}
	if got := restored.TodayValue(MetricNetUse, day(t, "2025-06-17")); got != 1.0 {
		t.Fatalf("restored value = %v, want 1.0", got)
	}
}

func TestStatisticsOverWindow(t *testing.T) {
	s := newTestStore(t)
	now := day(t, "2025-06-18")

	addSnapshot(t, s, "2025-06-16", 2.0)
	addSnapshot(t, s, "2025-06-17", 4.0)
	addSnapshot(t, s, "2025-06-18", 6.0)

	if got := s.Average(MetricNetUse, 7, now); got != 4.0 {
		t.Fatalf("average = %v, want 4.0", got)
	}
	if got := s.Min(MetricNetUse, 7, now); got != 2.0 {
		t.Fatalf("min = %v, want 2.0", got)
	}
	if got := s.Max(MetricNetUse, 7, now); got != 6.0 {
		t.Fatalf("max = %v, want 6.0", got)
	}
}

func TestStatisticsWithNoData(t *testing.T) {
	s := newTestStore(t)
	now := day(t, "2025-06-18")

	if got := s.Average(MetricNetUse, 7, now); got != 0.0 {
		t.Fatalf("empty average = %v, want 0.0", got)
	}
	if got := s.Max(MetricNetUse, 7, now); got != 0.0 {
		t.Fatalf("empty max = %v, want 0.0", got)
	}
	if got := s.Min(MetricNetUse, 7, now); got != rules.NoDataSentinel {
		t.Fatalf("empty min = %v, want the no-data sentinel", got)
	}
	if got := s.TodayValue(MetricNetUse, now); got != 0.0 {
		t.Fatalf("missing today value = %v, want 0.0", got)
	}
}

func TestHasDataGap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	sensors := map[string][]string{"imported": {"sensor.grid_import"}}

	adapter := reading.NewStatic()

	// Absent sensor.
	if !s.HasDataGap(ctx, adapter, sensors, now) {
		t.Fatal("absent sensor must be a data gap")
	}

	// Healthy reading.
	adapter.Set("sensor.grid_import", "100.0", "kWh")
	if s.HasDataGap(ctx, adapter, sensors, now) {
		t.Fatal("healthy sensor must not be a data gap")
	}

	// Unavailable for longer than an hour.
	unavailable := "unavailable"
	stale := now.Add(-2 * time.Hour)
	adapter.SetReading("sensor.grid_import", reading.Reading{Value: &unavailable, LastChanged: &stale})
	if !s.HasDataGap(ctx, adapter, sensors, now) {
		t.Fatal("long unavailability must be a data gap")
	}

	// Unavailable only briefly.
	recent := now.Add(-10 * time.Minute)
	adapter.SetReading("sensor.grid_import", reading.Reading{Value: &unavailable, LastChanged: &recent})
	if s.HasDataGap(ctx, adapter, sensors, now) {
		t.Fatal("brief unavailability must not be a data gap")
	}

	// Unavailable with no last-changed marker at all.
	adapter.SetReading("sensor.grid_import", reading.Reading{Value: &unavailable})
	if !s.HasDataGap(ctx, adapter, sensors, now) {
		t.Fatal("unavailability since startup must be a data gap")
	}
}

func TestNotificationData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	adapter := reading.NewStatic()
	adapter.Set("sensor.grid_import", "100.0", "kWh")
	sensors := map[string][]string{"imported": {"sensor.grid_import"}}

	dates := []string{"2025-06-11", "2025-06-12", "2025-06-13", "2025-06-14", "2025-06-15", "2025-06-16", "2025-06-17"}
	for _, d := range dates {
		addSnapshot(t, s, d, 4.0)
	}
	err := s.Add(ctx, Snapshot{
		Date: "2025-06-18",
		Values: map[string]float64{
			MetricNetUse:          10.0,
			MetricSelfSufficiency: 80.0,
		},
	}, day(t, "2025-06-18"))
	if err != nil {
		t.Fatalf("add today: %v", err)
	}

	// 18:00 local falls inside the award window.
	now := time.Date(2025, 6, 18, 18, 0, 0, 0, time.UTC)
	m := s.NotificationData(ctx, adapter, sensors, now, false)

	if m.HasDataGap {
		t.Fatal("no data gap expected")
	}
	if m.NetUseToday != 10.0 {
		t.Fatalf("NetUseToday = %v, want 10.0", m.NetUseToday)
	}
	if m.SSToday != 80.0 {
		t.Fatalf("SSToday = %v, want 80.0", m.SSToday)
	}
	if !m.SufficientHistory {
		t.Fatal("8 snapshots must count as sufficient history")
	}
	if !m.AwardTime {
		t.Fatal("18:00 must be inside the award window")
	}
	if m.EmissionsMin30d != rules.NoDataSentinel {
		t.Fatalf("EmissionsMin30d = %v, want sentinel", m.EmissionsMin30d)
	}

	morning := time.Date(2025, 6, 18, 9, 0, 0, 0, time.UTC)
	if s.NotificationData(ctx, adapter, sensors, morning, false).AwardTime {
		t.Fatal("09:00 must be outside the award window")
	}
}
