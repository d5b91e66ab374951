package period

import (
	"testing"
	"time"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestStartsAreCalendarFloors(t *testing.T) {
	loc := mustLocation(t, "Europe/Amsterdam")
	// Wednesday 2025-06-18 14:38:21 local time.
	now := time.Date(2025, 6, 18, 14, 38, 21, 0, loc)

	cases := []struct {
		key  string
		want time.Time
	}{
		{Key15m, time.Date(2025, 6, 18, 14, 30, 0, 0, loc)},
		{KeyHour, time.Date(2025, 6, 18, 14, 0, 0, 0, loc)},
		{KeyDay, time.Date(2025, 6, 18, 0, 0, 0, 0, loc)},
		{KeyWeek, time.Date(2025, 6, 16, 0, 0, 0, 0, loc)}, // Monday
		{KeyMonth, time.Date(2025, 6, 1, 0, 0, 0, 0, loc)},
		{KeyYear, time.Date(2025, 1, 1, 0, 0, 0, 0, loc)},
	}
	for _, c := range cases {
		p, ok := ByKey(c.key)
		if !ok {
			t.Fatalf("unknown period %s", c.key)
		}
		got := p.Start(now.UTC(), loc)
		if !got.Equal(c.want) {
			t.Errorf("%s start = %s, want %s", c.key, got, c.want.UTC())
		}
	}
}

func TestWeekStartOnSundayIsPreviousMonday(t *testing.T) {
	loc := mustLocation(t, "Europe/Amsterdam")
	now := time.Date(2025, 6, 22, 23, 59, 0, 0, loc) // Sunday

	p, _ := ByKey(KeyWeek)
	got := p.Start(now.UTC(), loc)
	want := time.Date(2025, 6, 16, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("week start = %s, want %s", got, want.UTC())
	}
}

func TestOverallStartIsFixed(t *testing.T) {
	loc := mustLocation(t, "Europe/Amsterdam")
	p, _ := ByKey(KeyOverall)

	a := p.Start(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), loc)
	b := p.Start(time.Date(2030, 12, 31, 23, 0, 0, 0, time.UTC), loc)
	if !a.Equal(b) {
		t.Fatalf("overall start must never move: %s vs %s", a, b)
	}
}

func TestAllKeysResolve(t *testing.T) {
	for _, p := range All() {
		got, ok := ByKey(p.Key)
		if !ok || got.Key != p.Key {
			t.Fatalf("ByKey(%s) failed", p.Key)
		}
	}
	if _, ok := ByKey("pcentury"); ok {
		t.Fatal("unknown key must not resolve")
	}
}
