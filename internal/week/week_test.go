package week

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"weekcal/internal/model"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

func labels(slots []model.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Time)
	}
	return out
}

func TestWeekWorkedExample(t *testing.T) {
	g := New(time.UTC, 8, 23, 30*time.Minute)
	ref := time.Date(2023, 12, 14, 0, 0, 0, 0, time.UTC)
	now := time.Date(2023, 12, 14, 10, 5, 0, 0, time.UTC)

	days := g.Week(ref, time.UTC, now)
	if len(days) != 7 {
		t.Fatalf("len(days) = %d, want 7", len(days))
	}

	wantNames := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	for i, d := range days {
		if d.DayName != wantNames[i] {
			t.Errorf("day %d name = %s, want %s", i, d.DayName, wantNames[i])
		}
		wantDate := time.Date(2023, 12, 11+i, 0, 0, 0, 0, time.UTC)
		if !d.Date.Equal(wantDate) {
			t.Errorf("day %d date = %s, want %s", i, d.Date, wantDate)
		}
	}

	for i := 0; i < 3; i++ {
		if !days[i].IsPassed() || days[i].IsTodayOrFuture {
			t.Errorf("day %d should be passed, got %+v", i, days[i].Intervals)
		}
	}

	thu := days[3]
	if !thu.IsTodayOrFuture || thu.IsPassed() {
		t.Fatalf("thursday should be live")
	}
	if got := thu.Intervals[0].Time; got != "10:30" {
		t.Errorf("thursday first slot = %s, want 10:30", got)
	}
	if got := thu.Intervals[len(thu.Intervals)-1].Time; got != "22:30" {
		t.Errorf("thursday last slot = %s, want 22:30", got)
	}
	if len(thu.Intervals) != 25 {
		t.Errorf("thursday slots = %d, want 25", len(thu.Intervals))
	}
	joined := strings.Join(labels(thu.Intervals), ",")
	if strings.Contains(joined, "09:00") {
		t.Errorf("past 09:00 slot leaked: %s", joined)
	}
	if !strings.Contains(joined, "11:30") {
		t.Errorf("11:30 slot missing: %s", joined)
	}

	for i := 4; i < 7; i++ {
		if n := len(days[i].Intervals); n != 30 {
			t.Errorf("day %d slots = %d, want 30", i, n)
		}
	}
}

func TestWeekSpansMondayToSunday(t *testing.T) {
	g := &Generator{Local: time.UTC}
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	refs := []time.Time{
		time.Date(2024, 2, 29, 13, 0, 0, 0, time.UTC), // Thursday, leap day
		time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), // Monday, ISO week 1 of 2025
		time.Date(2025, 1, 5, 23, 59, 0, 0, time.UTC), // Sunday
	}
	for _, ref := range refs {
		days := g.Week(ref, time.UTC, now)
		if len(days) != 7 {
			t.Fatalf("ref %s: %d days", ref, len(days))
		}
		if days[0].Date.Weekday() != time.Monday || days[6].Date.Weekday() != time.Sunday {
			t.Errorf("ref %s: spans %s..%s", ref, days[0].Date.Weekday(), days[6].Date.Weekday())
		}
		ry, rw := ref.ISOWeek()
		for _, d := range days {
			y, w := d.Date.ISOWeek()
			if y != ry || w != rw {
				t.Errorf("ref %s: day %s is in week %d-%d", ref, d.Date, y, w)
			}
		}
		for i := 1; i < len(days); i++ {
			if !days[i].Date.After(days[i-1].Date) {
				t.Errorf("ref %s: days out of order at %d", ref, i)
			}
		}
	}
}

func TestSlotsInvariants(t *testing.T) {
	g := &Generator{Local: time.UTC}
	day := time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)
	start := at(day, 8)
	end := at(day, 23)

	for _, now := range []time.Time{
		time.Date(2030, 6, 2, 12, 0, 0, 0, time.UTC),
		time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC),
		time.Date(2030, 6, 3, 8, 0, 0, 1, time.UTC),
		time.Date(2030, 6, 3, 17, 45, 0, 0, time.UTC),
		time.Date(2030, 6, 3, 23, 0, 0, 0, time.UTC),
	} {
		slots := g.Slots(start, end, time.UTC, now)
		var prev time.Time
		for i, s := range slots {
			if s.IsPast {
				t.Errorf("now=%s: slot %s marked past", now, s.Time)
			}
			ts, err := time.ParseInLocation(model.TimeLayout, s.Time, time.UTC)
			if err != nil {
				t.Fatalf("bad label %q: %v", s.Time, err)
			}
			abs := at(day, 0).Add(time.Duration(ts.Hour())*time.Hour + time.Duration(ts.Minute())*time.Minute)
			if abs.Before(now) {
				t.Errorf("now=%s: slot %s is before now", now, s.Time)
			}
			if abs.Before(start) || !abs.Before(end) {
				t.Errorf("now=%s: slot %s outside working hours", now, s.Time)
			}
			if i > 0 && abs.Sub(prev) != 30*time.Minute {
				t.Errorf("now=%s: gap before %s is %s", now, s.Time, abs.Sub(prev))
			}
			prev = abs
		}
	}

	if n := len(g.Slots(start, end, time.UTC, at(day, 8))); n != 30 {
		t.Errorf("slot at exactly now must survive, got %d slots", n)
	}
	if n := len(g.Slots(start, end, time.UTC, at(day, 23))); n != 0 {
		t.Errorf("after working hours got %d slots", n)
	}
}

func TestSlotsLabelInDisplayZone(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	g := &Generator{Local: time.UTC}
	day := time.Date(2023, 12, 18, 0, 0, 0, 0, time.UTC)
	now := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)

	slots := g.Slots(at(day, 8), at(day, 23), ny, now)
	if len(slots) != 30 {
		t.Fatalf("got %d slots", len(slots))
	}
	// 08:00 UTC is 03:00 EST.
	if slots[0].Time != "03:00" || slots[29].Time != "17:30" {
		t.Errorf("labels = %s..%s, want 03:00..17:30", slots[0].Time, slots[29].Time)
	}
}

func TestWeekDayBoundariesIgnoreDisplayZone(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	g := &Generator{Local: time.UTC}
	ref := time.Date(2023, 12, 14, 0, 0, 0, 0, time.UTC)
	// 02:00 UTC on Thursday is still Wednesday evening in New York.
	now := time.Date(2023, 12, 14, 2, 0, 0, 0, time.UTC)

	days := g.Week(ref, ny, now)
	if days[2].IsTodayOrFuture {
		t.Error("wednesday should be passed in the local zone")
	}
	if !days[3].IsTodayOrFuture || len(days[3].Intervals) != 30 {
		t.Errorf("thursday should be live with all slots, got %d", len(days[3].Intervals))
	}
}

func TestWeekFuture(t *testing.T) {
	g := New(time.UTC, 0, 0, 0)
	ref := time.Date(2031, 3, 5, 0, 0, 0, 0, time.UTC)
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, d := range g.Week(ref, time.UTC, now) {
		if !d.IsTodayOrFuture || len(d.Intervals) != 30 {
			t.Errorf("%s: future=%v slots=%d", d.Date, d.IsTodayOrFuture, len(d.Intervals))
		}
		if d.Intervals[0].Time != "08:00" {
			t.Errorf("%s: first slot %s", d.Date, d.Intervals[0].Time)
		}
	}
}

func TestShiftIsReversible(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	refs := []time.Time{
		time.Date(2023, 12, 14, 10, 5, 0, 0, time.UTC),
		time.Date(2024, 3, 12, 9, 30, 0, 0, ny), // week after DST start
		time.Date(2024, 1, 1, 0, 0, 0, 0, ny),
	}
	for _, ref := range refs {
		back := Shift(Shift(ref, -1), 1)
		if !back.Equal(ref) {
			t.Errorf("Shift round trip: %s -> %s", ref, back)
		}
		fwd := Shift(Shift(ref, 1), -1)
		if !fwd.Equal(ref) {
			t.Errorf("Shift reverse round trip: %s -> %s", ref, fwd)
		}
	}

	ref := time.Date(2023, 12, 14, 0, 0, 0, 0, time.UTC)
	if got := Shift(ref, -1); !got.Equal(time.Date(2023, 12, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Shift(-1) = %s", got)
	}
}

func TestWeekStartEnd(t *testing.T) {
	ref := time.Date(2023, 12, 17, 22, 0, 0, 0, time.UTC) // Sunday
	if got := WeekStart(ref, time.UTC); !got.Equal(time.Date(2023, 12, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("WeekStart = %s", got)
	}
}

func TestSlotsEmptyOrInvertedRange(t *testing.T) {
	g := New(time.UTC, 8, 23, 30*time.Minute)
	day := time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"inverted", at(day, 10), at(day, 8)},
		{"empty", at(day, 10), at(day, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Slots(tt.start, tt.end, time.UTC, day)
			if got == nil || len(got) != 0 {
				t.Errorf("Slots = %#v, want empty", got)
			}
		})
	}
}

func TestGeneratorPartialBounds(t *testing.T) {
	ref := time.Date(2023, 12, 14, 0, 0, 0, 0, time.UTC)
	now := time.Date(2023, 12, 14, 10, 5, 0, 0, time.UTC)

	g := &Generator{Local: time.UTC, StartHour: 9}
	fri := g.Week(ref, time.UTC, now)[4].Intervals
	if len(fri) != 28 || fri[0].Time != "09:00" || fri[len(fri)-1].Time != "22:30" {
		t.Errorf("start-only generator: %v", labels(fri))
	}

	g = &Generator{Local: time.UTC, StartHour: 20, EndHour: 10}
	for i, d := range g.Week(ref, time.UTC, now) {
		if d.IsTodayOrFuture && len(d.Intervals) != 0 {
			t.Errorf("day %d of inverted generator has slots %v", i, labels(d.Intervals))
		}
	}

	zero := (&Generator{Local: time.UTC}).Week(ref, time.UTC, now)[4].Intervals
	if zero[0].Time != "08:00" || len(zero) != 30 {
		t.Errorf("zero value generator: %v", labels(zero))
	}
}
