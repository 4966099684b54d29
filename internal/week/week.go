// Package week generates the days and working-hour slots of an ISO week.
//
// Generation is pure: the caller samples "now" once and passes it in, so a
// whole week is computed against a single instant.
//
// Day boundaries (week start, today, the working-hour bounds) are computed in
// Generator.Local. The selected display timezone only affects slot labels and
// the per-slot past check. The two zones may differ.
package week

import (
	"time"

	"weekcal/internal/model"
)

const (
	DefaultStartHour = 8
	DefaultEndHour   = 23
	DefaultStep      = 30 * time.Minute

	DaysPerWeek = 7
)

// Generator builds weeks and slot lists. The zero value uses time.Local,
// 08:00-23:00 and 30-minute slots.
type Generator struct {
	// Local is the zone used for day boundaries. Nil means time.Local.
	Local *time.Location

	StartHour int
	EndHour   int
	Step      time.Duration
}

// New returns a Generator with explicit bounds. Unset or out-of-range values
// fall back the same way the zero value does.
func New(local *time.Location, startHour, endHour int, step time.Duration) *Generator {
	g := &Generator{Local: local, StartHour: startHour, EndHour: endHour, Step: step}
	g.normalize()
	return g
}

func (g *Generator) normalize() {
	if g.Local == nil {
		g.Local = time.Local
	}
	// Both hours zero means unset. Otherwise an unset end defaults on its own
	// and 0 stays a valid (midnight) start.
	if g.StartHour <= 0 && g.EndHour <= 0 {
		g.StartHour, g.EndHour = DefaultStartHour, DefaultEndHour
	}
	if g.StartHour < 0 {
		g.StartHour = 0
	}
	if g.EndHour <= 0 {
		g.EndHour = DefaultEndHour
	}
	if g.EndHour > 24 {
		g.EndHour = 24
	}
	if g.Step <= 0 {
		g.Step = DefaultStep
	}
}

// Week returns the seven days, Monday through Sunday, of the ISO week that
// contains ref. Days before today carry the single "Passed" sentinel slot;
// today and later days carry their non-past slots in tz.
func (g *Generator) Week(ref time.Time, tz *time.Location, now time.Time) []model.Day {
	cfg := *g
	cfg.normalize()
	if tz == nil {
		tz = time.UTC
	}

	loc := cfg.Local
	start := WeekStart(ref, loc)
	today := Today(now, loc)

	days := make([]model.Day, 0, DaysPerWeek)
	for i := 0; i < DaysPerWeek; i++ {
		d := start.AddDate(0, 0, i)
		isPast := d.Before(today)

		var intervals []model.Slot
		if isPast {
			intervals = []model.Slot{{Time: model.PassedLabel, IsPast: true}}
		} else {
			intervals = cfg.Slots(at(d, cfg.StartHour), at(d, cfg.EndHour), tz, now)
		}

		days = append(days, model.Day{
			Date:            d,
			DayName:         d.Weekday().String(),
			Intervals:       intervals,
			IsTodayOrFuture: !isPast,
		})
	}
	return days
}

// Slots steps from start (inclusive) to end (exclusive), labels each step in
// tz as HH:mm and keeps only the steps that are not before now. An empty or
// inverted range yields no slots.
func (g *Generator) Slots(start, end time.Time, tz *time.Location, now time.Time) []model.Slot {
	step := g.Step
	if step <= 0 {
		step = DefaultStep
	}
	if tz == nil {
		tz = time.UTC
	}

	var all []model.Slot
	if end.After(start) {
		all = make([]model.Slot, 0, int(end.Sub(start)/step)+1)
	}
	for t := start; t.Before(end); t = t.Add(step) {
		all = append(all, model.Slot{
			Time:   t.In(tz).Format(model.TimeLayout),
			IsPast: now.After(t),
		})
	}

	// Past slots are computed and then dropped.
	out := make([]model.Slot, 0, len(all))
	for _, s := range all {
		if !s.IsPast {
			out = append(out, s)
		}
	}
	return out
}

// WeekStart returns Monday 00:00 in loc of the ISO week containing ref.
func WeekStart(ref time.Time, loc *time.Location) time.Time {
	day := Today(ref, loc)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return day.AddDate(0, 0, -offset)
}

// Today truncates t to midnight in loc.
func Today(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Shift moves ref by whole weeks. Shift(Shift(ref, -1), 1) == ref.
func Shift(ref time.Time, weeks int) time.Time {
	return ref.AddDate(0, 0, DaysPerWeek*weeks)
}

func at(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}
