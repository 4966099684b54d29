package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "weekcal/internal/log"
)

const defaultMaxPerEntry = 5000

var ErrBadWindow = errors.New("ics: window end is before start")

// Window bounds an expansion. Occurrences are converted to Location.
type Window struct {
	Start    time.Time
	End      time.Time
	Location *time.Location

	// MaxPerEntry caps the instances of one recurring entry. Zero means 5000.
	MaxPerEntry int
}

// Occurrence is one concrete instance of an Entry.
type Occurrence struct {
	SourceID string
	UID      string
	Summary  string
	Start    time.Time
	End      time.Time
	AllDay   bool
}

// Expand resolves RRULE, EXDATE and RECURRENCE-ID overrides inside w and
// returns occurrences sorted by start time. The second result lists UIDs that
// hit MaxPerEntry.
func Expand(entries []Entry, w Window) ([]Occurrence, []string, error) {
	if w.End.Before(w.Start) {
		return nil, nil, ErrBadWindow
	}
	if w.Location == nil {
		w.Location = time.Local
	}
	if w.MaxPerEntry <= 0 {
		w.MaxPerEntry = defaultMaxPerEntry
	}

	// Overrides are keyed by UID; base entries keep feed order.
	overrides := make(map[string][]Entry)
	var bases []Entry
	for _, e := range entries {
		if e.RecurrenceID != nil {
			overrides[e.UID] = append(overrides[e.UID], e)
			continue
		}
		bases = append(bases, e)
	}

	var (
		out       []Occurrence
		truncated []string
	)
	for _, e := range bases {
		starts, capped := instanceStarts(e, w)
		if capped {
			truncated = append(truncated, e.UID)
			appLog.Error("ics expansion capped", errors.New("max occurrences reached"), "uid", e.UID, "cap", w.MaxPerEntry)
		}
		dur := e.End.Sub(e.Start)
		for _, s := range starts {
			inst := e
			end := s.Add(dur)
			if ov, ok := overrideFor(overrides[e.UID], s); ok {
				inst, s, end = ov, ov.Start, ov.End
			}
			if !overlaps(s, end, w.Start, w.End) {
				continue
			}
			out = append(out, Occurrence{
				SourceID: inst.SourceID,
				UID:      inst.UID,
				Summary:  inst.Summary,
				Start:    s.In(w.Location),
				End:      end.In(w.Location),
				AllDay:   inst.AllDay,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, truncated, nil
}

// instanceStarts lists the start times of e that may fall inside w.
func instanceStarts(e Entry, w Window) ([]time.Time, bool) {
	if e.RRule == "" {
		return []time.Time{e.Start}, false
	}

	r, err := rrule.StrToRRule(e.RRule)
	if err != nil {
		appLog.Error("ics bad RRULE; using DTSTART only", err, "uid", e.UID, "rrule", e.RRule)
		return []time.Time{e.Start}, false
	}
	r.DTStart(e.Start)

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	// Widen by the event duration so instances that started before the
	// window but still run into it are kept.
	loc := e.Start.Location()
	from := w.Start.Add(-e.End.Sub(e.Start)).In(loc)
	starts := set.Between(from, w.End.In(loc), true)
	if len(starts) > w.MaxPerEntry {
		return starts[:w.MaxPerEntry], true
	}
	return starts, false
}

func overrideFor(ovs []Entry, start time.Time) (Entry, bool) {
	for _, ov := range ovs {
		if ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}
	return Entry{}, false
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(aStart) {
		aEnd = aStart
	}
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
