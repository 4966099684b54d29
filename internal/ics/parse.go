package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "weekcal/internal/log"
)

var ErrEmptyBody = errors.New("ics: empty body")

// Entry is one VEVENT, before recurrence expansion.
type Entry struct {
	SourceID string

	UID      string
	Sequence int
	Summary  string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set on a VEVENT that overrides one instance of a
	// recurring event.
	RecurrenceID *time.Time
}

// Parse decodes a VCALENDAR body. Malformed VEVENTs are logged and skipped.
func Parse(src Source, body []byte) ([]Entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	entries := make([]Entry, 0)
	for _, ve := range cal.Events() {
		e, err := parseEvent(src, ve)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		entries = append(entries, e)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "entries", len(entries))
	return entries, nil
}

func parseEvent(src Source, ve *ical.VEvent) (Entry, error) {
	e := Entry{SourceID: src.ID}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return e, errors.New("missing UID")
	}
	e.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			e.Sequence = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		e.Summary = p.Value
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return e, fmt.Errorf("%s: missing DTSTART", e.UID)
	}
	e.AllDay = isDateValue(dtstart)

	start, err := ve.GetStartAt()
	if err != nil {
		return e, fmt.Errorf("%s: DTSTART: %w", e.UID, err)
	}
	e.Start = start

	// DTEND is optional; fall back to DTSTART.
	if end, err := ve.GetEndAt(); err == nil {
		e.End = end
	} else {
		e.End = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		e.RRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, paramTZ(p)); err == nil {
				e.ExDates = append(e.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, paramTZ(p)); err == nil {
			e.RecurrenceID = &t
		}
	}

	return e, nil
}

// isDateValue reports VALUE=DATE or a bare YYYYMMDD value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func paramTZ(p *ical.IANAProperty) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return time.Local
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
// Floating values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
