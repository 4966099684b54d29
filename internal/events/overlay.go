// Package events holds the read-only event feed and overlays it onto the
// generated week.
package events

import (
	"time"

	"weekcal/internal/model"
)

// Overlay answers "is there an event at this day and time label" by a linear
// scan in feed order. The first matching event wins.
type Overlay struct {
	events []model.Event

	// zone is the display zone the slot labels are in. Only events with At
	// need it. Nil means the day's own location.
	zone *time.Location
}

// NewOverlay copies events; later changes to the slice do not leak in.
func NewOverlay(events []model.Event) *Overlay {
	cp := make([]model.Event, len(events))
	copy(cp, events)
	return &Overlay{events: cp}
}

// In returns an overlay over the same feed whose slot labels are read in tz.
func (o *Overlay) In(tz *time.Location) *Overlay {
	if o == nil {
		return nil
	}
	return &Overlay{events: o.events, zone: tz}
}

// Find returns the first event whose Date equals day formatted as YYYY-MM-DD
// and whose Time equals label. An event with At matches when At falls on day
// in day's location and reads as label in the overlay zone.
func (o *Overlay) Find(day time.Time, label string) (model.Event, bool) {
	if o == nil {
		return model.Event{}, false
	}
	date := day.Format(model.DateLayout)
	zone := o.zone
	if zone == nil {
		zone = day.Location()
	}
	for _, e := range o.events {
		if e.At.IsZero() {
			if e.Date == date && e.Time == label {
				return e, true
			}
			continue
		}
		if e.At.In(day.Location()).Format(model.DateLayout) == date &&
			e.At.In(zone).Format(model.TimeLayout) == label {
			return e, true
		}
	}
	return model.Event{}, false
}

// HasEventAt reports whether any event sits on the slot.
func (o *Overlay) HasEventAt(day time.Time, label string) bool {
	_, ok := o.Find(day, label)
	return ok
}

// EventNameAt returns the matching event's name, or "".
func (o *Overlay) EventNameAt(day time.Time, label string) string {
	e, _ := o.Find(day, label)
	return e.Name
}

// Events returns a copy of the feed in source order.
func (o *Overlay) Events() []model.Event {
	if o == nil {
		return []model.Event{}
	}
	cp := make([]model.Event, len(o.events))
	copy(cp, o.events)
	return cp
}

// Len returns the feed size.
func (o *Overlay) Len() int {
	if o == nil {
		return 0
	}
	return len(o.events)
}

// Decorate sets EventName on every live slot that has an event. The sentinel
// slot of a passed day is left alone.
func Decorate(days []model.Day, o *Overlay) {
	for i := range days {
		for j := range days[i].Intervals {
			s := &days[i].Intervals[j]
			if s.IsPast {
				continue
			}
			s.EventName = o.EventNameAt(days[i].Date, s.Time)
		}
	}
}
