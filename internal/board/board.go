// Package board holds the interaction state of the scheduler page: the week
// being shown, the selected timezone and which slots the user ticked.
package board

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"weekcal/internal/events"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
	"weekcal/internal/week"
)

var (
	ErrUnknownTimezone  = errors.New("board: timezone is not one of the offered options")
	ErrInvalidDirection = errors.New("board: direction must be -1 or 1")
	ErrSlotOutOfRange   = errors.New("board: slot index out of range")
	ErrPastSlot         = errors.New("board: slot has passed")
	ErrNoTimezones      = errors.New("board: no timezone options")
)

// SlotKey addresses one slot of the current week by position.
type SlotKey struct {
	Day  int
	Slot int
}

// Options configures a Board.
type Options struct {
	Generator *week.Generator

	// Timezones is the fixed option set. Timezone must be one of them.
	Timezones []string
	Timezone  string

	Events []model.Event

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// View is a rendered snapshot of the board.
type View struct {
	Reference      time.Time   `json:"reference"`
	ReferenceLabel string      `json:"reference_label"`
	Timezone       string      `json:"timezone"`
	Timezones      []string    `json:"timezones"`
	GeneratedAt    time.Time   `json:"generated_at"`
	Days           []model.Day `json:"days"`
}

// Board is safe for concurrent use. Every mutation runs to completion under
// one lock.
type Board struct {
	mu sync.Mutex

	gen       *week.Generator
	clock     func() time.Time
	zones     map[string]*time.Location
	zoneNames []string

	ref      time.Time
	tzName   string
	overlay  *events.Overlay
	days     []model.Day
	checked  map[SlotKey]bool
	sampleAt time.Time
}

// New builds a Board showing the current week.
func New(opts Options) (*Board, error) {
	if len(opts.Timezones) == 0 {
		return nil, ErrNoTimezones
	}
	zones := make(map[string]*time.Location, len(opts.Timezones))
	for _, name := range opts.Timezones {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("board: load timezone %q: %w", name, err)
		}
		zones[name] = loc
	}
	tz := opts.Timezone
	if tz == "" {
		tz = opts.Timezones[0]
	}
	if _, ok := zones[tz]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, tz)
	}

	gen := opts.Generator
	if gen == nil {
		gen = &week.Generator{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	b := &Board{
		gen:       gen,
		clock:     clock,
		zones:     zones,
		zoneNames: slices.Clone(opts.Timezones),
		ref:       clock(),
		tzName:    tz,
		overlay:   events.NewOverlay(opts.Events),
	}
	b.regenerate()
	return b, nil
}

// regenerate rebuilds days from ref, tz and a freshly sampled now and drops
// all ticks. Callers hold mu.
func (b *Board) regenerate() {
	b.sampleAt = b.clock()
	b.days = b.gen.Week(b.ref, b.zones[b.tzName], b.sampleAt)
	b.checked = make(map[SlotKey]bool)
}

// ToggleSlot flips the tick on one slot and returns its new state.
func (b *Board) ToggleSlot(day, slot int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if day < 0 || day >= len(b.days) || slot < 0 || slot >= len(b.days[day].Intervals) {
		return false, fmt.Errorf("%w: day=%d slot=%d", ErrSlotOutOfRange, day, slot)
	}
	if b.days[day].Intervals[slot].IsPast {
		return false, fmt.Errorf("%w: day=%d slot=%d", ErrPastSlot, day, slot)
	}

	k := SlotKey{Day: day, Slot: slot}
	if b.checked[k] {
		delete(b.checked, k)
	} else {
		b.checked[k] = true
	}
	return b.checked[k], nil
}

// NavigateWeek moves the reference one week back (-1) or forward (+1) and
// regenerates. Ticks are discarded.
func (b *Board) NavigateWeek(direction int) error {
	if direction != -1 && direction != 1 {
		return fmt.Errorf("%w: %d", ErrInvalidDirection, direction)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.ref = week.Shift(b.ref, direction)
	b.regenerate()
	appLog.Debug("week navigated", "direction", direction, "reference", b.ref.Format(model.DateLayout))
	return nil
}

// SetTimezone selects one of the offered zones and regenerates. Ticks are
// discarded, even when the zone does not change.
func (b *Board) SetTimezone(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.zones[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	b.tzName = name
	b.regenerate()
	appLog.Debug("timezone selected", "timezone", name)
	return nil
}

// SetEvents swaps the event feed. Ticks are kept.
func (b *Board) SetEvents(evs []model.Event) {
	o := events.NewOverlay(evs)

	b.mu.Lock()
	b.overlay = o
	b.mu.Unlock()
	appLog.Debug("events replaced", "count", o.Len())
}

// Events returns the current feed.
func (b *Board) Events() []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overlay.Events()
}

// Refresh re-samples now. If the slot grid keeps its shape the ticks are
// kept; otherwise slots have shifted position and the ticks are dropped.
// It reports whether ticks were dropped.
func (b *Board) Refresh() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	days := b.gen.Week(b.ref, b.zones[b.tzName], now)
	b.sampleAt = now
	if sameShape(b.days, days) {
		b.days = days
		return false
	}
	b.days = days
	dropped := len(b.checked) > 0
	b.checked = make(map[SlotKey]bool)
	return dropped
}

func sameShape(a, b []model.Day) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i].Intervals) != len(b[i].Intervals) {
			return false
		}
		for j := range a[i].Intervals {
			if a[i].Intervals[j].Time != b[i].Intervals[j].Time {
				return false
			}
		}
	}
	return true
}

// Reference returns the current week reference.
func (b *Board) Reference() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ref
}

// Timezone returns the selected zone name.
func (b *Board) Timezone() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tzName
}

// Checked returns the ticked keys.
func (b *Board) Checked() []SlotKey {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]SlotKey, 0, len(b.checked))
	for k := range b.checked {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y SlotKey) int {
		if x.Day != y.Day {
			return x.Day - y.Day
		}
		return x.Slot - y.Slot
	})
	return keys
}

// View returns a deep copy of the current week. A slot is Checked when it
// was ticked or an event sits on it.
func (b *Board) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	days := make([]model.Day, len(b.days))
	for i, d := range b.days {
		d.Intervals = slices.Clone(d.Intervals)
		days[i] = d
	}
	ov := b.overlay.In(b.zones[b.tzName])
	events.Decorate(days, ov)
	for i, d := range days {
		for j := range d.Intervals {
			s := &d.Intervals[j]
			if s.IsPast {
				continue
			}
			s.Checked = b.checked[SlotKey{Day: i, Slot: j}] || ov.HasEventAt(d.Date, s.Time)
		}
	}

	return View{
		Reference:      b.ref,
		ReferenceLabel: b.ref.Format(model.LabelLayout),
		Timezone:       b.tzName,
		Timezones:      slices.Clone(b.zoneNames),
		GeneratedAt:    b.sampleAt,
		Days:           days,
	}
}
