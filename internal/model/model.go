package model

import "time"

// Layouts shared by the generator, the overlay and the event feed. Events
// match slots by string equality on these formats.
const (
	DateLayout  = "2006-01-02"
	TimeLayout  = "15:04"
	LabelLayout = "02 January 2006"
)

// PassedLabel is the time label of the single sentinel slot that replaces the
// slot list of a day that is entirely in the past.
const PassedLabel = "Passed"

// Event is a single (date, time, name) record from the events feed. It is
// overlaid onto the slot whose day and time label match exactly.
type Event struct {
	ID   int    `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// Date is a calendar date, YYYY-MM-DD.
	Date string `yaml:"date" json:"date"`
	// Time is a 24-hour HH:mm time of day.
	Time string `yaml:"time" json:"time"`

	// At is the instant of a calendar-feed occurrence. When set it is matched
	// against the slot instant and Date/Time are informational only.
	At time.Time `yaml:"-" json:"at,omitzero"`
}

// Slot is one working-hour interval of a Day.
type Slot struct {
	// Time is the HH:mm start in the display timezone, or PassedLabel.
	Time   string `json:"time"`
	IsPast bool   `json:"is_past"`

	// Checked is true when the user ticked the slot or an event sits on it.
	Checked bool `json:"checked"`

	EventName string `json:"event_name,omitempty"`
}

// Day is one calendar day of the displayed ISO week.
type Day struct {
	Date            time.Time `json:"date"`
	DayName         string    `json:"day_name"`
	Intervals       []Slot    `json:"intervals"`
	IsTodayOrFuture bool      `json:"is_today_or_future"`
}

// IsPassed reports whether the day collapsed to the sentinel slot.
func (d Day) IsPassed() bool {
	return len(d.Intervals) == 1 && d.Intervals[0].IsPast && d.Intervals[0].Time == PassedLabel
}
