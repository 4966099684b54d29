package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

var ErrBadEvent = errors.New("events: malformed event")

// fileFormat is the layout of Loader.File.
type fileFormat struct {
	Events []model.Event `yaml:"events"`
}

// Loader assembles the feed in a fixed order: Inline, then File, then ICS.
type Loader struct {
	Inline []model.Event

	// File is an optional YAML file with an `events:` list.
	File string

	ICS     []ics.Source
	Fetcher *ics.Fetcher

	// Location formats ICS occurrences into their informational Date/Time
	// strings. Matching uses the occurrence instant in the selected zone.
	Location *time.Location

	// Horizon is how far on each side of now ICS recurrences are expanded.
	Horizon time.Duration
}

// Load returns the combined feed. A bad inline list or events file is an
// error. A failing ICS source is logged and skipped.
func (l *Loader) Load(ctx context.Context, now time.Time) ([]model.Event, error) {
	out := make([]model.Event, 0, len(l.Inline))

	if err := validate(l.Inline); err != nil {
		return nil, fmt.Errorf("inline events: %w", err)
	}
	out = append(out, l.Inline...)

	if l.File != "" {
		fromFile, err := ReadFile(l.File)
		if err != nil {
			return nil, err
		}
		out = append(out, fromFile...)
	}

	if len(l.ICS) > 0 {
		fromICS, err := l.loadICS(ctx, now, nextID(out))
		if err != nil {
			return nil, err
		}
		out = append(out, fromICS...)
	}

	appLog.Info("events loaded", "count", len(out), "inline", len(l.Inline), "file", l.File, "ics_sources", len(l.ICS))
	return out, nil
}

// ReadFile reads a YAML events file.
func ReadFile(path string) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("events file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("events file %s: %w", path, err)
	}
	if err := validate(f.Events); err != nil {
		return nil, fmt.Errorf("events file %s: %w", path, err)
	}
	return f.Events, nil
}

func (l *Loader) loadICS(ctx context.Context, now time.Time, firstID int) ([]model.Event, error) {
	fetcher := l.Fetcher
	if fetcher == nil {
		fetcher = ics.NewFetcher("", nil)
	}
	loc := l.Location
	if loc == nil {
		loc = time.Local
	}
	horizon := l.Horizon
	if horizon <= 0 {
		horizon = 28 * 24 * time.Hour
	}

	payloads, errs := fetcher.FetchAll(ctx, l.ICS)
	if len(errs) > 0 {
		appLog.Error("events: some ICS sources failed", errors.Join(errs...), "failed", len(errs))
	}

	var entries []ics.Entry
	for _, p := range payloads {
		parsed, err := ics.Parse(p.Source, p.Body)
		if err != nil {
			appLog.Error("events: ICS parse failed", err, "id", p.Source.ID)
			continue
		}
		entries = append(entries, parsed...)
	}

	occs, _, err := ics.Expand(entries, ics.Window{
		Start:    now.Add(-horizon),
		End:      now.Add(horizon),
		Location: loc,
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Event, 0, len(occs))
	id := firstID
	for _, o := range occs {
		// All-day occurrences have no slot to sit on.
		if o.AllDay {
			continue
		}
		out = append(out, model.Event{
			ID:   id,
			Name: o.Summary,
			Date: o.Start.Format(model.DateLayout),
			Time: o.Start.Format(model.TimeLayout),
			At:   o.Start,
		})
		id++
	}
	return out, nil
}

func validate(evs []model.Event) error {
	for i, e := range evs {
		if _, err := time.Parse(model.DateLayout, e.Date); err != nil {
			return fmt.Errorf("%w: [%d] date %q", ErrBadEvent, i, e.Date)
		}
		if _, err := time.Parse(model.TimeLayout, e.Time); err != nil {
			return fmt.Errorf("%w: [%d] time %q", ErrBadEvent, i, e.Time)
		}
	}
	return nil
}

func nextID(evs []model.Event) int {
	highest := 0
	for _, e := range evs {
		if e.ID > highest {
			highest = e.ID
		}
	}
	return highest + 1
}
