package ics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const sampleCalendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//weekcal//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:single@test\r\n" +
	"SUMMARY:Review\r\n" +
	"DTSTART:20231214T113000Z\r\n" +
	"DTEND:20231214T120000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:daily@test\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20231211T090000Z\r\n" +
	"DTEND:20231211T091500Z\r\n" +
	"RRULE:FREQ=DAILY;COUNT=5\r\n" +
	"EXDATE:20231213T090000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:daily@test\r\n" +
	"SUMMARY:Standup (moved)\r\n" +
	"RECURRENCE-ID:20231214T090000Z\r\n" +
	"DTSTART:20231214T100000Z\r\n" +
	"DTEND:20231214T101500Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"SUMMARY:No UID\r\n" +
	"DTSTART:20231214T130000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParse(t *testing.T) {
	entries, err := Parse(Source{ID: "s"}, []byte(sampleCalendar))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (event without UID is skipped)", len(entries))
	}

	single := entries[0]
	if single.UID != "single@test" || single.Summary != "Review" || single.AllDay {
		t.Errorf("single = %+v", single)
	}
	if !single.Start.Equal(time.Date(2023, 12, 14, 11, 30, 0, 0, time.UTC)) {
		t.Errorf("single start = %s", single.Start)
	}

	daily := entries[1]
	if daily.RRule != "FREQ=DAILY;COUNT=5" || len(daily.ExDates) != 1 {
		t.Errorf("daily = %+v", daily)
	}
	if entries[2].RecurrenceID == nil {
		t.Error("override should carry RECURRENCE-ID")
	}

	if _, err := Parse(Source{}, []byte("  \n")); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("empty body err = %v", err)
	}
}

func TestExpand(t *testing.T) {
	entries, err := Parse(Source{ID: "s"}, []byte(sampleCalendar))
	if err != nil {
		t.Fatal(err)
	}

	w := Window{
		Start:    time.Date(2023, 12, 11, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2023, 12, 18, 0, 0, 0, 0, time.UTC),
		Location: time.UTC,
	}
	occ, truncated, err := Expand(entries, w)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(truncated) != 0 {
		t.Errorf("truncated = %v", truncated)
	}

	var got []string
	for _, o := range occ {
		got = append(got, o.Start.Format("01-02 15:04")+" "+o.Summary)
	}
	want := []string{
		"12-11 09:00 Standup",
		"12-12 09:00 Standup",
		"12-14 10:00 Standup (moved)",
		"12-14 11:30 Review",
		"12-15 09:00 Standup",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("occurrences:\n got  %v\n want %v", got, want)
	}
}

func TestExpandWindowAndCap(t *testing.T) {
	e := Entry{
		UID:   "u",
		Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		RRule: "FREQ=DAILY",
	}
	w := Window{
		Start:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		MaxPerEntry: 10,
	}
	occ, truncated, err := Expand([]Entry{e}, w)
	if err != nil {
		t.Fatal(err)
	}
	if len(occ) != 10 || len(truncated) != 1 {
		t.Errorf("occ=%d truncated=%v", len(occ), truncated)
	}
	if occ[0].Start.Before(w.Start) {
		t.Errorf("first occurrence %s before window", occ[0].Start)
	}

	if _, _, err := Expand(nil, Window{Start: w.End, End: w.Start}); !errors.Is(err, ErrBadWindow) {
		t.Errorf("inverted window err = %v", err)
	}
}

func TestFetchRevalidatesAndFallsBack(t *testing.T) {
	var calls atomic.Int32
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleCalendar))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "remote", URL: srv.URL + "/cal.ics?token=secret"}
	ctx := context.Background()

	first, err := f.Fetch(ctx, src)
	if err != nil || first.FromCache || len(first.Body) == 0 {
		t.Fatalf("first fetch: %+v err=%v", first, err)
	}

	second, err := f.Fetch(ctx, src)
	if err != nil || !second.FromCache || string(second.Body) != sampleCalendar {
		t.Fatalf("revalidated fetch: fromCache=%v err=%v", second.FromCache, err)
	}

	failing.Store(true)
	third, err := f.Fetch(ctx, src)
	if err != nil || !third.FromCache {
		t.Fatalf("fallback fetch: fromCache=%v err=%v", third.FromCache, err)
	}
	if calls.Load() != 3 {
		t.Errorf("server calls = %d, want 3", calls.Load())
	}

	uncached := NewFetcher("", srv.Client())
	if _, err := uncached.Fetch(ctx, src); err == nil {
		t.Error("a failing server without cache should error")
	}
}

func TestFetchAllLocalFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal.ics")
	if err := os.WriteFile(path, []byte(sampleCalendar), 0o600); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher("", nil)
	got, errs := f.FetchAll(context.Background(), []Source{
		{ID: "plain", URL: path},
		{ID: "missing", URL: filepath.Join(dir, "nope.ics")},
		{ID: "scheme", URL: "file://" + path},
		{ID: "empty"},
	})
	if len(got) != 2 || got[0].Source.ID != "plain" || got[1].Source.ID != "scheme" {
		t.Errorf("payloads = %+v", got)
	}
	if len(errs) != 2 {
		t.Errorf("errs = %v", errs)
	}
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/private.ics?token=abcd": "https://example.com/...(redacted)",
		"https://example.com?token=abcd":             "https://example.com/...(redacted)",
		"/var/lib/cal.ics":                           "ics://...(redacted)",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
