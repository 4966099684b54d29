// Package ics turns ICS subscriptions into timed occurrences: fetch (with an
// HTTP validator cache on disk), parse, then RRULE expansion over a window.
package ics

import "strings"

// Source is a single ICS feed. URL may be http(s)://, file:// or a plain
// filesystem path.
type Source struct {
	ID  string
	URL string
}

// redactURL keeps only scheme and host so feed tokens never reach the logs.
//
//	https://example.com/private.ics?token=abcd -> https://example.com/...(redacted)
func redactURL(u string) string {
	const suffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + suffix
}
