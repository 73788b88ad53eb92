// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements bookmark.Clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, truncated to whole milliseconds so
// that values survive a JSON and database round trip unchanged.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
