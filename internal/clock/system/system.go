// Package system provides the wall clock used to stamp fetched pages.
package system

import "time"

// Clock implements crawler.Clock using time.Now in UTC.
type Clock struct{}

// Default is the clock fetchers fall back to when none is injected.
var Default = New()

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
