// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// ISOMillis is the layout used for every timestamp written into audit snapshots
const ISOMillis = "2006-01-02T15:04:05.000Z07:00"

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// ToISO formats t in UTC with millisecond precision
func ToISO(t time.Time) string {
	return t.UTC().Format(ISOMillis)
}

