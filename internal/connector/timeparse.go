package connector

import (
	"time"

	"github.com/go-openapi/strfmt"
)

// ParseTime parses vendor timestamps (RFC 3339 and close variants).
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	dt, err := strfmt.ParseDateTime(s)
	if err != nil {
		return time.Time{}, false
	}
	t := time.Time(dt)
	return t, !t.IsZero()
}

// After reports whether t is strictly newer than the watermark; a nil
// watermark admits everything.
func After(t time.Time, watermark *time.Time) bool {
	return watermark == nil || t.After(*watermark)
}
