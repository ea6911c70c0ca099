package codec

import (
	"fmt"
	"strings"
	"time"
)

// Accepted input layouts. Fractional seconds are accepted after the seconds
// field by time.Parse even when the layout omits them.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
}

const (
	dateLayout       = "2006-01-02T15:04:05-07:00"
	dateLayoutMillis = "2006-01-02T15:04:05.000-07:00"
)

// ParseDate reads an ISO-8601 date with or without milliseconds and with a
// "Z", "+HH:MM" or "+HHMM" offset. An empty string is the zero time.
func (r *Registry) ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.In(r.location()), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: %w", s, firstErr)
}

// FormatDate writes t in the registry location with a colon separated
// offset. Milliseconds are written only when present.
func (r *Registry) FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(r.location())
	if t.Nanosecond()/int(time.Millisecond) != 0 {
		return t.Format(dateLayoutMillis)
	}
	return t.Format(dateLayout)
}
