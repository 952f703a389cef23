package coerce

import (
	"fmt"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"
)

// fallbackLayouts are tried in order when no format is given.
var fallbackLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	"02-01-2006", "02-01-2006 15:04",
}

// sampleTime is formatted and parsed back to reject unknown or dangling directives up front.
var sampleTime = time.Date(2021, time.June, 15, 13, 4, 5, 0, time.UTC)

// CheckFormat reports whether format can parse dates. A format containing '%' is a strftime
// pattern; any other non-empty format is a Go layout; empty means the fallback layouts.
func CheckFormat(format string) error {
	if !strings.Contains(format, "%") {
		return nil
	}
	if _, err := timefmt.Parse(timefmt.Format(sampleTime, format), format); err != nil {
		return fmt.Errorf("date format %q: %w", format, err)
	}
	return nil
}

func parseDate(s, format string) (time.Time, bool) {
	switch {
	case strings.Contains(format, "%"):
		t, err := timefmt.Parse(s, format)
		return t, err == nil
	case format != "":
		t, err := time.Parse(format, s)
		return t, err == nil
	}
	for _, l := range fallbackLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
