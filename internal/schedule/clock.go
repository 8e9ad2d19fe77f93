package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Times of day are handled as minute-of-day integers internally. The
// "HH:MM" and "HH:MM-HH:MM" string forms exist only at the storage and
// HTTP boundaries.

// ParseClock parses "HH:MM" into minute-of-day. A trailing ":SS" is
// accepted and ignored so legacy "HH:MM:SS" values normalize cleanly.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("schedule: invalid clock value %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("schedule: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("schedule: invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// FormatClock renders a minute-of-day as canonical "HH:MM".
func FormatClock(minuteOfDay int) string {
	return fmt.Sprintf("%02d:%02d", minuteOfDay/60, minuteOfDay%60)
}

// TimeRange is a half-open [Start, End) interval in minutes of day.
type TimeRange struct {
	Start int
	End   int
}

// ParseTimeSlot parses the stored "HH:MM-HH:MM" appointment slot encoding.
func ParseTimeSlot(s string) (TimeRange, error) {
	start, end, found := strings.Cut(s, "-")
	if !found {
		return TimeRange{}, fmt.Errorf("schedule: time slot %q missing separator", s)
	}
	startMin, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	endMin, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	return TimeRange{Start: startMin, End: endMin}, nil
}

// String renders the canonical slot encoding.
func (r TimeRange) String() string {
	return FormatClock(r.Start) + "-" + FormatClock(r.End)
}
