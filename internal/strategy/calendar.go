package strategy

import (
	"fmt"
	"strings"
	"time"
)

// Calendar answers whether the market is open at a given instant.
// The scheduling loop consults it to sleep in long intervals outside
// trading hours and resume fine-grained scheduling at the open.
type Calendar struct {
	loc        *time.Location
	openMins   int // minutes since midnight
	closeMins  int
	tradingDay map[time.Weekday]bool
}

// NewCalendar builds a calendar from a timezone, "HH:MM" open/close
// times and trading day names. Empty days default to Monday-Friday.
func NewCalendar(tz, open, close string, days []string) (*Calendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	openMins, err := parseClock(open)
	if err != nil {
		return nil, fmt.Errorf("market open: %w", err)
	}
	closeMins, err := parseClock(close)
	if err != nil {
		return nil, fmt.Errorf("market close: %w", err)
	}
	if closeMins <= openMins {
		return nil, fmt.Errorf("market close %s must be after open %s", close, open)
	}

	trading := make(map[time.Weekday]bool)
	if len(days) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			trading[d] = true
		}
	} else {
		for _, name := range days {
			wd, err := parseWeekday(name)
			if err != nil {
				return nil, err
			}
			trading[wd] = true
		}
	}

	return &Calendar{loc: loc, openMins: openMins, closeMins: closeMins, tradingDay: trading}, nil
}

// IsOpen reports whether the market trades at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	local := t.In(c.loc)
	if !c.tradingDay[local.Weekday()] {
		return false
	}
	mins := local.Hour()*60 + local.Minute()
	return mins >= c.openMins && mins < c.closeMins
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
