package calendar

import "time"

// Calendar computes the chargeable days for a leave period. It is injected
// into the request workflow and must be deterministic: the same range always
// yields the same count.
//
//go:generate mockgen -source=calendar.go -destination=mock/calendar_mock.go -package=mock
type Calendar interface {
	BusinessDays(start, end time.Time) int
}

// WeekdayCalendar counts Monday-Friday, skipping configured public holidays.
type WeekdayCalendar struct {
	holidays map[string]struct{}
}

func NewWeekdayCalendar(holidays ...time.Time) *WeekdayCalendar {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		set[h.Format("2006-01-02")] = struct{}{}
	}
	return &WeekdayCalendar{holidays: set}
}

func (c *WeekdayCalendar) BusinessDays(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}

	start = truncateToDay(start)
	end = truncateToDay(end)

	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if _, holiday := c.holidays[d.Format("2006-01-02")]; holiday {
			continue
		}
		days++
	}
	return days
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
