package domain

import "time"

// AddBusinessDays advances t by n weekdays, skipping Saturdays and Sundays.
// The time of day is preserved.
func AddBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t
}
