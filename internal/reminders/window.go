package reminders

import "time"

// Window returns the calendar day containing now in loc as a half-open UTC
// interval [start, end). The interval is 23 or 25 hours long on DST
// transition days.
func Window(now time.Time, loc *time.Location) (start, end time.Time) {
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return dayStart.UTC(), dayStart.AddDate(0, 0, 1).UTC()
}
