package service

import (
	"time"

	"scrimbet/models"
)

// AttendanceDate returns the calendar date of t in loc, the key a daily
// attendance claim is recorded under
func AttendanceDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(models.AttendanceDateLayout)
}

// NextAttendanceReset returns the next midnight in loc after t
func NextAttendanceReset(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, 1)
}
