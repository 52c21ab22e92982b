// Package timeutil provides timezone utilities for Tashkent timezone (UTC+5).
// All HEMIS timestamps and deadlines are interpreted in university local time.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// TashkentTZ is the Tashkent timezone (UTC+5, no DST).
// Uzbekistan abolished DST in 1992, so this is constant year-round.
var TashkentTZ = time.FixedZone("Asia/Tashkent", 5*60*60)

// Now returns the current time in Tashkent timezone.
func Now() time.Time {
	return time.Now().In(TashkentTZ)
}

// ToTashkent converts a time to Tashkent timezone.
func ToTashkent(t time.Time) time.Time {
	return t.In(TashkentTZ)
}

// Date creates a time in Tashkent timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, TashkentTZ)
}

// DateTime creates a time in Tashkent timezone with the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, TashkentTZ)
}

// StartOfDay returns the start of the day (00:00:00) in Tashkent timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToTashkent(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, TashkentTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in Tashkent timezone.
func EndOfDay(t time.Time) time.Time {
	local := ToTashkent(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, TashkentTZ)
}

// FromUnix converts a unix timestamp (seconds) to Tashkent time.
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).In(TashkentTZ)
}

// Common date/time formats used across the portal and bot messages.
const (
	// FormatDate is the portal date format (DD.MM.YYYY), matching HEMIS documents.
	FormatDate = "02.01.2006"
	// FormatTime is the lesson time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the portal datetime format.
	FormatDateTime = "02.01.2006 15:04"
	// FormatISODate is the ISO date format used in sync payloads.
	FormatISODate = "2006-01-02"
)

// FormatTashkent formats a time in Tashkent timezone with the given layout.
func FormatTashkent(t time.Time, layout string) string {
	return ToTashkent(t).Format(layout)
}

// FormatDateStr formats a time as a portal date string (DD.MM.YYYY).
func FormatDateStr(t time.Time) string {
	return FormatTashkent(t, FormatDate)
}

// FormatUnixDate renders a unix timestamp as a portal date string.
// Zero and negative timestamps render as an empty string.
func FormatUnixDate(sec int64) string {
	if sec <= 0 {
		return ""
	}
	return FormatDateStr(FromUnix(sec))
}

// FormatUnixDateTime renders a unix timestamp as a portal datetime string.
func FormatUnixDateTime(sec int64) string {
	if sec <= 0 {
		return ""
	}
	return FormatTashkent(FromUnix(sec), FormatDateTime)
}

// ParseTashkent parses a time string in Tashkent timezone.
func ParseTashkent(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, TashkentTZ)
}

// HoursUntil returns the fractional number of hours from now until t.
// Negative when t is in the past.
func HoursUntil(now, t time.Time) float64 {
	return t.Sub(now).Hours()
}

// IsSameDay checks if two times are on the same day in Tashkent timezone.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := ToTashkent(t1), ToTashkent(t2)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// Between reports whether now is within [start, end] inclusive.
func Between(now, start, end time.Time) bool {
	return !now.Before(start) && !now.After(end)
}

// WeekdayNameUz returns the Uzbek name for a weekday, as shown in schedules.
func WeekdayNameUz(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "Dushanba"
	case time.Tuesday:
		return "Seshanba"
	case time.Wednesday:
		return "Chorshanba"
	case time.Thursday:
		return "Payshanba"
	case time.Friday:
		return "Juma"
	case time.Saturday:
		return "Shanba"
	case time.Sunday:
		return "Yakshanba"
	default:
		return ""
	}
}
