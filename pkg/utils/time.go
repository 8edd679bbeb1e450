package utils

import "time"

// HoursPerDay and DaysPerYear define the simulation calendar. Leap days are ignored.
const (
	HoursPerDay  = 24
	DaysPerYear  = 365
	MonthsInYear = 12
)

var daysInMonth = [MonthsInYear]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DaysInMonth returns the number of days in the zero-based month.
func DaysInMonth(month int) int {
	return daysInMonth[month]
}

// MonthOfDay returns the zero-based month for a day of the year. Days past
// the end of the year wrap around.
func MonthOfDay(day int) int {
	day %= DaysPerYear
	for m, n := range daysInMonth {
		if day < n {
			return m
		}
		day -= n
	}
	return MonthsInYear - 1
}

// MonthOfHour returns the zero-based month containing simulation hour h.
func MonthOfHour(h int) int {
	return MonthOfDay(h / HoursPerDay)
}

// HourOfDay returns h modulo 24.
func HourOfDay(h int) int {
	return h % HoursPerDay
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
