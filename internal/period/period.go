// Package period maps timestamps to integer period indexes anchored at
// Jan 1 1970, so two timestamps can be compared for "same period" or
// "periods apart" without a mutable starting point.
package period

import (
	"time"

	"resampler/pkg/model"
)

const secondsPerDay = 86400

// weekEpochOffset moves day 0 (Thursday, Jan 1 1970) to its position in the
// week that starts on Sunday, Dec 28 1969.
const weekEpochOffset = 4

// DayIndex returns the number of days between Jan 1 1970 and the calendar
// date of t in t's location.
func DayIndex(t time.Time) int64 {
	y, m, d := t.Date()
	return floorDiv(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix(), secondsPerDay)
}

// WeekIndex returns the index of the Sunday-based week containing t
func WeekIndex(t time.Time) int64 {
	return floorDiv(DayIndex(t)+weekEpochOffset, 7)
}

// MonthIndex returns (year-1970)*12 + zero-based month of t
func MonthIndex(t time.Time) int64 {
	return int64(t.Year()-1970)*12 + int64(t.Month()-1)
}

// Index returns the period index of t at granularity g
func Index(g model.Granularity, t time.Time) int64 {
	switch g {
	case model.Week:
		return WeekIndex(t)
	case model.Month:
		return MonthIndex(t)
	default:
		return DayIndex(t)
	}
}

// Relative returns how many periods after start t falls
func Relative(g model.Granularity, start int64, t time.Time) int64 {
	return Index(g, t) - start
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
