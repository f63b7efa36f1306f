package sim

import (
	"fmt"
	"time"
)

// StepUnit selects the sub-step granularity of the simulation clock.
type StepUnit string

// Supported step granularities.
const (
	StepWeek  StepUnit = "week"
	StepMonth StepUnit = "month"
)

// Date is a calendar day on the simulation clock. The zero value is invalid;
// use NewDate.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// NewDate returns the date for the given year, month, and day.
func NewDate(year, month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

func (d Date) time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// Time returns d as a UTC time.Time at midnight.
func (d Date) Time() time.Time { return d.time() }

func fromTime(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool { return d.time().Before(o.time()) }

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool { return d.time().After(o.time()) }

// DayOfYear returns the 1-based ordinal day within d's year.
func (d Date) DayOfYear() int { return d.time().YearDay() }

// weekIndex is the 0-based week within the year. Weeks start on Jan 1 and
// advance by 7 days; week 51 absorbs the remainder of December.
func (d Date) weekIndex() int {
	w := (d.DayOfYear() - 1) / 7
	if w > 51 {
		w = 51
	}
	return w
}

// IsLastWeekOfYear reports whether d falls in the final week of its year.
func (d Date) IsLastWeekOfYear() bool { return d.weekIndex() == 51 }

// IsLastMonthOfYear reports whether d falls in December.
func (d Date) IsLastMonthOfYear() bool { return d.Month == 12 }

// NextWeek returns the start of the following week. From the last week of a
// year it returns Jan 1 of the next year.
func (d Date) NextWeek() Date {
	if d.IsLastWeekOfYear() {
		return NewDate(d.Year+1, 1, 1)
	}
	return fromTime(d.time().AddDate(0, 0, 7))
}

// NextMonth returns the first day of the following month.
func (d Date) NextMonth() Date {
	if d.Month == 12 {
		return NewDate(d.Year+1, 1, 1)
	}
	return NewDate(d.Year, d.Month+1, 1)
}

// Next advances d by one sub-step of the given granularity.
func (d Date) Next(unit StepUnit) Date {
	if unit == StepMonth {
		return d.NextMonth()
	}
	return d.NextWeek()
}

// LastDayOfWeek returns the final day of the week containing d. The last
// week of a year extends through Dec 31.
func (d Date) LastDayOfWeek() Date {
	if d.IsLastWeekOfYear() {
		return NewDate(d.Year, 12, 31)
	}
	return fromTime(d.time().AddDate(0, 0, 6))
}

// LastDayOfMonth returns the final day of the month containing d.
func (d Date) LastDayOfMonth() Date {
	first := NewDate(d.Year, d.Month, 1)
	return fromTime(first.time().AddDate(0, 1, -1))
}

// LastDay returns the final day of the sub-step containing d.
func (d Date) LastDay(unit StepUnit) Date {
	if unit == StepMonth {
		return d.LastDayOfMonth()
	}
	return d.LastDayOfWeek()
}

// IsYearEnd reports whether d falls in the last sub-step of its year.
func (d Date) IsYearEnd(unit StepUnit) bool {
	if unit == StepMonth {
		return d.IsLastMonthOfYear()
	}
	return d.IsLastWeekOfYear()
}

// NextYearEnd returns the Dec 31 closing the next simulated year: for Jan 1
// that is the same year's end, otherwise the following year's.
func (d Date) NextYearEnd() Date {
	if d.Month == 1 && d.Day == 1 {
		return NewDate(d.Year, 12, 31)
	}
	return NewDate(d.Year+1, 12, 31)
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Season restricts spread to the months [From, To], inclusive.
type Season struct {
	From int `yaml:"from" json:"from"`
	To   int `yaml:"to" json:"to"`
}

// Contains reports whether the given month falls inside the season.
func (s Season) Contains(month int) bool {
	return month >= s.From && month <= s.To
}
