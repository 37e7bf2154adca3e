package provider

import (
	"errors"
	"fmt"
	"time"
)

// DayFormat is the wire format for day keys in per-day result maps.
const DayFormat = "2006-01-02"

var ErrInvalidDateRange = errors.New("invalid date range")

// DateRange is an inclusive day-granularity range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a validated range from day-granularity bounds.
func NewDateRange(start, end time.Time) (DateRange, error) {
	dr := DateRange{Start: DayOf(start), End: DayOf(end)}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// ParseDateRange parses "YYYY-MM-DD" bounds.
func ParseDateRange(start, end string) (DateRange, error) {
	startDay, err := time.Parse(DayFormat, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: parse start %q: %v", ErrInvalidDateRange, start, err)
	}
	endDay, err := time.Parse(DayFormat, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: parse end %q: %v", ErrInvalidDateRange, end, err)
	}
	return NewDateRange(startDay, endDay)
}

// LookbackRange returns the range covering the trailing number of days
// ending yesterday (providers do not publish same-day data reliably).
func LookbackRange(now time.Time, days int) DateRange {
	end := DayOf(now).AddDate(0, 0, -1)
	if days < 1 {
		days = 1
	}
	return DateRange{Start: end.AddDate(0, 0, -(days - 1)), End: end}
}

func (dr DateRange) Validate() error {
	if dr.Start.IsZero() || dr.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidDateRange)
	}
	if dr.End.Before(dr.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidDateRange,
			dr.End.Format(DayFormat), dr.Start.Format(DayFormat))
	}
	return nil
}

// Days lists every day key in the range, oldest first.
func (dr DateRange) Days() []string {
	days := make([]string, 0, int(dr.End.Sub(dr.Start).Hours()/24)+1)
	for day := dr.Start; !day.After(dr.End); day = day.AddDate(0, 0, 1) {
		days = append(days, day.Format(DayFormat))
	}
	return days
}

func (dr DateRange) String() string {
	return dr.Start.Format(DayFormat) + ".." + dr.End.Format(DayFormat)
}

// DayOf truncates a timestamp to UTC midnight.
func DayOf(ts time.Time) time.Time {
	utc := ts.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
