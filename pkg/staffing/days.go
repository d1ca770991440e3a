package staffing

import (
	"time"

	"github.com/HatiCode/shiftcast/pkg/planerr"
	"github.com/HatiCode/shiftcast/pkg/shifts"
)

// DayRequirements is the slice of a plan that falls on one calendar date.
type DayRequirements struct {
	// Date is midnight of the day in the grouping location.
	Date time.Time
	Day  shifts.Day
	// Needed holds the net requirement per interval of Day.
	Needed []int
	// Index maps each interval of Day back to its position in the plan.
	Index []int
}

// GroupByDay splits requirements into calendar days in loc (UTC when nil),
// preserving input order within each day. Intervals must be in
// chronological order. Days with a DST change keep every interval; see
// shifts.DayFromIntervals.
func GroupByDay(reqs []Requirement, loc *time.Location) ([]DayRequirements, error) {
	if loc == nil {
		loc = time.UTC
	}

	var days []DayRequirements
	var starts []time.Time
	flush := func() {
		if len(days) == 0 {
			return
		}
		d := &days[len(days)-1]
		d.Day = shifts.DayFromIntervals(d.Date, starts)
		starts = nil
	}

	for i, r := range reqs {
		t := r.Interval.Start.In(loc)
		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)

		if len(days) == 0 || !days[len(days)-1].Date.Equal(date) {
			if len(days) > 0 && date.Before(days[len(days)-1].Date) {
				return nil, planerr.Invalid("intervals", "interval %d starts before the previous day", i)
			}
			flush()
			days = append(days, DayRequirements{Date: date})
		}

		d := &days[len(days)-1]
		d.Needed = append(d.Needed, r.Net)
		d.Index = append(d.Index, i)
		starts = append(starts, t)
	}
	flush()

	for _, d := range days {
		if err := d.Day.Validate(); err != nil {
			return nil, err
		}
	}
	return days, nil
}
