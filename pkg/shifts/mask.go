package shifts

import (
	"time"

	"github.com/HatiCode/shiftcast/pkg/planerr"
)

// Day is the ordered interval timeline of one planning day. Starts are
// elapsed offsets from the start of the day and the timeline is cyclic:
// index 0 follows index len(Starts)-1.
//
// Clock holds the wall-clock time of day of each interval when it differs
// from Starts, which only happens on days with a UTC offset change. Shift
// templates are matched against the wall clock.
type Day struct {
	Length time.Duration
	Starts []time.Duration
	Clock  []time.Duration
}

// NewDay builds a Day of the default length.
func NewDay(starts ...time.Duration) Day {
	return Day{Length: DayLength, Starts: starts}
}

// UniformDay returns a day split into equal intervals of the given step.
func UniformDay(step time.Duration) Day {
	if step <= 0 {
		return Day{Length: DayLength}
	}
	starts := make([]time.Duration, 0, int(DayLength/step))
	for t := time.Duration(0); t < DayLength; t += step {
		starts = append(starts, t)
	}
	return Day{Length: DayLength, Starts: starts}
}

// DayFromIntervals builds the Day starting at midnight from interval start
// times. Length is the elapsed time to the next midnight in midnight's
// location, so a day with a DST change lasts 23h or 25h.
func DayFromIntervals(midnight time.Time, starts []time.Time) Day {
	loc := midnight.Location()
	next := time.Date(midnight.Year(), midnight.Month(), midnight.Day()+1, 0, 0, 0, 0, loc)

	day := Day{
		Length: next.Sub(midnight),
		Starts: make([]time.Duration, len(starts)),
	}
	clock := make([]time.Duration, len(starts))
	shifted := day.Length != DayLength
	for i, t := range starts {
		day.Starts[i] = t.Sub(midnight)
		clock[i] = ClockOffset(t.In(loc))
		if clock[i] != day.Starts[i] {
			shifted = true
		}
	}
	if shifted {
		day.Clock = clock
	}
	return day
}

// ClockOffset returns the wall-clock time of day of t as an offset.
func ClockOffset(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// clock returns the offsets and day length templates are matched against.
func (d Day) clock() ([]time.Duration, time.Duration) {
	if d.Clock != nil {
		return d.Clock, DayLength
	}
	return d.Starts, d.Length
}

// Validate checks that starts are non-empty, strictly increasing and inside
// the day, and that any wall-clock offsets line up with them.
func (d Day) Validate() error {
	if d.Length <= 0 {
		return planerr.Invalid("day", "length must be > 0, got %v", d.Length)
	}
	if len(d.Starts) == 0 {
		return planerr.Invalid("day", "interval list is empty")
	}
	for i, s := range d.Starts {
		if s < 0 || s >= d.Length {
			return planerr.Invalid("day", "interval %d start %v outside [0, %v)", i, s, d.Length)
		}
		if i > 0 && s <= d.Starts[i-1] {
			return planerr.Invalid("day", "interval %d start %v is not after %v", i, s, d.Starts[i-1])
		}
	}
	if d.Clock == nil {
		return nil
	}
	if len(d.Clock) != len(d.Starts) {
		return planerr.Invalid("day", "%d clock offsets for %d intervals", len(d.Clock), len(d.Starts))
	}
	for i, c := range d.Clock {
		if c < 0 || c >= DayLength {
			return planerr.Invalid("day", "interval %d clock %v outside [0, %v)", i, c, DayLength)
		}
	}
	return nil
}

// Mask marks which intervals of a day a template covers.
type Mask []bool

// Count returns the number of covered intervals.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// MaskSet holds one mask per template. Names keeps catalog order.
type MaskSet struct {
	Names []string
	Masks map[string]Mask
}

// Len returns the number of intervals each mask spans.
func (s MaskSet) Len() int {
	for _, m := range s.Masks {
		return len(m)
	}
	return 0
}

// Covering returns the templates that cover interval i, in catalog order.
func (s MaskSet) Covering(i int) []string {
	var names []string
	for _, n := range s.Names {
		if m := s.Masks[n]; i < len(m) && m[i] {
			names = append(names, n)
		}
	}
	return names
}

// Coverage returns, per interval, the headcount provided by counts.
func (s MaskSet) Coverage(counts map[string]int) []int {
	out := make([]int, s.Len())
	for _, n := range s.Names {
		c := counts[n]
		if c == 0 {
			continue
		}
		for i, on := range s.Masks[n] {
			if on {
				out[i] += c
			}
		}
	}
	return out
}

// Clone returns a deep copy.
func (s MaskSet) Clone() MaskSet {
	out := MaskSet{
		Names: append([]string(nil), s.Names...),
		Masks: make(map[string]Mask, len(s.Masks)),
	}
	for n, m := range s.Masks {
		out.Masks[n] = append(Mask(nil), m...)
	}
	return out
}

type span struct{ from, to time.Duration }

// BuildMasks computes the coverage mask of every template over day.
// Interval start t is covered when it falls in [start, end). A template
// ending past the day length is split into [start, L) and [0, end-L).
// On a day with Clock offsets, t and L are the wall-clock time and 24h, so
// a repeated hour is covered by every template that covers it once.
func BuildMasks(templates []Template, day Day) (MaskSet, error) {
	if err := day.Validate(); err != nil {
		return MaskSet{}, err
	}

	set := MaskSet{
		Names: make([]string, 0, len(templates)),
		Masks: make(map[string]Mask, len(templates)),
	}
	offsets, length := day.clock()
	for _, t := range templates {
		if err := t.Validate(length); err != nil {
			return MaskSet{}, err
		}
		if _, dup := set.Masks[t.Name]; dup {
			return MaskSet{}, planerr.Invalid("template", "duplicate name %q", t.Name)
		}

		spans := []span{{from: t.Start, to: min(t.End(), length)}}
		if t.Wraps(length) {
			spans = append(spans, span{from: 0, to: t.End() - length})
		}

		mask := make(Mask, len(offsets))
		for i, start := range offsets {
			for _, sp := range spans {
				if start >= sp.from && start < sp.to {
					mask[i] = true
					break
				}
			}
		}

		set.Names = append(set.Names, t.Name)
		set.Masks[t.Name] = mask
	}
	return set, nil
}
