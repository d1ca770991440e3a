// Package shifts turns a catalog of shift shapes into per-interval coverage
// masks over a day's interval timeline.
//
// A day is a cyclic sequence of interval start offsets. A shift whose end
// runs past the end of the day wraps and also covers the first intervals of
// the same timeline.
package shifts

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HatiCode/shiftcast/pkg/planerr"
)

// DayLength is the default length of a planning day.
const DayLength = 24 * time.Hour

// Template is a reusable shift shape from the catalog.
type Template struct {
	Name     string        `json:"name"`
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

// End returns the unwrapped end offset, which may exceed the day length.
func (t Template) End() time.Duration {
	return t.Start + t.Duration
}

// Wraps reports whether the shift runs past the end of a day of length l.
func (t Template) Wraps(l time.Duration) bool {
	return t.End() > l
}

// Validate checks the template against a day of length dayLength.
func (t Template) Validate(dayLength time.Duration) error {
	if strings.TrimSpace(t.Name) == "" {
		return planerr.Invalid("template", "name cannot be empty")
	}
	if t.Duration <= 0 {
		return planerr.Invalid("template", "%q has non-positive duration %v", t.Name, t.Duration)
	}
	if t.Duration > dayLength {
		return planerr.Invalid("template", "%q duration %v exceeds day length %v", t.Name, t.Duration, dayLength)
	}
	if t.Start < 0 || t.Start >= dayLength {
		return planerr.Invalid("template", "%q start %v outside [0, %v)", t.Name, t.Start, dayLength)
	}
	return nil
}

// String renders the template as "name HH:MM-HH:MM".
func (t Template) String() string {
	return fmt.Sprintf("%s %s-%s", t.Name, FormatClock(t.Start), FormatClock(t.End()%DayLength))
}

// ParseClock parses a wall-clock offset such as "07:30" or "21:00".
// "24:00" is accepted as the end of the day.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid clock hour %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock minute %q: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// FormatClock renders an offset as HH:MM.
func FormatClock(d time.Duration) string {
	d = d.Truncate(time.Minute)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
