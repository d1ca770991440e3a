package staffing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseServiceTarget parses a service level target written as
// "<level>/<wait>", the usual contact-centre notation.
//
// Examples:
//   - "80/20"     → 0.80 within 20s
//   - "90/15s"    → 0.90 within 15s
//   - "0.8/20"    → 0.80 within 20s
//   - "95/1m"     → 0.95 within 60s
//
// A level with a "%" suffix is a percentage. Without one, levels up to 1
// are fractions and levels from 2 to 100 are percentages, so "1/20" means
// 100% and a 1% target is written "1%/20". Levels strictly between 1 and 2
// are rejected as ambiguous. A bare wait is read as seconds.
func ParseServiceTarget(s string) (float64, time.Duration, error) {
	s = strings.TrimSpace(s)
	levelStr, waitStr, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid service target %q: want <level>/<wait>", s)
	}

	levelStr = strings.TrimSpace(levelStr)
	levelStr, percent := strings.CutSuffix(levelStr, "%")
	level, err := strconv.ParseFloat(levelStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid service level %q: %w", levelStr, err)
	}
	switch {
	case level < 0:
		return 0, 0, fmt.Errorf("service level %v cannot be negative", level)
	case level > 100:
		return 0, 0, fmt.Errorf("service level %v out of range [0, 100]", level)
	case percent || level >= 2:
		level /= 100
	case level > 1:
		return 0, 0, fmt.Errorf("service level %v is ambiguous: write a fraction up to 1 or a percentage with %%", level)
	}

	waitStr = strings.TrimSpace(waitStr)
	var wait time.Duration
	if secs, err := strconv.ParseFloat(waitStr, 64); err == nil {
		wait = time.Duration(secs * float64(time.Second))
	} else {
		wait, err = time.ParseDuration(waitStr)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid wait %q: %w", waitStr, err)
		}
	}
	if wait < 0 {
		return 0, 0, fmt.Errorf("wait %v cannot be negative", wait)
	}

	return level, wait, nil
}

// FormatServiceTarget renders a target back to "80/20" notation. Levels
// under 2% keep the "%" suffix so they parse back unchanged.
func FormatServiceTarget(level float64, wait time.Duration) string {
	pct := math.Round(level*1000) / 10
	suffix := ""
	if pct > 0 && pct < 2 {
		suffix = "%"
	}
	return fmt.Sprintf("%s%s/%s",
		strconv.FormatFloat(pct, 'f', -1, 64),
		suffix,
		strconv.FormatFloat(wait.Seconds(), 'f', -1, 64),
	)
}
