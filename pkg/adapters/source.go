// Package adapters provides forecast sources that retrieve contact volume
// forecasts from external systems and normalize them into ordered
// staffing.ForecastInterval slices.
//
// Available sources:
//   - HTTPSource       - any REST API returning JSON, read with gjson paths
//   - FileSource       - a JSON document on disk, read with the same paths
//   - PrometheusSource - seasonal-naive forecast from a Prometheus or
//     VictoriaMetrics range query, shifted forward by a lookback period
//
// Sources only fetch and shape data. Staffing and coverage are computed by
// the upper layers.
package adapters

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/HatiCode/shiftcast/pkg/planerr"
	"github.com/HatiCode/shiftcast/pkg/staffing"
)

// Window is the span a planning run asks a source to cover.
type Window struct {
	Start   time.Time
	Horizon time.Duration
	// Step is the interval length; every returned interval spans Step.
	Step time.Duration
}

// End returns Start + Horizon.
func (w Window) End() time.Time { return w.Start.Add(w.Horizon) }

// Source is implemented by every forecast source.
type Source interface {
	// Fetch returns the forecast intervals inside w, ordered by start time.
	// It must respect ctx cancellation and never panic.
	Fetch(ctx context.Context, w Window) ([]staffing.ForecastInterval, error)

	// Name returns a short identifier, e.g. "http", "file", "prometheus".
	Name() string
}

// point is a single (timestamp, volume) observation before it is shaped
// into an interval.
type point struct {
	ts    time.Time
	value float64
}

// toIntervals sorts points, keeps those inside w, sums duplicates that land
// on the same interval start, and rounds volumes to whole contacts.
func toIntervals(points []point, w Window) ([]staffing.ForecastInterval, error) {
	if w.Step <= 0 {
		return nil, planerr.Invalid("step", "must be > 0")
	}

	acc := make(map[int64]float64, len(points))
	for i, p := range points {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return nil, planerr.Invalid("volume", "point %d is not finite", i)
		}
		if p.value < 0 {
			return nil, planerr.Invalid("volume", "point %d is negative (%v)", i, p.value)
		}
		ts := p.ts.UTC()
		if !w.Start.IsZero() && (ts.Before(w.Start) || !ts.Before(w.End())) {
			continue
		}
		acc[ts.Unix()] += p.value
	}

	keys := make([]int64, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]staffing.ForecastInterval, 0, len(keys))
	for _, k := range keys {
		start := time.Unix(k, 0).UTC()
		out = append(out, staffing.ForecastInterval{
			Start:  start,
			End:    start.Add(w.Step),
			Volume: int(math.Round(acc[k])),
		})
	}
	return out, nil
}

// parseTimestamp parses a raw timestamp value according to format:
//
//	"rfc3339"    - RFC3339 strings (default)
//	"unix"       - Unix seconds (float or int)
//	"unix_milli" - Unix milliseconds (float or int)
func parseTimestamp(format, raw string, num float64) (time.Time, error) {
	switch format {
	case "", "rfc3339":
		return time.Parse(time.RFC3339, raw)
	case "unix":
		return time.Unix(int64(num), 0).UTC(), nil
	case "unix_milli":
		return time.UnixMilli(int64(num)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

func validTimestampFormat(format string) bool {
	switch format {
	case "", "rfc3339", "unix", "unix_milli":
		return true
	}
	return false
}
