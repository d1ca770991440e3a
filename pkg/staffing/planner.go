// Package staffing converts forecasted contact volume into per-interval
// headcount using the Erlang C model (service level target, safety bound,
// shrinkage).
package staffing

import (
	"context"
	"errors"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/shiftcast/pkg/erlang"
	"github.com/HatiCode/shiftcast/pkg/planerr"
)

// DefaultMaxExtraServers bounds the linear search above ceil(a).
const DefaultMaxExtraServers = 200

// shrinkEpsilon keeps exact quotients such as 12/0.75 from being pushed to
// the next integer by float rounding.
const shrinkEpsilon = 1e-9

// ForecastInterval is one slice of forecast demand.
type ForecastInterval struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Volume int       `json:"volume"`
}

// Requirement is the staffing derived for a single ForecastInterval.
// Queue statistics describe the interval staffed with Raw servers; ASA is -1
// when Raw servers leave the queue unstable.
type Requirement struct {
	Interval     ForecastInterval `json:"interval"`
	Raw          int              `json:"raw"`
	Net          int              `json:"net"`
	OfferedLoad  float64          `json:"offeredLoad"`
	ServiceLevel float64          `json:"serviceLevel"`
	ASA          float64          `json:"asaSeconds"`
	Occupancy    float64          `json:"occupancy"`

	// Unreachable is set when the search hit its safety bound before
	// meeting the target. Raw then holds the bound, not a true answer.
	Unreachable bool `json:"unreachable,omitempty"`
}

// Params defines how forecast volume is translated into servers.
type Params struct {
	// AHT is the average handle time of one contact. Must be > 0.
	AHT time.Duration

	// IntervalLength is the length of one forecast interval. Must be > 0.
	IntervalLength time.Duration

	// TargetSL is the fraction of contacts to answer within TargetWait, in [0,1].
	TargetSL float64

	// TargetWait is the answer-time threshold of the service level.
	TargetWait time.Duration

	// Shrinkage is the fraction of paid time unavailable for contacts, in [0,1).
	Shrinkage float64

	// MaxExtraServers caps the search at ceil(a)+MaxExtraServers.
	// If <= 0, defaults to DefaultMaxExtraServers.
	MaxExtraServers int
}

// Validate reports the first invalid field as a planerr.InputError.
func (p Params) Validate() error {
	if p.AHT <= 0 {
		return planerr.Invalid("aht", "must be > 0, got %v", p.AHT)
	}
	if p.IntervalLength <= 0 {
		return planerr.Invalid("intervalLength", "must be > 0, got %v", p.IntervalLength)
	}
	if p.TargetSL < 0 || p.TargetSL > 1 || math.IsNaN(p.TargetSL) {
		return planerr.Invalid("targetServiceLevel", "must be in [0,1], got %v", p.TargetSL)
	}
	if p.TargetWait < 0 {
		return planerr.Invalid("targetWait", "cannot be negative, got %v", p.TargetWait)
	}
	if p.Shrinkage < 0 || p.Shrinkage >= 1 || math.IsNaN(p.Shrinkage) {
		return planerr.Invalid("shrinkage", "must be in [0,1), got %v", p.Shrinkage)
	}
	return nil
}

func (p Params) maxExtra() int {
	if p.MaxExtraServers <= 0 {
		return DefaultMaxExtraServers
	}
	return p.MaxExtraServers
}

// RequiredServers returns the smallest server count whose service level
// meets p.TargetSL. Zero volume needs zero servers. When the search exceeds
// its bound, the bound is returned together with planerr.ErrTargetUnreachable.
// A target of 1 is never met by a finite server count once there is load.
func RequiredServers(volume int, p Params) (int, error) {
	if volume < 0 {
		return 0, planerr.Invalid("volume", "cannot be negative, got %d", volume)
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if volume == 0 {
		return 0, nil
	}

	aht := p.AHT.Seconds()
	target := p.TargetWait.Seconds()
	a := erlang.OfferedLoad(volume, aht, p.IntervalLength.Seconds())

	c0 := int(math.Ceil(a))
	if c0 < 1 {
		c0 = 1
	}
	limit := c0 + p.maxExtra()
	if p.TargetSL >= 1 {
		return limit, planerr.ErrTargetUnreachable
	}

	for c := c0; c <= limit; c++ {
		sl := erlang.ServiceLevel(erlang.WaitProbability(a, c), c, a, aht, target)
		if sl >= p.TargetSL {
			return c, nil
		}
	}
	return limit, planerr.ErrTargetUnreachable
}

// ApplyShrinkage inflates c servers to cover time lost to shrinkage:
// ceil(c / (1 - shrinkage)).
func ApplyShrinkage(c int, shrinkage float64) (int, error) {
	if shrinkage < 0 || shrinkage >= 1 || math.IsNaN(shrinkage) {
		return 0, planerr.Invalid("shrinkage", "must be in [0,1), got %v", shrinkage)
	}
	if c <= 0 {
		return 0, nil
	}
	if shrinkage == 0 {
		return c, nil
	}
	return int(math.Ceil(float64(c)/(1-shrinkage) - shrinkEpsilon)), nil
}

// Evaluate computes the full Requirement for one interval.
func Evaluate(iv ForecastInterval, p Params) (Requirement, error) {
	raw, err := RequiredServers(iv.Volume, p)
	unreachable := errors.Is(err, planerr.ErrTargetUnreachable)
	if err != nil && !unreachable {
		return Requirement{}, err
	}

	net, err := ApplyShrinkage(raw, p.Shrinkage)
	if err != nil {
		return Requirement{}, err
	}

	req := Requirement{
		Interval:    iv,
		Raw:         raw,
		Net:         net,
		Unreachable: unreachable,
	}
	if raw > 0 {
		aht := p.AHT.Seconds()
		a := erlang.OfferedLoad(iv.Volume, aht, p.IntervalLength.Seconds())
		pw := erlang.WaitProbability(a, raw)
		req.OfferedLoad = a
		req.ServiceLevel = erlang.ServiceLevel(pw, raw, a, aht, p.TargetWait.Seconds())
		req.ASA = erlang.ASA(pw, raw, a, aht)
		if math.IsInf(req.ASA, 1) {
			req.ASA = -1
		}
		req.Occupancy = erlang.Occupancy(a, raw)
	} else {
		req.ServiceLevel = 1
	}
	return req, nil
}

// Plan evaluates every interval in parallel and returns requirements in
// input order. Intervals whose target is unreachable are flagged, not
// reported as errors.
func Plan(ctx context.Context, intervals []ForecastInterval, p Params) ([]Requirement, error) {
	if len(intervals) == 0 {
		return nil, planerr.Invalid("intervals", "list is empty")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for i, iv := range intervals {
		if iv.Volume < 0 {
			return nil, planerr.Invalid("volume", "interval %d has negative volume %d", i, iv.Volume)
		}
		if !iv.End.IsZero() && iv.End.Before(iv.Start) {
			return nil, planerr.Invalid("interval", "interval %d ends before it starts", i)
		}
	}

	out := make([]Requirement, len(intervals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range intervals {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			req, err := Evaluate(intervals[i], p)
			if err != nil {
				return err
			}
			out[i] = req
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Unreachable returns the indexes of requirements flagged as unreachable.
func Unreachable(reqs []Requirement) []int {
	var idx []int
	for i, r := range reqs {
		if r.Unreachable {
			idx = append(idx, i)
		}
	}
	return idx
}

// PeakNet returns the largest net requirement.
func PeakNet(reqs []Requirement) int {
	peak := 0
	for _, r := range reqs {
		if r.Net > peak {
			peak = r.Net
		}
	}
	return peak
}
