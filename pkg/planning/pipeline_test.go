package planning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/shiftcast/pkg/coverage"
	"github.com/HatiCode/shiftcast/pkg/ilp"
	"github.com/HatiCode/shiftcast/pkg/planerr"
	"github.com/HatiCode/shiftcast/pkg/shifts"
	"github.com/HatiCode/shiftcast/pkg/staffing"
	"github.com/HatiCode/shiftcast/pkg/storage"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func hourly(volumes ...int) []staffing.ForecastInterval {
	out := make([]staffing.ForecastInterval, len(volumes))
	for i, v := range volumes {
		start := day0.Add(time.Duration(i) * time.Hour)
		out[i] = staffing.ForecastInterval{Start: start, End: start.Add(time.Hour), Volume: v}
	}
	return out
}

func testParams() staffing.Params {
	return staffing.Params{
		AHT:            5 * time.Minute,
		IntervalLength: time.Hour,
		TargetSL:       0.8,
		TargetWait:     20 * time.Second,
		Shrinkage:      0.2,
	}
}

func roundTheClock() []shifts.Template {
	return []shifts.Template{
		{Name: "early", Start: 6 * time.Hour, Duration: 8 * time.Hour},
		{Name: "late", Start: 14 * time.Hour, Duration: 8 * time.Hour},
		{Name: "night", Start: 22 * time.Hour, Duration: 8 * time.Hour},
	}
}

func newPipeline() *Pipeline {
	return &Pipeline{
		Optimizer: coverage.New(ilp.BranchAndBound{}, coverage.WithTimeout(10*time.Second)),
		Masks:     shifts.NewCache(),
		Now:       func() time.Time { return day0 },
	}
}

func TestRun_TwoDays(t *testing.T) {
	volumes := make([]int, 48)
	for i := range volumes {
		volumes[i] = 20 + (i%24)*3
	}

	p := newPipeline()
	snap, timings, err := p.Run(context.Background(), Request{
		Site:      "paris",
		Intervals: hourly(volumes...),
		Params:    testParams(),
		Templates: roundTheClock(),
	})
	require.NoError(t, err)

	assert.Equal(t, "paris", snap.Site)
	assert.NotEmpty(t, snap.RunID)
	assert.Equal(t, day0, snap.GeneratedAt)
	assert.Len(t, snap.Requirements, 48)
	require.Len(t, snap.Days, 2)
	assert.Equal(t, "2025-01-01", snap.Days[0].Date)
	assert.Equal(t, "2025-01-02", snap.Days[1].Date)
	assert.Equal(t, "80/20", snap.Settings.ServiceTarget)
	assert.Equal(t, staffing.DefaultMaxExtraServers, snap.Settings.MaxExtraServers)
	assert.Equal(t, "UTC", snap.Settings.Timezone)
	assert.Len(t, timings.Days, 2)

	masks, err := p.Masks.Masks(roundTheClock(), shifts.UniformDay(time.Hour))
	require.NoError(t, err)
	for _, d := range snap.Days {
		require.Equal(t, storage.StatusOptimal, d.Status, d.Error)
		require.NotNil(t, d.Solution)
		assert.NoError(t, coverage.Verify(d.Required, masks, d.Solution.Counts))
		assert.GreaterOrEqual(t, d.Solution.Total, coverage.LowerBound(d.Required))
	}
	assert.Equal(t, snap.Days[0].Solution.Total+snap.Days[1].Solution.Total, snap.TotalShifts())

	// Both days share a shape, so the second lookup is a cache hit.
	hits, _ := p.Masks.Stats()
	assert.GreaterOrEqual(t, hits, uint64(1))
}

func TestRun_FallBackDay(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	midnight := time.Date(2026, 10, 25, 0, 0, 0, 0, berlin)
	intervals := make([]staffing.ForecastInterval, 25)
	for i := range intervals {
		start := midnight.Add(time.Duration(i) * time.Hour)
		intervals[i] = staffing.ForecastInterval{Start: start, End: start.Add(time.Hour), Volume: 30}
	}

	p := newPipeline()
	p.Location = berlin
	snap, _, err := p.Run(context.Background(), Request{
		Site:      "berlin",
		Intervals: intervals,
		Params:    testParams(),
		Templates: roundTheClock(),
		Strict:    true,
	})
	require.NoError(t, err)
	require.Len(t, snap.Days, 1)
	assert.Equal(t, "2026-10-25", snap.Days[0].Date)
	assert.Equal(t, storage.StatusOptimal, snap.Days[0].Status)
	require.NotNil(t, snap.Days[0].Solution)
	assert.Len(t, snap.Days[0].Solution.Coverage, 25)
}

func TestRun_InfeasibleDayRecorded(t *testing.T) {
	volumes := make([]int, 48)
	volumes[27] = 10

	templates := []shifts.Template{{Name: "day", Start: 6 * time.Hour, Duration: 8 * time.Hour}}
	snap, _, err := newPipeline().Run(context.Background(), Request{
		Site:      "paris",
		Intervals: hourly(volumes...),
		Params:    testParams(),
		Templates: templates,
	})
	require.NoError(t, err)
	require.Len(t, snap.Days, 2)

	assert.Equal(t, storage.StatusOptimal, snap.Days[0].Status)
	assert.Equal(t, 0, snap.Days[0].Solution.Total)

	assert.Equal(t, storage.StatusInfeasible, snap.Days[1].Status)
	assert.Nil(t, snap.Days[1].Solution)
	assert.Contains(t, snap.Days[1].Error, "interval 27")
}

func TestRun_StrictReturnsPlanInterval(t *testing.T) {
	volumes := make([]int, 48)
	volumes[27] = 10

	_, _, err := newPipeline().Run(context.Background(), Request{
		Site:      "paris",
		Intervals: hourly(volumes...),
		Params:    testParams(),
		Templates: []shifts.Template{{Name: "day", Start: 6 * time.Hour, Duration: 8 * time.Hour}},
		Strict:    true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, planerr.ErrInfeasibleCoverage)

	var ie *planerr.InfeasibleError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 27, ie.Interval)
}

func TestRun_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "no intervals", req: Request{Site: "a", Params: testParams(), Templates: roundTheClock()}},
		{name: "negative volume", req: Request{Site: "a", Intervals: hourly(3, -1), Params: testParams(), Templates: roundTheClock()}},
		{name: "shrinkage one", req: Request{Site: "a", Intervals: hourly(3), Params: func() staffing.Params {
			p := testParams()
			p.Shrinkage = 1
			return p
		}(), Templates: roundTheClock()}},
		{name: "zero duration template", req: Request{Site: "a", Intervals: hourly(3), Params: testParams(),
			Templates: []shifts.Template{{Name: "z", Start: 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newPipeline().Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, planerr.ErrInvalidInput)
		})
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newPipeline().Run(ctx, Request{
		Site:      "paris",
		Intervals: hourly(10, 10, 10),
		Params:    testParams(),
		Templates: roundTheClock(),
	})
	assert.Error(t, err)
}

func TestRun_NoOptimizer(t *testing.T) {
	_, _, err := (&Pipeline{}).Run(context.Background(), Request{Intervals: hourly(1), Params: testParams()})
	assert.Error(t, err)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, storage.StatusOptimal, StatusOf(nil))
	assert.Equal(t, storage.StatusInfeasible, StatusOf(&planerr.InfeasibleError{Interval: 1}))
	assert.Equal(t, storage.StatusTimeout, StatusOf(&planerr.SolverError{Timeout: true}))
	assert.Equal(t, storage.StatusFailed, StatusOf(&planerr.SolverError{Cause: errors.New("x")}))
}
