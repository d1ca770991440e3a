// Package planning chains the planning stages into one run:
//
//	staff → group by day → build masks → optimize each day
//
// It is shared by the periodic planner loop and the synchronous HTTP API.
package planning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/shiftcast/pkg/coverage"
	"github.com/HatiCode/shiftcast/pkg/planerr"
	"github.com/HatiCode/shiftcast/pkg/shifts"
	"github.com/HatiCode/shiftcast/pkg/staffing"
	"github.com/HatiCode/shiftcast/pkg/storage"
)

// Request is the input of one planning run.
type Request struct {
	Site      string
	Intervals []staffing.ForecastInterval
	Params    staffing.Params
	Templates []shifts.Template

	// Strict aborts the run on the first day that cannot be solved and
	// returns that day's error. Otherwise failures are recorded per day.
	Strict bool
}

// DayTiming is the solve duration of one day.
type DayTiming struct {
	Date     string
	Status   string
	Duration time.Duration
}

// Timings reports how long each stage of a run took.
type Timings struct {
	Staffing time.Duration
	Days     []DayTiming
	Total    time.Duration
}

// Pipeline runs planning requests. Fields other than Optimizer are optional.
type Pipeline struct {
	Optimizer *coverage.Optimizer
	Masks     *shifts.Cache
	// Location defines calendar days; UTC when nil.
	Location *time.Location
	// MaxInstances is copied into snapshot settings.
	MaxInstances int
	// Parallelism bounds concurrent day solves; GOMAXPROCS when <= 0.
	Parallelism int
	Logger      *slog.Logger
	// Now is used for GeneratedAt; time.Now when nil.
	Now func() time.Time
}

// Run plans req and returns the resulting snapshot.
func (p *Pipeline) Run(ctx context.Context, req Request) (storage.Snapshot, Timings, error) {
	start := time.Now()
	var timings Timings

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	cache := p.Masks
	if cache == nil {
		cache = shifts.NewCache()
	}
	if p.Optimizer == nil {
		return storage.Snapshot{}, timings, errors.New("planning: pipeline has no optimizer")
	}

	staffStart := time.Now()
	reqs, err := staffing.Plan(ctx, req.Intervals, req.Params)
	timings.Staffing = time.Since(staffStart)
	if err != nil {
		return storage.Snapshot{}, timings, fmt.Errorf("staffing: %w", err)
	}

	groups, err := staffing.GroupByDay(reqs, loc)
	if err != nil {
		return storage.Snapshot{}, timings, fmt.Errorf("group days: %w", err)
	}

	masks := make([]shifts.MaskSet, len(groups))
	for i, g := range groups {
		m, err := cache.Masks(req.Templates, g.Day)
		if err != nil {
			return storage.Snapshot{}, timings, fmt.Errorf("masks for %s: %w", g.Date.Format(time.DateOnly), err)
		}
		masks[i] = m
	}

	days := make([]storage.DayPlan, len(groups))
	timings.Days = make([]DayTiming, len(groups))

	limit := p.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range groups {
		g.Go(func() error {
			day := groups[i]
			date := day.Date.Format(time.DateOnly)

			solveStart := time.Now()
			sol, err := p.Optimizer.Solve(gctx, day.Needed, masks[i])
			elapsed := time.Since(solveStart)

			plan := storage.DayPlan{Date: date, Required: day.Needed}
			if err == nil {
				plan.Status = storage.StatusOptimal
				plan.Solution = &sol
			} else {
				err = remapInterval(err, day.Index)
				plan.Status = StatusOf(err)
				plan.Error = err.Error()
				var se *planerr.SolverError
				if errors.As(err, &se) && se.HasIncumbent() {
					plan.Incumbent = se.Incumbent
				}
				logger.Warn("day not solved", "site", req.Site, "date", date, "status", plan.Status, "error", err)
			}
			days[i] = plan
			timings.Days[i] = DayTiming{Date: date, Status: plan.Status, Duration: elapsed}

			if err != nil && req.Strict {
				return fmt.Errorf("day %s: %w", date, err)
			}
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		timings.Total = time.Since(start)
		return storage.Snapshot{}, timings, err
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	snap := storage.Snapshot{
		Site:         req.Site,
		RunID:        uuid.NewString(),
		GeneratedAt:  now(),
		Settings:     p.settings(req.Params, loc),
		Requirements: reqs,
		Days:         days,
		Unreachable:  staffing.Unreachable(reqs),
	}
	timings.Total = time.Since(start)
	return snap, timings, nil
}

func (p *Pipeline) settings(params staffing.Params, loc *time.Location) storage.Settings {
	maxExtra := params.MaxExtraServers
	if maxExtra <= 0 {
		maxExtra = staffing.DefaultMaxExtraServers
	}
	return storage.Settings{
		AHTSeconds:      params.AHT.Seconds(),
		IntervalSeconds: params.IntervalLength.Seconds(),
		ServiceTarget:   staffing.FormatServiceTarget(params.TargetSL, params.TargetWait),
		Shrinkage:       params.Shrinkage,
		MaxExtraServers: maxExtra,
		MaxInstances:    p.MaxInstances,
		Timezone:        loc.String(),
	}
}

// StatusOf classifies a day's solve error.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return storage.StatusOptimal
	case errors.Is(err, planerr.ErrInfeasibleCoverage):
		return storage.StatusInfeasible
	case errors.Is(err, planerr.ErrSolverTimeout):
		return storage.StatusTimeout
	default:
		return storage.StatusFailed
	}
}

// remapInterval rewrites a day-local infeasible interval to its position in
// the whole plan.
func remapInterval(err error, index []int) error {
	var ie *planerr.InfeasibleError
	if !errors.As(err, &ie) || ie.Interval < 0 || ie.Interval >= len(index) {
		return err
	}
	out := *ie
	out.Interval = index[ie.Interval]
	return &out
}
