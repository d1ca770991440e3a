// Package main implements the planning loop orchestration.
//
// The Planner runs one planning cycle per tick:
//
//	fetch forecast → staff intervals → group days → optimize each day → store snapshot
//
// Each tick plans the horizon starting at today's local midnight, so the
// stored plan always covers whole calendar days from the start of today.
// Days that cannot be solved are recorded in the snapshot with their status
// and error; they do not stop the other days from being planned.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/shiftcast/cmd/planner/metrics"
	"github.com/HatiCode/shiftcast/pkg/adapters"
	"github.com/HatiCode/shiftcast/pkg/planning"
	"github.com/HatiCode/shiftcast/pkg/shifts"
	"github.com/HatiCode/shiftcast/pkg/staffing"
	"github.com/HatiCode/shiftcast/pkg/storage"
)

// Planner orchestrates the planning loop: fetch → plan → store.
type Planner struct {
	site      string
	source    adapters.Source
	pipeline  *planning.Pipeline
	store     storage.Store
	params    staffing.Params
	templates []shifts.Template
	horizon   time.Duration
	loc       *time.Location
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewPlanner creates a new Planner.
func NewPlanner(
	site string,
	source adapters.Source,
	pipeline *planning.Pipeline,
	store storage.Store,
	params staffing.Params,
	templates []shifts.Template,
	horizon time.Duration,
	loc *time.Location,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Planner{
		site:      site,
		source:    source,
		pipeline:  pipeline,
		store:     store,
		params:    params,
		templates: templates,
		horizon:   horizon,
		loc:       loc,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Run executes the planning loop at regular intervals.
// Blocks until context is canceled.
func (p *Planner) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("starting planning loop", "interval", interval, "horizon", p.horizon)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := p.Tick(ctx); err != nil {
		p.logger.Error("initial plan tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("planning loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				p.logger.Error("plan tick failed", "error", err)
			}
		}
	}
}

// Tick performs one planning cycle.
func (p *Planner) Tick(ctx context.Context) error {
	start := time.Now()
	p.logger.Debug("starting plan tick")

	window := p.window()
	intervals, fetchDuration, err := p.fetch(ctx, window)
	if err != nil {
		p.recordError("source", "fetch_failed")
		return fmt.Errorf("fetch: %w", err)
	}

	snapshot, timings, err := p.pipeline.Run(ctx, planning.Request{
		Site:      p.site,
		Intervals: intervals,
		Params:    p.params,
		Templates: p.templates,
	})
	if p.metrics != nil {
		p.metrics.RecordStaffing(timings.Staffing.Seconds())
		for _, d := range timings.Days {
			p.metrics.RecordSolve(d.Status, d.Duration.Seconds())
		}
	}
	if err != nil {
		p.recordError("planning", "plan_failed")
		return fmt.Errorf("plan: %w", err)
	}

	if err := p.store.Put(ctx, snapshot); err != nil {
		p.recordError("store", "put_failed")
		return fmt.Errorf("store: %w", err)
	}

	failed := 0
	for _, d := range snapshot.Days {
		if d.Status != storage.StatusOptimal {
			failed++
			p.recordError("coverage", d.Status)
		}
	}

	if p.metrics != nil {
		p.metrics.SetPlanAge(0)
		p.metrics.SetPeakRequired(staffing.PeakNet(snapshot.Requirements))
		p.metrics.SetScheduledShifts(snapshot.TotalShifts())
		p.metrics.SetUnreachable(len(snapshot.Unreachable))
	}

	var solveDuration time.Duration
	for _, d := range timings.Days {
		solveDuration += d.Duration
	}

	p.logger.Info("plan tick complete",
		"site", p.site,
		"run_id", snapshot.RunID,
		"intervals", len(intervals),
		"days", len(snapshot.Days),
		"failed_days", failed,
		"shifts", snapshot.TotalShifts(),
		"unreachable", len(snapshot.Unreachable),
		"fetch_ms", fetchDuration.Milliseconds(),
		"staffing_ms", timings.Staffing.Milliseconds(),
		"solve_ms", solveDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// window covers the horizon from local midnight today.
func (p *Planner) window() adapters.Window {
	now := p.now().In(p.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc)
	return adapters.Window{Start: midnight, Horizon: p.horizon, Step: p.params.IntervalLength}
}

// fetch retrieves the volume forecast from the source.
func (p *Planner) fetch(ctx context.Context, w adapters.Window) ([]staffing.ForecastInterval, time.Duration, error) {
	start := time.Now()

	intervals, err := p.source.Fetch(ctx, w)
	if err != nil {
		return nil, 0, err
	}
	if len(intervals) == 0 {
		return nil, 0, errors.New("source returned no intervals")
	}

	duration := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordFetch(duration.Seconds())
	}

	p.logger.Info("fetched forecast",
		"source", p.source.Name(),
		"intervals", len(intervals),
		"window_start", w.Start.Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)

	return intervals, duration, nil
}

func (p *Planner) recordError(component, reason string) {
	if p.metrics != nil {
		p.metrics.RecordError(component, reason)
	}
}
