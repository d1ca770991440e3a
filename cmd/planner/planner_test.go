package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/shiftcast/cmd/planner/metrics"
	"github.com/HatiCode/shiftcast/pkg/adapters"
	"github.com/HatiCode/shiftcast/pkg/coverage"
	"github.com/HatiCode/shiftcast/pkg/ilp"
	"github.com/HatiCode/shiftcast/pkg/planning"
	"github.com/HatiCode/shiftcast/pkg/shifts"
	"github.com/HatiCode/shiftcast/pkg/staffing"
	"github.com/HatiCode/shiftcast/pkg/storage"
)

// fakeSource returns a flat forecast over the requested window.
type fakeSource struct {
	mu      sync.Mutex
	volume  int
	err     error
	windows []adapters.Window
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, w adapters.Window) ([]staffing.ForecastInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, w)
	if f.err != nil {
		return nil, f.err
	}
	var out []staffing.ForecastInterval
	for t := w.Start; t.Before(w.End()); t = t.Add(w.Step) {
		out = append(out, staffing.ForecastInterval{Start: t, End: t.Add(w.Step), Volume: f.volume})
	}
	return out, nil
}

func testTemplates() []shifts.Template {
	return []shifts.Template{
		{Name: "early", Start: 6 * time.Hour, Duration: 8 * time.Hour},
		{Name: "late", Start: 14 * time.Hour, Duration: 8 * time.Hour},
		{Name: "night", Start: 22 * time.Hour, Duration: 8 * time.Hour},
	}
}

func testParams() staffing.Params {
	return staffing.Params{
		AHT:            5 * time.Minute,
		IntervalLength: 30 * time.Minute,
		TargetSL:       0.8,
		TargetWait:     20 * time.Second,
		Shrinkage:      0.25,
	}
}

func newTestPlanner(t *testing.T, src adapters.Source, templates []shifts.Template, horizon time.Duration) (*Planner, *storage.MemoryStore, *metrics.Metrics) {
	t.Helper()
	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), "paris", "fake")
	pipeline := &planning.Pipeline{
		Optimizer: coverage.New(ilp.BranchAndBound{}, coverage.WithTimeout(10*time.Second)),
		Masks:     shifts.NewCache(),
		Logger:    logger,
	}

	p := NewPlanner("paris", src, pipeline, store, testParams(), templates, horizon, time.UTC, logger, m)
	p.now = func() time.Time { return time.Date(2025, 1, 1, 13, 37, 0, 0, time.UTC) }
	return p, store, m
}

func TestNewPlanner_NilLogger(t *testing.T) {
	p := NewPlanner("paris", &fakeSource{}, &planning.Pipeline{}, storage.NewMemoryStore(),
		testParams(), nil, 24*time.Hour, nil, nil, nil)

	if p.logger == nil {
		t.Error("logger should not be nil when nil is passed")
	}
	if p.loc != time.UTC {
		t.Errorf("loc = %v, want UTC", p.loc)
	}
}

func TestPlanner_Tick(t *testing.T) {
	src := &fakeSource{volume: 50}
	p, store, m := newTestPlanner(t, src, testTemplates(), 24*time.Hour)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if len(src.windows) != 1 {
		t.Fatalf("fetches = %d, want 1", len(src.windows))
	}
	w := src.windows[0]
	if !w.Start.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("window start = %v, want midnight", w.Start)
	}
	if w.Step != 30*time.Minute || w.Horizon != 24*time.Hour {
		t.Errorf("window = %+v", w)
	}

	snap, found, err := store.GetLatest(context.Background(), "paris")
	if err != nil || !found {
		t.Fatalf("GetLatest() found=%v err=%v", found, err)
	}
	if len(snap.Requirements) != 48 {
		t.Errorf("requirements = %d, want 48", len(snap.Requirements))
	}
	for _, r := range snap.Requirements {
		if r.Raw != 12 || r.Net != 16 {
			t.Fatalf("raw/net = %d/%d, want 12/16", r.Raw, r.Net)
		}
	}
	if len(snap.Days) != 1 || snap.Days[0].Status != storage.StatusOptimal {
		t.Fatalf("days = %+v", snap.Days)
	}
	// Flat demand of 16 round the clock needs 16 of each 8h shift.
	if got := snap.TotalShifts(); got != 48 {
		t.Errorf("total shifts = %d, want 48", got)
	}

	if got := testutil.ToFloat64(m.PeakRequiredAgents); got != 16 {
		t.Errorf("peak metric = %v, want 16", got)
	}
	if got := testutil.ToFloat64(m.ScheduledShifts); got != 48 {
		t.Errorf("scheduled metric = %v, want 48", got)
	}
}

func TestPlanner_Tick_InfeasibleDayIsStored(t *testing.T) {
	src := &fakeSource{volume: 10}
	templates := []shifts.Template{{Name: "day", Start: 9 * time.Hour, Duration: 8 * time.Hour}}
	p, store, m := newTestPlanner(t, src, templates, 24*time.Hour)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	snap, found, _ := store.GetLatest(context.Background(), "paris")
	if !found {
		t.Fatal("snapshot should be stored even when a day is infeasible")
	}
	if snap.Days[0].Status != storage.StatusInfeasible || snap.Days[0].Error == "" {
		t.Errorf("day = %+v", snap.Days[0])
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("coverage", storage.StatusInfeasible)); got != 1 {
		t.Errorf("coverage errors = %v, want 1", got)
	}
}

func TestPlanner_Tick_FetchError(t *testing.T) {
	src := &fakeSource{err: errors.New("forecast service down")}
	p, store, m := newTestPlanner(t, src, testTemplates(), 24*time.Hour)

	if err := p.Tick(context.Background()); err == nil {
		t.Fatal("Tick() should fail when the source fails")
	}
	if sites, _ := store.Sites(context.Background()); len(sites) != 0 {
		t.Errorf("nothing should be stored after a failed fetch, got %v", sites)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("source", "fetch_failed")); got != 1 {
		t.Errorf("source errors = %v, want 1", got)
	}
}

func TestPlanner_Tick_EmptyForecast(t *testing.T) {
	src := &fakeSource{volume: 5}
	p, _, _ := newTestPlanner(t, src, testTemplates(), 0)

	if err := p.Tick(context.Background()); err == nil {
		t.Fatal("Tick() should fail for an empty forecast")
	}
}

func TestPlanner_Run_ContextCancellation(t *testing.T) {
	src := &fakeSource{volume: 5}
	p, _, _ := newTestPlanner(t, src, testTemplates(), 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, time.Hour)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
