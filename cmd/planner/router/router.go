// Package router configures HTTP routes for the planner's HTTP API.
//
// Routes configured:
//   - GET /plan/current?site=<name> - Latest stored plan snapshot
//   - GET /plan/sites - Sites with a stored plan
//   - POST /plan - Plan a request body synchronously (not stored)
//   - GET /shifts - The loaded shift catalog
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Snapshots older than the stale threshold carry an X-Shiftcast-Stale header.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/shiftcast/cmd/planner/config"
	"github.com/HatiCode/shiftcast/cmd/planner/metrics"
	"github.com/HatiCode/shiftcast/pkg/httpx"
	"github.com/HatiCode/shiftcast/pkg/planerr"
	"github.com/HatiCode/shiftcast/pkg/planning"
	"github.com/HatiCode/shiftcast/pkg/shifts"
	"github.com/HatiCode/shiftcast/pkg/staffing"
	"github.com/HatiCode/shiftcast/pkg/storage"
)

// StaleHeader marks snapshots older than the stale threshold.
const StaleHeader = "X-Shiftcast-Stale"

// maxPlanBody bounds POST /plan request bodies.
const maxPlanBody = 4 << 20

var siteNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// Deps are the collaborators the routes need.
type Deps struct {
	Store      storage.Store
	Pipeline   *planning.Pipeline
	Site       string
	Params     staffing.Params
	Templates  []shifts.Template
	StaleAfter time.Duration
	// Check backs /healthz; always healthy when nil.
	Check func() error
	// Metrics, when set, tracks the age of Site's plan as it is served.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// SetupRoutes configures HTTP endpoints for the planner.
func SetupRoutes(d Deps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	check := d.Check
	if check == nil {
		check = func() error { return nil }
	}

	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandlerWithCheck(check))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /plan/current", handleGetPlan(d))
	mux.HandleFunc("GET /plan/sites", handleSites(d))
	mux.HandleFunc("POST /plan", handlePlan(d))
	mux.HandleFunc("GET /shifts", handleShifts(d))

	return mux
}

// handleGetPlan returns a handler for GET /plan/current?site=<name>.
func handleGetPlan(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		site := r.URL.Query().Get("site")
		if site == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "site parameter required")
			return
		}
		if !siteNameRegex.MatchString(site) {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid site name format")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := d.Store.GetLatest(ctx, site)
		if err != nil {
			d.Logger.Error("failed to get plan", "site", site, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("plan not found for site %q", site))
			return
		}

		age := time.Since(snapshot.GeneratedAt)
		if d.StaleAfter > 0 && age > d.StaleAfter {
			w.Header().Set(StaleHeader, "true")
		}
		if d.Metrics != nil && site == d.Site {
			d.Metrics.SetPlanAge(age.Seconds())
		}

		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleSites returns a handler for GET /plan/sites. Stores that cannot
// enumerate their contents answer 501.
func handleSites(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lister, ok := d.Store.(storage.Lister)
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusNotImplemented, "store cannot list sites")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		sites, err := lister.Sites(ctx)
		if err != nil {
			d.Logger.Error("failed to list sites", "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if sites == nil {
			sites = []string{}
		}
		if err := httpx.WriteJSON(w, http.StatusOK, map[string]any{"sites": sites}); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// PlanRequest is the body of POST /plan. Params fields left out fall back
// to the configured values, and an empty Shifts list uses the loaded catalog.
type PlanRequest struct {
	Site      string                      `json:"site,omitempty"`
	Intervals []staffing.ForecastInterval `json:"intervals"`
	Params    *PlanParams                 `json:"params,omitempty"`
	Shifts    []config.ShiftEntry         `json:"shifts,omitempty"`
}

// PlanParams overrides staffing parameters for one request.
type PlanParams struct {
	AHTSeconds      *float64 `json:"ahtSeconds,omitempty"`
	IntervalSeconds *float64 `json:"intervalSeconds,omitempty"`
	ServiceTarget   *string  `json:"serviceTarget,omitempty"`
	Shrinkage       *float64 `json:"shrinkage,omitempty"`
	MaxExtraServers *int     `json:"maxExtraServers,omitempty"`
}

// apply overlays the request fields on base.
func (pp *PlanParams) apply(base staffing.Params) (staffing.Params, error) {
	p := base
	if pp == nil {
		return p, nil
	}
	if pp.AHTSeconds != nil {
		p.AHT = seconds(*pp.AHTSeconds)
	}
	if pp.IntervalSeconds != nil {
		p.IntervalLength = seconds(*pp.IntervalSeconds)
	}
	if pp.ServiceTarget != nil {
		level, wait, err := staffing.ParseServiceTarget(*pp.ServiceTarget)
		if err != nil {
			return staffing.Params{}, planerr.Invalid("serviceTarget", "%v", err)
		}
		p.TargetSL, p.TargetWait = level, wait
	}
	if pp.Shrinkage != nil {
		p.Shrinkage = *pp.Shrinkage
	}
	if pp.MaxExtraServers != nil {
		p.MaxExtraServers = *pp.MaxExtraServers
	}
	return p, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// handlePlan returns a handler for POST /plan[?partial=true]. By default the
// first unsolvable day fails the request; partial=true records failures per
// day instead.
func handlePlan(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body PlanRequest
		if err := httpx.DecodeJSON(r, &body, maxPlanBody); err != nil {
			httpx.WritePlanError(w, err)
			return
		}

		partial := false
		if v := r.URL.Query().Get("partial"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				httpx.WritePlanError(w, planerr.Invalid("partial", "%q is not a boolean", v))
				return
			}
			partial = b
		}

		site := body.Site
		if site == "" {
			site = d.Site
		}

		params, err := body.Params.apply(d.Params)
		if err != nil {
			httpx.WritePlanError(w, err)
			return
		}

		templates := d.Templates
		if len(body.Shifts) > 0 {
			templates = make([]shifts.Template, 0, len(body.Shifts))
			for i, e := range body.Shifts {
				t, err := e.Template()
				if err != nil {
					httpx.WritePlanError(w, planerr.Invalid("shifts", "entry %d: %v", i, err))
					return
				}
				templates = append(templates, t)
			}
		}

		snapshot, timings, err := d.Pipeline.Run(r.Context(), planning.Request{
			Site:      site,
			Intervals: body.Intervals,
			Params:    params,
			Templates: templates,
			Strict:    !partial,
		})
		if err != nil {
			d.Logger.Warn("plan request failed", "site", site, "status", httpx.StatusFor(err), "error", err)
			httpx.WritePlanError(w, err)
			return
		}

		d.Logger.Info("plan request complete",
			"site", site,
			"intervals", len(body.Intervals),
			"days", len(snapshot.Days),
			"shifts", snapshot.TotalShifts(),
			"total_ms", timings.Total.Milliseconds(),
		)
		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// ShiftView is one catalog entry as served by GET /shifts.
type ShiftView struct {
	Name            string `json:"name"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"durationMinutes"`
	Overnight       bool   `json:"overnight"`
}

func handleShifts(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views := make([]ShiftView, len(d.Templates))
		for i, t := range d.Templates {
			views[i] = ShiftView{
				Name:            t.Name,
				Start:           shifts.FormatClock(t.Start),
				End:             shifts.FormatClock(t.End() % shifts.DayLength),
				DurationMinutes: int(t.Duration.Minutes()),
				Overnight:       t.Wraps(shifts.DayLength),
			}
		}
		if err := httpx.WriteJSON(w, http.StatusOK, map[string]any{"shifts": views}); err != nil {
			d.Logger.Error("failed to write JSON response", "error", err)
		}
	}
}
