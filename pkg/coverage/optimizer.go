// Package coverage selects the fewest shift instances, drawn from a catalog
// of shift templates, whose combined coverage meets the headcount required
// in every interval of a day.
//
// The search itself is delegated to an ilp.Solver; this package builds the
// program, checks that it can be satisfied at all, and turns the solver's
// outcome into a Solution or a planerr error.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/shiftcast/pkg/ilp"
	"github.com/HatiCode/shiftcast/pkg/planerr"
	"github.com/HatiCode/shiftcast/pkg/shifts"
)

// DefaultTimeout bounds a single solve when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Solution maps template names to instance counts.
type Solution struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
	// Coverage is the headcount provided per interval.
	Coverage []int `json:"coverage"`
	// Surplus is Coverage minus the requirement per interval.
	Surplus []int `json:"surplus"`
	Nodes   int   `json:"nodes"`
}

// Optimizer solves shift coverage programs. It holds only configuration and
// may be shared between goroutines.
type Optimizer struct {
	solver       ilp.Solver
	timeout      time.Duration
	maxInstances int
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithTimeout bounds each solve. Values <= 0 select DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Optimizer) { o.timeout = d }
}

// WithMaxInstances caps the instance count of every template. 0 leaves
// templates unbounded.
func WithMaxInstances(n int) Option {
	return func(o *Optimizer) { o.maxInstances = n }
}

// New creates an Optimizer. A nil solver selects ilp.BranchAndBound.
func New(solver ilp.Solver, opts ...Option) *Optimizer {
	if solver == nil {
		solver = ilp.BranchAndBound{}
	}
	o := &Optimizer{solver: solver, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.maxInstances < 0 {
		o.maxInstances = 0
	}
	return o
}

// Solve returns the minimum-total set of template instances covering
// required. Errors:
//   - planerr.ErrInvalidInput when inputs are malformed
//   - *planerr.InfeasibleError when some interval cannot be covered; the
//     solver is not invoked when this is detectable up front
//   - *planerr.SolverError (ErrSolverTimeout or ErrSolverFailed) when the
//     solver stops without a proven optimum
func (o *Optimizer) Solve(ctx context.Context, required []int, masks shifts.MaskSet) (Solution, error) {
	if err := validate(required, masks); err != nil {
		return Solution{}, err
	}
	if err := o.checkCoverable(required, masks); err != nil {
		return Solution{}, err
	}

	prob, vars := o.buildProblem(required, masks)
	if len(vars) == 0 {
		// Nothing is required anywhere.
		return o.finish(required, masks, map[string]int{}, 0)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	res, err := o.solver.Solve(ctx, prob)
	switch {
	case err == nil && res.Status == ilp.StatusOptimal:
		counts := countsFor(masks, vars, res.X)
		return o.finish(required, masks, counts, res.Nodes)

	case errors.Is(err, ilp.ErrInfeasible) || res.Status == ilp.StatusInfeasible:
		return Solution{}, &planerr.InfeasibleError{Interval: -1, Reason: "solver proved the catalog cannot meet requirements"}

	case errors.Is(err, ilp.ErrTimeout) || res.Status == ilp.StatusTimeout:
		se := &planerr.SolverError{Timeout: true, Cause: err}
		if res.HasSolution() {
			se.Incumbent = countsFor(masks, vars, res.X)
		}
		return Solution{}, se

	default:
		if err == nil {
			err = fmt.Errorf("unexpected solver status %s", res.Status)
		}
		se := &planerr.SolverError{Cause: err}
		if res.HasSolution() {
			se.Incumbent = countsFor(masks, vars, res.X)
		}
		return Solution{}, se
	}
}

func validate(required []int, masks shifts.MaskSet) error {
	if len(required) == 0 {
		return planerr.Invalid("requirements", "list is empty")
	}
	for i, r := range required {
		if r < 0 {
			return planerr.Invalid("requirements", "interval %d is negative (%d)", i, r)
		}
	}
	if len(masks.Names) != len(masks.Masks) {
		return planerr.Invalid("masks", "%d names for %d masks", len(masks.Names), len(masks.Masks))
	}
	for _, name := range masks.Names {
		m, ok := masks.Masks[name]
		if !ok {
			return planerr.Invalid("masks", "no mask for template %q", name)
		}
		if len(m) != len(required) {
			return planerr.Invalid("masks", "template %q spans %d intervals, want %d", name, len(m), len(required))
		}
	}
	return nil
}

// checkCoverable fails fast when the catalog cannot reach an interval's
// requirement even with every covering template at its instance cap.
func (o *Optimizer) checkCoverable(required []int, masks shifts.MaskSet) error {
	for i, r := range required {
		if r == 0 {
			continue
		}
		covering := masks.Covering(i)
		if len(covering) == 0 {
			return &planerr.InfeasibleError{Interval: i, Required: r, Reason: "no template covers it"}
		}
		if o.maxInstances > 0 && len(covering)*o.maxInstances < r {
			return &planerr.InfeasibleError{
				Interval: i,
				Required: r,
				Reason:   fmt.Sprintf("%d covering templates capped at %d instances each", len(covering), o.maxInstances),
			}
		}
	}
	return nil
}

// buildProblem expresses the covering program as data. Templates that cover
// no interval with a positive requirement are left out; vars maps program
// columns back to template names.
func (o *Optimizer) buildProblem(required []int, masks shifts.MaskSet) (ilp.Problem, []string) {
	var vars []string
	var upper []float64
	for _, name := range masks.Names {
		peak := 0
		for i, on := range masks.Masks[name] {
			if on && required[i] > peak {
				peak = required[i]
			}
		}
		if peak == 0 {
			continue
		}
		u := peak
		if o.maxInstances > 0 && o.maxInstances < u {
			u = o.maxInstances
		}
		vars = append(vars, name)
		upper = append(upper, float64(u))
	}

	prob := ilp.Problem{
		Cost:  make([]float64, len(vars)),
		Rows:  make([][]float64, 0, len(required)),
		RHS:   make([]float64, 0, len(required)),
		Upper: upper,
	}
	for j := range prob.Cost {
		prob.Cost[j] = 1
	}
	for i, r := range required {
		if r == 0 {
			continue
		}
		row := make([]float64, len(vars))
		for j, name := range vars {
			if masks.Masks[name][i] {
				row[j] = 1
			}
		}
		prob.Rows = append(prob.Rows, row)
		prob.RHS = append(prob.RHS, float64(r))
	}
	return prob, vars
}

func countsFor(masks shifts.MaskSet, vars []string, x []int) map[string]int {
	counts := make(map[string]int, len(masks.Names))
	for _, name := range masks.Names {
		counts[name] = 0
	}
	for j, name := range vars {
		if j < len(x) {
			counts[name] = x[j]
		}
	}
	return counts
}

func (o *Optimizer) finish(required []int, masks shifts.MaskSet, counts map[string]int, nodes int) (Solution, error) {
	for _, name := range masks.Names {
		if _, ok := counts[name]; !ok {
			counts[name] = 0
		}
	}

	coverage := masks.Coverage(counts)
	if len(masks.Names) == 0 {
		coverage = make([]int, len(required))
	}
	sol := Solution{
		Counts:   counts,
		Coverage: coverage,
		Surplus:  make([]int, len(required)),
		Nodes:    nodes,
	}
	for _, c := range counts {
		sol.Total += c
	}
	for i, r := range required {
		sol.Surplus[i] = sol.Coverage[i] - r
		if sol.Surplus[i] < 0 {
			return Solution{}, &planerr.SolverError{
				Cause: fmt.Errorf("solution leaves interval %d short by %d", i, -sol.Surplus[i]),
			}
		}
	}
	return sol, nil
}

// Verify checks that counts cover required under masks.
func Verify(required []int, masks shifts.MaskSet, counts map[string]int) error {
	cov := masks.Coverage(counts)
	if len(cov) != len(required) {
		return planerr.Invalid("masks", "span %d intervals, want %d", len(cov), len(required))
	}
	for i, r := range required {
		if cov[i] < r {
			return &planerr.InfeasibleError{Interval: i, Required: r, Reason: fmt.Sprintf("covered by %d", cov[i])}
		}
	}
	return nil
}

// LowerBound returns the largest single-interval requirement, a trivial
// lower bound on Total.
func LowerBound(required []int) int {
	lb := 0
	for _, r := range required {
		lb = max(lb, r)
	}
	return lb
}
