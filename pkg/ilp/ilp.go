// Package ilp defines the integer-program boundary used by the coverage
// optimizer and a branch-and-bound Solver whose linear relaxations are solved
// by gonum's simplex implementation.
//
// Problems are expressed as plain data:
//
//	minimize    Cost·x
//	subject to  Rows·x >= RHS
//	            0 <= x <= Upper, x integer
//
// Solvers report one of three observable outcomes: an optimal solution,
// proven infeasibility (ErrInfeasible), or an early stop (ErrTimeout when the
// context ends, ErrNodeLimit when the search budget runs out) together with
// the best incumbent found so far.
package ilp

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInfeasible is returned when no integer point satisfies the constraints.
	ErrInfeasible = errors.New("ilp: problem is infeasible")

	// ErrTimeout is returned when the context ends before optimality is proven.
	ErrTimeout = errors.New("ilp: timed out")

	// ErrNodeLimit is returned when the search exhausts its node budget.
	ErrNodeLimit = errors.New("ilp: node limit reached")
)

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusTimeout
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusTimeout:
		return "timeout"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Problem is an integer covering-style program in inequality form.
type Problem struct {
	// Cost holds one non-negative objective coefficient per variable.
	Cost []float64

	// Rows is the dense constraint matrix, one row per constraint and
	// len(Cost) columns.
	Rows [][]float64

	// RHS holds the lower bound of each constraint row.
	RHS []float64

	// Upper optionally bounds each variable from above. A nil slice or a
	// +Inf entry leaves the variable unbounded. Finite bounds are floored.
	Upper []float64
}

// NumVars returns the number of decision variables.
func (p Problem) NumVars() int { return len(p.Cost) }

// Validate checks dimensions and value ranges.
func (p Problem) Validate() error {
	n := len(p.Cost)
	if n == 0 {
		return errors.New("ilp: problem has no variables")
	}
	if len(p.Rows) == 0 {
		return errors.New("ilp: problem has no constraints")
	}
	if len(p.Rows) != len(p.RHS) {
		return fmt.Errorf("ilp: %d rows but %d right-hand sides", len(p.Rows), len(p.RHS))
	}
	if p.Upper != nil && len(p.Upper) != n {
		return fmt.Errorf("ilp: %d variables but %d upper bounds", n, len(p.Upper))
	}
	for j, c := range p.Cost {
		if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("ilp: cost[%d] = %v, must be finite and >= 0", j, c)
		}
	}
	for i, row := range p.Rows {
		if len(row) != n {
			return fmt.Errorf("ilp: row %d has %d columns, want %d", i, len(row), n)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("ilp: row %d column %d is not finite", i, j)
			}
		}
		if math.IsNaN(p.RHS[i]) || math.IsInf(p.RHS[i], 0) {
			return fmt.Errorf("ilp: rhs[%d] is not finite", i)
		}
	}
	for j, u := range p.Upper {
		if u < 0 || math.IsNaN(u) {
			return fmt.Errorf("ilp: upper[%d] = %v, must be >= 0", j, u)
		}
	}
	return nil
}

// Feasible reports whether x satisfies every constraint and bound.
func (p Problem) Feasible(x []int, tol float64) bool {
	if len(x) != len(p.Cost) {
		return false
	}
	for j, v := range x {
		if v < 0 {
			return false
		}
		if p.Upper != nil && float64(v) > p.Upper[j]+tol {
			return false
		}
	}
	for i, row := range p.Rows {
		sum := 0.0
		for j, a := range row {
			sum += a * float64(x[j])
		}
		if sum < p.RHS[i]-tol {
			return false
		}
	}
	return true
}

// Objective evaluates Cost·x.
func (p Problem) Objective(x []int) float64 {
	obj := 0.0
	for j, c := range p.Cost {
		obj += c * float64(x[j])
	}
	return obj
}

// Result is the outcome of a solve. X is nil when no feasible point was
// found; for StatusTimeout and StatusFailed it holds the best incumbent.
type Result struct {
	Status    Status
	X         []int
	Objective float64
	Nodes     int
}

// HasSolution reports whether X holds a feasible point.
func (r Result) HasSolution() bool { return r.X != nil }

// Solver solves integer programs. Implementations must honour ctx
// cancellation and be safe to call again with the same problem.
type Solver interface {
	Solve(ctx context.Context, p Problem) (Result, error)
}
