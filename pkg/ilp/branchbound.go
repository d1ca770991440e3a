package ilp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	// DefaultTolerance is the integrality and feasibility tolerance.
	DefaultTolerance = 1e-6

	// DefaultMaxNodes bounds the number of relaxations solved per call.
	DefaultMaxNodes = 50000

	simplexTol = 1e-10
)

// BranchAndBound is a depth-first branch-and-bound Solver. Each node's
// linear relaxation is solved with lp.Simplex; the up branch is explored
// first, which for covering programs reaches feasible points quickly.
//
// The zero value is ready to use.
type BranchAndBound struct {
	// Tolerance for integrality and constraint checks. If <= 0, defaults to
	// DefaultTolerance.
	Tolerance float64

	// MaxNodes caps the number of nodes explored. If <= 0, defaults to
	// DefaultMaxNodes.
	MaxNodes int
}

type node struct {
	lower []float64
	upper []float64
}

// relaxation is the LP solution of one node.
type relaxation struct {
	x   []float64
	obj float64
}

// Solve implements Solver.
func (b BranchAndBound) Solve(ctx context.Context, p Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{Status: StatusFailed}, err
	}

	tol := b.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	maxNodes := b.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}

	n := p.NumVars()
	zero := make([]int, n)
	if p.Feasible(zero, tol) {
		return Result{Status: StatusOptimal, X: zero}, nil
	}

	root := node{lower: make([]float64, n), upper: make([]float64, n)}
	for j := range root.upper {
		root.upper[j] = math.Inf(1)
		if p.Upper != nil && !math.IsInf(p.Upper[j], 1) {
			root.upper[j] = math.Floor(p.Upper[j] + tol)
		}
	}

	integralCost := true
	for _, c := range p.Cost {
		if c != math.Trunc(c) {
			integralCost = false
			break
		}
	}
	bound := func(obj float64) float64 {
		if integralCost {
			return math.Ceil(obj - tol)
		}
		return obj
	}

	var (
		best      []int
		bestObj   = math.Inf(1)
		nodes     int
		rootBound = math.Inf(-1)
	)
	result := func(status Status) Result {
		r := Result{Status: status, Nodes: nodes}
		if best != nil {
			r.X = best
			r.Objective = bestObj
		}
		return r
	}
	offer := func(x []int) {
		if obj := p.Objective(x); obj < bestObj-tol && p.Feasible(x, tol) {
			best = x
			bestObj = obj
		}
	}

	stack := []node{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return result(StatusTimeout), fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		if nodes >= maxNodes {
			return result(StatusFailed), fmt.Errorf("%w: explored %d nodes", ErrNodeLimit, nodes)
		}

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		rel, err := relax(p, nd)
		if errors.Is(err, lp.ErrInfeasible) {
			continue
		}
		if err != nil {
			return result(StatusFailed), fmt.Errorf("ilp: relaxation at node %d: %w", nodes, err)
		}

		nb := bound(rel.obj)
		if nodes == 1 {
			rootBound = nb
		}
		if nb >= bestObj-tol {
			continue
		}

		// Rounding every fractional value up stays within the node's integer
		// upper bounds; it is feasible whenever all row coefficients are >= 0.
		up := make([]int, n)
		for j, v := range rel.x {
			up[j] = int(math.Ceil(v - tol))
		}
		offer(up)

		branch, frac := -1, 0.0
		for j, v := range rel.x {
			f := v - math.Floor(v)
			d := math.Min(f, 1-f)
			if d > tol && d > frac {
				branch, frac = j, d
			}
		}
		if branch < 0 {
			x := make([]int, n)
			for j, v := range rel.x {
				x[j] = int(math.Round(v))
			}
			offer(x)
			continue
		}

		if best != nil && bestObj <= rootBound+tol {
			break
		}

		v := rel.x[branch]
		down := node{lower: nd.lower, upper: cloneWith(nd.upper, branch, math.Floor(v))}
		upper := node{lower: cloneWith(nd.lower, branch, math.Floor(v)+1), upper: nd.upper}
		stack = append(stack, down, upper)
	}

	if best == nil {
		return result(StatusInfeasible), ErrInfeasible
	}
	return result(StatusOptimal), nil
}

func cloneWith(v []float64, j int, x float64) []float64 {
	out := append([]float64(nil), v...)
	out[j] = x
	return out
}

// relax solves the LP relaxation of p restricted to the node's bounds.
//
// Variables are shifted by their lower bound (x = lower + y, y >= 0) and the
// program is put in the equality form lp.Simplex expects:
//
//	Rows·y - s = RHS - Rows·lower     (s >= 0, one per constraint)
//	y_j + t_j  = upper_j - lower_j    (t >= 0, one per finite upper bound)
//
// Variables with an empty column or a fixed value are kept out of the LP.
func relax(p Problem, nd node) (relaxation, error) {
	n := p.NumVars()
	m := len(p.Rows)

	active := make([]int, 0, n)
	for j := 0; j < n; j++ {
		if nd.upper[j] < nd.lower[j] {
			return relaxation{}, lp.ErrInfeasible
		}
		if nd.upper[j] == nd.lower[j] {
			continue
		}
		for i := 0; i < m; i++ {
			if p.Rows[i][j] != 0 {
				active = append(active, j)
				break
			}
		}
	}

	var bounded []int
	for _, j := range active {
		if !math.IsInf(nd.upper[j], 1) {
			bounded = append(bounded, j)
		}
	}

	rows := m + len(bounded)
	cols := len(active) + m + len(bounded)

	A := mat.NewDense(rows, cols, nil)
	rhs := make([]float64, rows)
	c := make([]float64, cols)

	for k, j := range active {
		c[k] = p.Cost[j]
	}

	for i, row := range p.Rows {
		r := p.RHS[i]
		for j, a := range row {
			r -= a * nd.lower[j]
		}
		sign := 1.0
		if r < 0 {
			sign = -1
		}
		for k, j := range active {
			A.Set(i, k, sign*row[j])
		}
		A.Set(i, len(active)+i, -sign)
		rhs[i] = sign * r
	}

	pos := make(map[int]int, len(active))
	for k, j := range active {
		pos[j] = k
	}
	for b, j := range bounded {
		i := m + b
		A.Set(i, pos[j], 1)
		A.Set(i, len(active)+m+b, 1)
		rhs[i] = nd.upper[j] - nd.lower[j]
	}

	_, y, err := lp.Simplex(c, A, rhs, simplexTol, nil)
	if err != nil {
		return relaxation{}, err
	}

	x := append([]float64(nil), nd.lower...)
	for k, j := range active {
		x[j] += math.Max(y[k], 0)
	}
	obj := 0.0
	for j, v := range x {
		obj += p.Cost[j] * v
	}
	return relaxation{x: x, obj: obj}, nil
}
