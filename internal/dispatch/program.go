package dispatch

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// lpSolve points to the function used to solve the standard-form LP. It can
// be overridden in tests to simulate solver failures.
var lpSolve = lp.Simplex

const (
	simplexTol = 1e-9
	fixedTol   = 1e-12
	zeroTol    = 1e-9
)

var errInfeasibleBounds = errors.New("infeasible bounds")

type sense int

const (
	lessEq sense = iota
	greaterEq
	equal
)

type term struct {
	v int
	a float64
}

type constraint struct {
	terms []term
	sense sense
	rhs   float64
}

// program is a bounded LP
//
//	minimize  cost·x
//	s.t.      rows
//	          lb <= x <= ub
//
// with possibly infinite bounds. solve converts it to the equality form
// accepted by lp.Simplex.
type program struct {
	lb, ub, cost []float64
	rows         []constraint
}

func (p *program) addVar(lb, ub, cost float64) int {
	p.lb = append(p.lb, lb)
	p.ub = append(p.ub, ub)
	p.cost = append(p.cost, cost)
	return len(p.lb) - 1
}

func (p *program) addRow(s sense, rhs float64, terms ...term) {
	p.rows = append(p.rows, constraint{terms: terms, sense: s, rhs: rhs})
}

// column is one non-negative standard-form variable y contributing sign*y to
// an original variable.
type column struct {
	orig int
	sign float64
}

// solve returns the optimal x and objective value.
//
// Each variable is shifted onto its finite bound (x = lb + y or x = ub - y),
// free variables are split, fixed variables are folded into the right hand
// side. Every inequality row gets its own slack, so the equality matrix has
// full row rank. Rows left without any variable are checked and dropped.
func (p *program) solve() ([]float64, float64, error) {
	nv := len(p.lb)
	offset := make([]float64, nv)
	varCols := make([][]int, nv)
	var cols []column
	type bound struct {
		col int
		ub  float64
	}
	var bounds []bound

	addCol := func(v int, sign float64) int {
		cols = append(cols, column{orig: v, sign: sign})
		varCols[v] = append(varCols[v], len(cols)-1)
		return len(cols) - 1
	}

	for v := 0; v < nv; v++ {
		lo, hi := p.lb[v], p.ub[v]
		switch {
		case math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 1) || math.IsInf(hi, -1) || hi < lo-fixedTol:
			return nil, 0, fmt.Errorf("%w: variable %d in [%g, %g]", errInfeasibleBounds, v, lo, hi)
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0) && hi-lo <= fixedTol:
			offset[v] = lo
		case !math.IsInf(lo, 0):
			offset[v] = lo
			c := addCol(v, 1)
			if !math.IsInf(hi, 1) {
				bounds = append(bounds, bound{col: c, ub: hi - lo})
			}
		case !math.IsInf(hi, 0):
			offset[v] = hi
			addCol(v, -1)
		default:
			addCol(v, 1)
			addCol(v, -1)
		}
	}

	type stdRow struct {
		coef  []float64
		slack float64
		rhs   float64
	}
	var rows []stdRow

	for i, r := range p.rows {
		coef := make([]float64, len(cols))
		rhs := r.rhs
		nonzero := false
		for _, t := range r.terms {
			rhs -= t.a * offset[t.v]
			for _, c := range varCols[t.v] {
				coef[c] += t.a * cols[c].sign
			}
		}
		for _, a := range coef {
			if a != 0 {
				nonzero = true
				break
			}
		}
		if !nonzero {
			ok := false
			switch r.sense {
			case lessEq:
				ok = rhs >= -zeroTol
			case greaterEq:
				ok = rhs <= zeroTol
			case equal:
				ok = math.Abs(rhs) <= zeroTol
			}
			if !ok {
				return nil, 0, fmt.Errorf("%w: row %d cannot be satisfied", lp.ErrInfeasible, i)
			}
			continue
		}
		slack := 0.0
		switch r.sense {
		case lessEq:
			slack = 1
		case greaterEq:
			slack = -1
		}
		rows = append(rows, stdRow{coef: coef, slack: slack, rhs: rhs})
	}
	for _, b := range bounds {
		coef := make([]float64, len(cols))
		coef[b.col] = 1
		rows = append(rows, stdRow{coef: coef, slack: 1, rhs: b.ub})
	}

	// Columns that appear in no row sit at zero unless they could lower the
	// objective without limit.
	keep := make([]int, 0, len(cols))
	for c := range cols {
		used := false
		for _, r := range rows {
			if r.coef[c] != 0 {
				used = true
				break
			}
		}
		if used {
			keep = append(keep, c)
			continue
		}
		if p.cost[cols[c].orig]*cols[c].sign < 0 {
			return nil, 0, lp.ErrUnbounded
		}
	}

	y := make([]float64, len(cols))
	if len(rows) > 0 {
		slacks := 0
		for _, r := range rows {
			if r.slack != 0 {
				slacks++
			}
		}
		m, n := len(rows), len(keep)+slacks
		if m > n {
			return nil, 0, fmt.Errorf("%w: %d rows for %d columns", lp.ErrSingular, m, n)
		}

		A := mat.NewDense(m, n, nil)
		b := make([]float64, m)
		c := make([]float64, n)
		for j, col := range keep {
			c[j] = p.cost[cols[col].orig] * cols[col].sign
		}
		s := len(keep)
		for i, r := range rows {
			for j, col := range keep {
				if a := r.coef[col]; a != 0 {
					A.Set(i, j, a)
				}
			}
			if r.slack != 0 {
				A.Set(i, s, r.slack)
				s++
			}
			b[i] = r.rhs
		}

		_, sol, err := lpSolve(c, A, b, simplexTol, nil)
		if err != nil {
			return nil, 0, err
		}
		for j, col := range keep {
			y[col] = sol[j]
		}
	}

	x := make([]float64, nv)
	obj := 0.0
	for v := range x {
		x[v] = offset[v]
		for _, c := range varCols[v] {
			x[v] += cols[c].sign * y[c]
		}
		obj += p.cost[v] * x[v]
	}
	return x, obj, nil
}
