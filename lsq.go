package sipfit

import (
	"context"
	"log"
	"math"
	"sync/atomic"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// lsqProblem is a box-constrained nonlinear least-squares problem in the
// scaled parameter space.
type lsqProblem struct {
	residual     func(dst, x []float64)
	size         int
	lower, upper []float64
}

type lsqSettings struct {
	MaxEvaluations   int
	Ftol, Xtol, Gtol float64
}

func defaultLSQSettings(maxEval int) lsqSettings {
	return lsqSettings{MaxEvaluations: maxEval, Ftol: 1e-12, Xtol: 1e-12, Gtol: 1e-14}
}

type lsqResult struct {
	X        []float64
	Cost     float64
	Iters    int
	FuncEval int
	Status   string
}

func clampVec(x, lower, upper []float64) []float64 {
	c := make([]float64, len(x))
	for i, v := range x {
		c[i] = math.Min(math.Max(v, lower[i]), upper[i])
	}
	return c
}

// sumSq returns 0.5*|r|^2, or +Inf when r holds a NaN.
func sumSq(r []float64) float64 {
	c := 0.5 * floats.Dot(r, r)
	if math.IsNaN(c) {
		return math.Inf(1)
	}
	return c
}

// trustRegion minimises 0.5*|f(x)|^2 over the box with a projected
// Levenberg-Marquardt iteration. The damping parameter plays the role of an
// inverse trust radius; parameters pinned at a bound with the gradient
// pointing outward are held fixed for the step.
func trustRegion(ctx context.Context, prob lsqProblem, x0 []float64, set lsqSettings) lsqResult {
	n := len(x0)
	evals := 0
	f := func(dst, x []float64) {
		evals++
		prob.residual(dst, x)
	}

	x := clampVec(x0, prob.lower, prob.upper)
	r := make([]float64, prob.size)
	f(r, x)
	cost := sumSq(r)

	var (
		status = MAXEVAL
		iters  int
		lambda = 1e-3
		jac    = mat.NewDense(prob.size, n, nil)
		jset   = &fd.JacobianSettings{Formula: fd.Central}
		g      = make([]float64, n)
		jtj    mat.Dense
		xn     = make([]float64, n)
		rn     = make([]float64, prob.size)
		active = make([]bool, n)
	)

loop:
	for {
		if ctx.Err() != nil {
			status = CANCELED
			break
		}
		if evals+2*n+1 > set.MaxEvaluations {
			break
		}
		fd.Jacobian(jac, f, x, jset)
		mat.NewVecDense(n, g).MulVec(jac.T(), mat.NewVecDense(prob.size, r))
		jtj.Mul(jac.T(), jac)

		gmax := 0.0
		for i := range x {
			active[i] = (x[i] <= prob.lower[i] && g[i] > 0) || (x[i] >= prob.upper[i] && g[i] < 0)
			if !active[i] {
				gmax = math.Max(gmax, math.Abs(g[i]))
			}
		}
		if gmax <= set.Gtol {
			status = OK
			break
		}
		iters++

		for {
			if evals >= set.MaxEvaluations {
				break loop
			}
			step, ok := dampedStep(&jtj, g, active, lambda)
			if !ok {
				if lambda *= 10; lambda > 1e16 {
					status = OK
					break loop
				}
				continue
			}
			for i := range x {
				xn[i] = math.Min(math.Max(x[i]+step[i], prob.lower[i]), prob.upper[i])
			}
			f(rn, xn)
			costn := sumSq(rn)
			if costn < cost {
				dF := cost - costn
				dx := floats.Distance(xn, x, 2)
				copy(x, xn)
				copy(r, rn)
				prev := cost
				cost = costn
				lambda = math.Max(lambda/3, 1e-15)
				if dF <= set.Ftol*prev || dx <= set.Xtol*(set.Xtol+floats.Norm(x, 2)) {
					status = OK
					break loop
				}
				break
			}
			// no step can reduce the cost any more
			if lambda *= 4; lambda > 1e16 {
				status = OK
				break loop
			}
		}
	}

	return lsqResult{X: x, Cost: cost, Iters: iters, FuncEval: evals, Status: status}
}

// dampedStep solves (JᵀJ + λ·diag(JᵀJ)) δ = −g with active parameters held
// at zero step.
func dampedStep(jtj *mat.Dense, g []float64, active []bool, lambda float64) ([]float64, bool) {
	n := len(g)
	a := mat.NewDense(n, n, nil)
	a.Copy(jtj)
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if active[i] {
			for j := 0; j < n; j++ {
				a.Set(i, j, 0)
				a.Set(j, i, 0)
			}
			a.Set(i, i, 1)
			continue
		}
		d := math.Max(jtj.At(i, i), 1e-12)
		a.Set(i, i, jtj.At(i, i)+lambda*d)
		rhs.SetVec(i, -g[i])
	}
	var step mat.VecDense
	if err := step.SolveVec(a, rhs); err != nil {
		return nil, false
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = step.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, false
		}
	}
	return out, true
}

// levenbergSolve runs github.com/maorshutman/lm on the box-clamped
// objective. lm has no bound support, so candidates are clamped before
// every evaluation.
func levenbergSolve(ctx context.Context, prob lsqProblem, x0 []float64, set lsqSettings) (out lsqResult) {
	var evals atomic.Int64
	fnc := func(dst, x []float64) {
		evals.Add(1)
		prob.residual(dst, clampVec(x, prob.lower, prob.upper))
	}

	start := clampVec(x0, prob.lower, prob.upper)
	out = lsqResult{X: start, Status: ERROR}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("LM optimization panicked: %v", r)
			out.Status = ERROR
		}
		out.FuncEval = int(evals.Load())
		res := make([]float64, prob.size)
		prob.residual(res, out.X)
		out.Cost = sumSq(res)
		if ctx.Err() != nil {
			out.Status = CANCELED
		}
	}()

	jac := lm.NumJac{Func: fnc}
	problem := lm.LMProblem{
		Dim:        len(x0),
		Size:       prob.size,
		Func:       fnc,
		Jac:        jac.Jac,
		InitParams: start,
		Tau:        1e-3,
		Eps1:       set.Gtol,
		Eps2:       set.Xtol,
	}

	iterations := set.MaxEvaluations / (2*len(x0) + 1)
	if iterations < 1 {
		iterations = 1
	}
	res, err := lm.LM(problem, &lm.Settings{Iterations: iterations, ObjectiveTol: 1e-16})
	if err != nil {
		log.Printf("LM optimization failed: %v", err)
		return out
	}
	out.X = clampVec(res.X, prob.lower, prob.upper)
	out.Status = OK
	if int(evals.Load()) >= set.MaxEvaluations {
		out.Status = MAXEVAL
	}
	return out
}

// nelderMeadSolve minimises the clamped sum of squares with the gonum
// simplex method.
func nelderMeadSolve(ctx context.Context, prob lsqProblem, x0 []float64, set lsqSettings) lsqResult {
	var evals atomic.Int64
	cost := func(x []float64) float64 {
		evals.Add(1)
		r := make([]float64, prob.size)
		prob.residual(r, clampVec(x, prob.lower, prob.upper))
		return sumSq(r)
	}

	problem := optimize.Problem{
		Func: cost,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: set.MaxEvaluations,
	}

	start := clampVec(x0, prob.lower, prob.upper)
	out := lsqResult{X: start, Cost: cost(start), Status: ERROR}

	res, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if res != nil {
		out.X = clampVec(res.X, prob.lower, prob.upper)
		out.Cost = res.F
		out.Iters = res.MajorIterations
		out.Status = OK
		if res.Status == optimize.FunctionEvaluationLimit {
			out.Status = MAXEVAL
		}
	}
	if err != nil {
		log.Printf("Nelder-Mead optimization stopped: %v", err)
		if ctx.Err() != nil {
			out.Status = CANCELED
		}
	}
	out.FuncEval = int(evals.Load())
	return out
}
