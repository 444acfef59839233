package sipfit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Method selects the least-squares backend.
type Method int

const (
	TRUST_REGION Method = iota
	LEVENBERG
	NELDER_MEAD
)

func (m Method) String() string {
	switch m {
	case TRUST_REGION:
		return "trust-region"
	case LEVENBERG:
		return "levenberg-marquardt"
	case NELDER_MEAD:
		return "nelder-mead"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod accepts the names produced by Method.String plus the short
// forms "trf", "lm" and "nm".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trust-region", "trf":
		return TRUST_REGION, nil
	case "levenberg-marquardt", "lm":
		return LEVENBERG, nil
	case "nelder-mead", "nm":
		return NELDER_MEAD, nil
	}
	return 0, fmt.Errorf("%w: unknown optimization method %q", ErrConfig, s)
}

// Fit status values.
const (
	OK       = "OK"
	MAXEVAL  = "MAXEVAL"
	CANCELED = "CANCELED"
	ERROR    = "ERROR"
)

// Tuned empirically; no derivation exists for these values.
const (
	DefaultColePriorWeight = 9e6
	DefaultBodePriorWeight = 400
	DefaultPriorFraction   = 5
	DefaultMaxEvaluations  = 2000
	DefaultPenalty         = 1e10
)

// FitOptions is the per-call fit configuration.
type FitOptions struct {
	// Disabled parameters are locked at their initial value.
	Disabled []string
	// Bounds must cover every free parameter.
	Bounds Bounds

	// UsePrior enables the Fh >= Fm >= Fl validity penalty and the Gaussian
	// deviation-from-initial-guess residual.
	UsePrior bool
	// PriorWeight scales the prior residual. Zero selects the preset of the
	// entry point (FitCole, FitBode) or DefaultColePriorWeight for Fit.
	PriorWeight float64
	// PriorFraction multiplies the scaled bound width to give the prior sigma.
	PriorFraction float64

	MaxEvaluations int
	// Penalty fills the residual vector when a candidate is infeasible.
	Penalty float64
	Method  Method

	// OnBestFit, when set, receives the accepted parameter record.
	OnBestFit func(Params)
}

func (o FitOptions) withDefaults(priorWeight float64) FitOptions {
	if o.PriorWeight == 0 {
		o.PriorWeight = priorWeight
	}
	if o.PriorFraction == 0 {
		o.PriorFraction = DefaultPriorFraction
	}
	if o.MaxEvaluations <= 0 {
		o.MaxEvaluations = DefaultMaxEvaluations
	}
	if o.Penalty == 0 {
		o.Penalty = DefaultPenalty
	}
	return o
}

// FitResult is the outcome of one fit call.
type FitResult struct {
	Params Params
	// Min is the final 0.5*|r|^2 including any prior terms.
	Min     float64
	MinUnit string
	// ChiSq is the modulus-weighted goodness of fit of Params, set by
	// FitCole and FitBode.
	ChiSq    float64
	Status   string
	Iters    int
	FuncEval int
	Method   Method
	Runtime  time.Duration
}

// Partition splits ParamNames into free and locked names. Unknown disabled
// names are a configuration error.
func Partition(disabled []string) (free, locked []string, err error) {
	set := make(map[string]bool, len(disabled))
	var probe Params
	for _, name := range disabled {
		if _, err := probe.Get(name); err != nil {
			return nil, nil, err
		}
		set[name] = true
	}
	for _, name := range ParamNames {
		if set[name] {
			locked = append(locked, name)
		} else {
			free = append(free, name)
		}
	}
	return free, locked, nil
}

// Fit solves the bounded least-squares problem defined by residual, starting
// from initial. Locked parameters are returned exactly as supplied. Solver
// non-convergence is not an error: the last iterate is returned with a
// non-OK status. A cancelled context returns the last iterate together with
// the context error.
func Fit(ctx context.Context, initial Params, residual Residual, opts FitOptions) (FitResult, error) {
	start := time.Now()
	opts = opts.withDefaults(DefaultColePriorWeight)

	if err := initial.Validate(); err != nil {
		return FitResult{}, err
	}
	free, locked, err := Partition(opts.Disabled)
	if err != nil {
		return FitResult{}, err
	}
	if len(free) == 0 {
		if opts.OnBestFit != nil {
			opts.OnBestFit(initial)
		}
		return FitResult{Params: initial, MinUnit: "SSR", Status: OK, Method: opts.Method, Runtime: time.Since(start)}, nil
	}

	x0, err := Scale(free, initial)
	if err != nil {
		return FitResult{}, err
	}
	lower, upper, err := ScaleBounds(free, opts.Bounds)
	if err != nil {
		return FitResult{}, err
	}
	x0 = clampVec(x0, lower, upper)

	sigma := make([]float64, len(free))
	for i := range free {
		sigma[i] = (upper[i] - lower[i]) * opts.PriorFraction
		if sigma[i] == 0 {
			sigma[i] = 1
		}
	}

	m := residual.Len()
	size := m
	if opts.UsePrior {
		size += len(free)
	}

	penalize := func(dst []float64) {
		for i := range dst {
			dst[i] = opts.Penalty
		}
	}
	objective := func(dst, x []float64) {
		p, err := Descale(free, x, initial)
		if err != nil {
			penalize(dst)
			return
		}
		if opts.UsePrior && !p.FrequencyOrdered() {
			penalize(dst)
			return
		}
		res, err := residual.Eval(p)
		if err != nil || len(res) != m {
			penalize(dst)
			return
		}
		copy(dst, res)
		if opts.UsePrior {
			for i := range free {
				dst[m+i] = opts.PriorWeight * (x[i] - x0[i]) / sigma[i]
			}
		}
	}

	log.Printf("%s fit: %d free, %d locked parameters, prior=%v", opts.Method, len(free), len(locked), opts.UsePrior)

	prob := lsqProblem{residual: objective, size: size, lower: lower, upper: upper}
	set := defaultLSQSettings(opts.MaxEvaluations)

	var sol lsqResult
	switch opts.Method {
	case LEVENBERG:
		sol = levenbergSolve(ctx, prob, x0, set)
	case NELDER_MEAD:
		sol = nelderMeadSolve(ctx, prob, x0, set)
	default:
		sol = trustRegion(ctx, prob, x0, set)
	}

	best, err := Descale(free, sol.X, initial)
	if err != nil {
		return FitResult{}, err
	}

	res := FitResult{
		Params:   best,
		Min:      sol.Cost,
		MinUnit:  "SSR",
		Status:   sol.Status,
		Iters:    sol.Iters,
		FuncEval: sol.FuncEval,
		Method:   opts.Method,
		Runtime:  time.Since(start),
	}
	log.Printf("%s fit finished: status=%s min=%.6e iters=%d evals=%d in %v",
		opts.Method, res.Status, res.Min, res.Iters, res.FuncEval, res.Runtime)

	if opts.OnBestFit != nil {
		opts.OnBestFit(best)
	}
	if sol.Status == CANCELED {
		return res, ctx.Err()
	}
	return res, nil
}

// FitCole fits the full circuit to the measurement in real/imaginary space.
func FitCole(ctx context.Context, m Model, s Spectrum, initial Params, opts FitOptions) (FitResult, error) {
	if err := s.Validate(); err != nil {
		return FitResult{}, err
	}
	return fitWith(ctx, m, s, initial, NewColeResidual(m, s), opts.withDefaults(DefaultColePriorWeight))
}

// FitBode fits the full circuit to the measurement in log-magnitude and
// log-phase space.
func FitBode(ctx context.Context, m Model, s Spectrum, initial Params, opts FitOptions) (FitResult, error) {
	if err := s.Validate(); err != nil {
		return FitResult{}, err
	}
	return fitWith(ctx, m, s, initial, NewBodeResidual(m, s), opts.withDefaults(DefaultBodePriorWeight))
}

func fitWith(ctx context.Context, m Model, s Spectrum, initial Params, r Residual, opts FitOptions) (FitResult, error) {
	res, err := Fit(ctx, initial, r, opts)
	if err != nil && res.Status != CANCELED {
		return res, err
	}
	if ev, evErr := m.EvaluateFull(res.Params, s.Freqs); evErr == nil {
		observed := make([]complex128, s.Len())
		for i := range observed {
			observed[i] = s.Complex(i)
		}
		res.ChiSq = ChiSq(observed, ev.Total)
	}
	return res, err
}
