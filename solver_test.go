package sipfit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

// recoveryParams has well separated arcs and an electrode corner inside
// logFreqs so that every parameter is identifiable.
func recoveryParams() Params {
	return Params{
		Rinf: 100, Linf: 1e-6,
		Rh: 50, Fh: 1e4, Ph: 0.9,
		Rm: 30, Fm: 100, Pm: 0.8,
		Rl: 20, Fl: 1, Pl: 0.7,
		Re: 10, Qe: 1, Pef: 0.8, Pei: 0.8,
	}
}

func logFreqs(lo, hi float64, perDecade int) []float64 {
	n := int(math.Round((hi-lo)*float64(perDecade))) + 1
	f := make([]float64, n)
	for i := range f {
		f[i] = math.Pow(10, lo+float64(i)/float64(perDecade))
	}
	return f
}

func wideBounds(p Params) Bounds {
	b := Bounds{}
	for _, name := range ParamNames {
		v, _ := p.Get(name)
		if IsExponent(name) {
			b[name] = Bound{Lower: 0.3, Upper: 1}
			continue
		}
		b[name] = Bound{Lower: v / 10, Upper: v * 10}
	}
	return b
}

func perturb(p Params, rel float64) Params {
	for _, name := range ParamNames {
		v, _ := p.Get(name)
		if IsExponent(name) {
			_ = p.Set(name, v-0.005)
			continue
		}
		_ = p.Set(name, v*(1+rel))
	}
	return p
}

func synthetic(t *testing.T, m Model, p Params) Spectrum {
	t.Helper()
	s, err := NoisySpectrum(m, p, logFreqs(-4, 6, 10), 0, 0, 0, 1)
	if err != nil {
		t.Fatalf("NoisySpectrum: %v", err)
	}
	return s
}

func TestFitColeRecoversParameters(t *testing.T) {
	truth := recoveryParams()
	m := NewModel(Options{Topology: SERIES})
	s := synthetic(t, m, truth)

	res, err := FitCole(context.Background(), m, s, perturb(truth, 0.01), FitOptions{
		Bounds:         wideBounds(truth),
		MaxEvaluations: 20000,
	})
	if err != nil {
		t.Fatalf("FitCole: %v", err)
	}
	if res.Status == ERROR {
		t.Fatalf("status = %s", res.Status)
	}
	want := truth.Values()
	for i, v := range res.Params.Values() {
		if rel := math.Abs(v-want[i]) / math.Abs(want[i]); rel > 1e-3 {
			t.Errorf("%s = %g, want %g (rel err %.2e)", ParamNames[i], v, want[i], rel)
		}
	}
	if res.ChiSq > 1e-8 {
		t.Errorf("ChiSq = %g, want ~0", res.ChiSq)
	}
	if res.MinUnit != "SSR" || res.Method != TRUST_REGION {
		t.Errorf("result metadata = %q %v", res.MinUnit, res.Method)
	}
}

func TestFitLockedParametersUnchanged(t *testing.T) {
	truth := recoveryParams()
	m := NewModel(Options{Topology: PARALLEL})
	s := synthetic(t, m, truth)

	initial := perturb(truth, 0.05)
	for _, method := range []Method{TRUST_REGION, LEVENBERG, NELDER_MEAD} {
		res, err := FitCole(context.Background(), m, s, initial, FitOptions{
			Disabled:       []string{"Linf", "Pei", "Rm"},
			Bounds:         wideBounds(truth),
			MaxEvaluations: 500,
			Method:         method,
		})
		if err != nil {
			t.Fatalf("%v: %v", method, err)
		}
		if res.Params.Linf != initial.Linf || res.Params.Pei != initial.Pei || res.Params.Rm != initial.Rm {
			t.Errorf("%v: locked values changed: Linf=%g Pei=%g Rm=%g", method, res.Params.Linf, res.Params.Pei, res.Params.Rm)
		}
	}
}

func TestFitSmallProblemAllMethods(t *testing.T) {
	truth := recoveryParams()
	m := NewModel(Options{Topology: SERIES})
	s := synthetic(t, m, truth)

	initial := truth
	initial.Rinf *= 1.05
	initial.Rh *= 0.95

	var disabled []string
	for _, name := range ParamNames {
		if name != "Rinf" && name != "Rh" {
			disabled = append(disabled, name)
		}
	}
	for _, method := range []Method{TRUST_REGION, LEVENBERG, NELDER_MEAD} {
		var seen Params
		res, err := FitCole(context.Background(), m, s, initial, FitOptions{
			Disabled:       disabled,
			Bounds:         wideBounds(truth),
			MaxEvaluations: 5000,
			Method:         method,
			OnBestFit:      func(p Params) { seen = p },
		})
		if err != nil {
			t.Fatalf("%v: %v", method, err)
		}
		if math.Abs(res.Params.Rinf-truth.Rinf)/truth.Rinf > 1e-2 || math.Abs(res.Params.Rh-truth.Rh)/truth.Rh > 1e-2 {
			t.Errorf("%v: Rinf=%g Rh=%g, want %g %g", method, res.Params.Rinf, res.Params.Rh, truth.Rinf, truth.Rh)
		}
		if seen != res.Params {
			t.Errorf("%v: OnBestFit got %+v, want %+v", method, seen, res.Params)
		}
		if res.FuncEval == 0 {
			t.Errorf("%v: no function evaluations recorded", method)
		}
	}
}

func TestFitBodeWithPrior(t *testing.T) {
	truth := recoveryParams()
	m := NewModel(Options{Topology: SERIES})
	s := synthetic(t, m, truth)

	res, err := FitBode(context.Background(), m, s, truth, FitOptions{
		Bounds:         wideBounds(truth),
		UsePrior:       true,
		MaxEvaluations: 200,
	})
	if err != nil {
		t.Fatalf("FitBode: %v", err)
	}
	if res.Min > 1e-12 {
		t.Errorf("Min at truth = %g, want ~0", res.Min)
	}
	if !res.Params.FrequencyOrdered() {
		t.Errorf("result violates frequency order: %+v", res.Params)
	}
}

// funcResidual adapts a plain function to Residual.
type funcResidual struct {
	n    int
	eval func(Params) ([]float64, error)
}

func (r funcResidual) Len() int                         { return r.n }
func (r funcResidual) Eval(p Params) ([]float64, error) { return r.eval(p) }

// lockAllBut returns every parameter name except keep.
func lockAllBut(keep ...string) []string {
	var disabled []string
	for _, name := range ParamNames {
		found := false
		for _, k := range keep {
			if name == k {
				found = true
			}
		}
		if !found {
			disabled = append(disabled, name)
		}
	}
	return disabled
}

func TestFitDomainErrorBecomesPenalty(t *testing.T) {
	initial := recoveryParams()
	fails := 0
	// the optimum at Rh=60 lies outside the region the residual accepts
	r := funcResidual{n: 1, eval: func(p Params) ([]float64, error) {
		if p.Rh > 55 {
			fails++
			return nil, fmt.Errorf("%w: Rh=%g", ErrDomain, p.Rh)
		}
		return []float64{p.Rh - 60}, nil
	}}

	res, err := Fit(context.Background(), initial, r, FitOptions{
		Disabled:       lockAllBut("Rh"),
		Bounds:         Bounds{"Rh": {Lower: 10, Upper: 100}},
		MaxEvaluations: 500,
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if fails == 0 {
		t.Fatal("no trial reached the failing region")
	}
	if res.Status == ERROR {
		t.Errorf("status = %s", res.Status)
	}
	if res.Params.Rh <= 50 || res.Params.Rh > 55 {
		t.Errorf("Rh = %g, want in (50, 55]", res.Params.Rh)
	}
	if want := 0.5 * (res.Params.Rh - 60) * (res.Params.Rh - 60); math.Abs(res.Min-want) > 1e-9*want {
		t.Errorf("Min = %g, want %g", res.Min, want)
	}
}

func TestFitUnorderedStartIsPenalized(t *testing.T) {
	initial := recoveryParams()
	initial.Fh, initial.Fm, initial.Fl = 10, 100, 1000
	calls := 0
	r := funcResidual{n: 3, eval: func(Params) ([]float64, error) {
		calls++
		return []float64{1, 1, 1}, nil
	}}
	bounds := Bounds{
		"Fh": {Lower: 0.1, Upper: 1e5},
		"Fm": {Lower: 0.1, Upper: 1e5},
		"Fl": {Lower: 0.1, Upper: 1e5},
	}

	const penalty = 1e6
	res, err := Fit(context.Background(), initial, r, FitOptions{
		Disabled: lockAllBut("Fh", "Fm", "Fl"),
		Bounds:   bounds,
		UsePrior: true,
		Penalty:  penalty,
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if calls != 0 {
		t.Errorf("residual evaluated %d times for unordered candidates", calls)
	}
	// three residuals plus three prior terms, all at the penalty
	if want := 0.5 * 6 * penalty * penalty; math.Abs(res.Min-want) > 1e-9*want {
		t.Errorf("Min = %g, want %g", res.Min, want)
	}
	for _, pair := range [][2]float64{{res.Params.Fh, 10}, {res.Params.Fm, 100}, {res.Params.Fl, 1000}} {
		if math.Abs(pair[0]-pair[1]) > 1e-9*pair[1] {
			t.Errorf("frequency moved from %g to %g", pair[1], pair[0])
		}
	}

	// without the prior the ordering is not enforced
	calls = 0
	if _, err := Fit(context.Background(), initial, r, FitOptions{
		Disabled: lockAllBut("Fh", "Fm", "Fl"),
		Bounds:   bounds,
		Penalty:  penalty,
	}); err != nil {
		t.Fatalf("Fit without prior: %v", err)
	}
	if calls == 0 {
		t.Error("residual never evaluated without the prior")
	}
}

func TestFitPriorKeepsFrequencyOrder(t *testing.T) {
	initial := recoveryParams()
	initial.Fh = 1000
	// pulls Fm towards 2000, above Fh
	r := funcResidual{n: 1, eval: func(p Params) ([]float64, error) {
		return []float64{math.Log10(p.Fm) - math.Log10(2000)}, nil
	}}

	res, err := Fit(context.Background(), initial, r, FitOptions{
		Disabled:       lockAllBut("Fm"),
		Bounds:         Bounds{"Fm": {Lower: 1, Upper: 1e5}},
		UsePrior:       true,
		PriorWeight:    1e-12,
		MaxEvaluations: 500,
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !res.Params.FrequencyOrdered() {
		t.Errorf("Fh=%g Fm=%g Fl=%g is not ordered", res.Params.Fh, res.Params.Fm, res.Params.Fl)
	}
	if res.Params.Fm <= 100 {
		t.Errorf("Fm = %g, want moved above the start of 100", res.Params.Fm)
	}
}

func TestFitConfigurationErrors(t *testing.T) {
	truth := recoveryParams()
	m := NewModel(Options{})
	s := synthetic(t, m, truth)

	b := wideBounds(truth)
	delete(b, "Fm")
	if _, err := FitCole(context.Background(), m, s, truth, FitOptions{Bounds: b}); !errors.Is(err, ErrConfig) {
		t.Errorf("missing bound: err = %v", err)
	}
	if _, err := FitCole(context.Background(), m, s, truth, FitOptions{Bounds: wideBounds(truth), Disabled: []string{"Rx"}}); !errors.Is(err, ErrConfig) {
		t.Errorf("unknown disabled name: err = %v", err)
	}
	bad := truth
	bad.Rh = -1
	if _, err := FitCole(context.Background(), m, s, bad, FitOptions{Bounds: wideBounds(truth)}); !errors.Is(err, ErrDomain) {
		t.Errorf("negative magnitude: err = %v", err)
	}
	if _, err := FitCole(context.Background(), m, Spectrum{}, truth, FitOptions{Bounds: wideBounds(truth)}); !errors.Is(err, ErrConfig) {
		t.Errorf("empty spectrum: err = %v", err)
	}
}

func TestFitAllDisabled(t *testing.T) {
	truth := recoveryParams()
	m := NewModel(Options{})
	res, err := FitCole(context.Background(), m, synthetic(t, m, truth), truth, FitOptions{Disabled: ParamNames})
	if err != nil {
		t.Fatal(err)
	}
	if res.Params != truth || res.Status != OK {
		t.Errorf("got %+v status %s", res.Params, res.Status)
	}
}

func TestFitCanceled(t *testing.T) {
	truth := recoveryParams()
	m := NewModel(Options{})
	s := synthetic(t, m, truth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := FitCole(ctx, m, s, perturb(truth, 0.05), FitOptions{Bounds: wideBounds(truth)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Status != CANCELED {
		t.Errorf("status = %s, want %s", res.Status, CANCELED)
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in   string
		want Method
	}{
		{"", TRUST_REGION},
		{"trf", TRUST_REGION},
		{"LM", LEVENBERG},
		{"levenberg-marquardt", LEVENBERG},
		{"nelder-mead", NELDER_MEAD},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseMethod(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseMethod("bfgs"); !errors.Is(err, ErrConfig) {
		t.Errorf("unknown method: err = %v", err)
	}
}

func TestPartition(t *testing.T) {
	free, locked, err := Partition([]string{"Pei", "Rinf"})
	if err != nil {
		t.Fatal(err)
	}
	if len(free) != len(ParamNames)-2 || len(locked) != 2 {
		t.Fatalf("free=%v locked=%v", free, locked)
	}
	if locked[0] != "Rinf" || locked[1] != "Pei" {
		t.Errorf("locked = %v, want canonical order", locked)
	}
}

func TestFitBatchKeepsOrder(t *testing.T) {
	truth := recoveryParams()
	m := NewModel(Options{})
	s := synthetic(t, m, truth)

	var disabled []string
	for _, name := range ParamNames {
		if name != "Rinf" {
			disabled = append(disabled, name)
		}
	}
	jobs := make([]Job, 6)
	for i := range jobs {
		initial := truth
		initial.Rinf = truth.Rinf * (1 + 0.01*float64(i+1))
		jobs[i] = Job{
			Name:     string(rune('a' + i)),
			Model:    m,
			Spectrum: s,
			Initial:  initial,
			Options:  FitOptions{Disabled: disabled, Bounds: wideBounds(truth), MaxEvaluations: 300},
		}
	}
	jobs[5].Residual = BODE
	jobs[2].Options.Bounds = Bounds{}

	results := FitBatch(context.Background(), jobs, 3)
	if len(results) != len(jobs) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Index != i || r.Name != jobs[i].Name {
			t.Errorf("result %d: index %d name %q", i, r.Index, r.Name)
		}
		if i == 2 {
			if !errors.Is(r.Err, ErrConfig) {
				t.Errorf("job 2: err = %v, want ErrConfig", r.Err)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("job %d: %v", i, r.Err)
			continue
		}
		if math.Abs(r.Result.Params.Rinf-truth.Rinf) > 0.01 {
			t.Errorf("job %d: Rinf = %g", i, r.Result.Params.Rinf)
		}
	}
}
