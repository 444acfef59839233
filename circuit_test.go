package sipfit

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"
)

func finite(z complex128) bool {
	return !cmplx.IsNaN(z) && !cmplx.IsInf(z)
}

func TestEvaluateFullConcreteScenario(t *testing.T) {
	p := DefaultParams()
	m := NewModel(Options{Topology: PARALLEL})

	freqs := []float64{1, 10, 100, 1000, 10000}
	ev, err := m.EvaluateFull(p, freqs)
	if err != nil {
		t.Fatalf("EvaluateFull: %v", err)
	}
	if len(ev.Total) != len(freqs) || len(ev.Rock) != len(freqs) {
		t.Fatalf("got %d/%d values, want %d", len(ev.Total), len(ev.Rock), len(freqs))
	}
	for i, z := range ev.Total {
		if !finite(z) {
			t.Errorf("Total[%d] = %v, want finite", i, z)
		}
	}

	special, err := specialPoints(m, p, DefaultReferenceFrequency)
	if err != nil {
		t.Fatalf("specialPoints: %v", err)
	}
	want := []float64{1000, 100, 10, 0.1}
	if len(special) != len(want) {
		t.Fatalf("got %d special points, want %d", len(special), len(want))
	}
	for i, sp := range special {
		if sp.Freq != want[i] {
			t.Errorf("special[%d].Freq = %g, want %g", i, sp.Freq, want[i])
		}
		if !finite(complex(sp.Real, sp.Imag)) {
			t.Errorf("special[%d] = %g%+gi, want finite", i, sp.Real, sp.Imag)
		}
	}
	if special[3].Imag != 0 {
		t.Errorf("reference point imaginary part = %g, want 0", special[3].Imag)
	}
}

func TestEvaluateFullFiniteBothTopologies(t *testing.T) {
	freqs := []float64{0.001, 0.1, 1, 1e3, 1e6}
	for _, topo := range []Topology{SERIES, PARALLEL} {
		for _, neg := range []bool{false, true} {
			m := NewModel(Options{Topology: topo, NegativeLeadResistance: neg})
			p := DefaultParams()
			// with a negative lead R0 = -Rinf + Rh + Rm + Rl must stay non-zero
			p.Rinf = 40
			ev, err := m.EvaluateFull(p, freqs)
			if err != nil {
				t.Fatalf("%v neg=%v: %v", topo, neg, err)
			}
			for i, z := range ev.Total {
				if !finite(z) {
					t.Errorf("%v neg=%v: Total[%d] = %v", topo, neg, i, z)
				}
			}
		}
	}
}

func TestDomainErrors(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Params)
		freqs []float64
	}{
		{"negative frequency", func(*Params) {}, []float64{-1}},
		{"zero inductance", func(p *Params) { p.Linf = 0 }, []float64{1}},
		{"zero electrode Q", func(p *Params) { p.Qe = 0 }, []float64{1}},
		{"zero arc resistance", func(p *Params) { p.Rm = 0 }, []float64{1}},
	}
	for _, topo := range []Topology{SERIES, PARALLEL} {
		m := NewModel(Options{Topology: topo})
		for _, tt := range tests {
			p := DefaultParams()
			tt.mod(&p)
			if _, err := m.EvaluateFull(p, tt.freqs); !errors.Is(err, ErrDomain) {
				t.Errorf("%v %s: err = %v, want ErrDomain", topo, tt.name, err)
			}
		}
	}
}

func TestParallelZeroSeriesResistance(t *testing.T) {
	// -100 + 50 + 30 + 20 = 0
	m := NewModel(Options{Topology: PARALLEL, NegativeLeadResistance: true})
	if _, err := m.EvaluateFull(DefaultParams(), []float64{1}); !errors.Is(err, ErrDomain) {
		t.Errorf("EvaluateFull: err = %v, want ErrDomain", err)
	}
	if _, _, err := m.EvaluateRock(DefaultParams(), []float64{1}); !errors.Is(err, ErrDomain) {
		t.Errorf("EvaluateRock: err = %v, want ErrDomain", err)
	}

	// the series topology has no R0 division
	m = NewModel(Options{Topology: SERIES, NegativeLeadResistance: true})
	if _, err := m.EvaluateFull(DefaultParams(), []float64{1}); err != nil {
		t.Errorf("series: %v", err)
	}
}

func TestPrimitives(t *testing.T) {
	z, err := inductor(1e-3, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if want := 2 * math.Pi; math.Abs(imag(z)-want) > 1e-12 || real(z) != 0 {
		t.Errorf("inductor = %v, want %gi", z, want)
	}

	// an ideal capacitor of 1 F at w = 1
	z, err = cpe(1, 1, 1, 1/(2*math.Pi))
	if err != nil {
		t.Fatal(err)
	}
	if cmplx.Abs(z-complex(0, -1)) > 1e-12 {
		t.Errorf("cpe = %v, want -1i", z)
	}

	if _, err := cpe(0, 1, 1, 1); !errors.Is(err, ErrDomain) {
		t.Errorf("cpe with zero Q: err = %v", err)
	}
	if _, err := parallel(0, 1); !errors.Is(err, ErrDomain) {
		t.Errorf("parallel with zero impedance: err = %v", err)
	}

	z, err = parallel(2, 2)
	if err != nil || z != 1 {
		t.Errorf("parallel(2, 2) = %v, %v, want 1", z, err)
	}
}

func TestArcCorner(t *testing.T) {
	// at the corner frequency an ideal RC arc has phase -45 degrees
	r, f0 := 100.0, 50.0
	q, err := cornerQ(r, f0, 1)
	if err != nil {
		t.Fatal(err)
	}
	z, err := arc(r, q, 1, f0)
	if err != nil {
		t.Fatal(err)
	}
	if got := cmplx.Phase(z) * 180 / math.Pi; math.Abs(got+45) > 1e-9 {
		t.Errorf("phase at corner = %g, want -45", got)
	}
}

func TestSecondaryParallel(t *testing.T) {
	p := DefaultParams()
	_, s, err := NewModel(Options{Topology: PARALLEL}).EvaluateRock(p, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	if s.R0 != 200 {
		t.Errorf("R0 = %g, want 200", s.R0)
	}
	if want := 200.0 * 150 / 50; math.Abs(s.PRh-want) > 1e-9 {
		t.Errorf("pRh = %g, want %g", s.PRh, want)
	}
	if want := 50.0 * 50 * s.Qh / (200 * 200); math.Abs(s.PQh-want) > 1e-15 {
		t.Errorf("pQh = %g, want %g", s.PQh, want)
	}

	_, ss, err := NewModel(Options{Topology: SERIES}).EvaluateRock(p, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	if ss.PRh != 0 || ss.Qh != s.Qh {
		t.Errorf("series secondary = %+v", ss)
	}
}

func TestNegativeLeadResistance(t *testing.T) {
	p := DefaultParams()
	freqs := []float64{10}
	pos, err := NewModel(Options{Topology: SERIES}).EvaluateFull(p, freqs)
	if err != nil {
		t.Fatal(err)
	}
	neg, err := NewModel(Options{Topology: SERIES, NegativeLeadResistance: true}).EvaluateFull(p, freqs)
	if err != nil {
		t.Fatal(err)
	}
	if d := real(pos.Total[0]) - real(neg.Total[0]); math.Abs(d-2*p.Rinf) > 1e-9 {
		t.Errorf("real difference = %g, want %g", d, 2*p.Rinf)
	}
}

func TestElementImpedancesSeriesSum(t *testing.T) {
	p := DefaultParams()
	freqs := []float64{0.5, 50, 5000}
	m := NewModel(Options{Topology: SERIES})
	elems, err := ElementImpedances(m, p, freqs)
	if err != nil {
		t.Fatal(err)
	}
	byName := map[string][]complex128{}
	for _, e := range elems {
		byName[e.Name] = e.Impedances
	}
	ev, _ := m.EvaluateFull(p, freqs)
	for i := range freqs {
		sum := byName["lead"][i] + byName["arc_h"][i] + byName["arc_m"][i] + byName["arc_l"][i] + byName["electrode"][i]
		if cmplx.Abs(sum-ev.Total[i]) > 1e-9 {
			t.Errorf("f=%g: element sum %v, total %v", freqs[i], sum, ev.Total[i])
		}
	}
}

func TestNoisySpectrumDeterministic(t *testing.T) {
	m := NewModel(Options{})
	freqs := []float64{1, 10, 100}
	a, err := NoisySpectrum(m, DefaultParams(), freqs, 2, 0.1, 0.01, 7)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NoisySpectrum(m, DefaultParams(), freqs, 2, 0.1, 0.01, 7)
	for i := range freqs {
		if a.Real[i] != b.Real[i] || a.Imag[i] != b.Imag[i] {
			t.Fatalf("point %d differs between runs with the same seed", i)
		}
	}
	clean, _ := NoisySpectrum(m, DefaultParams(), freqs, 0, 0, 0, 7)
	ev, _ := m.EvaluateFull(DefaultParams(), freqs)
	for i := range freqs {
		if clean.Complex(i) != ev.Total[i] {
			t.Errorf("noise-free point %d = %v, want %v", i, clean.Complex(i), ev.Total[i])
		}
	}
}

func TestParseTopology(t *testing.T) {
	for _, topo := range []Topology{SERIES, PARALLEL} {
		got, err := ParseTopology(topo.String())
		if err != nil || got != topo {
			t.Errorf("ParseTopology(%q) = %v, %v", topo.String(), got, err)
		}
	}
	if _, err := ParseTopology("ladder"); !errors.Is(err, ErrConfig) {
		t.Errorf("unknown topology: err = %v", err)
	}
}
