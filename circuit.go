package sipfit

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"strings"
)

// Topology selects how the three rock arcs are combined.
type Topology int

const (
	SERIES Topology = iota
	PARALLEL
)

func (t Topology) String() string {
	switch t {
	case SERIES:
		return "series"
	case PARALLEL:
		return "parallel"
	}
	return fmt.Sprintf("Topology(%d)", int(t))
}

// ParseTopology maps "series" or "parallel" (case insensitive) to a Topology.
func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "series", "s":
		return SERIES, nil
	case "parallel", "p":
		return PARALLEL, nil
	}
	return 0, fmt.Errorf("%w: unknown topology %q", ErrConfig, s)
}

// Options is the per-call model configuration.
type Options struct {
	Topology Topology
	// NegativeLeadResistance negates Rinf before every evaluation.
	NegativeLeadResistance bool
}

// Secondary holds quantities derived from Params during one evaluation.
// Parallel-only fields are zero for the series topology.
type Secondary struct {
	Qh, Qm, Ql float64
	R0         float64
	M0         float64
	Ch, Cm, Cl float64

	PRh, PQh float64
	PRm, PQm float64
	PRl, PQl float64
	PCh, PCm, PCl float64
}

// Map returns the record keyed by variable name.
func (s Secondary) Map() map[string]float64 {
	return map[string]float64{
		"Qh": s.Qh, "Qm": s.Qm, "Ql": s.Ql,
		"R0": s.R0, "M0": s.M0,
		"Ch": s.Ch, "Cm": s.Cm, "Cl": s.Cl,
		"pRh": s.PRh, "pQh": s.PQh,
		"pRm": s.PRm, "pQm": s.PQm,
		"pRl": s.PRl, "pQl": s.PQl,
		"pCh": s.PCh, "pCm": s.PCm, "pCl": s.PCl,
	}
}

// Evaluation is the result of a full circuit evaluation.
type Evaluation struct {
	Total     []complex128
	Rock      []complex128
	Secondary Secondary
}

// Model computes circuit impedances. Implementations hold only immutable
// configuration and are safe for concurrent use.
type Model interface {
	Topology() Topology
	// EvaluateRock returns the impedance of the three arcs alone.
	EvaluateRock(p Params, freqs []float64) ([]complex128, Secondary, error)
	// EvaluateFull returns the total impedance (lead, rock and electrode in
	// series) together with the rock branch.
	EvaluateFull(p Params, freqs []float64) (Evaluation, error)
}

// NewModel returns the model implementation for opts.Topology.
func NewModel(opts Options) Model {
	if opts.Topology == PARALLEL {
		return parallelModel{negativeLead: opts.NegativeLeadResistance}
	}
	return seriesModel{negativeLead: opts.NegativeLeadResistance}
}

func inductor(l, freq float64) (complex128, error) {
	if l == 0 {
		return 0, fmt.Errorf("%w: inductor: zero inductance", ErrDomain)
	}
	if freq < 0 {
		return 0, fmt.Errorf("%w: inductor: negative frequency %g", ErrDomain, freq)
	}
	return complex(0, 2*math.Pi*freq*l), nil
}

// cpe returns 1 / (Q * j^pi * w^pf).
func cpe(q, pi, pf, freq float64) (complex128, error) {
	if q == 0 {
		return 0, fmt.Errorf("%w: cpe: zero coefficient", ErrDomain)
	}
	if freq < 0 {
		return 0, fmt.Errorf("%w: cpe: negative frequency %g", ErrDomain, freq)
	}
	if freq == 0 && pf != 0 {
		return 0, fmt.Errorf("%w: cpe: zero frequency with exponent %g", ErrDomain, pf)
	}
	w := 2 * math.Pi * freq
	jpi := cmplx.Rect(1, pi*math.Pi/2)
	return 1 / (complex(q*math.Pow(w, pf), 0) * jpi), nil
}

func parallel(z1, z2 complex128) (complex128, error) {
	if z1 == 0 || z2 == 0 {
		return 0, fmt.Errorf("%w: parallel combination of zero impedance", ErrDomain)
	}
	return 1 / (1/z1 + 1/z2), nil
}

// cornerQ converts an arc corner frequency to its CPE coefficient.
func cornerQ(r, f0, p float64) (float64, error) {
	if r == 0 {
		return 0, fmt.Errorf("%w: arc: zero resistance", ErrDomain)
	}
	if f0 <= 0 {
		return 0, fmt.Errorf("%w: arc: non-positive corner frequency %g", ErrDomain, f0)
	}
	return 1 / (r * math.Pow(2*math.Pi*f0, p)), nil
}

// brug returns the effective capacitance of a CPE with coefficient q and
// exponent p shunted by r.
func brug(q, r, p float64) float64 {
	if p == 0 || q <= 0 || r <= 0 {
		return 0
	}
	return math.Pow(q*math.Pow(r, 1-p), 1/p)
}

// arc returns CPE(q, p) || r.
func arc(r, q, p, freq float64) (complex128, error) {
	zq, err := cpe(q, p, p, freq)
	if err != nil {
		return 0, err
	}
	return parallel(zq, complex(r, 0))
}

func electrode(p Params, freq float64) (complex128, error) {
	zq, err := cpe(p.Qe, p.Pei, p.Pef, freq)
	if err != nil {
		return 0, err
	}
	return parallel(zq, complex(p.Re, 0))
}

func signed(p Params, negativeLead bool) Params {
	if negativeLead {
		p.Rinf = -p.Rinf
	}
	return p
}

func secondary(p Params, topology Topology) (Secondary, error) {
	var (
		s   Secondary
		err error
	)
	if s.Qh, err = cornerQ(p.Rh, p.Fh, p.Ph); err != nil {
		return Secondary{}, err
	}
	if s.Qm, err = cornerQ(p.Rm, p.Fm, p.Pm); err != nil {
		return Secondary{}, err
	}
	if s.Ql, err = cornerQ(p.Rl, p.Fl, p.Pl); err != nil {
		return Secondary{}, err
	}
	s.R0 = p.Rinf + p.Rh + p.Rm + p.Rl
	if s.R0 != 0 {
		s.M0 = (s.R0 - p.Rinf) / s.R0
	}
	s.Ch = brug(s.Qh, p.Rh, p.Ph)
	s.Cm = brug(s.Qm, p.Rm, p.Pm)
	s.Cl = brug(s.Ql, p.Rl, p.Pl)

	if topology != PARALLEL {
		return s, nil
	}
	if s.R0 == 0 {
		return Secondary{}, fmt.Errorf("%w: zero series resistance", ErrDomain)
	}
	// each arc becomes a pR + CPE line shunted by R0
	line := func(r, q float64) (float64, float64) {
		pr := s.R0 * (s.R0 - r) / r
		pq := r * r * q / (s.R0 * s.R0)
		return pr, pq
	}
	s.PRh, s.PQh = line(p.Rh, s.Qh)
	s.PRm, s.PQm = line(p.Rm, s.Qm)
	s.PRl, s.PQl = line(p.Rl, s.Ql)
	s.PCh = brug(s.PQh, s.PRh, p.Ph)
	s.PCm = brug(s.PQm, s.PRm, p.Pm)
	s.PCl = brug(s.PQl, s.PRl, p.Pl)
	return s, nil
}

func negativeLead(m Model) bool {
	switch mm := m.(type) {
	case seriesModel:
		return mm.negativeLead
	case parallelModel:
		return mm.negativeLead
	}
	return false
}

type seriesModel struct {
	negativeLead bool
}

func (seriesModel) Topology() Topology { return SERIES }

func (m seriesModel) rock(p Params, s Secondary, freq float64) (complex128, error) {
	zh, err := arc(p.Rh, s.Qh, p.Ph, freq)
	if err != nil {
		return 0, err
	}
	zm, err := arc(p.Rm, s.Qm, p.Pm, freq)
	if err != nil {
		return 0, err
	}
	zl, err := arc(p.Rl, s.Ql, p.Pl, freq)
	if err != nil {
		return 0, err
	}
	return zh + zm + zl, nil
}

func (m seriesModel) EvaluateRock(p Params, freqs []float64) ([]complex128, Secondary, error) {
	p = signed(p, m.negativeLead)
	s, err := secondary(p, SERIES)
	if err != nil {
		return nil, Secondary{}, err
	}
	res := make([]complex128, len(freqs))
	for i, freq := range freqs {
		if res[i], err = m.rock(p, s, freq); err != nil {
			return nil, Secondary{}, err
		}
	}
	return res, s, nil
}

func (m seriesModel) EvaluateFull(p Params, freqs []float64) (Evaluation, error) {
	p = signed(p, m.negativeLead)
	s, err := secondary(p, SERIES)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{
		Total:     make([]complex128, len(freqs)),
		Rock:      make([]complex128, len(freqs)),
		Secondary: s,
	}
	for i, freq := range freqs {
		zl, err := inductor(p.Linf, freq)
		if err != nil {
			return Evaluation{}, err
		}
		zr, err := m.rock(p, s, freq)
		if err != nil {
			return Evaluation{}, err
		}
		ze, err := electrode(p, freq)
		if err != nil {
			return Evaluation{}, err
		}
		ev.Rock[i] = zr
		ev.Total[i] = complex(p.Rinf, 0) + zl + zr + ze
	}
	return ev, nil
}

type parallelModel struct {
	negativeLead bool
}

func (parallelModel) Topology() Topology { return PARALLEL }

func (m parallelModel) rock(p Params, s Secondary, freq float64) (complex128, error) {
	line := func(pr, pq, exp float64) (complex128, error) {
		zq, err := cpe(pq, exp, exp, freq)
		if err != nil {
			return 0, err
		}
		return complex(pr, 0) + zq, nil
	}
	lh, err := line(s.PRh, s.PQh, p.Ph)
	if err != nil {
		return 0, err
	}
	lm, err := line(s.PRm, s.PQm, p.Pm)
	if err != nil {
		return 0, err
	}
	ll, err := line(s.PRl, s.PQl, p.Pl)
	if err != nil {
		return 0, err
	}
	z, err := parallel(lm, ll)
	if err != nil {
		return 0, err
	}
	if z, err = parallel(z, complex(s.R0, 0)); err != nil {
		return 0, err
	}
	return parallel(z, lh)
}

func (m parallelModel) EvaluateRock(p Params, freqs []float64) ([]complex128, Secondary, error) {
	p = signed(p, m.negativeLead)
	s, err := secondary(p, PARALLEL)
	if err != nil {
		return nil, Secondary{}, err
	}
	res := make([]complex128, len(freqs))
	for i, freq := range freqs {
		if res[i], err = m.rock(p, s, freq); err != nil {
			return nil, Secondary{}, err
		}
	}
	return res, s, nil
}

func (m parallelModel) EvaluateFull(p Params, freqs []float64) (Evaluation, error) {
	p = signed(p, m.negativeLead)
	s, err := secondary(p, PARALLEL)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{
		Total:     make([]complex128, len(freqs)),
		Rock:      make([]complex128, len(freqs)),
		Secondary: s,
	}
	for i, freq := range freqs {
		zl, err := inductor(p.Linf, freq)
		if err != nil {
			return Evaluation{}, err
		}
		zr, err := m.rock(p, s, freq)
		if err != nil {
			return Evaluation{}, err
		}
		ze, err := electrode(p, freq)
		if err != nil {
			return Evaluation{}, err
		}
		ev.Rock[i] = zr
		ev.Total[i] = zl + zr + ze
	}
	return ev, nil
}

// ElementImpedance is the contribution of one circuit element over a
// frequency sweep.
type ElementImpedance struct {
	Name       string
	Impedances []complex128
}

// ElementImpedances splits the circuit into lead, arc and electrode
// contributions. For the parallel topology the three arcs are reported as
// their pR + CPE lines and the rock entry holds the combined network.
func ElementImpedances(m Model, p Params, freqs []float64) ([]ElementImpedance, error) {
	ev, err := m.EvaluateFull(p, freqs)
	if err != nil {
		return nil, err
	}
	s := ev.Secondary
	sp := signed(p, negativeLead(m))

	lead := make([]complex128, len(freqs))
	arcs := [3][]complex128{}
	for k := range arcs {
		arcs[k] = make([]complex128, len(freqs))
	}
	elec := make([]complex128, len(freqs))

	type arcDef struct{ r, q, p float64 }
	defs := [3]arcDef{{sp.Rh, s.Qh, sp.Ph}, {sp.Rm, s.Qm, sp.Pm}, {sp.Rl, s.Ql, sp.Pl}}
	if m.Topology() == PARALLEL {
		defs = [3]arcDef{{s.PRh, s.PQh, sp.Ph}, {s.PRm, s.PQm, sp.Pm}, {s.PRl, s.PQl, sp.Pl}}
	}

	for i, freq := range freqs {
		zl, err := inductor(sp.Linf, freq)
		if err != nil {
			return nil, err
		}
		if m.Topology() == SERIES {
			zl += complex(sp.Rinf, 0)
		}
		lead[i] = zl
		for k, d := range defs {
			if m.Topology() == PARALLEL {
				zq, err := cpe(d.q, d.p, d.p, freq)
				if err != nil {
					return nil, err
				}
				arcs[k][i] = complex(d.r, 0) + zq
				continue
			}
			if arcs[k][i], err = arc(d.r, d.q, d.p, freq); err != nil {
				return nil, err
			}
		}
		if elec[i], err = electrode(sp, freq); err != nil {
			return nil, err
		}
	}

	return []ElementImpedance{
		{Name: "lead", Impedances: lead},
		{Name: "arc_h", Impedances: arcs[0]},
		{Name: "arc_m", Impedances: arcs[1]},
		{Name: "arc_l", Impedances: arcs[2]},
		{Name: "rock", Impedances: ev.Rock},
		{Name: "electrode", Impedances: elec},
	}, nil
}

// NoisySpectrum evaluates the full circuit and perturbs it. Every point gets
// uniform relative noise of littleNoise (0 disables), then noisyPoints
// randomly chosen points get an additional perturbation of noiseLevel.
func NoisySpectrum(m Model, p Params, freqs []float64, noisyPoints int, noiseLevel, littleNoise float64, seed int64) (Spectrum, error) {
	ev, err := m.EvaluateFull(p, freqs)
	if err != nil {
		return Spectrum{}, err
	}
	rng := rand.New(rand.NewSource(seed))
	s := Spectrum{
		Freqs: append([]float64(nil), freqs...),
		Real:  make([]float64, len(freqs)),
		Imag:  make([]float64, len(freqs)),
	}
	for i, z := range ev.Total {
		s.Real[i], s.Imag[i] = real(z), imag(z)
		if littleNoise > 0 {
			s.Real[i], s.Imag[i] = noise(rng, s.Real[i], s.Imag[i], littleNoise)
		}
	}
	for i := 0; i < noisyPoints && len(freqs) > 0; i++ {
		idx := rng.Intn(len(freqs))
		s.Real[idx], s.Imag[idx] = noise(rng, s.Real[idx], s.Imag[idx], noiseLevel)
	}
	return s, nil
}

func noise(rng *rand.Rand, zr, zi, nl float64) (float64, float64) {
	zrMaxNoise := math.Abs(zr) * nl
	ziMaxNoise := math.Abs(zi) * nl
	zr = zr - zrMaxNoise + rng.Float64()*2*zrMaxNoise
	zi = zi - ziMaxNoise + rng.Float64()*2*ziMaxNoise
	return zr, zi
}
