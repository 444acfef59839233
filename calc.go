package sipfit

import (
	"math"
	"strconv"
)

// DefaultReferenceFrequency is the frequency of the fourth special point and
// of the R01 diagnostic.
const DefaultReferenceFrequency = 0.1

// CalcOptions configures RunManual.
type CalcOptions struct {
	Transform TransformOptions
	// ReferenceFrequency defaults to DefaultReferenceFrequency. A negative
	// value omits the fourth special point and leaves R01 at NaN.
	ReferenceFrequency float64
}

// SpecialPoint is the full impedance at one characteristic frequency.
type SpecialPoint struct {
	Name string
	Freq float64
	Real float64
	Imag float64
}

// Diagnostics are scalar summaries of one calculation.
type Diagnostics struct {
	// Mismatch is the sum of squared complex residuals against the
	// measurement, NaN without one.
	Mismatch float64
	// R01 is the real part of the full impedance at the reference frequency.
	R01              float64
	FreqMin, FreqMax float64
}

// CalculationResult is a snapshot of one forward calculation. Every slice is
// freshly allocated.
type CalculationResult struct {
	Params Params

	Freqs []float64
	Real  []float64
	Imag  []float64

	RockReal []float64
	RockImag []float64

	Special    []SpecialPoint
	TimeDomain TimeDomain

	Secondary   Secondary
	Diagnostics Diagnostics
}

// Variables returns the secondary quantities and diagnostics as a single
// name keyed record.
func (r CalculationResult) Variables() map[string]float64 {
	v := r.Secondary.Map()
	v["mismatch"] = r.Diagnostics.Mismatch
	v["R01"] = r.Diagnostics.R01
	v["fmin"] = r.Diagnostics.FreqMin
	v["fmax"] = r.Diagnostics.FreqMax
	for _, c := range r.TimeDomain.Chargeability {
		v["m"+formatOffset(c.Offset)] = c.Chargeability
	}
	return v
}

func formatOffset(s float64) string {
	ms := s * 1000
	if ms < 1 {
		return trimFloat(ms*1000) + "us"
	}
	return trimFloat(ms) + "ms"
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

// DefaultFrequencies returns the log grid used when no measurement is
// loaded: 10 points per decade from 10 mHz to 100 kHz.
func DefaultFrequencies() []float64 {
	const perDecade = 10
	lo, hi := -2.0, 5.0
	n := int((hi-lo)*perDecade) + 1
	f := make([]float64, n)
	for i := range f {
		f[i] = math.Pow(10, lo+float64(i)/perDecade)
	}
	return f
}

// RunManual evaluates the model for p against the measurement s and derives
// the plotting curves, special points, decay curve and diagnostics. An empty
// spectrum evaluates on DefaultFrequencies.
func RunManual(m Model, p Params, s Spectrum, opts CalcOptions) (CalculationResult, error) {
	if err := p.Validate(); err != nil {
		return CalculationResult{}, err
	}
	measured := s.Len() > 0
	freqs := DefaultFrequencies()
	if measured {
		if err := s.Validate(); err != nil {
			return CalculationResult{}, err
		}
		freqs = append([]float64(nil), s.Freqs...)
	}

	ev, err := m.EvaluateFull(p, freqs)
	if err != nil {
		return CalculationResult{}, err
	}

	res := CalculationResult{
		Params:    p,
		Freqs:     freqs,
		Real:      make([]float64, len(freqs)),
		Imag:      make([]float64, len(freqs)),
		RockReal:  make([]float64, len(freqs)),
		RockImag:  make([]float64, len(freqs)),
		Secondary: ev.Secondary,
		Diagnostics: Diagnostics{
			Mismatch: math.NaN(),
			R01:      math.NaN(),
		},
	}
	for i := range freqs {
		res.Real[i], res.Imag[i] = real(ev.Total[i]), imag(ev.Total[i])
		res.RockReal[i], res.RockImag[i] = real(ev.Rock[i]), imag(ev.Rock[i])
	}

	if measured {
		res.Diagnostics.FreqMin, res.Diagnostics.FreqMax = s.Range()
		mis := 0.0
		for i := range freqs {
			dr := s.Real[i] - res.Real[i]
			di := s.Imag[i] - res.Imag[i]
			mis += dr*dr + di*di
		}
		res.Diagnostics.Mismatch = mis
	} else {
		res.Diagnostics.FreqMin, res.Diagnostics.FreqMax = freqs[0], freqs[len(freqs)-1]
	}

	if res.Special, err = specialPoints(m, p, opts.ReferenceFrequency); err != nil {
		return CalculationResult{}, err
	}
	if n := len(res.Special); n == 4 {
		res.Diagnostics.R01 = res.Special[n-1].Real
	}

	if res.TimeDomain, err = TransformModel(m, p, opts.Transform); err != nil {
		return CalculationResult{}, err
	}
	return res, nil
}

func specialPoints(m Model, p Params, ref float64) ([]SpecialPoint, error) {
	if ref == 0 {
		ref = DefaultReferenceFrequency
	}
	pts := []SpecialPoint{
		{Name: "Fh", Freq: p.Fh},
		{Name: "Fm", Freq: p.Fm},
		{Name: "Fl", Freq: p.Fl},
	}
	if ref > 0 {
		pts = append(pts, SpecialPoint{Name: "R01", Freq: ref})
	}
	freqs := make([]float64, len(pts))
	for i, pt := range pts {
		freqs[i] = pt.Freq
	}
	ev, err := m.EvaluateFull(p, freqs)
	if err != nil {
		return nil, err
	}
	for i := range pts {
		pts[i].Real, pts[i].Imag = real(ev.Total[i]), imag(ev.Total[i])
	}
	if ref > 0 {
		// the reference point is reported as a pure resistance
		pts[len(pts)-1].Imag = 0
	}
	return pts, nil
}
