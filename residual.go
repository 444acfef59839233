package sipfit

import (
	"math"
	"math/cmplx"
)

// bodeEps keeps log10 finite for zero phase.
const bodeEps = 1e-10

// Residual builds the error vector of a candidate parameter record.
type Residual interface {
	// Len is the length of every vector returned by Eval.
	Len() int
	Eval(p Params) ([]float64, error)
}

// Weight boosts residuals as any of Ph, Pm, Pl or Pef approaches zero,
// where the model becomes ill-conditioned.
func Weight(p Params) float64 {
	w := 1.0
	for _, e := range []float64{p.Ph, p.Pm, p.Pl, p.Pef} {
		w *= 1 + 3*math.Exp(-15*e)
	}
	return w
}

type coleResidual struct {
	model    Model
	spectrum Spectrum
}

// NewColeResidual compares model and measurement in real/imaginary space.
func NewColeResidual(m Model, s Spectrum) Residual {
	return coleResidual{model: m, spectrum: s}
}

func (r coleResidual) Len() int { return 2 * r.spectrum.Len() }

func (r coleResidual) Eval(p Params) ([]float64, error) {
	ev, err := r.model.EvaluateFull(p, r.spectrum.Freqs)
	if err != nil {
		return nil, err
	}
	n := r.spectrum.Len()
	w := Weight(p)
	res := make([]float64, 2*n)
	for i, z := range ev.Total {
		res[i] = (real(z) - r.spectrum.Real[i]) * w
		res[n+i] = (imag(z) - r.spectrum.Imag[i]) * w
	}
	return res, nil
}

type bodeResidual struct {
	model    Model
	spectrum Spectrum
	logMag   []float64
	logPhase []float64
}

// NewBodeResidual compares model and measurement in log-magnitude and
// log-phase space. The measured side is precomputed.
func NewBodeResidual(m Model, s Spectrum) Residual {
	r := bodeResidual{
		model:    m,
		spectrum: s,
		logMag:   make([]float64, s.Len()),
		logPhase: make([]float64, s.Len()),
	}
	for i := range s.Freqs {
		r.logMag[i], r.logPhase[i] = bode(s.Complex(i))
	}
	return r
}

func bode(z complex128) (float64, float64) {
	phase := math.Atan2(imag(z), real(z)) * 180 / math.Pi
	return math.Log10(cmplx.Abs(z)), math.Log10(math.Abs(phase) + bodeEps)
}

func (r bodeResidual) Len() int { return 2 * r.spectrum.Len() }

func (r bodeResidual) Eval(p Params) ([]float64, error) {
	ev, err := r.model.EvaluateFull(p, r.spectrum.Freqs)
	if err != nil {
		return nil, err
	}
	n := r.spectrum.Len()
	w := Weight(p)
	res := make([]float64, 2*n)
	for i, z := range ev.Total {
		mag, phase := bode(z)
		res[i] = (mag - r.logMag[i]) * w
		res[n+i] = (phase - r.logPhase[i]) * w
	}
	return res, nil
}

// ChiSq is the modulus-weighted goodness of fit, normalised by the number
// of points.
func ChiSq(observed, calculated []complex128) float64 {
	if len(observed) != len(calculated) {
		panic("sipfit: ChiSq slice length mismatch")
	}
	if len(observed) == 0 {
		return 0
	}
	chiSq := 0.0
	for i, o := range observed {
		d2 := math.Pow(cmplx.Abs(o-calculated[i]), 2)
		if weight := cmplx.Abs(o); weight > 0 {
			chiSq += d2 / (weight * weight)
		} else {
			chiSq += d2
		}
	}
	return chiSq / float64(len(observed))
}
