package sipfit

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/interp"
)

// Interpolation selects how measured spectra are resampled onto the
// transform grid.
type Interpolation int

const (
	LINEAR Interpolation = iota
	CUBIC
)

// ChargeabilityOffsets are the default sampling times of the decay curve in
// seconds.
var ChargeabilityOffsets = []float64{1e-4, 1e-3, 1e-2, 0.1, 0.2, 0.4, 0.8, 1.2, 1.6}

// TransformOptions configures the frequency to time domain transform.
type TransformOptions struct {
	// Points is the length N of the time-domain signal; the one-sided grid
	// has N/2 bins. Must be even.
	Points int
	// Window is the observation window T in seconds.
	Window float64
	// ReferenceTime is the time at which the charge curve is read as the
	// switch-off level.
	ReferenceTime float64
	// Cutoff is the low-pass cutoff normalised to the Nyquist frequency.
	Cutoff float64
	Offsets []float64

	Interpolation Interpolation
}

// DefaultTransformOptions returns the standard 4 s window setup.
func DefaultTransformOptions() TransformOptions {
	return TransformOptions{
		Points:        1 << 16,
		Window:        4,
		ReferenceTime: 2,
		Cutoff:        0.45,
		Offsets:       ChargeabilityOffsets,
	}
}

func (o TransformOptions) withDefaults() TransformOptions {
	d := DefaultTransformOptions()
	if o.Points == 0 {
		o.Points = d.Points
	}
	if o.Window == 0 {
		o.Window = d.Window
	}
	if o.ReferenceTime == 0 {
		o.ReferenceTime = d.ReferenceTime
	}
	if o.Cutoff == 0 {
		o.Cutoff = d.Cutoff
	}
	if o.Offsets == nil {
		o.Offsets = d.Offsets
	}
	return o
}

func (o TransformOptions) validate() error {
	if o.Points < 4 || o.Points%2 != 0 {
		return fmt.Errorf("%w: transform length must be even and >= 4, got %d", ErrConfig, o.Points)
	}
	if o.Window <= 0 {
		return fmt.Errorf("%w: transform window must be positive", ErrConfig)
	}
	if o.Cutoff <= 0 || o.Cutoff >= 1 {
		return fmt.Errorf("%w: normalised cutoff must be in (0, 1), got %g", ErrConfig, o.Cutoff)
	}
	return nil
}

// ChargeabilitySample is the decay curve read at one time offset.
type ChargeabilitySample struct {
	Offset float64
	Time   float64
	Index  int
	Volt   float64
	// Chargeability is Volt normalised by the switch-off level, in mV/V.
	Chargeability float64
}

// TimeDomain is the decay response derived from a one-sided spectrum.
type TimeDomain struct {
	Freqs []float64
	Time  []float64
	Volt  []float64
	// Reference is the charge curve at ReferenceTime.
	Reference     float64
	Chargeability []ChargeabilitySample
}

// Grid returns the one-sided uniform frequency grid f_k = k/T, k < N/2.
func Grid(opts TransformOptions) []float64 {
	opts = opts.withDefaults()
	df := 1 / opts.Window
	g := make([]float64, opts.Points/2)
	for k := range g {
		g[k] = float64(k) * df
	}
	return g
}

// TransformModel evaluates the rock branch on the transform grid and
// converts it to a decay curve. The DC bin is evaluated just above zero
// because the CPE is undefined at zero frequency.
func TransformModel(m Model, p Params, opts TransformOptions) (TimeDomain, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return TimeDomain{}, err
	}
	grid := Grid(opts)
	eval := append([]float64(nil), grid...)
	eval[0] = grid[1] * 1e-6
	rock, _, err := m.EvaluateRock(p, eval)
	if err != nil {
		return TimeDomain{}, err
	}
	td, err := Transform(rock, opts)
	if err != nil {
		return TimeDomain{}, err
	}
	td.Freqs = grid
	return td, nil
}

// TransformMeasured resamples a measured spectrum onto the transform grid
// and converts it to a decay curve. Points outside the measured range are
// extrapolated linearly from the end segments.
func TransformMeasured(s Spectrum, opts TransformOptions) (TimeDomain, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return TimeDomain{}, err
	}
	if err := s.Validate(); err != nil {
		return TimeDomain{}, err
	}
	if s.Len() < 2 {
		return TimeDomain{}, fmt.Errorf("%w: at least two points are needed to interpolate", ErrConfig)
	}

	xs, re, im := sortedSpectrum(s)
	grid := Grid(opts)
	zr, err := resample(xs, re, grid, opts.Interpolation)
	if err != nil {
		return TimeDomain{}, err
	}
	zi, err := resample(xs, im, grid, opts.Interpolation)
	if err != nil {
		return TimeDomain{}, err
	}
	z := make([]complex128, len(grid))
	for i := range z {
		z[i] = complex(zr[i], zi[i])
	}
	td, err := Transform(z, opts)
	if err != nil {
		return TimeDomain{}, err
	}
	td.Freqs = grid
	return td, nil
}

func sortedSpectrum(s Spectrum) (xs, re, im []float64) {
	idx := make([]int, s.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.Freqs[idx[a]] < s.Freqs[idx[b]] })
	for _, i := range idx {
		// duplicate frequencies would break the strictly increasing fit
		if n := len(xs); n > 0 && xs[n-1] == s.Freqs[i] {
			continue
		}
		xs = append(xs, s.Freqs[i])
		re = append(re, s.Real[i])
		im = append(im, s.Imag[i])
	}
	return xs, re, im
}

func resample(xs, ys, at []float64, mode Interpolation) ([]float64, error) {
	var pred interp.FittablePredictor = &interp.PiecewiseLinear{}
	if mode == CUBIC && len(xs) >= 4 {
		pred = &interp.NaturalCubic{}
	}
	if err := pred.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: interpolation: %v", ErrConfig, err)
	}
	n := len(xs)
	out := make([]float64, len(at))
	for i, x := range at {
		switch {
		case x < xs[0]:
			slope := (ys[1] - ys[0]) / (xs[1] - xs[0])
			out[i] = ys[0] + slope*(x-xs[0])
		case x > xs[n-1]:
			slope := (ys[n-1] - ys[n-2]) / (xs[n-1] - xs[n-2])
			out[i] = ys[n-1] + slope*(x-xs[n-1])
		default:
			out[i] = pred.Predict(x)
		}
	}
	return out, nil
}

// Transform converts a one-sided spectrum of length N/2 into the truncated
// decay curve. It is a pure function of its inputs.
func Transform(spectrum []complex128, opts TransformOptions) (TimeDomain, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return TimeDomain{}, err
	}
	n := opts.Points
	if len(spectrum) != n/2 {
		return TimeDomain{}, fmt.Errorf("%w: spectrum has %d bins, want %d", ErrConfig, len(spectrum), n/2)
	}

	// the Nyquist bin is left at zero
	coeff := make([]complex128, n/2+1)
	copy(coeff, spectrum)
	signal := fourier.NewFFT(n).Sequence(nil, coeff)
	for i := range signal {
		signal[i] /= float64(n)
	}

	filtered := filtfilt(signal, lowpass(opts.Cutoff))

	dt := opts.Window / float64(n)
	keep := n/2 + 1
	charge := make([]float64, n)
	sum := 0.0
	for i, v := range filtered {
		sum += v
		charge[i] = sum
	}

	ref := nearest(dt, n, opts.ReferenceTime)
	vref := charge[ref]

	td := TimeDomain{
		Time:      make([]float64, keep),
		Volt:      make([]float64, keep),
		Reference: vref,
	}
	for i := 0; i < keep; i++ {
		td.Time[i] = float64(i) * dt
		td.Volt[i] = vref - charge[i]
	}

	td.Chargeability = make([]ChargeabilitySample, len(opts.Offsets))
	for k, off := range opts.Offsets {
		i := nearest(dt, keep, off)
		s := ChargeabilitySample{Offset: off, Time: td.Time[i], Index: i, Volt: td.Volt[i]}
		if vref != 0 {
			s.Chargeability = 1000 * s.Volt / vref
		}
		td.Chargeability[k] = s
	}
	return td, nil
}

// nearest returns the index of the sample of t = i*dt, i < n, closest to at.
func nearest(dt float64, n int, at float64) int {
	i := int(math.Round(at / dt))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// lowpass designs the second order Butterworth smoother at a cutoff
// normalised to the Nyquist frequency.
func lowpass(cutoff float64) []biquad.Coefficients {
	return design.ButterworthLP(cutoff/2, 2, 1)
}

// filtfilt runs the biquad cascade forward and backward for zero phase.
// The signal is padded with an odd reflection at both ends and every
// section starts in its step-response steady state.
func filtfilt(x []float64, sections []biquad.Coefficients) []float64 {
	n := len(x)
	pad := 3 * 3
	if pad > n-1 {
		pad = n - 1
	}

	ext := make([]float64, 0, n+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-pad; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	run := func(buf []float64) {
		level := buf[0]
		for _, c := range sections {
			s := biquad.NewSection(c)
			gain := (c.B0 + c.B1 + c.B2) / (1 + c.A1 + c.A2)
			s.SetState([2]float64{
				(gain - c.B0) * level,
				(c.B2 - c.A2*gain) * level,
			})
			s.ProcessBlock(buf)
			level *= gain
		}
	}
	reverse := func(buf []float64) {
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	run(ext)
	reverse(ext)
	run(ext)
	reverse(ext)

	out := make([]float64, n)
	copy(out, ext[pad:pad+n])
	return out
}
