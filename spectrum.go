package sipfit

import (
	"fmt"
	"math"
)

// Spectrum is a measured impedance sweep as parallel arrays.
type Spectrum struct {
	Freqs []float64
	Real  []float64
	Imag  []float64
}

// Len returns the number of points.
func (s Spectrum) Len() int { return len(s.Freqs) }

// Complex returns the impedance at point i.
func (s Spectrum) Complex(i int) complex128 {
	return complex(s.Real[i], s.Imag[i])
}

// Validate checks the arrays for equal length, finiteness and non-negative
// frequencies.
func (s Spectrum) Validate() error {
	if len(s.Freqs) == 0 {
		return fmt.Errorf("%w: no frequency data provided", ErrConfig)
	}
	if len(s.Real) != len(s.Freqs) || len(s.Imag) != len(s.Freqs) {
		return fmt.Errorf("%w: frequency and impedance data length mismatch: %d vs %d/%d",
			ErrConfig, len(s.Freqs), len(s.Real), len(s.Imag))
	}
	for i, f := range s.Freqs {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return fmt.Errorf("%w: invalid frequency %g at index %d", ErrDomain, f, i)
		}
		if math.IsNaN(s.Real[i]) || math.IsInf(s.Real[i], 0) || math.IsNaN(s.Imag[i]) || math.IsInf(s.Imag[i], 0) {
			return fmt.Errorf("%w: invalid impedance at index %d", ErrDomain, i)
		}
	}
	return nil
}

// Range returns the lowest and highest frequency.
func (s Spectrum) Range() (float64, float64) {
	if len(s.Freqs) == 0 {
		return 0, 0
	}
	lo, hi := s.Freqs[0], s.Freqs[0]
	for _, f := range s.Freqs[1:] {
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	return lo, hi
}
