package sipfit

import (
	"fmt"
	"math"
)

// Bound is an inclusive physical-unit range for one parameter.
type Bound struct {
	Lower, Upper float64
}

// Bounds maps parameter names to their ranges.
type Bounds map[string]Bound

// ScaleValue maps a physical value to the optimizer space: exponents are
// multiplied by 10, magnitudes are replaced by their base-10 logarithm.
func ScaleValue(name string, v float64) (float64, error) {
	if IsExponent(name) {
		return v * 10, nil
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: cannot log-scale %s=%g", ErrDomain, name, v)
	}
	return math.Log10(v), nil
}

// DescaleValue is the inverse of ScaleValue.
func DescaleValue(name string, x float64) float64 {
	if IsExponent(name) {
		return x / 10
	}
	return math.Pow(10, x)
}

// Scale encodes the named parameters of p as an optimizer vector.
func Scale(names []string, p Params) ([]float64, error) {
	x := make([]float64, len(names))
	for i, name := range names {
		v, err := p.Get(name)
		if err != nil {
			return nil, err
		}
		if x[i], err = ScaleValue(name, v); err != nil {
			return nil, err
		}
	}
	return x, nil
}

// Descale decodes x into the named fields of a copy of base. Fields not in
// names keep the value they have in base.
func Descale(names []string, x []float64, base Params) (Params, error) {
	if len(names) != len(x) {
		return Params{}, fmt.Errorf("%w: %d names for %d values", ErrConfig, len(names), len(x))
	}
	for i, name := range names {
		if err := base.Set(name, DescaleValue(name, x[i])); err != nil {
			return Params{}, err
		}
	}
	return base, nil
}

// ScaleBounds converts the bounds of the named parameters to optimizer
// space. Every name must have a bound with Lower <= Upper.
func ScaleBounds(names []string, bounds Bounds) (lower, upper []float64, err error) {
	lower = make([]float64, len(names))
	upper = make([]float64, len(names))
	for i, name := range names {
		b, ok := bounds[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: no bounds for free parameter %q", ErrConfig, name)
		}
		if b.Lower > b.Upper {
			return nil, nil, fmt.Errorf("%w: bounds for %q are inverted (%g > %g)", ErrConfig, name, b.Lower, b.Upper)
		}
		if lower[i], err = ScaleValue(name, b.Lower); err != nil {
			return nil, nil, fmt.Errorf("%w: lower bound of %q", ErrConfig, name)
		}
		if upper[i], err = ScaleValue(name, b.Upper); err != nil {
			return nil, nil, fmt.Errorf("%w: upper bound of %q", ErrConfig, name)
		}
	}
	return lower, upper, nil
}
