package sipfit

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ParamNames is the canonical parameter order used for vectors, exports and
// command line output.
var ParamNames = []string{
	"Rinf", "Linf",
	"Rh", "Fh", "Ph",
	"Rm", "Fm", "Pm",
	"Rl", "Fl", "Pl",
	"Re", "Qe", "Pef", "Pei",
}

// Params is the primary parameter record of the circuit.
//
// Rinf/Linf are the lead resistor and inductor, {R,F,P}{h,m,l} describe the
// high, mid and low frequency CPE-resistor arcs by resistance, corner
// frequency and exponent, and Re/Qe/Pef/Pei describe the electrode branch.
type Params struct {
	Rinf, Linf float64
	Rh, Fh, Ph float64
	Rm, Fm, Pm float64
	Rl, Fl, Pl float64
	Re, Qe     float64
	Pef, Pei   float64
}

// DefaultParams returns a physically plausible starting record.
func DefaultParams() Params {
	return Params{
		Rinf: 100, Linf: 1e-6,
		Rh: 50, Fh: 1000, Ph: 0.9,
		Rm: 30, Fm: 100, Pm: 0.8,
		Rl: 20, Fl: 10, Pl: 0.7,
		Re: 10, Qe: 1e-4, Pef: 0.8, Pei: 0.8,
	}
}

// IsExponent reports whether name denotes a dimensionless exponent.
func IsExponent(name string) bool {
	return strings.HasPrefix(name, "P")
}

func (p *Params) field(name string) *float64 {
	switch name {
	case "Rinf":
		return &p.Rinf
	case "Linf":
		return &p.Linf
	case "Rh":
		return &p.Rh
	case "Fh":
		return &p.Fh
	case "Ph":
		return &p.Ph
	case "Rm":
		return &p.Rm
	case "Fm":
		return &p.Fm
	case "Pm":
		return &p.Pm
	case "Rl":
		return &p.Rl
	case "Fl":
		return &p.Fl
	case "Pl":
		return &p.Pl
	case "Re":
		return &p.Re
	case "Qe":
		return &p.Qe
	case "Pef":
		return &p.Pef
	case "Pei":
		return &p.Pei
	}
	return nil
}

// Get returns the value of the named parameter.
func (p *Params) Get(name string) (float64, error) {
	f := p.field(name)
	if f == nil {
		return 0, fmt.Errorf("%w: unknown parameter %q", ErrConfig, name)
	}
	return *f, nil
}

// Set assigns the named parameter.
func (p *Params) Set(name string, v float64) error {
	f := p.field(name)
	if f == nil {
		return fmt.Errorf("%w: unknown parameter %q", ErrConfig, name)
	}
	*f = v
	return nil
}

// Map returns the record keyed by parameter name.
func (p Params) Map() map[string]float64 {
	m := make(map[string]float64, len(ParamNames))
	for _, name := range ParamNames {
		m[name] = *p.field(name)
	}
	return m
}

// Values returns the parameters in ParamNames order.
func (p Params) Values() []float64 {
	v := make([]float64, len(ParamNames))
	for i, name := range ParamNames {
		v[i] = *p.field(name)
	}
	return v
}

// ParamsFromMap builds a record from a name-keyed map. Every name in
// ParamNames must be present and no other key is accepted.
func ParamsFromMap(m map[string]float64) (Params, error) {
	var p Params
	var unknown []string
	for k := range m {
		if p.field(k) == nil {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Params{}, fmt.Errorf("%w: unknown parameters %v", ErrConfig, unknown)
	}
	for _, name := range ParamNames {
		v, ok := m[name]
		if !ok {
			return Params{}, fmt.Errorf("%w: missing parameter %q", ErrConfig, name)
		}
		*p.field(name) = v
	}
	return p, nil
}

// Validate checks that every magnitude is finite and strictly positive and
// every exponent is finite.
func (p Params) Validate() error {
	for _, name := range ParamNames {
		v := *p.field(name)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: parameter %s is not finite", ErrDomain, name)
		}
		if !IsExponent(name) && v <= 0 {
			return fmt.Errorf("%w: parameter %s must be positive, got %g", ErrDomain, name, v)
		}
	}
	return nil
}

// FrequencyOrdered reports whether the arc corner frequencies satisfy
// Fh >= Fm >= Fl. It is a soft condition used only by the fit prior.
func (p Params) FrequencyOrdered() bool {
	return p.Fh >= p.Fm && p.Fm >= p.Fl
}
