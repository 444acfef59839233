package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kacperjurak/sipfit"
)

// Slider kinds.
const (
	Magnitude = "magnitude"
	Exponent  = "exponent"
)

// Slider is the range and default of one parameter in physical units.
type Slider struct {
	Name    string  `json:"name"`
	Kind    string  `json:"kind"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// Sliders is the full parameter configuration.
type Sliders []Slider

// DefaultSliders covers every parameter with ranges suited to laboratory
// SIP measurements between 1 mHz and 100 kHz.
func DefaultSliders() Sliders {
	d := sipfit.DefaultParams()
	return Sliders{
		{"Rinf", Magnitude, 1e-2, 1e5, d.Rinf},
		{"Linf", Magnitude, 1e-9, 1e-3, d.Linf},
		{"Rh", Magnitude, 1e-2, 1e5, d.Rh},
		{"Fh", Magnitude, 1, 1e6, d.Fh},
		{"Ph", Exponent, 0.1, 1, d.Ph},
		{"Rm", Magnitude, 1e-2, 1e5, d.Rm},
		{"Fm", Magnitude, 1e-2, 1e4, d.Fm},
		{"Pm", Exponent, 0.1, 1, d.Pm},
		{"Rl", Magnitude, 1e-2, 1e5, d.Rl},
		{"Fl", Magnitude, 1e-4, 1e3, d.Fl},
		{"Pl", Exponent, 0.1, 1, d.Pl},
		{"Re", Magnitude, 1e-2, 1e5, d.Re},
		{"Qe", Magnitude, 1e-8, 10, d.Qe},
		{"Pef", Exponent, 0.1, 1, d.Pef},
		{"Pei", Exponent, 0.1, 1, d.Pei},
	}
}

// LoadSliders reads a JSON array of sliders from path.
func LoadSliders(path string) (Sliders, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open slider file: %w", err)
	}
	defer f.Close()
	return ParseSliders(f)
}

// ParseSliders decodes and validates a JSON array of sliders.
func ParseSliders(r io.Reader) (Sliders, error) {
	var s Sliders
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: slider file: %v", sipfit.ErrConfig, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks names, kinds and ranges.
func (s Sliders) Validate() error {
	seen := map[string]bool{}
	var probe sipfit.Params
	for _, sl := range s {
		if _, err := probe.Get(sl.Name); err != nil {
			return err
		}
		if seen[sl.Name] {
			return fmt.Errorf("%w: duplicate slider %q", sipfit.ErrConfig, sl.Name)
		}
		seen[sl.Name] = true

		want := Magnitude
		if sipfit.IsExponent(sl.Name) {
			want = Exponent
		}
		if sl.Kind != want {
			return fmt.Errorf("%w: slider %q has kind %q, want %q", sipfit.ErrConfig, sl.Name, sl.Kind, want)
		}
		if sl.Min > sl.Max || sl.Default < sl.Min || sl.Default > sl.Max {
			return fmt.Errorf("%w: slider %q: default %g outside [%g, %g]", sipfit.ErrConfig, sl.Name, sl.Default, sl.Min, sl.Max)
		}
		if sl.Kind == Magnitude && sl.Min <= 0 {
			return fmt.Errorf("%w: slider %q: magnitude range must be positive", sipfit.ErrConfig, sl.Name)
		}
	}
	return nil
}

// Bounds returns the slider ranges keyed by parameter name.
func (s Sliders) Bounds() sipfit.Bounds {
	b := make(sipfit.Bounds, len(s))
	for _, sl := range s {
		b[sl.Name] = sipfit.Bound{Lower: sl.Min, Upper: sl.Max}
	}
	return b
}

// Defaults returns the slider defaults as a parameter record. Every
// parameter must have a slider.
func (s Sliders) Defaults() (sipfit.Params, error) {
	m := make(map[string]float64, len(s))
	for _, sl := range s {
		m[sl.Name] = sl.Default
	}
	return sipfit.ParamsFromMap(m)
}
