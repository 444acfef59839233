package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kacperjurak/sipfit"
)

func TestDefaultSlidersValid(t *testing.T) {
	s := DefaultSliders()
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
	p, err := s.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	if p != sipfit.DefaultParams() {
		t.Errorf("defaults = %+v", p)
	}
	if len(s.Bounds()) != len(sipfit.ParamNames) {
		t.Errorf("got %d bounds", len(s.Bounds()))
	}
}

func TestParseSlidersErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"bad json", `{`},
		{"unknown name", `[{"name":"Rx","kind":"magnitude","min":1,"max":2,"default":1}]`},
		{"wrong kind", `[{"name":"Ph","kind":"magnitude","min":0.1,"max":1,"default":0.5}]`},
		{"default outside", `[{"name":"Rh","kind":"magnitude","min":1,"max":2,"default":3}]`},
		{"non-positive magnitude", `[{"name":"Rh","kind":"magnitude","min":0,"max":2,"default":1}]`},
		{"duplicate", `[{"name":"Rh","kind":"magnitude","min":1,"max":2,"default":1},{"name":"Rh","kind":"magnitude","min":1,"max":2,"default":1}]`},
	}
	for _, tt := range tests {
		if _, err := ParseSliders(strings.NewReader(tt.in)); !errors.Is(err, sipfit.ErrConfig) {
			t.Errorf("%s: err = %v, want ErrConfig", tt.name, err)
		}
	}
}

func TestLoadSlidersPartialDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sliders.json")
	body := `[{"name":"Rh","kind":"magnitude","min":1,"max":100,"default":10}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSliders(path)
	if err != nil {
		t.Fatal(err)
	}
	if b := s.Bounds()["Rh"]; b.Lower != 1 || b.Upper != 100 {
		t.Errorf("bounds = %+v", b)
	}
	if _, err := s.Defaults(); !errors.Is(err, sipfit.ErrConfig) {
		t.Errorf("incomplete sliders: err = %v", err)
	}
}

func TestFlags(t *testing.T) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&cfg.Values, "v", "")
	fs.Var(&cfg.Disabled, "disable", "")
	err := fs.Parse([]string{"-v", "Rh=75", "-v", "Pm=0.6,Re=12", "-disable", "Linf,Pei", "-disable", "Rinf"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Values["Rh"] != 75 || cfg.Values["Pm"] != 0.6 || cfg.Values["Re"] != 12 {
		t.Errorf("values = %v", cfg.Values)
	}
	if got := cfg.Disabled.String(); got != "Linf,Pei,Rinf" {
		t.Errorf("disabled = %q", got)
	}

	p, err := cfg.Initial(DefaultSliders())
	if err != nil {
		t.Fatal(err)
	}
	if p.Rh != 75 || p.Pm != 0.6 {
		t.Errorf("initial = %+v", p)
	}

	var bad ParamFlags
	if err := bad.Set("Rx=1"); !errors.Is(err, sipfit.ErrConfig) {
		t.Errorf("unknown name: err = %v", err)
	}
	if err := bad.Set("Rh"); err == nil {
		t.Error("missing value accepted")
	}
}

func TestFitOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = "lm"
	cfg.Disabled = ListFlags{"Linf"}
	opts, err := cfg.FitOptions(DefaultSliders())
	if err != nil {
		t.Fatal(err)
	}
	if opts.Method != sipfit.LEVENBERG || len(opts.Disabled) != 1 || len(opts.Bounds) != len(sipfit.ParamNames) {
		t.Errorf("options = %+v", opts)
	}

	cfg.Residual = "nyquist"
	if _, err := cfg.FitOptions(DefaultSliders()); !errors.Is(err, sipfit.ErrConfig) {
		t.Errorf("unknown residual: err = %v", err)
	}

	cfg.Topology = "ladder"
	if _, err := cfg.ModelOptions(); !errors.Is(err, sipfit.ErrConfig) {
		t.Errorf("unknown topology: err = %v", err)
	}
}
