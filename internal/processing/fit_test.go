package processing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/models"
)

func synthetic(t *testing.T) sipfit.Spectrum {
	t.Helper()
	var freqs []float64
	for e := -2.0; e <= 5; e += 0.25 {
		freqs = append(freqs, math.Pow(10, e))
	}
	m := sipfit.NewModel(sipfit.Options{Topology: sipfit.PARALLEL})
	ev, err := m.EvaluateFull(sipfit.DefaultParams(), freqs)
	if err != nil {
		t.Fatal(err)
	}
	s := sipfit.Spectrum{Freqs: freqs, Real: make([]float64, len(freqs)), Imag: make([]float64, len(freqs))}
	for i, z := range ev.Total {
		s.Real[i], s.Imag[i] = real(z), imag(z)
	}
	return s
}

// twoFree fits Rinf and Rh only.
func twoFree() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Quiet = true
	cfg.Values = config.ParamFlags{"Rinf": 105, "Rh": 47}
	for _, name := range sipfit.ParamNames {
		if name != "Rinf" && name != "Rh" {
			cfg.Disabled = append(cfg.Disabled, name)
		}
	}
	return cfg
}

var fastCalc = sipfit.CalcOptions{Transform: sipfit.TransformOptions{Points: 1 << 12}}

func TestProcess(t *testing.T) {
	p := NewFitProcessor(nil, fastCalc)
	out, err := p.Process(context.Background(), synthetic(t), twoFree())
	if err != nil {
		t.Fatal(err)
	}
	truth := sipfit.DefaultParams()
	if rel := math.Abs(out.Fit.Params.Rinf-truth.Rinf) / truth.Rinf; rel > 1e-2 {
		t.Errorf("Rinf = %g", out.Fit.Params.Rinf)
	}
	if rel := math.Abs(out.Fit.Params.Rh-truth.Rh) / truth.Rh; rel > 1e-2 {
		t.Errorf("Rh = %g", out.Fit.Params.Rh)
	}
	if out.Calculation.Params != out.Fit.Params {
		t.Error("calculation not run at fitted parameters")
	}
	if len(out.Calculation.TimeDomain.Chargeability) == 0 {
		t.Error("no chargeability")
	}
}

func TestProcessAllMethods(t *testing.T) {
	cfg := twoFree()
	cfg.Method = "all"
	fn := NewFitProcessor(nil, fastCalc).ProcessorFunc()
	out, err := fn(context.Background(), models.WorkItem{Spectrum: synthetic(t), Config: cfg})
	if err != nil {
		t.Fatal(err)
	}
	if out.Fit.Status == sipfit.ERROR {
		t.Errorf("status = %s", out.Fit.Status)
	}
}

func TestProcessErrors(t *testing.T) {
	p := NewFitProcessor(nil, fastCalc)
	ctx := context.Background()

	if _, err := p.Process(ctx, sipfit.Spectrum{}, twoFree()); err == nil {
		t.Error("empty spectrum accepted")
	}

	cfg := twoFree()
	cfg.Method = "simplex"
	if _, err := p.Process(ctx, synthetic(t), cfg); !errors.Is(err, sipfit.ErrConfig) {
		t.Errorf("unknown method: err = %v", err)
	}

	cfg = twoFree()
	cfg.Topology = "ladder"
	if _, err := p.Process(ctx, synthetic(t), cfg); !errors.Is(err, sipfit.ErrConfig) {
		t.Errorf("unknown topology: err = %v", err)
	}
}
