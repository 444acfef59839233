// Package report renders calculation results as SVG plots and xlsx
// workbooks.
package report

import (
	"fmt"
	"image/color"
	"math"
	"math/cmplx"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kacperjurak/sipfit"
)

var (
	modelColor    = color.RGBA{B: 255, A: 255}
	rockColor     = color.RGBA{G: 128, B: 128, A: 255}
	measuredColor = color.RGBA{R: 255, A: 255}
	specialColor  = color.RGBA{R: 255, G: 165, A: 255}
)

// SavePlots writes cole.svg, bode.svg and decay.svg to dir and returns
// their paths. measured may be empty. size is the edge length in inches.
func SavePlots(res sipfit.CalculationResult, measured sipfit.Spectrum, dir string, size uint) ([]string, error) {
	if size == 0 {
		size = 6
	}
	edge := vg.Length(size) * vg.Inch

	plots := []struct {
		name  string
		build func(sipfit.CalculationResult, sipfit.Spectrum) (*plot.Plot, error)
	}{
		{"cole.svg", colePlot},
		{"bode.svg", bodePlot},
		{"decay.svg", decayPlot},
	}

	var paths []string
	for _, pl := range plots {
		p, err := pl.build(res, measured)
		if err != nil {
			return paths, fmt.Errorf("%s: %w", pl.name, err)
		}
		path := filepath.Join(dir, pl.name)
		if err := p.Save(edge, edge, path); err != nil {
			return paths, fmt.Errorf("failed to save %s: %w", pl.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	l.Color = c
	p.Add(l)
	p.Legend.Add(label, l)
	return nil
}

func addScatter(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = c
	p.Add(s)
	p.Legend.Add(label, s)
	return nil
}

// colePlot draws -Im(Z) against Re(Z).
func colePlot(res sipfit.CalculationResult, measured sipfit.Spectrum) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Cole-Cole"
	p.X.Label.Text = "Re(Z) [Ohm]"
	p.Y.Label.Text = "-Im(Z) [Ohm]"
	p.Add(plotter.NewGrid())

	model := make(plotter.XYs, len(res.Freqs))
	rock := make(plotter.XYs, len(res.Freqs))
	for i := range res.Freqs {
		model[i] = plotter.XY{X: res.Real[i], Y: -res.Imag[i]}
		rock[i] = plotter.XY{X: res.RockReal[i], Y: -res.RockImag[i]}
	}
	meas := make(plotter.XYs, measured.Len())
	for i := range meas {
		meas[i] = plotter.XY{X: measured.Real[i], Y: -measured.Imag[i]}
	}
	special := make(plotter.XYs, len(res.Special))
	for i, sp := range res.Special {
		special[i] = plotter.XY{X: sp.Real, Y: -sp.Imag}
	}

	if err := addLine(p, "model", model, modelColor); err != nil {
		return nil, err
	}
	if err := addLine(p, "rock", rock, rockColor); err != nil {
		return nil, err
	}
	if err := addScatter(p, "measured", meas, measuredColor); err != nil {
		return nil, err
	}
	if err := addScatter(p, "special", special, specialColor); err != nil {
		return nil, err
	}
	return p, nil
}

// bodePlot draws |Z| against frequency on log axes. Non-positive
// frequencies are skipped.
func bodePlot(res sipfit.CalculationResult, measured sipfit.Spectrum) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Bode"
	p.X.Label.Text = "f [Hz]"
	p.Y.Label.Text = "|Z| [Ohm]"
	p.X.Scale = plot.LogScale{}
	p.Y.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	var model, meas plotter.XYs
	for i, f := range res.Freqs {
		if m := cmplx.Abs(complex(res.Real[i], res.Imag[i])); f > 0 && m > 0 {
			model = append(model, plotter.XY{X: f, Y: m})
		}
	}
	for i, f := range measured.Freqs {
		if m := cmplx.Abs(measured.Complex(i)); f > 0 && m > 0 {
			meas = append(meas, plotter.XY{X: f, Y: m})
		}
	}
	if err := addLine(p, "model", model, modelColor); err != nil {
		return nil, err
	}
	if err := addScatter(p, "measured", meas, measuredColor); err != nil {
		return nil, err
	}
	return p, nil
}

// decayPlot draws the chargeability decay curve with the sampled offsets.
func decayPlot(res sipfit.CalculationResult, _ sipfit.Spectrum) (*plot.Plot, error) {
	td := res.TimeDomain
	p := plot.New()
	p.Title.Text = "Decay"
	p.X.Label.Text = "t [s]"
	p.Y.Label.Text = "V [mV/V]"
	p.Add(plotter.NewGrid())

	scale := 0.0
	if td.Reference != 0 {
		scale = 1000 / td.Reference
	}
	// thin the curve, a full transform holds tens of thousands of samples
	step := int(math.Max(1, float64(len(td.Time))/2000))
	var curve plotter.XYs
	for i := 0; i < len(td.Time); i += step {
		curve = append(curve, plotter.XY{X: td.Time[i], Y: td.Volt[i] * scale})
	}
	samples := make(plotter.XYs, len(td.Chargeability))
	for i, c := range td.Chargeability {
		samples[i] = plotter.XY{X: c.Time, Y: c.Chargeability}
	}
	if err := addLine(p, "decay", curve, modelColor); err != nil {
		return nil, err
	}
	if err := addScatter(p, "chargeability", samples, specialColor); err != nil {
		return nil, err
	}
	return p, nil
}
