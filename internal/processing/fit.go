package processing

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/models"
)

// allMethods is the method name that runs every backend and keeps the best fit
const allMethods = "all"

// FitProcessor fits spectra and runs the forward calculation on the result
type FitProcessor struct {
	sliders config.Sliders
	calc    sipfit.CalcOptions
}

// NewFitProcessor creates a new fit processor. A nil sliders value selects
// config.DefaultSliders.
func NewFitProcessor(sliders config.Sliders, calc sipfit.CalcOptions) *FitProcessor {
	if sliders == nil {
		sliders = config.DefaultSliders()
	}
	return &FitProcessor{sliders: sliders, calc: calc}
}

// Process fits s using cfg and returns the fit with its calculation
func (p *FitProcessor) Process(ctx context.Context, s sipfit.Spectrum, cfg *config.Config) (models.Outcome, error) {
	if err := s.Validate(); err != nil {
		return models.Outcome{}, err
	}
	modelOpts, err := cfg.ModelOptions()
	if err != nil {
		return models.Outcome{}, err
	}
	m := sipfit.NewModel(modelOpts)
	initial, err := cfg.Initial(p.sliders)
	if err != nil {
		return models.Outcome{}, err
	}

	if !cfg.Quiet {
		log.Printf("Processing %d frequency points, topology=%s residual=%s method=%s",
			s.Len(), modelOpts.Topology, cfg.Residual, cfg.Method)
	}

	if strings.EqualFold(cfg.Method, allMethods) {
		return p.runAllMethods(ctx, m, s, initial, cfg)
	}
	return p.runSingleMethod(ctx, m, s, initial, cfg, cfg.Method)
}

func (p *FitProcessor) runSingleMethod(ctx context.Context, m sipfit.Model, s sipfit.Spectrum, initial sipfit.Params, cfg *config.Config, method string) (models.Outcome, error) {
	c := *cfg
	c.Method = method
	opts, err := c.FitOptions(p.sliders)
	if err != nil {
		return models.Outcome{}, err
	}

	var res sipfit.FitResult
	if cfg.Residual == sipfit.BODE {
		res, err = sipfit.FitBode(ctx, m, s, initial, opts)
	} else {
		res, err = sipfit.FitCole(ctx, m, s, initial, opts)
	}
	if err != nil {
		return models.Outcome{Fit: res}, err
	}

	calc, err := sipfit.RunManual(m, res.Params, s, p.calc)
	if err != nil {
		return models.Outcome{Fit: res}, fmt.Errorf("calculation at fitted parameters: %w", err)
	}

	if !cfg.Quiet {
		log.Printf("Method: %s, ChiSq=%.12e, Status=%s, Evals=%d, Time=%v",
			res.Method, res.ChiSq, res.Status, res.FuncEval, res.Runtime)
	}
	return models.Outcome{Fit: res, Calculation: calc}, nil
}

func (p *FitProcessor) runAllMethods(ctx context.Context, m sipfit.Model, s sipfit.Spectrum, initial sipfit.Params, cfg *config.Config) (models.Outcome, error) {
	methods := []sipfit.Method{sipfit.TRUST_REGION, sipfit.LEVENBERG, sipfit.NELDER_MEAD}
	var best models.Outcome
	bestChiSq := math.Inf(1)
	found := false

	log.Printf("Running all optimization methods for comparison...")

	for _, method := range methods {
		out, err := p.runSingleMethod(ctx, m, s, initial, cfg, method.String())
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err != nil {
			log.Printf("Method %s failed: %v", method, err)
			continue
		}
		if out.Fit.Status != sipfit.ERROR && out.Fit.ChiSq < bestChiSq {
			best, bestChiSq, found = out, out.Fit.ChiSq, true
			log.Printf("New best method: %s with chi-square: %.12e", method, out.Fit.ChiSq)
		}
	}

	if !found {
		return models.Outcome{}, fmt.Errorf("all optimization methods failed")
	}
	return best, nil
}

// ProcessorFunc adapts Process to the worker pool
func (p *FitProcessor) ProcessorFunc() func(ctx context.Context, job models.WorkItem) (models.Outcome, error) {
	return func(ctx context.Context, job models.WorkItem) (models.Outcome, error) {
		return p.Process(ctx, job.Spectrum, job.Config)
	}
}
