package models

import (
	"time"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/pkg/config"
)

// ImpedancePoint is one complex impedance sample
type ImpedancePoint struct {
	Real float64 `json:"real"`
	Imag float64 `json:"imag"`
}

// SpectrumData represents an incoming SIP sweep
type SpectrumData struct {
	Timestamp   string           `json:"timestamp,omitempty"`
	Frequencies []float64        `json:"frequencies"`
	Impedance   []ImpedancePoint `json:"impedance"`
}

// Spectrum converts the sweep to the solver representation
func (d SpectrumData) Spectrum() sipfit.Spectrum {
	s := sipfit.Spectrum{
		Freqs: append([]float64(nil), d.Frequencies...),
		Real:  make([]float64, len(d.Impedance)),
		Imag:  make([]float64, len(d.Impedance)),
	}
	for i, p := range d.Impedance {
		s.Real[i] = p.Real
		s.Imag[i] = p.Imag
	}
	return s
}

// FitOverrides are per-request changes to the server configuration
type FitOverrides struct {
	// Params replace initial values, e.g. {"Rh": 50}.
	Params   map[string]float64 `json:"params,omitempty"`
	Disabled []string           `json:"disabled,omitempty"`
	Method   string             `json:"method,omitempty"`
	Residual string             `json:"residual,omitempty"`
	Topology string             `json:"topology,omitempty"`
	UsePrior *bool              `json:"use_prior,omitempty"`
}

// Apply returns a copy of cfg with the overrides applied
func (o FitOverrides) Apply(cfg *config.Config) *config.Config {
	c := *cfg
	c.Values = config.ParamFlags{}
	for k, v := range cfg.Values {
		c.Values[k] = v
	}
	for k, v := range o.Params {
		c.Values[k] = v
	}
	if len(o.Disabled) > 0 {
		c.Disabled = append(config.ListFlags(nil), o.Disabled...)
	}
	if o.Method != "" {
		c.Method = o.Method
	}
	if o.Residual != "" {
		c.Residual = o.Residual
	}
	if o.Topology != "" {
		c.Topology = o.Topology
	}
	if o.UsePrior != nil {
		c.UsePrior = *o.UsePrior
	}
	return &c
}

// FitRequest is the body of POST /fit
type FitRequest struct {
	SpectrumData
	FitOverrides
}

// BatchItem represents a single spectrum with iteration number
type BatchItem struct {
	Spectrum  SpectrumData `json:"spectrum"`
	Iteration int          `json:"iteration"`
}

// FitBatch is the body of POST /fit/batch
type FitBatch struct {
	BatchID   string      `json:"batch_id"`
	Timestamp time.Time   `json:"timestamp"`
	Spectra   []BatchItem `json:"spectra"`
	FitOverrides
}

// CalculateRequest is the body of POST /calculate. Frequencies and
// Impedance are optional measured data.
type CalculateRequest struct {
	Params             map[string]float64 `json:"params"`
	Topology           string             `json:"topology,omitempty"`
	NegativeLead       bool               `json:"negative_lead,omitempty"`
	ReferenceFrequency float64            `json:"reference_frequency,omitempty"`
	SpectrumData
}

// CalculateResponse is the synchronous reply of POST /calculate
type CalculateResponse struct {
	Params        map[string]float64   `json:"params"`
	Variables     map[string]float64   `json:"variables"`
	Frequencies   []float64            `json:"frequencies"`
	Real          []float64            `json:"real"`
	Imag          []float64            `json:"imag"`
	RockReal      []float64            `json:"rock_real"`
	RockImag      []float64            `json:"rock_imag"`
	Special       []SpecialPoint       `json:"special"`
	Chargeability []ChargeabilityPoint `json:"chargeability"`
}

// SpecialPoint is the full impedance at a characteristic frequency
type SpecialPoint struct {
	Name string  `json:"name"`
	Freq float64 `json:"freq"`
	Real float64 `json:"real"`
	Imag float64 `json:"imag"`
}

// ChargeabilityPoint is one sampled decay value in mV/V
type ChargeabilityPoint struct {
	Offset float64 `json:"offset"`
	Value  float64 `json:"value"`
}

// Outcome bundles a fit with the forward calculation at its parameters
type Outcome struct {
	Fit         sipfit.FitResult
	Calculation sipfit.CalculationResult
}

// WorkItem represents a single fit task
type WorkItem struct {
	ID        int
	RequestID string
	BatchID   string
	Iteration int
	Spectrum  sipfit.Spectrum
	Config    *config.Config
	StartTime time.Time
	// Reply receives the result and must be buffered.
	Reply chan<- WorkResult
}

// WorkResult contains the result of a fit task
type WorkResult struct {
	ID             int
	RequestID      string
	BatchID        string
	Iteration      int
	Outcome        Outcome
	Err            error
	ProcessingTime time.Duration
	Success        bool
	Spectrum       sipfit.Spectrum
	Topology       string
}

// WebhookItem represents a webhook task
type WebhookItem struct {
	RequestID     string
	BatchID       string
	Iteration     int
	Status        string
	Method        string
	ChiSquare     float64
	Params        map[string]float64
	Variables     map[string]float64
	Spectrum      sipfit.Spectrum
	Chargeability []sipfit.ChargeabilitySample
	Topology      string
	NegativeLead  bool
	Error         string
}

// ElementImpedance represents impedance data for a circuit element
type ElementImpedance struct {
	Name       string           `json:"name"`
	Impedances []ImpedancePoint `json:"impedances"`
}

// WebhookResponse represents the webhook payload structure
type WebhookResponse struct {
	ID                 string               `json:"id"`
	BatchID            string               `json:"batch_id,omitempty"`
	Iteration          int                  `json:"iteration"`
	Time               string               `json:"time"`
	Status             string               `json:"status"`
	Method             string               `json:"method,omitempty"`
	ChiSquare          float64              `json:"chi_square"`
	RealImpedance      []float64            `json:"real_impedance"`
	ImaginaryImpedance []float64            `json:"imaginary_impedance"`
	Frequencies        []float64            `json:"frequencies"`
	Parameters         map[string]float64   `json:"parameters"`
	Variables          map[string]float64   `json:"variables"`
	Chargeability      []ChargeabilityPoint `json:"chargeability"`
	ElementImpedances  []ElementImpedance   `json:"element_impedances"`
	CircuitType        string               `json:"circuit_type"`
	Error              string               `json:"error,omitempty"`
}

// SpectrumTiming tracks performance metrics for individual spectrum processing
type SpectrumTiming struct {
	Iteration      int           `json:"iteration"`
	ProcessingTime time.Duration `json:"processing_time_ms"`
	ChiSquare      float64       `json:"chi_square"`
	Success        bool          `json:"success"`
}
