package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/models"
)

// CalculateHandler runs a synchronous forward calculation
type CalculateHandler struct {
	config    *config.Config
	transform sipfit.TransformOptions
}

// NewCalculateHandler creates a new calculation handler
func NewCalculateHandler(cfg *config.Config, transform sipfit.TransformOptions) *CalculateHandler {
	return &CalculateHandler{config: cfg, transform: transform}
}

// ServeHTTP implements the http.Handler interface
func (h *CalculateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}

	var req models.CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	p, err := sipfit.ParamsFromMap(req.Params)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg := *h.config
	if req.Topology != "" {
		cfg.Topology = req.Topology
	}
	cfg.NegativeLead = cfg.NegativeLead || req.NegativeLead
	modelOpts, err := cfg.ModelOptions()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(req.Frequencies) != len(req.Impedance) {
		writeError(w, "frequency and impedance data length mismatch", http.StatusBadRequest)
		return
	}
	measured := req.Spectrum()

	res, err := sipfit.RunManual(sipfit.NewModel(modelOpts), p, measured, sipfit.CalcOptions{
		Transform:          h.transform,
		ReferenceFrequency: req.ReferenceFrequency,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sipfit.ErrDomain) || errors.Is(err, sipfit.ErrConfig) {
			status = http.StatusBadRequest
		}
		writeError(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, calculateResponse(res))
}

func calculateResponse(res sipfit.CalculationResult) models.CalculateResponse {
	out := models.CalculateResponse{
		Params:      res.Params.Map(),
		Variables:   models.SanitizeMap(res.Variables()),
		Frequencies: res.Freqs,
		Real:        models.SanitizeSlice(res.Real),
		Imag:        models.SanitizeSlice(res.Imag),
		RockReal:    models.SanitizeSlice(res.RockReal),
		RockImag:    models.SanitizeSlice(res.RockImag),
	}
	for _, sp := range res.Special {
		out.Special = append(out.Special, models.SpecialPoint{
			Name: sp.Name,
			Freq: sp.Freq,
			Real: models.SanitizeFloat(sp.Real),
			Imag: models.SanitizeFloat(sp.Imag),
		})
	}
	for _, c := range res.TimeDomain.Chargeability {
		out.Chargeability = append(out.Chargeability, models.ChargeabilityPoint{
			Offset: c.Offset,
			Value:  models.SanitizeFloat(c.Chargeability),
		})
	}
	return out
}
