package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/models"
)

// setupCORS sets up CORS headers
func setupCORS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// preflight handles CORS and method checks, reporting whether the request
// should be served
func preflight(w http.ResponseWriter, r *http.Request) bool {
	setupCORS(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// validateConfig rejects configurations that would fail every fit
func validateConfig(c *config.Config) error {
	if _, err := c.ModelOptions(); err != nil {
		return err
	}
	probe := *c
	if strings.EqualFold(probe.Method, "all") {
		probe.Method = ""
	}
	if _, err := probe.FitOptions(config.DefaultSliders()); err != nil {
		return err
	}
	var p sipfit.Params
	for name := range c.Values {
		if _, err := p.Get(name); err != nil {
			return err
		}
	}
	_, _, err := sipfit.Partition(c.Disabled)
	return err
}

// webhookItem converts a finished job into a webhook task
func webhookItem(r models.WorkResult, cfg *config.Config) models.WebhookItem {
	fit := r.Outcome.Fit
	item := models.WebhookItem{
		RequestID:    r.RequestID,
		BatchID:      r.BatchID,
		Iteration:    r.Iteration,
		Status:       fit.Status,
		ChiSquare:    fit.ChiSq,
		Spectrum:     r.Spectrum,
		Topology:     r.Topology,
		NegativeLead: cfg.NegativeLead,
	}
	if r.Err != nil {
		item.Error = r.Err.Error()
		if item.Status == "" || item.Status == sipfit.OK {
			item.Status = sipfit.ERROR
		}
		return item
	}
	item.Method = fit.Method.String()
	item.Params = fit.Params.Map()
	item.Variables = r.Outcome.Calculation.Variables()
	item.Chargeability = r.Outcome.Calculation.TimeDomain.Chargeability
	return item
}
