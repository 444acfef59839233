package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/internal/utils"
	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/models"
	"github.com/kacperjurak/sipfit/pkg/worker"
)

// FitHandler handles single spectrum fit requests
type FitHandler struct {
	config     *config.Config
	workerPool *worker.Pool
}

// NewFitHandler creates a new fit handler
func NewFitHandler(cfg *config.Config, pool *worker.Pool) *FitHandler {
	return &FitHandler{config: cfg, workerPool: pool}
}

// ServeHTTP implements the http.Handler interface
func (h *FitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}

	var req models.FitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	spectrum := req.Spectrum()
	if err := spectrum.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg := req.FitOverrides.Apply(h.config)
	if err := validateConfig(cfg); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	requestID := utils.GenerateID()
	go h.processAsync(requestID, spectrum, cfg)

	if !h.config.Quiet {
		log.Printf("HTTP Request received - ID: %s, Data points: %d", requestID, spectrum.Len())
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":    true,
		"request_id": requestID,
		"message":    "Processing started",
	})
}

// processAsync runs the fit on the pool and queues the webhook
func (h *FitHandler) processAsync(requestID string, spectrum sipfit.Spectrum, cfg *config.Config) {
	reply := make(chan models.WorkResult, 1)
	if !h.workerPool.SubmitJob(models.WorkItem{
		RequestID: requestID,
		Spectrum:  spectrum,
		Config:    cfg,
		StartTime: time.Now(),
		Reply:     reply,
	}) {
		return
	}

	select {
	case result := <-reply:
		h.workerPool.QueueWebhook(webhookItem(result, cfg))
	case <-h.workerPool.Done():
		log.Printf("⚠️  Pool shut down before fit %s finished", requestID)
	}
}
