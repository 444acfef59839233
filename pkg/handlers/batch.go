package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/internal/utils"
	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/models"
	"github.com/kacperjurak/sipfit/pkg/worker"
)

// BatchHandler handles batch fit requests
type BatchHandler struct {
	config     *config.Config
	workerPool *worker.Pool
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(cfg *config.Config, pool *worker.Pool) *BatchHandler {
	return &BatchHandler{config: cfg, workerPool: pool}
}

// ServeHTTP implements the http.Handler interface
func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}

	var batch models.FitBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	if len(batch.Spectra) == 0 {
		writeError(w, "No spectra provided in batch", http.StatusBadRequest)
		return
	}
	spectra := make([]sipfit.Spectrum, len(batch.Spectra))
	for i, item := range batch.Spectra {
		spectra[i] = item.Spectrum.Spectrum()
		if err := spectra[i].Validate(); err != nil {
			writeError(w, fmt.Sprintf("spectrum %d: %v", item.Iteration, err), http.StatusBadRequest)
			return
		}
	}
	cfg := batch.FitOverrides.Apply(h.config)
	if err := validateConfig(cfg); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if batch.BatchID == "" {
		batch.BatchID = utils.GenerateID()
	}

	log.Printf("🔄 Batch processing started - ID: %s, Spectra: %d", batch.BatchID, len(batch.Spectra))

	go h.processBatchAsync(batch, spectra, cfg)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":  true,
		"batch_id": batch.BatchID,
		"spectra":  len(batch.Spectra),
		"message":  "Batch processing started with worker pool",
	})
}

// processBatchAsync submits every spectrum and forwards results to the
// webhook as they complete
func (h *BatchHandler) processBatchAsync(batch models.FitBatch, spectra []sipfit.Spectrum, cfg *config.Config) {
	batchStartTime := time.Now()
	reply := make(chan models.WorkResult, len(spectra))

	submitted := 0
	for i, item := range batch.Spectra {
		ok := h.workerPool.SubmitJob(models.WorkItem{
			ID:        i,
			RequestID: fmt.Sprintf("%s_iter_%03d", batch.BatchID, item.Iteration),
			BatchID:   batch.BatchID,
			Iteration: item.Iteration,
			Spectrum:  spectra[i],
			Config:    cfg,
			StartTime: time.Now(),
			Reply:     reply,
		})
		if !ok {
			break
		}
		submitted++
	}

	timings := make([]models.SpectrumTiming, len(spectra))
	for n := 0; n < submitted; n++ {
		var result models.WorkResult
		select {
		case result = <-reply:
		case <-h.workerPool.Done():
			log.Printf("⚠️  Pool shut down, batch %s stopped after %d of %d spectra", batch.BatchID, n, len(spectra))
			return
		}
		timings[result.ID] = models.SpectrumTiming{
			Iteration:      result.Iteration,
			ProcessingTime: result.ProcessingTime,
			ChiSquare:      result.Outcome.Fit.ChiSq,
			Success:        result.Success,
		}
		h.workerPool.QueueWebhook(webhookItem(result, cfg))

		if !h.config.Quiet {
			log.Printf("✅ Processed spectrum iteration %d", result.Iteration)
		}
	}

	total := time.Since(batchStartTime)
	s := Summarize(timings, total)
	log.Printf("🎉 Batch processing completed - ID: %s, Total time: %v", batch.BatchID, total)
	log.Printf("📊 Timing: %d spectra, avg %.2f ms, %.1f%% success, avg chi-square %.6e, %.2f spectra/s",
		s.Spectra, s.AvgMillis, s.SuccessRate, s.AvgChiSquare, s.SpectraPerSecond)
}

// BatchSummary aggregates the timings of one batch
type BatchSummary struct {
	Spectra          int
	AvgMillis        float64
	MinMillis        float64
	MaxMillis        float64
	SuccessRate      float64
	AvgChiSquare     float64
	SpectraPerSecond float64
}

// Summarize computes batch statistics. The chi-square average covers
// successful fits only.
func Summarize(timings []models.SpectrumTiming, total time.Duration) BatchSummary {
	s := BatchSummary{Spectra: len(timings)}
	if len(timings) == 0 {
		return s
	}

	var sum time.Duration
	minTime, maxTime := time.Duration(1<<63-1), time.Duration(0)
	successful := 0
	chiSum := 0.0
	for _, t := range timings {
		sum += t.ProcessingTime
		if t.ProcessingTime < minTime {
			minTime = t.ProcessingTime
		}
		if t.ProcessingTime > maxTime {
			maxTime = t.ProcessingTime
		}
		if t.Success {
			successful++
			chiSum += t.ChiSquare
		}
	}

	n := float64(len(timings))
	s.AvgMillis = float64(sum.Nanoseconds()) / 1e6 / n
	s.MinMillis = float64(minTime.Nanoseconds()) / 1e6
	s.MaxMillis = float64(maxTime.Nanoseconds()) / 1e6
	s.SuccessRate = float64(successful) / n * 100
	if successful > 0 {
		s.AvgChiSquare = chiSum / float64(successful)
	}
	if total > 0 {
		s.SpectraPerSecond = n / total.Seconds()
	}
	return s
}
