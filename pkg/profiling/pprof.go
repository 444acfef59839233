package profiling

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/kacperjurak/sipfit/pkg/config"
)

// Profiler manages the pprof server
type Profiler struct {
	config *config.ServerConfig
	server *http.Server
}

// New creates a new profiler instance
func New(cfg *config.ServerConfig) *Profiler {
	return &Profiler{config: cfg}
}

// Start starts the profiling server on a separate port
func (p *Profiler) Start() error {
	if !p.config.EnableProfiling {
		log.Println("📊 Profiling disabled")
		return nil
	}

	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/info", InfoHandler)

	p.server = &http.Server{
		Addr:    ":" + p.config.ProfilingPort,
		Handler: mux,
	}

	log.Printf("📊 Starting profiling server on port %s", p.config.ProfilingPort)
	log.Printf("  - Full Index:     http://localhost:%s/debug/pprof/", p.config.ProfilingPort)
	log.Printf("  - Runtime Info:   http://localhost:%s/debug/info", p.config.ProfilingPort)

	go func() {
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ Profiling server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the profiling server
func (p *Profiler) Stop() error {
	if p.server == nil {
		return nil
	}

	log.Println("🛑 Shutting down profiling server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("profiling server shutdown error: %w", err)
	}

	log.Println("✅ Profiling server stopped")
	return nil
}

// RuntimeInfo is a snapshot of scheduler and heap state
type RuntimeInfo struct {
	Timestamp   string  `json:"timestamp"`
	Goroutines  int     `json:"goroutines"`
	GOMAXPROCS  int     `json:"gomaxprocs"`
	NumCPU      int     `json:"num_cpu"`
	Version     string  `json:"version"`
	AllocMB     float64 `json:"alloc_mb"`
	TotalAllocM float64 `json:"total_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	HeapObjects uint64  `json:"heap_objects"`
	GC          GCStats `json:"gc"`
}

// ReadRuntimeInfo collects a RuntimeInfo
func ReadRuntimeInfo() RuntimeInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeInfo{
		Timestamp:   time.Now().Format(time.RFC3339),
		Goroutines:  runtime.NumGoroutine(),
		GOMAXPROCS:  runtime.GOMAXPROCS(0),
		NumCPU:      runtime.NumCPU(),
		Version:     runtime.Version(),
		AllocMB:     bToMb(m.Alloc),
		TotalAllocM: bToMb(m.TotalAlloc),
		SysMB:       bToMb(m.Sys),
		HeapObjects: m.HeapObjects,
		GC:          gcStats(&m),
	}
}

// InfoHandler writes ReadRuntimeInfo as JSON
func InfoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ReadRuntimeInfo())
}

func bToMb(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
