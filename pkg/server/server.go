package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/handlers"
	"github.com/kacperjurak/sipfit/pkg/profiling"
	"github.com/kacperjurak/sipfit/pkg/webhook"
	"github.com/kacperjurak/sipfit/pkg/worker"
)

// Server represents the HTTP server with all dependencies
type Server struct {
	config        *config.Config
	serverConfig  *config.ServerConfig
	workerPool    *worker.Pool
	webhookClient *webhook.Client
	httpServer    *http.Server
	profiler      *profiling.Profiler
	middleware    *profiling.Middleware
	transform     sipfit.TransformOptions
}

// Options holds configuration for creating a new server
type Options struct {
	Config       *config.Config
	ServerConfig *config.ServerConfig
	Processor    worker.ProcessorFunc
	// Transform configures POST /calculate. Zero fields take defaults.
	Transform sipfit.TransformOptions
}

// New creates a new server instance
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.ServerConfig == nil {
		opts.ServerConfig = config.DefaultServerConfig()
	}

	webhookClient := webhook.NewClient(opts.ServerConfig.WebhookURL, opts.Config)

	workerPool := worker.New(worker.Options{
		Workers:   opts.ServerConfig.WorkerCount,
		Processor: opts.Processor,
		Sender:    webhookClient,
		Quiet:     opts.Config.Quiet,
	})

	server := &Server{
		config:        opts.Config,
		serverConfig:  opts.ServerConfig,
		workerPool:    workerPool,
		webhookClient: webhookClient,
		profiler:      profiling.New(opts.ServerConfig),
		middleware:    profiling.NewMiddleware(opts.ServerConfig.EnableProfiling),
		transform:     opts.Transform,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures HTTP routes and handlers
func (s *Server) setupRoutes() {
	mux := http.NewServeMux()

	fitHandler := handlers.NewFitHandler(s.config, s.workerPool)
	batchHandler := handlers.NewBatchHandler(s.config, s.workerPool)
	calcHandler := handlers.NewCalculateHandler(s.config, s.transform)

	mux.Handle("/fit", s.middleware.ProfiledHandler("fit-single", fitHandler))
	mux.Handle("/fit/batch", s.middleware.ProfiledHandler("fit-batch", batchHandler))
	mux.Handle("/calculate", s.middleware.ProfiledHandler("calculate", calcHandler))
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/debug/gc", s.gcHandler)
	mux.HandleFunc("/debug/memory", profiling.InfoHandler)

	// a full transform of a large grid can take several seconds
	s.httpServer = &http.Server{
		Addr:         ":" + s.serverConfig.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler exposes the route table
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// healthHandler provides a simple health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// gcHandler triggers garbage collection and returns stats
func (s *Server) gcHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(profiling.ForceGC())
}

// Start starts the HTTP server and blocks until it stops. A graceful
// Shutdown is not reported as an error.
func (s *Server) Start() error {
	if err := s.profiler.Start(); err != nil {
		log.Printf("❌ Failed to start profiler: %v", err)
	}

	log.Println("🚀 Starting HTTP server on port", s.serverConfig.Port)
	log.Println("📡 Endpoints available:")
	log.Printf("  - Single:    http://localhost:%s/fit", s.serverConfig.Port)
	log.Printf("  - Batch:     http://localhost:%s/fit/batch", s.serverConfig.Port)
	log.Printf("  - Calculate: http://localhost:%s/calculate", s.serverConfig.Port)
	log.Printf("  - Health:    http://localhost:%s/health", s.serverConfig.Port)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// expires and then stops the worker pool
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		log.Printf("⚠️ HTTP server shutdown error: %v", err)
	}

	if perr := s.profiler.Stop(); perr != nil {
		log.Printf("⚠️ Profiler shutdown error: %v", perr)
	}

	s.workerPool.Shutdown()

	log.Println("✅ Server shutdown complete")
	return err
}
