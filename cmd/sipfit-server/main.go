package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/internal/processing"
	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/server"
)

func main() {
	cfg, serverConfig := parseFlags()

	sliders := config.DefaultSliders()
	if cfg.SlidersFile != "" {
		var err error
		if sliders, err = config.LoadSliders(cfg.SlidersFile); err != nil {
			log.Fatal("❌ ", err)
		}
	}

	processor := processing.NewFitProcessor(sliders, sipfit.CalcOptions{})

	srv := server.New(server.Options{
		Config:       cfg,
		ServerConfig: serverConfig,
		Processor:    processor.ProcessorFunc(),
	})

	done := setupGracefulShutdown(srv)

	if err := srv.Start(); err != nil {
		log.Fatal("❌ Failed to start server:", err)
	}
	<-done
}

// parseFlags parses command line flags and returns configuration
func parseFlags() (*config.Config, *config.ServerConfig) {
	cfg := config.DefaultConfig()
	serverConfig := config.DefaultServerConfig()

	flag.StringVar(&serverConfig.Port, "port", serverConfig.Port, "HTTP port")
	flag.IntVar(&serverConfig.WorkerCount, "workers", serverConfig.WorkerCount, "Number of fit workers")
	flag.StringVar(&serverConfig.WebhookURL, "webhook", serverConfig.WebhookURL, "Webhook receiving fit results")
	flag.BoolVar(&serverConfig.EnableProfiling, "profile", false, "Enable pprof profiling")
	flag.StringVar(&serverConfig.ProfilingPort, "profile-port", serverConfig.ProfilingPort, "pprof port")

	flag.StringVar(&cfg.Topology, "topology", cfg.Topology, "Default rock network: series or parallel")
	flag.BoolVar(&cfg.NegativeLead, "negative-lead", false, "Use a negative lead resistance")
	flag.StringVar(&cfg.Method, "method", cfg.Method, "Default optimization method, or all")
	flag.StringVar(&cfg.Residual, "residual", cfg.Residual, "Default residual space: cole or bode")
	flag.BoolVar(&cfg.UsePrior, "prior", false, "Enable the fit prior by default")
	flag.IntVar(&cfg.MaxEvaluation, "maxeval", cfg.MaxEvaluation, "Maximum residual evaluations per fit")
	flag.StringVar(&cfg.SlidersFile, "sliders", "", "JSON file with parameter ranges and defaults")
	flag.Var(&cfg.Disabled, "disable", "Parameters locked by default")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "Suppress verbose output")

	flag.Parse()

	return cfg, serverConfig
}

// setupGracefulShutdown shuts the server down on SIGINT or SIGTERM. The
// returned channel is closed once shutdown has finished.
func setupGracefulShutdown(srv *server.Server) <-chan struct{} {
	done := make(chan struct{})
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer close(done)
		<-c
		log.Println("🛑 Received shutdown signal...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()
	return done
}
