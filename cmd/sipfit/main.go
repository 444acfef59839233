package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/internal/processing"
	"github.com/kacperjurak/sipfit/pkg/config"
	"github.com/kacperjurak/sipfit/pkg/measurement"
	"github.com/kacperjurak/sipfit/pkg/report"
	"github.com/kacperjurak/sipfit/pkg/server"
)

func main() {
	cfg := config.DefaultConfig()

	flag.StringVar(&cfg.File, "f", "", "Measurement data file (further files may follow as arguments)")
	flag.Var(&cfg.Values, "v", "Initial parameter values, e.g. -v Rh=50,Fh=1e3")
	flag.Var(&cfg.Disabled, "disable", "Parameters locked at their initial value, e.g. -disable Linf,Pei")
	flag.UintVar(&cfg.CutLow, "b", 0, "Cut X of beginning frequencies from a file")
	flag.UintVar(&cfg.CutHigh, "e", 0, "Cut X of ending frequencies from a file")
	flag.StringVar(&cfg.Topology, "topology", cfg.Topology, "Rock network: series or parallel")
	flag.BoolVar(&cfg.NegativeLead, "negative-lead", false, "Use a negative lead resistance")
	flag.StringVar(&cfg.Method, "m", cfg.Method, "Optimization method: trust-region, levenberg-marquardt, nelder-mead")
	flag.StringVar(&cfg.Residual, "residual", cfg.Residual, "Residual space: cole or bode")
	flag.BoolVar(&cfg.UsePrior, "prior", false, "Penalize unordered corner frequencies and distance from the initial guess")
	flag.IntVar(&cfg.MaxEvaluation, "maxeval", cfg.MaxEvaluation, "Maximum residual evaluations per fit")
	flag.StringVar(&cfg.SlidersFile, "sliders", "", "JSON file with parameter ranges and defaults")
	flag.BoolVar(&cfg.ImgSave, "imgsave", false, "Save Cole-Cole, Bode and decay plots")
	flag.StringVar(&cfg.ImgPath, "imgpath", cfg.ImgPath, "Directory for generated images")
	flag.UintVar(&cfg.ImgSize, "imgsize", cfg.ImgSize, "Image size (inches)")
	flag.StringVar(&cfg.XLSXPath, "xlsx", "", "Write results to this xlsx file")
	flag.UintVar(&cfg.Threads, "threads", cfg.Threads, "Number of concurrent fits")
	flag.BoolVar(&cfg.HTTPServer, "http", false, "Start HTTP server on port 8080")
	flag.BoolVar(&cfg.Quiet, "q", false, "Quiet mode")
	flag.Parse()

	sliders, err := loadSliders(cfg.SlidersFile)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.HTTPServer {
		startHTTPServer(cfg, sliders)
		return
	}

	files := flag.Args()
	if cfg.File != "" {
		files = append([]string{cfg.File}, files...)
	}
	if len(files) == 0 {
		log.Fatal("no measurement file given, use -f")
	}

	if err := run(cfg, sliders, files); err != nil {
		log.Fatal(err)
	}
}

func loadSliders(path string) (config.Sliders, error) {
	if path == "" {
		return config.DefaultSliders(), nil
	}
	return config.LoadSliders(path)
}

func run(cfg *config.Config, sliders config.Sliders, files []string) error {
	modelOpts, err := cfg.ModelOptions()
	if err != nil {
		return err
	}
	m := sipfit.NewModel(modelOpts)
	initial, err := cfg.Initial(sliders)
	if err != nil {
		return err
	}
	opts, err := cfg.FitOptions(sliders)
	if err != nil {
		return err
	}

	jobs := make([]sipfit.Job, len(files))
	for i, file := range files {
		s, err := measurement.ParseFile(file)
		if err != nil {
			return err
		}
		if s, err = measurement.Cut(s, cfg.CutLow, cfg.CutHigh); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		jobs[i] = sipfit.Job{
			Name:     file,
			Model:    m,
			Spectrum: s,
			Initial:  initial,
			Options:  opts,
			Residual: cfg.Residual,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rows []report.Row
	for i, jr := range sipfit.FitBatch(ctx, jobs, int(cfg.Threads)) {
		if jr.Err != nil {
			log.Printf("❌ %s: %v", jr.Name, jr.Err)
			continue
		}
		calc, err := sipfit.RunManual(m, jr.Result.Params, jobs[i].Spectrum, sipfit.CalcOptions{})
		if err != nil {
			log.Printf("❌ %s: calculation: %v", jr.Name, err)
			continue
		}
		fit := jr.Result
		printResult(jr.Name, fit, calc)
		rows = append(rows, report.Row{Name: jr.Name, Fit: &fit, Result: calc})

		if cfg.ImgSave {
			dir := cfg.ImgPath
			if len(jobs) > 1 {
				dir = filepath.Join(dir, strings.TrimSuffix(filepath.Base(jr.Name), filepath.Ext(jr.Name)))
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			paths, err := report.SavePlots(calc, jobs[i].Spectrum, dir, cfg.ImgSize)
			if err != nil {
				return err
			}
			if !cfg.Quiet {
				log.Printf("Saved plots: %s", strings.Join(paths, ", "))
			}
		}
	}

	if cfg.XLSXPath != "" && len(rows) > 0 {
		if err := report.WriteXLSX(cfg.XLSXPath, rows); err != nil {
			return err
		}
		log.Printf("Results written to %s", cfg.XLSXPath)
	}
	if len(rows) < len(jobs) {
		return fmt.Errorf("%d of %d fits failed", len(jobs)-len(rows), len(jobs))
	}
	return nil
}

func printResult(name string, fit sipfit.FitResult, calc sipfit.CalculationResult) {
	fmt.Printf("== %s\n", name)
	fmt.Printf("method=%s status=%s min=%.6e chisq=%.6e evals=%d time=%v\n",
		fit.Method, fit.Status, fit.Min, fit.ChiSq, fit.FuncEval, fit.Runtime.Round(time.Millisecond))
	values := fit.Params.Values()
	for i, n := range sipfit.ParamNames {
		fmt.Printf("  %-5s %14.6g\n", n, values[i])
	}
	fmt.Println("  chargeability [mV/V]:")
	for _, c := range calc.TimeDomain.Chargeability {
		fmt.Printf("    t=%-8g %10.4f\n", c.Offset, c.Chargeability)
	}
	fmt.Printf("  R01=%.6g mismatch=%.6e\n", calc.Diagnostics.R01, calc.Diagnostics.Mismatch)
}

func startHTTPServer(cfg *config.Config, sliders config.Sliders) {
	serverConfig := config.DefaultServerConfig()
	serverConfig.WorkerCount = int(cfg.Threads)

	processor := processing.NewFitProcessor(sliders, sipfit.CalcOptions{})
	srv := server.New(server.Options{
		Config:       cfg,
		ServerConfig: serverConfig,
		Processor:    processor.ProcessorFunc(),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatal("❌ Failed to start server:", err)
	}
	<-done
}
