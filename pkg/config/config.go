package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kacperjurak/sipfit"
)

// ParamFlags collects name=value parameter overrides, e.g. -v Rh=50.
type ParamFlags map[string]float64

func (p *ParamFlags) String() string {
	if p == nil || len(*p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(*p))
	for k := range *p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat((*p)[k], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (p *ParamFlags) Set(value string) error {
	for _, item := range strings.Split(value, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok {
			return fmt.Errorf("expected name=value, got %q", item)
		}
		var probe sipfit.Params
		if _, err := probe.Get(name); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		if *p == nil {
			*p = ParamFlags{}
		}
		(*p)[name] = v
	}
	return nil
}

// ListFlags collects repeated or comma separated names, e.g. -disable Linf.
type ListFlags []string

func (l *ListFlags) String() string {
	return strings.Join(*l, ",")
}

func (l *ListFlags) Set(value string) error {
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*l = append(*l, item)
		}
	}
	return nil
}

// Config holds all configuration settings for a fit run
type Config struct {
	File     string
	CutLow   uint
	CutHigh  uint
	Values   ParamFlags
	Disabled ListFlags

	Topology      string
	NegativeLead  bool
	Method        string
	Residual      string
	UsePrior      bool
	MaxEvaluation int
	SlidersFile   string

	ImgSave  bool
	ImgPath  string
	ImgSize  uint
	XLSXPath string

	Threads    uint
	Quiet      bool
	HTTPServer bool
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port        string
	WorkerCount int
	WebhookURL  string

	EnableProfiling bool
	ProfilingPort   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Topology:      "parallel",
		Method:        "trust-region",
		Residual:      sipfit.COLE,
		MaxEvaluation: sipfit.DefaultMaxEvaluations,
		ImgPath:       ".",
		ImgSize:       6,
		Threads:       5,
	}
}

// DefaultServerConfig returns server configuration with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:          "8080",
		WorkerCount:   5,
		WebhookURL:    "http://webplot:3001/webhook",
		ProfilingPort: "6060",
	}
}

// ModelOptions builds the circuit options.
func (c *Config) ModelOptions() (sipfit.Options, error) {
	topo, err := sipfit.ParseTopology(c.Topology)
	if err != nil {
		return sipfit.Options{}, err
	}
	return sipfit.Options{Topology: topo, NegativeLeadResistance: c.NegativeLead}, nil
}

// Initial returns the slider defaults with the -v overrides applied.
func (c *Config) Initial(sliders Sliders) (sipfit.Params, error) {
	p, err := sliders.Defaults()
	if err != nil {
		return sipfit.Params{}, err
	}
	for name, v := range c.Values {
		if err := p.Set(name, v); err != nil {
			return sipfit.Params{}, err
		}
	}
	return p, nil
}

// FitOptions builds the per-call fit configuration.
func (c *Config) FitOptions(sliders Sliders) (sipfit.FitOptions, error) {
	method, err := sipfit.ParseMethod(c.Method)
	if err != nil {
		return sipfit.FitOptions{}, err
	}
	switch c.Residual {
	case "", sipfit.COLE, sipfit.BODE:
	default:
		return sipfit.FitOptions{}, fmt.Errorf("%w: unknown residual %q", sipfit.ErrConfig, c.Residual)
	}
	return sipfit.FitOptions{
		Disabled:       append([]string(nil), c.Disabled...),
		Bounds:         sliders.Bounds(),
		UsePrior:       c.UsePrior,
		MaxEvaluations: c.MaxEvaluation,
		Method:         method,
	}, nil
}
