package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	// GA holds run defaults. Zero PopSize and MutationRate are derived from
	// the genome length when the run is configured.
	GA struct {
		PopSize        int     `env:"GA_POP_SIZE" envDefault:"0"`
		MaxGenerations int     `env:"GA_MAX_GENERATIONS" envDefault:"100"`
		CrossoverRate  float64 `env:"GA_CROSSOVER_RATE" envDefault:"0.5"`
		MutationRate   float64 `env:"GA_MUTATION_RATE" envDefault:"0"`
		EliteCount     int     `env:"GA_ELITE_COUNT" envDefault:"1"`
		Penalty        float64 `env:"GA_PENALTY" envDefault:"1e27"`
		Seed           int64   `env:"GA_SEED" envDefault:"0"`
	}
	// Optimization bounds evaluation concurrency. EvalTimeout of zero lets a
	// hung objective block its batch.
	Optimization struct {
		WorkerCount int           `env:"OPT_WORKER_COUNT" envDefault:"4"`
		EvalTimeout time.Duration `env:"OPT_EVAL_TIMEOUT" envDefault:"60s"`
		MaxJobs     int           `env:"OPT_MAX_JOBS" envDefault:"16"`
	}
	// Problem configures the NaN-masked Rosenbrock benchmark.
	Problem struct {
		Lower     float64       `env:"PROBLEM_LOWER" envDefault:"-2"`
		Upper     float64       `env:"PROBLEM_UPPER" envDefault:"2"`
		NaNPoints int           `env:"PROBLEM_NAN_POINTS" envDefault:"100"`
		NaNRange  float64       `env:"PROBLEM_NAN_RANGE" envDefault:"5e-2"`
		Delay     time.Duration `env:"PROBLEM_SLEEP" envDefault:"0s"`
	}
	// PlotContour enables contour output for 2-D runs when set to any
	// non-empty value.
	PlotContour string `env:"PLOT_CONTOUR"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	if cfg.Optimization.WorkerCount < 1 {
		cfg.Optimization.WorkerCount = 1
	}
	return cfg, nil
}

// ContourEnabled reports whether contour output was requested.
func (c *Config) ContourEnabled() bool {
	return c.PlotContour != ""
}
