// Package config loads engine defaults from environment variables.
package config

import (
	"github.com/caarlos0/env/v10"
)

// Defaults are the tunable engine defaults. Every field can be
// overridden per database instance at construction or later through the
// configuration registry.
type Defaults struct {
	// RTol and ATol are the relative and absolute tolerances used to
	// compare constants, sweep attributes and axis values.
	RTol float64 `env:"CHARDB_RTOL" envDefault:"1e-5"`
	ATol float64 `env:"CHARDB_ATOL" envDefault:"1e-18"`

	// Method selects the interpolation method: "linear" or "spline".
	Method string `env:"CHARDB_INTERP_METHOD" envDefault:"spline"`

	// OptBackend and OptMethod select the optimization strategy handed
	// the assembled function graph.
	OptBackend string `env:"CHARDB_OPT_BACKEND" envDefault:"gonum"`
	OptMethod  string `env:"CHARDB_OPT_METHOD" envDefault:"lbfgs"`

	Logging struct {
		Level  string `env:"CHARDB_LOG_LEVEL" envDefault:"info"`
		Format string `env:"CHARDB_LOG_FORMAT" envDefault:"json"`
	}
}

// Load parses the defaults from the process environment.
func Load() (*Defaults, error) {
	cfg := &Defaults{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
