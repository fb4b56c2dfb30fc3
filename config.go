// Copyright 2024 TernDB Corp. All rights reserved.
package tern

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/terndb/tern/errors"
)

const (
	// DefaultPlanCacheSize is the default number of query shapes the plan
	// cache retains per collection.
	DefaultPlanCacheSize = 200

	// DefaultMetrics sets the internal metrics to no-op.
	DefaultMetrics = "nop"
)

const (
	ErrConfigRead errors.Code = "ErrConfigRead"
)

// Config represents the engine configuration.
type Config struct {
	// NoTableScan forbids collection scans for non-trivial queries.
	NoTableScan bool `toml:"no-table-scan" mapstructure:"no-table-scan"`

	// IndexIntersection sets the index-intersection option in the planner
	// params; the heuristic planner does not build intersection plans.
	IndexIntersection bool `toml:"index-intersection" mapstructure:"index-intersection"`

	// PlanCacheSize is the per-collection plan cache capacity in query
	// shapes.
	PlanCacheSize int `toml:"plan-cache-size" mapstructure:"plan-cache-size"`

	// Metrics selects the stats backend ("nop" or "prometheus").
	Metrics string `toml:"metrics" mapstructure:"metrics"`

	// Verbose enables debug logging.
	Verbose bool `toml:"verbose" mapstructure:"verbose"`
}

// NewConfig returns an instance of Config with default options.
func NewConfig() *Config {
	return &Config{
		PlanCacheSize: DefaultPlanCacheSize,
		Metrics:       DefaultMetrics,
	}
}

// LoadConfig reads configuration from the given TOML file path (optional)
// and from TERN_* environment variables, on top of defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("plan-cache-size", DefaultPlanCacheSize)
	v.SetDefault("metrics", DefaultMetrics)
	v.SetDefault("no-table-scan", false)
	v.SetDefault("index-intersection", false)
	v.SetDefault("verbose", false)
	v.SetEnvPrefix("tern")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.New(ErrConfigRead, err.Error()), "reading config")
		}
	}

	c := NewConfig()
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	return c, nil
}

// EngineSettings is the process-wide planner policy snapshot. It is read
// once at the start of planner-params assembly so one invocation sees one
// consistent policy.
type EngineSettings struct {
	NoTableScan       bool
	IndexIntersection bool
	PlanCacheSize     int
}

// Settings derives the planner policy snapshot from the config.
func (c *Config) Settings() EngineSettings {
	return EngineSettings{
		NoTableScan:       c.NoTableScan,
		IndexIntersection: c.IndexIntersection,
		PlanCacheSize:     c.PlanCacheSize,
	}
}
