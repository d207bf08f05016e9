// Package config loads the handover service configuration from YAML with
// HANDOVER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/dwell-handover/core"
	"github.com/signalsfoundry/dwell-handover/internal/observability"
	"github.com/signalsfoundry/dwell-handover/internal/sink"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HANDOVER_"

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Engine  EngineConfig                `yaml:"engine" envPrefix:"ENGINE_"`
	Sinks   SinkConfig                  `yaml:"sinks" envPrefix:"SINK_"`
	Server  ServerConfig                `yaml:"server" envPrefix:"SERVER_"`
	Tracing observability.TracingConfig `yaml:"tracing" envPrefix:"TRACING_"`
	// Scenario is an optional station/endpoint scenario JSON file.
	Scenario string `yaml:"scenario" env:"SCENARIO"`
}

type EngineConfig struct {
	ServingCellThreshold int    `yaml:"serving_cell_threshold" env:"SERVING_CELL_THRESHOLD"`
	NeighbourCellOffset  int    `yaml:"neighbour_cell_offset" env:"NEIGHBOUR_CELL_OFFSET"`
	Mode                 string `yaml:"mode" env:"MODE"`
	BucketGranularity    int    `yaml:"bucket_granularity" env:"BUCKET_GRANULARITY"`
	LockScope            string `yaml:"lock_scope" env:"LOCK_SCOPE"`
	// Seed fixes synthesized dwell times; 0 seeds from the wall clock.
	Seed        uint64 `yaml:"seed" env:"SEED"`
	DatasetPath string `yaml:"dataset_path" env:"DATASET_PATH"`
}

type SinkConfig struct {
	Kind string `yaml:"kind" env:"KIND"`
	Dir  string `yaml:"dir" env:"DIR"`
	Path string `yaml:"path" env:"PATH"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr" env:"GRPC_ADDR"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// Default returns the reference configuration.
func Default() Config {
	d := core.DefaultConfig()
	return Config{
		Engine: EngineConfig{
			ServingCellThreshold: int(d.ServingCellThreshold),
			NeighbourCellOffset:  int(d.NeighbourCellOffset),
			Mode:                 d.Mode.String(),
			BucketGranularity:    d.BucketGranularity,
			LockScope:            d.LockScope.String(),
			DatasetPath:          "data/input-dwell-time.csv",
		},
		Sinks: SinkConfig{
			Kind: sink.KindCSV,
			Dir:  "data",
			Path: "data/handover.db",
		},
		Server: ServerConfig{
			GRPCAddr:    ":50061",
			MetricsAddr: ":9090",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(c); err != nil {
		return nil, err
	}
	c.Tracing = c.Tracing.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked merges the YAML file over the defaults without environment
// overrides or validation.
func LoadUnchecked(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return &c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &c, nil
}

// ApplyEnv overlays HANDOVER_* variables; unset variables keep their value.
func ApplyEnv(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := c.EngineConfig(); err != nil {
		return fmt.Errorf("engine config invalid: %w", err)
	}
	switch c.Sinks.Kind {
	case sink.KindCSV, sink.KindSQLite, sink.KindNone, "":
	default:
		return fmt.Errorf("sinks.kind %q is not one of csv, sqlite, none", c.Sinks.Kind)
	}
	if c.Sinks.Kind == sink.KindSQLite && c.Sinks.Path == "" {
		return errors.New("sinks.path is required for the sqlite sink")
	}
	switch c.Tracing.Exporter {
	case "stdout", "otlp", "otlpgrpc", "":
	default:
		return fmt.Errorf("tracing.exporter %q is not one of stdout, otlp", c.Tracing.Exporter)
	}
	return nil
}

// EngineConfig converts the engine section into a core.Config.
func (c *Config) EngineConfig() (core.Config, error) {
	e := c.Engine
	if e.ServingCellThreshold < 0 || e.ServingCellThreshold > 255 {
		return core.Config{}, fmt.Errorf("%w: serving_cell_threshold %d out of range", core.ErrInvalidConfig, e.ServingCellThreshold)
	}
	if e.NeighbourCellOffset < 0 || e.NeighbourCellOffset > 255 {
		return core.Config{}, fmt.Errorf("%w: neighbour_cell_offset %d out of range", core.ErrInvalidConfig, e.NeighbourCellOffset)
	}
	mode, err := core.ParseDwellMode(e.Mode)
	if err != nil {
		return core.Config{}, err
	}
	scope, err := core.ParseLockScope(e.LockScope)
	if err != nil {
		return core.Config{}, err
	}
	out := core.Config{
		ServingCellThreshold: uint8(e.ServingCellThreshold),
		NeighbourCellOffset:  uint8(e.NeighbourCellOffset),
		Mode:                 mode,
		BucketGranularity:    e.BucketGranularity,
		LockScope:            scope,
	}
	return out, out.Validate()
}

// SinkOptions converts the sinks section for sink.Open.
func (c *Config) SinkOptions() sink.Options {
	return sink.Options{Kind: c.Sinks.Kind, Dir: c.Sinks.Dir, Path: c.Sinks.Path}
}
