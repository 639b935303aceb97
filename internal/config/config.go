package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Config captures the settings of a fleetwatch analysis run. Detection
// thresholds are fixed and deliberately absent here.
type Config struct {
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// InputConfig locates the sensor export.
type InputConfig struct {
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter"`
}

// OutputConfig locates the result artifact.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig controls stage evaluation.
type EngineConfig struct {
	Strategy        string `yaml:"strategy"`
	ChunkSize       int    `yaml:"chunkSize"`
	MaxBufferedRows int    `yaml:"maxBufferedRows"`
	MaxGroups       int    `yaml:"maxGroups"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus textfile written after a run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FLEETWATCH_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Input.Path == "" {
		return fmt.Errorf("input.path is required")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if _, err := c.Input.DelimiterRune(); err != nil {
		return err
	}
	if c.Engine.ChunkSize <= 0 {
		return fmt.Errorf("engine.chunkSize must be positive, got %d", c.Engine.ChunkSize)
	}
	if c.Engine.MaxBufferedRows < 0 || c.Engine.MaxGroups < 0 {
		return fmt.Errorf("engine limits must not be negative")
	}
	return nil
}

// DelimiterRune returns the single-character field delimiter.
func (i InputConfig) DelimiterRune() (rune, error) {
	d := i.Delimiter
	if d == `\t` || strings.EqualFold(d, "tab") {
		return '\t', nil
	}
	if d == "" {
		return ',', nil
	}
	r, size := utf8.DecodeRuneInString(d)
	if size != len(d) || r == '\n' || r == '\r' || r == '"' || r == utf8.RuneError {
		return 0, fmt.Errorf("input.delimiter must be a single character, got %q", d)
	}
	return r, nil
}

func defaultConfig() Config {
	return Config{
		Input:   InputConfig{Path: "siv_Inverter.csv", Delimiter: ","},
		Output:  OutputConfig{Path: "result_events.txt"},
		Engine:  EngineConfig{Strategy: "auto", ChunkSize: 4096},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLEETWATCH_INPUT_PATH"); v != "" {
		cfg.Input.Path = v
	}
	if v := os.Getenv("FLEETWATCH_INPUT_DELIMITER"); v != "" {
		cfg.Input.Delimiter = v
	}
	if v := os.Getenv("FLEETWATCH_OUTPUT_PATH"); v != "" {
		cfg.Output.Path = v
	}
	if v := os.Getenv("FLEETWATCH_ENGINE_STRATEGY"); v != "" {
		cfg.Engine.Strategy = v
	}
	if v := os.Getenv("FLEETWATCH_ENGINE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.ChunkSize = n
		}
	}
	if v := os.Getenv("FLEETWATCH_ENGINE_MAX_BUFFERED_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxBufferedRows = n
		}
	}
	if v := os.Getenv("FLEETWATCH_ENGINE_MAX_GROUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxGroups = n
		}
	}
	if v := os.Getenv("FLEETWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FLEETWATCH_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("FLEETWATCH_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}
