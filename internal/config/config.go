// Package config loads the runtime configuration for quarry binaries.
//
// Configuration starts from Default(), is overlaid by an optional YAML file,
// and finally by QUARRY_* environment variables, so containers can run
// file-less while developers keep a checked-in config. Env always wins.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that parses "30s" style strings from both
// YAML and environment variables.
type Duration time.Duration

// UnmarshalText satisfies encoding.TextUnmarshaler for env parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML accepts either a duration string or an integer nanosecond
// count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		return d.UnmarshalText([]byte(raw))
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("config: invalid duration %q", value.Value)
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ModelConfig points the model client at a chat-completions endpoint.
type ModelConfig struct {
	Name        string   `yaml:"name" env:"QUARRY_MODEL_NAME"`
	BaseURL     string   `yaml:"base_url" env:"QUARRY_MODEL_BASE_URL"`
	APIKey      string   `yaml:"api_key" env:"QUARRY_MODEL_API_KEY"`
	Timeout     Duration `yaml:"timeout" env:"QUARRY_MODEL_TIMEOUT"`
	Temperature float64  `yaml:"temperature" env:"QUARRY_MODEL_TEMPERATURE"`
}

// GraphConfig bounds one run of the execution graph.
type GraphConfig struct {
	MaxCorrection    int      `yaml:"max_correction" env:"QUARRY_MAX_CORRECTION"`
	MaxReflection    int      `yaml:"max_reflection" env:"QUARRY_MAX_REFLECTION"`
	MaxHops          int      `yaml:"max_hops" env:"QUARRY_MAX_HOPS"`
	WarehouseTimeout Duration `yaml:"warehouse_timeout" env:"QUARRY_WAREHOUSE_TIMEOUT"`
}

// SandboxConfig bounds each sandbox invocation and selects the runtime.
type SandboxConfig struct {
	// Runtime picks the sandbox implementation: "yaegi" (in-process
	// interpreter, the default) or "process" (external interpreter).
	Runtime string `yaml:"runtime" env:"QUARRY_SANDBOX_RUNTIME"`
	// Interpreter is the command the process runtime executes. Ignored
	// by yaegi.
	Interpreter string `yaml:"interpreter" env:"QUARRY_SANDBOX_INTERPRETER"`
	// InterpretersPath is an optional YAML/JSON file of named interpreter
	// definitions; Interpreter then selects an entry by name.
	InterpretersPath string `yaml:"interpreters_path" env:"QUARRY_SANDBOX_INTERPRETERS_PATH"`

	WallClock      Duration `yaml:"wall_clock" env:"QUARRY_SANDBOX_WALL_CLOCK"`
	MaxOutputBytes int      `yaml:"max_output_bytes" env:"QUARRY_SANDBOX_MAX_OUTPUT_BYTES"`
	MemoryBytes    int64    `yaml:"memory_bytes" env:"QUARRY_SANDBOX_MEMORY_BYTES"`
}

// StoreConfig selects the collaborator stores. Empty paths fall back to
// in-memory implementations, which suit tests and one-shot CLI runs.
type StoreConfig struct {
	// WarehousePath is the sqlite database holding the business data the
	// graph queries. Required for analytical runs against real data.
	WarehousePath string `yaml:"warehouse_path" env:"QUARRY_WAREHOUSE_PATH"`
	// MemoryPath is the sqlite database for session memory. Empty keeps
	// memory in-process.
	MemoryPath string `yaml:"memory_path" env:"QUARRY_MEMORY_PATH"`
	// RedisAddr switches checkpoints (and the session lock) to redis.
	RedisAddr string `yaml:"redis_addr" env:"QUARRY_REDIS_ADDR"`
	// CheckpointDir persists checkpoints as JSON files.
	CheckpointDir string `yaml:"checkpoint_dir" env:"QUARRY_CHECKPOINT_DIR"`
	// CheckpointKey enables AES-256 encryption of checkpointed state;
	// hex or base64, decoding to 32 bytes.
	CheckpointKey string `yaml:"checkpoint_key" env:"QUARRY_CHECKPOINT_KEY"`
	// MaskPII masks emails, card numbers and SSNs in persisted
	// checkpoints. The live run state is never touched.
	MaskPII bool `yaml:"mask_pii" env:"QUARRY_MASK_PII"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `yaml:"addr" env:"QUARRY_HTTP_ADDR"`
}

// Config is the full configuration surface of the quarry binaries.
type Config struct {
	LogLevel   string        `yaml:"log_level" env:"QUARRY_LOG_LEVEL"`
	PromptsDir string        `yaml:"prompts_dir" env:"QUARRY_PROMPTS_DIR"`
	Model      ModelConfig   `yaml:"model"`
	Graph      GraphConfig   `yaml:"graph"`
	Sandbox    SandboxConfig `yaml:"sandbox"`
	Stores     StoreConfig   `yaml:"stores"`
	HTTP       HTTPConfig    `yaml:"http"`
}

// Default returns the configuration used when neither file nor environment
// say otherwise. The graph bounds match the executor's own defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Model: ModelConfig{
			Name:    "gpt-4o",
			Timeout: Duration(60 * time.Second),
		},
		Graph: GraphConfig{
			MaxCorrection:    2,
			MaxReflection:    2,
			MaxHops:          24,
			WarehouseTimeout: Duration(15 * time.Second),
		},
		Sandbox: SandboxConfig{
			Runtime:        "yaegi",
			WallClock:      Duration(30 * time.Second),
			MaxOutputBytes: 64 * 1024,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty or missing)
// over Default(), then overlays QUARRY_* environment variables. Env always
// wins, so a deployment can override any single field without editing the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// File-less deployments configure via env alone.
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}
