// Package config loads promptd settings from a file, the environment and
// command-line flags. Later sources override earlier ones field by field.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Backends understood by the serve command.
const (
	BackendLlama       = "llama"
	BackendLlamaServer = "llama-server"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are filled by Defaults.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelPath    string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	Backend     string `json:"backend" yaml:"backend" toml:"backend"`
	CtxSize     int    `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	Threads     int    `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers   int    `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	LlamaBin    string `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamaURL    string `json:"llama_url" yaml:"llama_url" toml:"llama_url"`
	LlamaAPIKey string `json:"llama_api_key" yaml:"llama_api_key" toml:"llama_api_key"`
	Preload     *bool  `json:"preload" yaml:"preload" toml:"preload"`

	MaxQueueDepth    int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	RequestTimeout   Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	DefaultMaxTokens int      `json:"default_max_tokens" yaml:"default_max_tokens" toml:"default_max_tokens"`
	Retention        Duration `json:"retention" yaml:"retention" toml:"retention"`
	DrainTimeout     Duration `json:"drain_timeout" yaml:"drain_timeout" toml:"drain_timeout"`
	MaxBodyBytes     int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat    string `json:"log_format" yaml:"log_format" toml:"log_format"`
	HTTPLogLevel string `json:"http_log_level" yaml:"http_log_level" toml:"http_log_level"`

	CORSEnabled        *bool    `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
}

// Duration is a time.Duration read from strings such as "90s" or "2m".
// "off" stores Disabled; zero means unset.
type Duration struct{ time.Duration }

// Disabled is the stored value of an "off" duration.
const Disabled = time.Duration(-1)

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch strings.ToLower(s) {
	case "":
		d.Duration = 0
		return nil
	case "off", "none":
		d.Duration = Disabled
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == Disabled {
		return []byte("off"), nil
	}
	return []byte(d.Duration.String()), nil
}

// Value returns the duration with Disabled mapped to zero.
func (d Duration) Value() time.Duration {
	if d.Duration < 0 {
		return 0
	}
	return d.Duration
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Addr:             ":8080",
		Backend:          BackendLlama,
		CtxSize:          2048,
		Threads:          4,
		Preload:          boolPtr(false),
		MaxQueueDepth:    32,
		RequestTimeout:   Duration{2 * time.Minute},
		DefaultMaxTokens: 100,
		Retention:        Duration{10 * time.Minute},
		DrainTimeout:     Duration{30 * time.Second},
		MaxBodyBytes:     1 << 20,
		LogLevel:         "info",
		LogFormat:        "console",
		HTTPLogLevel:     "info",
		CORSEnabled:      boolPtr(false),
	}
}

func boolPtr(b bool) *bool { return &b }

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
