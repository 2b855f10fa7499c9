package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"promptd/internal/config"
)

// serveFlags holds command-line values. Only flags the user set override
// the file and environment.
type serveFlags struct {
	configPath string
	cfg        config.Config

	preload        bool
	cors           bool
	requestTimeout string
	retention      string
	drainTimeout   string
}

func (f *serveFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "Config file (.yaml, .json or .toml); env PROMPTD_CONFIG")
	fs.StringVar(&f.cfg.Addr, "addr", "", "HTTP listen address (default :8080)")
	fs.StringVarP(&f.cfg.ModelPath, "model", "m", "", "Path to the GGUF model artifact")
	fs.StringVar(&f.cfg.ModelsDir, "models-dir", "", "Directory scanned for *.gguf models")
	fs.StringVar(&f.cfg.DefaultModel, "default-model", "", "Model id used when a request names none")
	fs.StringVar(&f.cfg.Backend, "backend", "", "Runtime backend: llama or llama-server")
	fs.IntVar(&f.cfg.CtxSize, "ctx-size", 0, "Context window in tokens (default 2048)")
	fs.IntVar(&f.cfg.Threads, "threads", 0, "CPU threads for decoding (default 4)")
	fs.IntVar(&f.cfg.GPULayers, "gpu-layers", 0, "Layers offloaded to the GPU")
	fs.StringVar(&f.cfg.LlamaBin, "llama-bin", "", "llama-server executable (llama-server backend)")
	fs.StringVar(&f.cfg.LlamaURL, "llama-url", "", "Use an existing llama-server at this URL instead of spawning")
	fs.BoolVar(&f.preload, "preload", false, "Load the default model before serving")
	fs.IntVar(&f.cfg.MaxQueueDepth, "max-queue-depth", 0, "Requests allowed to wait for the decoder (default 32)")
	fs.StringVar(&f.requestTimeout, "request-timeout", "", `Per-request wall-clock limit, e.g. 2m, or "off"`)
	fs.IntVar(&f.cfg.DefaultMaxTokens, "default-max-tokens", 0, "Token limit for requests that set none (default 100)")
	fs.Int64Var(&f.cfg.MaxBodyBytes, "max-body-bytes", 0, "Maximum request body size")
	fs.StringVar(&f.retention, "retention", "", "How long finished requests stay queryable")
	fs.StringVar(&f.drainTimeout, "drain-timeout", "", "Grace period for in-flight requests at shutdown")
	fs.StringVar(&f.cfg.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.cfg.LogFormat, "log-format", "", "Log format: console or json")
	fs.StringVar(&f.cfg.HTTPLogLevel, "http-log-level", "", "Default /infer log level: off, error, info, debug")
	fs.BoolVar(&f.cors, "cors", false, "Enable CORS")
	fs.StringSliceVar(&f.cfg.CORSAllowedOrigins, "cors-origins", nil, "Allowed CORS origins (comma separated)")
	fs.StringSliceVar(&f.cfg.CORSAllowedMethods, "cors-methods", nil, "Allowed CORS methods (comma separated)")
	fs.StringSliceVar(&f.cfg.CORSAllowedHeaders, "cors-headers", nil, "Allowed CORS headers (comma separated)")
}

// overrides returns the flag layer of the configuration.
func (f *serveFlags) overrides(fs *pflag.FlagSet) (config.Config, error) {
	c := f.cfg
	if fs.Changed("preload") {
		c.Preload = &f.preload
	}
	if fs.Changed("cors") {
		c.CORSEnabled = &f.cors
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *config.Duration
	}{
		{"request-timeout", f.requestTimeout, &c.RequestTimeout},
		{"retention", f.retention, &c.Retention},
		{"drain-timeout", f.drainTimeout, &c.DrainTimeout},
	} {
		if err := d.dst.UnmarshalText([]byte(d.raw)); err != nil {
			return c, fmt.Errorf("--%s: %w", d.name, err)
		}
	}
	return c, nil
}

// resolveConfig layers defaults, the config file, PROMPTD_* variables and
// flags, in increasing precedence, and validates the result.
func resolveConfig(fs *pflag.FlagSet, f *serveFlags, lookup func(string) (string, bool)) (config.Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := config.Defaults()
	path := f.configPath
	if path == "" {
		path, _ = lookup(config.EnvPrefix + "CONFIG")
	}
	if path != "" {
		fc, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("config file: %w", err)
		}
		cfg = cfg.Merge(fc)
	}
	env, err := config.FromEnv(lookup)
	if err != nil {
		return cfg, err
	}
	cfg = cfg.Merge(env)
	fl, err := f.overrides(fs)
	if err != nil {
		return cfg, err
	}
	cfg = cfg.Merge(fl)
	return cfg, cfg.Validate()
}
