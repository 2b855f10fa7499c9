package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override, e.g. PROMPTD_MODEL_PATH.
const EnvPrefix = "PROMPTD_"

// Merge returns c with every field that is set in o copied over it.
func (c Config) Merge(o Config) Config {
	dst := reflect.ValueOf(&c).Elem()
	src := reflect.ValueOf(o)
	for i := 0; i < src.NumField(); i++ {
		if f := src.Field(i); !f.IsZero() {
			dst.Field(i).Set(f)
		}
	}
	return c
}

// FromEnv reads PROMPTD_<KEY> overrides, where KEY is the upper-cased file
// key. Lists are comma separated. lookup is usually os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var cfg Config
	v := reflect.ValueOf(&cfg).Elem()
	t := v.Type()
	var errs []error
	for i := 0; i < t.NumField(); i++ {
		key := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		name := EnvPrefix + strings.ToUpper(key)
		raw, ok := lookup(name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := setField(v.Field(i), strings.TrimSpace(raw)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return cfg, errors.Join(errs...)
}

var durationType = reflect.TypeOf(Duration{})

func setField(f reflect.Value, raw string) error {
	if f.Type() == durationType {
		var d Duration
		if err := d.UnmarshalText([]byte(raw)); err != nil {
			return err
		}
		f.Set(reflect.ValueOf(d))
		return nil
	}
	switch f.Kind() {
	case reflect.String:
		f.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		f.SetInt(n)
	case reflect.Pointer:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		f.Set(reflect.ValueOf(&b))
	case reflect.Slice:
		f.Set(reflect.ValueOf(SplitCSV(raw)))
	default:
		return fmt.Errorf("unsupported field kind %s", f.Kind())
	}
	return nil
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping
// empty items.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports the first setting that cannot start the service.
func (c Config) Validate() error {
	if c.ModelPath == "" && c.ModelsDir == "" {
		return errors.New("no model configured: set model_path or models_dir")
	}
	switch c.Backend {
	case BackendLlama, BackendLlamaServer:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendLlama, BackendLlamaServer)
	}
	if c.MaxQueueDepth <= 0 {
		return fmt.Errorf("max_queue_depth must be > 0, got %d", c.MaxQueueDepth)
	}
	if c.DefaultMaxTokens <= 0 {
		return fmt.Errorf("default_max_tokens must be > 0, got %d", c.DefaultMaxTokens)
	}
	if c.Retention.Duration < 0 || c.DrainTimeout.Duration < 0 {
		return errors.New("retention and drain_timeout must not be negative")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log_format %q (want console or json)", c.LogFormat)
	}
	return nil
}
