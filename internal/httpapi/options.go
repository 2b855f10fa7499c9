package httpapi

import (
	"context"

	"github.com/rs/zerolog"
)

const defaultMaxBodyBytes int64 = 1 << 20

// Options configures NewMux. The zero value is usable.
type Options struct {
	// Logger receives request logs. Defaults to a disabled logger.
	Logger *zerolog.Logger
	// MaxBodyBytes bounds JSON and form bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
	// BaseContext is cancelled at shutdown; handlers stop work when it ends.
	BaseContext context.Context
	// LogLevel is the default per-request log level ("off", "error",
	// "info", "debug"), overridable with ?log= or X-Log-Level.
	LogLevel string
	// RetryAfterSeconds is sent with 429 responses.
	RetryAfterSeconds int
	CORS              CORSOptions
}

// CORSOptions enables the CORS middleware. No middleware is installed
// unless Enabled is set.
type CORSOptions struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		l := zerolog.Nop()
		o.Logger = &l
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.BaseContext == nil {
		o.BaseContext = context.Background()
	}
	if o.RetryAfterSeconds <= 0 {
		o.RetryAfterSeconds = 1
	}
	if o.CORS.Enabled {
		if len(o.CORS.AllowedOrigins) == 0 {
			o.CORS.AllowedOrigins = []string{"*"}
		}
		if len(o.CORS.AllowedMethods) == 0 {
			o.CORS.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		}
		if len(o.CORS.AllowedHeaders) == 0 {
			o.CORS.AllowedHeaders = []string{"Content-Type", "X-Log-Level", "X-Request-Id"}
		}
	}
	return o
}
