package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"promptd/internal/config"
	"promptd/internal/events"
	"promptd/internal/httpapi"
	"promptd/internal/manager"
	"promptd/internal/model"
	"promptd/internal/model/llamacpp"
	"promptd/internal/model/llamaserver"
	"promptd/internal/registry"
	"promptd/internal/sample"
)

func newServeCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), f, os.LookupEnv)
			if err != nil {
				return err
			}
			log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log, nil)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

// app is the wired service.
type app struct {
	mgr     *manager.Manager
	handler http.Handler
	// stopHandlers cancels work still attached to HTTP handlers.
	stopHandlers context.CancelFunc
}

func newApp(cfg config.Config, log zerolog.Logger, backend model.Backend) (*app, error) {
	pub := events.Log{Logger: log.With().Str("component", "events").Logger()}
	if backend == nil {
		var err error
		if backend, err = newBackend(cfg, log, pub); err != nil {
			return nil, err
		}
	}
	models, defaultID, err := registry.Build(&registry.GGUFScanner{ReadMetadata: true}, cfg.ModelPath, cfg.ModelsDir, cfg.DefaultModel)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no *.gguf models found in %s", cfg.ModelsDir)
	}
	store := model.NewStore(model.StoreConfig{
		Backend:   backend,
		Logger:    log.With().Str("component", "store").Logger(),
		Publisher: pub,
	})
	preload := cfg.Preload != nil && *cfg.Preload
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Store:              store,
		Registry:           models,
		DefaultModel:       defaultID,
		MaxQueueDepth:      cfg.MaxQueueDepth,
		RequestTimeout:     cfg.RequestTimeout.Value(),
		DrainTimeout:       cfg.DrainTimeout.Value(),
		Retention:          cfg.Retention.Value(),
		DefaultMaxTokens:   cfg.DefaultMaxTokens,
		Sampling:           sample.Defaults(),
		ReadyRequiresModel: preload,
		Logger:             log.With().Str("component", "manager").Logger(),
		Publisher:          pub,
	})

	base, stop := context.WithCancel(context.Background())
	httpLog := log.With().Str("component", "http").Logger()
	handler := httpapi.NewMux(mgr, httpapi.Options{
		Logger:       &httpLog,
		MaxBodyBytes: cfg.MaxBodyBytes,
		BaseContext:  base,
		LogLevel:     cfg.HTTPLogLevel,
		CORS: httpapi.CORSOptions{
			Enabled:        cfg.CORSEnabled != nil && *cfg.CORSEnabled,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: cfg.CORSAllowedMethods,
			AllowedHeaders: cfg.CORSAllowedHeaders,
		},
	})
	log.Info().Int("models", len(models)).Str("default_model", defaultID).Str("backend", backend.Name()).Msg("registry ready")
	return &app{mgr: mgr, handler: handler, stopHandlers: stop}, nil
}

func newBackend(cfg config.Config, log zerolog.Logger, pub events.Publisher) (model.Backend, error) {
	switch cfg.Backend {
	case config.BackendLlama:
		if !llamacpp.Built {
			log.Warn().Msg("built without the llama tag: in-process inference is unavailable, use --backend llama-server")
		}
		return llamacpp.New(llamacpp.Config{ContextSize: cfg.CtxSize, Threads: cfg.Threads, GPULayers: cfg.GPULayers}), nil
	case config.BackendLlamaServer:
		return llamaserver.New(llamaserver.Config{
			Bin:         cfg.LlamaBin,
			URL:         cfg.LlamaURL,
			APIKey:      cfg.LlamaAPIKey,
			ContextSize: cfg.CtxSize,
			GPULayers:   cfg.GPULayers,
			Threads:     cfg.Threads,
			Logger:      log.With().Str("component", "llama-server").Logger(),
			Publisher:   pub,
		}), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// serve runs the HTTP server until ctx ends, then drains. A nil backend is
// built from cfg. Preload failures are fatal.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger, backend model.Backend) error {
	a, err := newApp(cfg, log, backend)
	if err != nil {
		return err
	}
	if r := a.mgr.SanityCheck(); !r.Available {
		log.Warn().Str("backend", r.Backend).Str("error", r.Error).Msg("backend sanity check failed")
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = a.mgr.Close(context.Background())
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return a.run(ctx, ln, cfg, log)
}

func (a *app) run(ctx context.Context, ln net.Listener, cfg config.Config, log zerolog.Logger) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(log.With().Str("component", "http.server").Logger(), "", 0),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("promptd listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.Preload != nil && *cfg.Preload {
		g.Go(func() error {
			start := time.Now()
			if err := a.mgr.Preload(gctx); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			log.Info().Dur("took", time.Since(start)).Msg("default model preloaded")
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		grace := cfg.DrainTimeout.Value() + 5*time.Second
		sctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		var errs []error
		if err := a.mgr.Close(sctx); err != nil {
			errs = append(errs, err)
		}
		a.stopHandlers()
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		log.Info().Msg("stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}
