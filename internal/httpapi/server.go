package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"promptd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	Submit(ctx context.Context, req types.InferRequest) (types.InferenceResult, error)
	Infer(ctx context.Context, req types.InferRequest, w io.Writer, flush func()) error
	Lookup(id string) (types.RequestStatus, bool)
	Cancel(id string) bool
}

type server struct {
	svc      Service
	opts     Options
	log      zerolog.Logger
	defLevel zerolog.Level
}

// NewMux builds the HTTP handler for svc.
func NewMux(svc Service, opts Options) http.Handler {
	opts = opts.withDefaults()
	s := &server{svc: svc, opts: opts, log: *opts.Logger, defLevel: parseLevel(opts.LogLevel)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if opts.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORS.AllowedOrigins,
			AllowedMethods: opts.CORS.AllowedMethods,
			AllowedHeaders: opts.CORS.AllowedHeaders,
			ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", s.handleModels)
	r.Get("/status", s.handleStatus)
	r.Get("/prompt", s.handlePrompt)
	r.Post("/prompt", s.handlePrompt)
	r.Post("/infer", s.handleInfer)
	r.Get("/requests/{id}", s.handleGetRequest)
	r.Delete("/requests/{id}", s.handleCancelRequest)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

// handleModels lists the configured models.
//
// @Summary  List models
// @Tags     models
// @Produce  json
// @Success  200 {object} types.ModelsResponse
// @Router   /models [get]
func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: s.svc.ListModels()})
}

// handleStatus reports backend, queue and throughput state.
//
// @Summary  Service status
// @Tags     status
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// handlePrompt runs a form-encoded prompt to completion.
//
// @Summary  Generate text from a form prompt
// @Tags     inference
// @Accept   x-www-form-urlencoded
// @Produce  json
// @Param    prompt      formData string  true  "Prompt text"
// @Param    model       formData string  false "Model id"
// @Param    max_tokens  formData int     false "Token limit"
// @Param    temperature formData number  false "Sampling temperature"
// @Param    top_k       formData int     false "Top-k"
// @Param    top_p       formData number  false "Top-p"
// @Success  200 {object} types.InferenceResult
// @Failure  400 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Failure  503 {object} types.ErrorResponse
// @Failure  504 {object} types.ErrorResponse
// @Router   /prompt [post]
func (s *server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	req, err := parsePromptForm(r.Form)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	start := time.Now()
	log := s.requestLogger(r)
	ctx, cancel := joinContexts(s.opts.BaseContext, r.Context())
	defer cancel()
	res, err := s.svc.Submit(ctx, req)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		status := s.writeError(w, err)
		logEnd(log, "prompt end", status, start, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
	logEnd(log, "prompt end", http.StatusOK, start, nil)
}

// handleInfer streams tokens as NDJSON.
//
// @Summary  Stream inference
// @Tags     inference
// @Accept   json
// @Produce  application/x-ndjson
// @Param    request body types.InferRequest true "Inference request"
// @Success  200 {object} types.DoneLine "NDJSON token lines followed by a done line"
// @Failure  400 {object} types.ErrorResponse
// @Failure  404 {object} types.ErrorResponse
// @Failure  415 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Router   /infer [post]
func (s *server) handleInfer(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var req types.InferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	start := time.Now()
	log := s.requestLogger(r)
	// The content type is set on first write so errors returned before any
	// token can still go out as JSON.
	writer := &ndjsonWriter{w: w}
	var out io.Writer = writer
	if log.GetLevel() <= zerolog.DebugLevel {
		out = io.MultiWriter(writer, &lineLogger{log: log})
	}
	log.Info().Str("path", r.URL.Path).Str("model", req.Model).Msg("infer start")
	ctx, cancel := joinContexts(s.opts.BaseContext, r.Context())
	defer cancel()
	if err := s.svc.Infer(ctx, req, out, flush); err != nil {
		// If context was canceled (client disconnect), just return.
		if r.Context().Err() != nil || writer.started {
			logEnd(log, "infer end", http.StatusOK, start, err)
			return
		}
		status := s.writeError(w, err)
		logEnd(log, "infer end", status, start, err)
		return
	}
	logEnd(log, "infer end", http.StatusOK, start, nil)
}

// handleGetRequest returns the state of a queued, running or recently
// finished request.
//
// @Summary  Request status
// @Tags     requests
// @Produce  json
// @Param    id  path string true "Request id"
// @Success  200 {object} types.RequestStatus
// @Failure  404 {object} types.ErrorResponse
// @Router   /requests/{id} [get]
func (s *server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := s.svc.Lookup(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "request not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCancelRequest cancels a queued or running request.
//
// @Summary  Cancel a request
// @Tags     requests
// @Produce  json
// @Param    id  path string true "Request id"
// @Success  202 {object} types.RequestStatus
// @Failure  404 {object} types.ErrorResponse
// @Failure  409 {object} types.ErrorResponse
// @Router   /requests/{id} [delete]
func (s *server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.svc.Cancel(id) {
		st, _ := s.svc.Lookup(id)
		writeJSON(w, http.StatusAccepted, st)
		return
	}
	if st, ok := s.svc.Lookup(id); ok {
		writeJSONError(w, http.StatusConflict, "request already "+st.State)
		return
	}
	writeJSONError(w, http.StatusNotFound, "request not found: "+id)
}

// ndjsonWriter sets the NDJSON content type on first write.
type ndjsonWriter struct {
	w       http.ResponseWriter
	started bool
}

func (n *ndjsonWriter) Write(p []byte) (int, error) {
	if !n.started {
		n.started = true
		n.w.Header().Set("Content-Type", "application/x-ndjson")
	}
	return n.w.Write(p)
}
