package types

// InferRequest represents an inference request payload.
type InferRequest struct {
	// Optional model identifier. If empty, the configured model is used.
	// example: tinyllama-q4.gguf
	Model string `json:"model,omitempty" example:"tinyllama-q4.gguf"`
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Maximum number of new tokens to generate. Omitted means the server default; 0 returns immediately.
	// example: 128
	MaxTokens *int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random), > 0. Omitted means the server default.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability in (0,1]. Omitted means the server default.
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens, >= 1. 1 is greedy.
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// Optional stop sequences. Generation stops when any sequence is produced.
	// example: ["\n\n","END"]
	Stop []string `json:"stop,omitempty" example:"[\"\\n\\n\",\"END\"]"`
	// Random seed for reproducibility; 0 or omitted lets the runtime choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
	// Repeat penalty applied by the runtime sampler, > 0. 1 disables it.
	// example: 1.1
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" example:"1.1"`
}

// InferenceResult is the assembled outcome of one generation.
type InferenceResult struct {
	// Request identifier, usable with /requests/{id}.
	// example: 5b1c7c9e-3f0a-4b53-9f3e-0f6a3c2d7e11
	ID string `json:"id" example:"5b1c7c9e-3f0a-4b53-9f3e-0f6a3c2d7e11"`
	// Model that served the request.
	Model string `json:"model,omitempty"`
	// Generated text.
	Text string `json:"text"`
	// Number of tokens produced.
	// example: 42
	Tokens int `json:"tokens" example:"42"`
	// One of max-tokens, end-of-sequence, cancelled, error.
	// example: end-of-sequence
	StopReason string `json:"stop_reason" example:"end-of-sequence"`
	// Error message when StopReason is error.
	Error string `json:"error,omitempty"`
	// Wall-clock duration of the decode loop in milliseconds.
	// example: 850
	DurationMS int64 `json:"duration_ms" example:"850"`
}

// TokenLine is one NDJSON line streamed by POST /infer.
type TokenLine struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

// DoneLine is the last NDJSON line streamed by POST /infer.
type DoneLine struct {
	Done bool `json:"done"`
	InferenceResult
}

// RequestStatus describes a request tracked by the coordinator.
type RequestStatus struct {
	// example: 5b1c7c9e-3f0a-4b53-9f3e-0f6a3c2d7e11
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
	// One of queued, running, completed, cancelled, failed.
	// example: running
	State         string           `json:"state" example:"running"`
	SubmittedUnix int64            `json:"submitted_unix"`
	StartedUnix   int64            `json:"started_unix,omitempty"`
	FinishedUnix  int64            `json:"finished_unix,omitempty"`
	Result        *InferenceResult `json:"result,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// LoadedModel summarizes a model held by the model store.
type LoadedModel struct {
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path"`
	// example: llama
	Architecture string `json:"architecture"`
	// example: Q4_K_M
	Quant string `json:"quant,omitempty"`
	// example: 2048
	ContextLength uint64 `json:"context_length"`
	// example: 32000
	VocabSize int `json:"vocab_size"`
	// example: 668788096
	SizeBytes int64 `json:"size_bytes"`
	// example: 1700000000
	LoadedUnix int64 `json:"loaded_unix"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall coordinator state (loading, ready, draining, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Runtime backend in use.
	// example: llama
	Backend string `json:"backend" example:"llama"`
	// Whether the backend dependency is available.
	BackendAvailable bool `json:"backend_available"`
	// Backend availability problem, if any.
	BackendError string `json:"backend_error,omitempty"`
	// Model served when a request names none.
	DefaultModel string `json:"default_model,omitempty"`
	// Models currently held in memory.
	Loaded []LoadedModel `json:"loaded"`
	// Requests waiting for the decode slot.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Requests currently decoding (0 or 1).
	// example: 1
	Running int `json:"running" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Per-request wall clock limit in seconds (0 = none).
	// example: 120
	RequestTimeoutSeconds int64 `json:"request_timeout_seconds" example:"120"`
	// Terminal request counters since start.
	Completed  uint64 `json:"completed_total"`
	Cancelled  uint64 `json:"cancelled_total"`
	Failed     uint64 `json:"failed_total"`
	Overloaded uint64 `json:"overloaded_total"`
	// Mean and median decode throughput over recent completed requests.
	// example: 23.5
	TokensPerSecondMean float64 `json:"tokens_per_second_mean" example:"23.5"`
	// example: 24.1
	TokensPerSecondP50 float64 `json:"tokens_per_second_p50" example:"24.1"`
	// Last error observed by the coordinator (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
