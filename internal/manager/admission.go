package manager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"promptd/internal/engine"
	"promptd/internal/events"
	"promptd/pkg/types"
)

// job is one admitted request. rec is guarded by Manager.mu; result is
// written once before done is closed.
type job struct {
	id      string
	modelID string
	path    string
	req     engine.Request

	ctx    context.Context
	cancel context.CancelFunc

	events chan engine.TokenEvent
	done   chan struct{}
	result engine.Result

	rec Record
}

// Stream validates req and admits it to the queue. Admission is decided
// before Stream returns: a full queue fails with ErrOverloaded, invalid
// parameters with *engine.InvalidParamsError, and an unknown model with a
// model-not-found error. The request is bound to ctx: cancelling ctx
// cancels the request.
func (m *Manager) Stream(ctx context.Context, req types.InferRequest) (*Stream, error) {
	modelID, path, err := m.resolve(req.Model)
	if err != nil {
		requestsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}
	ereq := m.engineRequest(req)
	if err := ereq.ValidateResolved(); err != nil {
		requestsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	jctx, cancel := context.WithCancel(ctx)
	if m.cfg.RequestTimeout > 0 {
		var cancelT context.CancelFunc
		jctx, cancelT = context.WithTimeout(jctx, m.cfg.RequestTimeout)
		parent := cancel
		cancel = func() { cancelT(); parent() }
	}
	j := &job{
		id:      uuid.NewString(),
		modelID: modelID,
		path:    path,
		req:     ereq,
		ctx:     jctx,
		cancel:  cancel,
		events:  make(chan engine.TokenEvent, defaultEventBufferDepth),
		done:    make(chan struct{}),
	}
	j.rec = Record{ID: j.id, ModelID: modelID, State: RequestQueued, SubmittedAt: time.Now()}

	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		cancel()
		return nil, ErrShuttingDown
	}
	if len(m.pending) >= m.cfg.MaxQueueDepth {
		m.counts.overloaded++
		m.mu.Unlock()
		cancel()
		requestsTotal.WithLabelValues("overloaded").Inc()
		m.publisher.Publish(events.Event{Name: "request_rejected", ModelID: modelID, Fields: map[string]any{"reason": "overloaded"}})
		m.log.Warn().Str("model", modelID).Int("queue_depth", m.cfg.MaxQueueDepth).Msg("request rejected: queue full")
		return nil, ErrOverloaded
	}
	m.pending = append(m.pending, j)
	m.active[j.id] = j
	queueDepth.Set(float64(len(m.pending)))
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}

	// A request that ends while still queued is finished right away; the
	// worker skips it later.
	context.AfterFunc(jctx, func() { m.abandonQueued(j) })

	m.publisher.Publish(events.Event{Name: "request_queued", ModelID: modelID, Fields: map[string]any{"id": j.id}})
	m.log.Debug().Str("request_id", j.id).Str("model", modelID).Msg("request queued")
	return &Stream{m: m, j: j}, nil
}

// engineRequest fills omitted request fields from the configured defaults.
// Explicit values are kept as given, zero included, for validation to judge.
func (m *Manager) engineRequest(req types.InferRequest) engine.Request {
	maxTokens := m.cfg.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	p := m.cfg.Sampling
	if req.Temperature != nil {
		p.Temperature = float32(*req.Temperature)
	}
	if req.TopK != nil {
		p.TopK = *req.TopK
	}
	if req.TopP != nil {
		p.TopP = float32(*req.TopP)
	}
	if req.RepeatPenalty != nil {
		p.RepeatPenalty = float32(*req.RepeatPenalty)
	}
	if req.Seed != 0 {
		p.Seed = req.Seed
	}
	return engine.Request{
		Prompt:    req.Prompt,
		MaxTokens: maxTokens,
		Sampling:  p,
		Stop:      append([]string(nil), req.Stop...),
	}
}
