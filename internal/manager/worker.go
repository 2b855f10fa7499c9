package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"promptd/internal/engine"
	"promptd/internal/events"
)

// worker is the only goroutine that decodes. It takes jobs in FIFO order.
func (m *Manager) worker() {
	defer close(m.workerDone)
	for {
		if j := m.next(); j != nil {
			m.run(j)
			continue
		}
		select {
		case <-m.wake:
		case <-m.quit:
			return
		}
	}
}

// next pops the oldest pending job, or returns nil when none is waiting.
func (m *Manager) next() *job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	j := m.pending[0]
	m.pending[0] = nil
	m.pending = m.pending[1:]
	queueDepth.Set(float64(len(m.pending)))
	return j
}

// unqueue drops j from pending. Callers hold mu.
func (m *Manager) unqueue(j *job) {
	if i := slices.Index(m.pending, j); i >= 0 {
		m.pending = slices.Delete(m.pending, i, i+1)
		queueDepth.Set(float64(len(m.pending)))
	}
}

func (m *Manager) run(j *job) {
	if !m.markRunning(j) {
		return
	}
	running.Set(1)
	defer running.Set(0)
	var sess *engine.Session
	defer func() {
		if r := recover(); r != nil {
			if sess != nil {
				sess.End()
			}
			m.log.Error().Str("request_id", j.id).Interface("panic", r).Msg("decode panicked")
			m.finish(j, engine.Result{Reason: engine.StopError, Err: fmt.Errorf("internal error: %v", r)})
		}
	}()

	h, err := m.store.Acquire(j.ctx, j.path)
	if err != nil {
		if j.ctx.Err() != nil {
			m.finish(j, engine.Result{Reason: engine.StopCancelled})
			return
		}
		m.setState(StateError, err.Error())
		m.finish(j, engine.Result{Reason: engine.StopError, Err: err})
		return
	}
	if j.path == m.defaultPath() {
		m.setState(StateReady, "")
	}

	sess, err = engine.Begin(h)
	if err != nil {
		m.finish(j, engine.Result{Reason: engine.StopError, Err: &engine.DecodeError{Step: -1, Err: err}})
		return
	}

	res, _ := m.engine.Generate(j.ctx, sess, j.req, func(ev engine.TokenEvent) bool {
		select {
		case j.events <- ev:
			return true
		case <-j.ctx.Done():
			return false
		}
	})
	// End before finish so the next job never meets a live session.
	sess.End()
	m.finish(j, res)
}

func (m *Manager) markRunning(j *job) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.rec.State != RequestQueued {
		return false
	}
	if j.ctx.Err() != nil {
		// abandonQueued runs from the context's AfterFunc.
		return false
	}
	j.rec.State = RequestRunning
	j.rec.StartedAt = time.Now()
	m.publisher.Publish(events.Event{Name: "request_started", ModelID: j.modelID, Fields: map[string]any{"id": j.id}})
	return true
}

// abandonQueued finishes a request whose context ended before the worker
// started it.
func (m *Manager) abandonQueued(j *job) {
	m.complete(j, engine.Result{Reason: engine.StopCancelled, PromptLength: len(j.req.Prompt)}, true)
}

// finish moves a running j to its terminal state exactly once.
func (m *Manager) finish(j *job, res engine.Result) { m.complete(j, res, false) }

// complete records the terminal state of j. With onlyQueued it does nothing
// once the worker has started j.
func (m *Manager) complete(j *job, res engine.Result, onlyQueued bool) {
	// A deadline surfaces as a cancelled stream when it interrupts delivery
	// or queueing; report it as a timeout.
	if res.Reason == engine.StopCancelled && errors.Is(j.ctx.Err(), context.DeadlineExceeded) {
		res.Reason = engine.StopError
		res.Err = fmt.Errorf("%w after %d tokens", engine.ErrTimeout, res.Tokens)
	}
	state := RequestCompleted
	switch res.Reason {
	case engine.StopCancelled:
		state = RequestCancelled
	case engine.StopError:
		state = RequestFailed
	}

	m.mu.Lock()
	if j.rec.State.Terminal() || (onlyQueued && j.rec.State != RequestQueued) {
		m.mu.Unlock()
		return
	}
	wasQueued := j.rec.State == RequestQueued
	if wasQueued {
		m.unqueue(j)
	}
	j.rec.State = state
	j.rec.FinishedAt = time.Now()
	j.rec.Result = &res
	rec := j.rec
	delete(m.active, j.id)
	switch state {
	case RequestCompleted:
		m.counts.completed++
		m.tput.add(res.Tokens, res.Duration)
	case RequestCancelled:
		m.counts.cancelled++
	case RequestFailed:
		m.counts.failed++
		m.err = res.Err.Error()
	}
	m.mu.Unlock()

	m.records.Set(j.id, rec, ttlcache.DefaultTTL)
	j.result = res
	close(j.events)
	close(j.done)
	j.cancel()

	requestsTotal.WithLabelValues(string(state)).Inc()
	tokensTotal.Add(float64(res.Tokens))
	if !wasQueued {
		decodeDuration.Observe(res.Duration.Seconds())
	}
	fields := map[string]any{"id": j.id, "state": string(state), "tokens": res.Tokens, "stop_reason": string(res.Reason), "queued": wasQueued}
	ev := m.log.Info()
	if res.Err != nil {
		fields["error"] = res.Err.Error()
		ev = m.log.Warn().Err(res.Err)
	}
	m.publisher.Publish(events.Event{Name: "request_done", ModelID: j.modelID, Fields: fields})
	ev.Str("request_id", j.id).Str("model", j.modelID).Str("state", string(state)).
		Str("stop_reason", string(res.Reason)).Int("tokens", res.Tokens).Dur("took", res.Duration).
		Msg("request finished")
}

func (m *Manager) defaultPath() string {
	_, p, err := m.resolve("")
	if err != nil {
		return ""
	}
	return p
}
