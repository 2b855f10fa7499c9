package manager

import (
	"errors"
	"time"

	"promptd/internal/model"
	"promptd/pkg/types"
)

// SanityReport describes whether the configured backend can run.
type SanityReport struct {
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// SanityCheck validates the backend dependency (shared library or server
// binary). It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	if m.store == nil || m.store.Backend() == nil {
		return SanityReport{Error: model.ErrBackendUnavailable.Error()}
	}
	b := m.store.Backend()
	r := SanityReport{Backend: b.Name(), Available: true}
	if c, ok := b.(model.Checker); ok {
		if err := c.Check(); err != nil {
			r.Available = false
			r.Error = err.Error()
		}
	}
	return r
}

// Ready reports whether new requests can be served. It is false while
// draining and, with ReadyRequiresModel, until the default model is loaded.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	draining := m.draining
	m.mu.RUnlock()
	if draining || m.store == nil {
		return false
	}
	if !m.cfg.ReadyRequiresModel {
		return true
	}
	p := m.defaultPath()
	return p != "" && m.store.IsLoaded(p)
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	sanity := m.SanityCheck()
	var loaded []types.LoadedModel
	if m.store != nil {
		for _, h := range m.store.Loaded() {
			info := h.Info()
			loaded = append(loaded, types.LoadedModel{
				Path:          info.Path,
				Architecture:  info.Architecture,
				Quant:         info.Quant,
				ContextLength: info.ContextLength,
				VocabSize:     info.VocabSize,
				SizeBytes:     info.SizeBytes,
				LoadedUnix:    info.LoadedAt.Unix(),
			})
		}
	}
	if loaded == nil {
		loaded = []types.LoadedModel{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	state := m.state
	if state == StateLoading && len(loaded) > 0 {
		state = StateReady
	}
	runningNow := 0
	for _, j := range m.active {
		if j.rec.State == RequestRunning {
			runningNow++
		}
	}
	mean, p50 := m.tput.summary()
	now := time.Now()
	return types.StatusResponse{
		State:                 string(state),
		Backend:               sanity.Backend,
		BackendAvailable:      sanity.Available,
		BackendError:          sanity.Error,
		DefaultModel:          m.cfg.DefaultModel,
		Loaded:                loaded,
		QueueLen:              len(m.pending),
		Running:               runningNow,
		MaxQueueDepth:         m.cfg.MaxQueueDepth,
		RequestTimeoutSeconds: int64(m.cfg.RequestTimeout / time.Second),
		Completed:             m.counts.completed,
		Cancelled:             m.counts.cancelled,
		Failed:                m.counts.failed,
		Overloaded:            m.counts.overloaded,
		TokensPerSecondMean:   mean,
		TokensPerSecondP50:    p50,
		LastError:             m.err,
		UptimeSeconds:         int64(now.Sub(m.startTime) / time.Second),
		ServerTimeUnix:        now.Unix(),
	}
}

// err reports the sanity failure as an error, or nil.
func (r SanityReport) err() error {
	if r.Available {
		return nil
	}
	return errors.New(r.Error)
}
