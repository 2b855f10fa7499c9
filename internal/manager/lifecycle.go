package manager

import (
	"context"
	"fmt"
	"time"

	"promptd/internal/events"
)

// Preload loads the default model ahead of the first request.
func (m *Manager) Preload(ctx context.Context) error {
	_, path, err := m.resolve("")
	if err != nil {
		return err
	}
	if err := m.SanityCheck().err(); err != nil {
		m.log.Warn().Err(err).Msg("backend sanity check failed")
	}
	if _, err := m.store.Acquire(ctx, path); err != nil {
		m.setState(StateError, err.Error())
		return fmt.Errorf("preload %s: %w", path, err)
	}
	m.setState(StateReady, "")
	return nil
}

// Close drains the coordinator: new requests are rejected with
// ErrShuttingDown, in-flight and queued requests get up to DrainTimeout (or
// until ctx ends) to finish and are cancelled after that. The worker is then
// stopped and every loaded model released.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil
	}
	m.draining = true
	m.state = StateDraining
	m.mu.Unlock()
	m.publisher.Publish(events.Event{Name: "drain_start"})
	m.log.Info().Dur("timeout", m.cfg.DrainTimeout).Msg("draining requests")

	deadline := time.Now().Add(m.cfg.DrainTimeout)
	for {
		pending := m.activeJobs()
		if len(pending) == 0 {
			break
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			m.publisher.Publish(events.Event{Name: "drain_timeout", Fields: map[string]any{"pending": len(pending)}})
			m.log.Warn().Int("pending", len(pending)).Msg("drain timeout; cancelling requests")
			for _, j := range pending {
				j.cancel()
			}
			for _, j := range pending {
				<-j.done
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(m.quit)
	<-m.workerDone
	m.records.Stop()
	var err error
	if m.store != nil {
		err = m.store.Close()
	}
	m.publisher.Publish(events.Event{Name: "drain_done"})
	if err != nil {
		return fmt.Errorf("close model store: %w", err)
	}
	return nil
}

func (m *Manager) activeJobs() []*job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*job, 0, len(m.active))
	for _, j := range m.active {
		out = append(out, j)
	}
	return out
}
