package manager

import "promptd/pkg/types"

// Lookup returns the status of a queued, running, or recently finished
// request. Finished requests are kept for the configured retention.
func (m *Manager) Lookup(id string) (types.RequestStatus, bool) {
	m.mu.RLock()
	j, ok := m.active[id]
	var rec Record
	if ok {
		rec = j.rec
	}
	m.mu.RUnlock()
	if !ok {
		item := m.records.Get(id)
		if item == nil {
			return types.RequestStatus{}, false
		}
		rec = item.Value()
	}
	return rec.status(), true
}

// Cancel aborts a queued or running request. It reports false when the id
// is unknown or the request has already finished.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	j, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	j.cancel()
	m.log.Info().Str("request_id", id).Msg("request cancel requested")
	return true
}

func (r Record) status() types.RequestStatus {
	st := types.RequestStatus{
		ID:            r.ID,
		Model:         r.ModelID,
		State:         string(r.State),
		SubmittedUnix: r.SubmittedAt.Unix(),
	}
	if !r.StartedAt.IsZero() {
		st.StartedUnix = r.StartedAt.Unix()
	}
	if !r.FinishedAt.IsZero() {
		st.FinishedUnix = r.FinishedAt.Unix()
	}
	if r.Result != nil {
		res := wireResult(r.ID, r.ModelID, *r.Result)
		st.Result = &res
	}
	return st
}
