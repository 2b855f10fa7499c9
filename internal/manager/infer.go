package manager

import (
	"context"
	"encoding/json"
	"io"

	"promptd/internal/engine"
	"promptd/pkg/types"
)

// Submit runs req to completion and returns the assembled result. Partial
// text is returned alongside timeout and decode errors.
func (m *Manager) Submit(ctx context.Context, req types.InferRequest) (types.InferenceResult, error) {
	s, err := m.Stream(ctx, req)
	if err != nil {
		return types.InferenceResult{}, err
	}
	for range s.Events() {
	}
	res, err := s.Result()
	return wireResult(s.ID(), s.ModelID(), res), err
}

// Infer streams req as NDJSON: one {"token","index"} line per event and a
// final {"done":true,...} line. Errors that occur before any token is written
// are returned so the caller can map them to a status code; later errors are
// reported in the final line.
func (m *Manager) Infer(ctx context.Context, req types.InferRequest, w io.Writer, flush func()) error {
	s, err := m.Stream(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	var (
		writeErr error
		wrote    bool
	)
	for ev := range s.Events() {
		if writeErr != nil || ev.Text == "" {
			continue
		}
		if err := enc.Encode(types.TokenLine{Token: ev.Text, Index: ev.Index}); err != nil {
			writeErr = err
			s.Cancel()
			continue
		}
		wrote = true
		if flush != nil {
			flush()
		}
	}
	res, err := s.Result()
	if writeErr != nil {
		return writeErr
	}
	if err != nil && !wrote {
		return err
	}
	if err := enc.Encode(types.DoneLine{Done: true, InferenceResult: wireResult(s.ID(), s.ModelID(), res)}); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

func wireResult(id, modelID string, r engine.Result) types.InferenceResult {
	out := types.InferenceResult{
		ID:         id,
		Model:      modelID,
		Text:       r.Text,
		Tokens:     r.Tokens,
		StopReason: string(r.Reason),
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}
