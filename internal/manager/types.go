package manager

import (
	"context"
	"time"

	"promptd/internal/engine"
	"promptd/internal/model"
)

// State is the coordinator's lifecycle state.
type State string

const (
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateError    State = "error"
	StateDraining State = "draining"
)

// RequestState is the lifecycle state of one request.
type RequestState string

const (
	RequestQueued    RequestState = "queued"
	RequestRunning   RequestState = "running"
	RequestCompleted RequestState = "completed"
	RequestCancelled RequestState = "cancelled"
	RequestFailed    RequestState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s RequestState) Terminal() bool {
	switch s {
	case RequestCompleted, RequestCancelled, RequestFailed:
		return true
	}
	return false
}

// Record is the coordinator's view of one request.
type Record struct {
	ID          string
	ModelID     string
	State       RequestState
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	// Result is set once the request is terminal.
	Result *engine.Result
}

// ModelStore is the part of *model.Store the coordinator uses.
type ModelStore interface {
	Acquire(ctx context.Context, path string) (*model.Handle, error)
	Loaded() []*model.Handle
	IsLoaded(path string) bool
	Backend() model.Backend
	Close() error
}
