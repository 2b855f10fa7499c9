package manager

import (
	"time"

	"github.com/rs/zerolog"

	"promptd/internal/engine"
	"promptd/internal/events"
	"promptd/internal/sample"
	"promptd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth    = 32
	defaultDrainTimeout     = 30 * time.Second
	defaultRetention        = 10 * time.Minute
	defaultMaxTokens        = 100
	defaultEventBufferDepth = 64
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Store  ModelStore
	Engine *engine.Engine

	Registry     []types.Model
	DefaultModel string

	// MaxQueueDepth bounds requests waiting behind the running one.
	MaxQueueDepth int
	// RequestTimeout is the wall-clock limit from submission to completion.
	// Zero disables it.
	RequestTimeout time.Duration
	DrainTimeout   time.Duration
	// Retention is how long finished request records stay queryable.
	Retention time.Duration

	// DefaultMaxTokens applies when a request does not set max_tokens.
	DefaultMaxTokens int
	// Sampling supplies the sampling fields a request omits. Its own zero
	// fields take the package defaults of sample.
	Sampling sample.Params

	// ReadyRequiresModel makes Ready report false until the default model
	// has been loaded.
	ReadyRequiresModel bool

	Logger    zerolog.Logger
	Publisher events.Publisher
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	if c.DefaultMaxTokens <= 0 {
		c.DefaultMaxTokens = defaultMaxTokens
	}
	c.Sampling = c.Sampling.WithDefaults()
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	if c.Engine == nil {
		c.Engine = engine.New(c.Logger)
	}
	c.Publisher = events.OrNoop(c.Publisher)
	return c
}
