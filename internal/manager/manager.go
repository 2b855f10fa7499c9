package manager

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"promptd/internal/engine"
	"promptd/internal/events"
	"promptd/internal/model"
	"promptd/pkg/types"
)

type Manager struct {
	cfg       ManagerConfig
	store     ModelStore
	engine    *engine.Engine
	log       zerolog.Logger
	publisher events.Publisher

	mu       sync.RWMutex
	state    State
	err      string
	draining bool
	active   map[string]*job
	counts   counters
	tput     throughput

	// pending holds admitted jobs the worker has not taken yet, in FIFO
	// order. Guarded by mu; wake signals the worker after an append.
	pending    []*job
	wake       chan struct{}
	records    *ttlcache.Cache[string, Record]
	quit       chan struct{}
	workerDone chan struct{}
	startTime  time.Time
}

type counters struct {
	completed, cancelled, failed, overloaded uint64
}

// NewWithConfig constructs a Manager and starts its decode worker. Call
// Close to stop it.
func NewWithConfig(cfg ManagerConfig) *Manager {
	cfg = cfg.withDefaults()
	records := ttlcache.New[string, Record](
		ttlcache.WithTTL[string, Record](cfg.Retention),
		ttlcache.WithDisableTouchOnHit[string, Record](),
	)
	go records.Start()
	m := &Manager{
		cfg:        cfg,
		store:      cfg.Store,
		engine:     cfg.Engine,
		log:        cfg.Logger,
		publisher:  cfg.Publisher,
		state:      StateLoading,
		active:     make(map[string]*job),
		tput:       newThroughput(128),
		wake:       make(chan struct{}, 1),
		records:    records,
		quit:       make(chan struct{}),
		workerDone: make(chan struct{}),
		startTime:  time.Now(),
	}
	go m.worker()
	return m
}

// ListModels returns the registry with load state filled in. Registry paths
// are expected to be absolute.
func (m *Manager) ListModels() []types.Model {
	loaded := map[string]model.Info{}
	if m.store != nil {
		for _, h := range m.store.Loaded() {
			loaded[h.Path()] = h.Info()
		}
	}
	out := make([]types.Model, len(m.cfg.Registry))
	copy(out, m.cfg.Registry)
	for i := range out {
		if info, ok := loaded[out[i].Path]; ok {
			out[i].Loaded = true
			out[i].Quant, out[i].Family = info.Quant, info.Architecture
		}
	}
	return out
}

// resolve maps a requested model id (or "" for the default) to its path.
func (m *Manager) resolve(id string) (string, string, error) {
	if id == "" {
		id = m.cfg.DefaultModel
		if id == "" {
			return "", "", ErrModelNotFound("(unspecified)")
		}
	}
	for _, mdl := range m.cfg.Registry {
		if mdl.ID == id {
			return mdl.ID, mdl.Path, nil
		}
	}
	return "", "", ErrModelNotFound(id)
}

func (m *Manager) setState(s State, errMsg string) {
	m.mu.Lock()
	if !m.draining {
		m.state = s
	}
	m.err = errMsg
	m.mu.Unlock()
}
