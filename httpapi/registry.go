package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/otpflow"
)

// ErrTooManyFlows is returned by [Registry.Add] when the registry is full and
// no idle flow could be evicted.
var ErrTooManyFlows = errors.New("too many open flows")

// RegistryConfig bounds the mounted flows.
type RegistryConfig struct {
	// IdleTTL closes a flow that no request has touched for this long. Zero
	// keeps flows until they are removed.
	IdleTTL time.Duration
	// MaxFlows caps the mounted flows. Zero is unbounded.
	MaxFlows int
}

type mounted struct {
	p        *otpflow.Presenter
	lastSeen time.Time
}

// Registry holds the mounted presenters by flow ID. Evicted presenters are
// closed, so the engine's active flow count follows the registry.
type Registry struct {
	cfg RegistryConfig
	now func() time.Time

	mu    sync.Mutex
	flows map[string]*mounted
}

// NewRegistry returns an empty registry bounded by cfg.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:   cfg,
		now:   time.Now,
		flows: make(map[string]*mounted),
	}
}

// Add mounts p. A full registry first evicts idle flows and returns
// [ErrTooManyFlows] when none were idle.
func (r *Registry) Add(p *otpflow.Presenter) error {
	r.mu.Lock()
	now := r.now()
	var evicted []*otpflow.Presenter
	if r.cfg.MaxFlows > 0 && len(r.flows) >= r.cfg.MaxFlows {
		evicted = r.expireLocked(now)
		if len(r.flows) >= r.cfg.MaxFlows {
			r.mu.Unlock()
			closeAll(evicted)
			return ErrTooManyFlows
		}
	}
	r.flows[p.ID()] = &mounted{p: p, lastSeen: now}
	r.mu.Unlock()

	closeAll(evicted)
	return nil
}

// Get returns the presenter with id and records the access.
func (r *Registry) Get(id string) (*otpflow.Presenter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.flows[id]
	if !ok {
		return nil, false
	}
	m.lastSeen = r.now()
	return m.p, true
}

// Remove closes and forgets the presenter with id.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	m, ok := r.flows[id]
	delete(r.flows, id)
	r.mu.Unlock()
	if ok {
		_ = m.p.Close()
	}
	return ok
}

// Len is the number of mounted flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep closes and forgets every flow idle for longer than IdleTTL and
// returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	evicted := r.expireLocked(r.now())
	r.mu.Unlock()
	closeAll(evicted)
	return len(evicted)
}

// Run sweeps at half the idle TTL until ctx ends. It returns at once when
// IdleTTL is zero.
func (r *Registry) Run(ctx context.Context) {
	if r.cfg.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every presenter and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	flows := r.flows
	r.flows = make(map[string]*mounted)
	r.mu.Unlock()
	for _, m := range flows {
		_ = m.p.Close()
	}
}

func (r *Registry) expireLocked(now time.Time) []*otpflow.Presenter {
	if r.cfg.IdleTTL <= 0 {
		return nil
	}
	var out []*otpflow.Presenter
	for id, m := range r.flows {
		if now.Sub(m.lastSeen) > r.cfg.IdleTTL {
			delete(r.flows, id)
			out = append(out, m.p)
		}
	}
	return out
}

func closeAll(ps []*otpflow.Presenter) {
	for _, p := range ps {
		_ = p.Close()
	}
}
