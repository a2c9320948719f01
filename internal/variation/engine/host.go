package engine

import (
	"fmt"
	"sync"

	"bxhive/internal/funds"
	"bxhive/internal/variation/models"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

// Host instantiates and resolves variation engines by address.
//
// Instantiation is two-phase so the catalog's spawn protocol can compensate:
// Stage builds a fully configured engine under a fresh address but keeps it
// unresolvable; Commit publishes it; Discard drops a staged engine that never
// made it through the protocol. A staged engine's address is reserved either
// way, so a discarded spawn can never collide with a later one.
type Host struct {
	mu      sync.RWMutex
	engines map[id.Address]*Engine
	staged  map[id.Address]*Engine

	treasury funds.Treasury
	opts     []Option
}

// NewHost creates an empty host. The supplied options are applied to every
// engine it stages.
func NewHost(treasury funds.Treasury, opts ...Option) *Host {
	return &Host{
		engines:  make(map[id.Address]*Engine),
		staged:   make(map[id.Address]*Engine),
		treasury: treasury,
		opts:     opts,
	}
}

// Stage builds a new engine under a fresh address without publishing it.
func (h *Host) Stage(cfg models.Config) (*Engine, error) {
	addr := id.NewAddress()
	eng, err := New(addr, cfg, h.treasury, h.opts...)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.staged[addr] = eng
	return eng, nil
}

// Commit publishes a staged engine, making it resolvable by address.
func (h *Host) Commit(addr id.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	eng, ok := h.staged[addr]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("no staged engine at %s", addr))
	}
	delete(h.staged, addr)
	h.engines[addr] = eng
	return nil
}

// Discard drops a staged engine. Committed engines are never discarded.
func (h *Host) Discard(addr id.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.staged, addr)
}

// Lookup resolves a committed engine by address.
func (h *Host) Lookup(addr id.Address) (*Engine, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	eng, ok := h.engines[addr]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no variation at %s", addr))
	}
	return eng, nil
}

// Size reports the number of committed engines.
func (h *Host) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.engines)
}
