package reactor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// pool is one concurrency pool record: available/limit accounting
// guarded by a mutex. The critical sections are a handful of integer
// ops, so a CAS loop would buy nothing over sync.Mutex here.
type pool struct {
	mu        sync.Mutex
	available int
	limit     int
}

// poolRegistry is the process-wide registry of named pools — the only
// shared mutable global in the engine.
var poolRegistry = struct {
	mu    sync.Mutex
	pools map[string]*pool
}{pools: map[string]*pool{}}

// PoolStatus reports a pool's current accounting.
type PoolStatus struct {
	Available int
	Limit     int
}

// allocatePool registers a new pool with the given limit, keyed by a
// fresh opaque reference, and destroys it once ctx is done: allocation
// monitors the owner and tears the pool down on owner termination.
func allocatePool(ctx context.Context, limit int) string {
	key := uuid.New().String()
	poolRegistry.mu.Lock()
	poolRegistry.pools[key] = &pool{available: limit, limit: limit}
	poolRegistry.mu.Unlock()

	go func() {
		<-ctx.Done()
		poolRegistry.mu.Lock()
		delete(poolRegistry.pools, key)
		poolRegistry.mu.Unlock()
	}()
	return key
}

// acquirePool attempts to atomically decrement a pool's availability,
// reporting whether a slot was obtained.
func acquirePool(key string) bool {
	poolRegistry.mu.Lock()
	p := poolRegistry.pools[key]
	poolRegistry.mu.Unlock()
	if p == nil {
		return true // unmanaged/destroyed key: treat as uncapped
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.available <= 0 {
		return false
	}
	p.available--
	return true
}

// releasePool returns a previously acquired slot, capped at the pool's
// limit.
func releasePool(key string) error {
	poolRegistry.mu.Lock()
	p := poolRegistry.pools[key]
	poolRegistry.mu.Unlock()
	if p == nil {
		return fmt.Errorf("reactor: release on unknown concurrency pool %q", key)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.available < p.limit {
		p.available++
	}
	return nil
}

// poolStatusOf reports a pool's current availability and limit.
func poolStatusOf(key string) (PoolStatus, bool) {
	poolRegistry.mu.Lock()
	p := poolRegistry.pools[key]
	poolRegistry.mu.Unlock()
	if p == nil {
		return PoolStatus{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStatus{Available: p.available, Limit: p.limit}, true
}

// Status exposes a concurrency pool's accounting by key, for
// middleware/tests observing shared parallelism across nested reactors.
func Status(key string) (PoolStatus, bool) { return poolStatusOf(key) }

// AllocatePool registers a process-wide concurrency pool and returns its
// key, for callers that want several top-level reactors to share one
// limit via Options.ConcurrencyKey. The pool is destroyed when ctx ends.
func AllocatePool(ctx context.Context, limit int) string { return allocatePool(ctx, limit) }
