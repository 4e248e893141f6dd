// Package registry tracks which broadcast jobs are running.
package registry

import (
	"context"
	"sync"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/deps"
	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// MemoryRegistry is a process-wide registry of running jobs
type MemoryRegistry struct {
	mu   sync.Mutex
	keys map[entities.JobKey]struct{}
}

// NewMemoryRegistry creates an in-memory job registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{keys: make(map[entities.JobKey]struct{})}
}

// TryAcquire claims key if nobody holds it
func (r *MemoryRegistry) TryAcquire(_ context.Context, key entities.JobKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.keys[key]; held {
		return false, nil
	}
	r.keys[key] = struct{}{}
	return true, nil
}

// Refresh is a no-op, in-memory claims never expire
func (r *MemoryRegistry) Refresh(context.Context, entities.JobKey) error {
	return nil
}

// Release drops the claim of key
func (r *MemoryRegistry) Release(_ context.Context, key entities.JobKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
}

// Held reports whether key is claimed
func (r *MemoryRegistry) Held(key entities.JobKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.keys[key]
	return held
}

var _ deps.JobRegistry = (*MemoryRegistry)(nil)
