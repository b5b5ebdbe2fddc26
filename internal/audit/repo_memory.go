package audit

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only repository useful for tests and
// single-process deployments. It is not intended for durable production use.
type MemoryRepo struct {
	mu       sync.Mutex
	global   []Entry
	perEvent map[string][]Entry
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{perEvent: make(map[string][]Entry)}
}

func (r *MemoryRepo) Append(ctx context.Context, e Entry) (Entry, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	e.ID = int64(len(r.global)) + 1
	r.global = append(r.global, e)

	list := append([]Entry{e}, r.perEvent[e.EventID]...)
	if len(list) > PerEventRetention {
		list = list[:PerEventRetention]
	}
	r.perEvent[e.EventID] = list

	return e, nil
}

func (r *MemoryRepo) RecentGlobal(ctx context.Context, limit int) ([]Entry, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if limit > len(r.global) {
		limit = len(r.global)
	}
	out := make([]Entry, 0, limit)
	for i := len(r.global) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.global[i])
	}
	return out, nil
}

func (r *MemoryRepo) ForEvent(ctx context.Context, eventID string) ([]Entry, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.perEvent[eventID]
	out := make([]Entry, len(list))
	copy(out, list)
	return out, nil
}
