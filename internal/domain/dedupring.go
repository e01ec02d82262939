package domain

import "sync"

// DedupRing is a bounded LRU ring of recently-seen keys. The streaming
// import runner uses one per (account, streamType) to suppress provider
// re-emission of in-window items on resume (spec default capacity: 500).
type DedupRing struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

func NewDedupRing(capacity int) *DedupRing {
	if capacity <= 0 {
		capacity = 500
	}
	return &DedupRing{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// SeenOrAdd reports whether key was already present, and records it if not.
func (r *DedupRing) SeenOrAdd(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[key]; ok {
		return true
	}

	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	r.order = append(r.order, key)
	r.seen[key] = struct{}{}
	return false
}

func (r *DedupRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
