package syncer

import "sync"

// Hub broadcasts newly committed sync tokens between engines sharing
// one local store, so a sibling can adopt the token instead of pulling
// what it already holds.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(syncID string)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(string))}
}

// join registers fn and returns the subscriber id.
func (h *Hub) join(fn func(syncID string)) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.subs[h.nextID] = fn

	return h.nextID
}

func (h *Hub) leave(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs, id)
}

// publish delivers syncID to every subscriber except from.
func (h *Hub) publish(from int, syncID string) {
	h.mu.Lock()
	fns := make([]func(string), 0, len(h.subs))
	for id, fn := range h.subs {
		if id != from {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(syncID)
	}
}
