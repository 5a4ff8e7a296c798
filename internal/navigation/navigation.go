// Package navigation models the navigation collaborator: the current path
// of a client session plus change notification. The core observes it but
// never owns routing.
package navigation

import "sync"

// Observer exposes the current path and notifies on change.
type Observer interface {
	Path() string
	// Subscribe registers fn to be called with every new path.
	// The returned func removes the subscription.
	Subscribe(fn func(path string)) (cancel func())
}

// History is an in-memory Observer fed by Push. Programmatic navigation
// (no reload) and full loads both arrive as Push calls.
type History struct {
	mu     sync.Mutex
	path   string
	nextID int
	subs   map[int]func(string)
}

// NewHistory starts a history at path.
func NewHistory(path string) *History {
	return &History{path: path, subs: make(map[int]func(string))}
}

func (h *History) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

// Push records a navigation. Subscribers run only when the path changed,
// outside the lock.
func (h *History) Push(path string) {
	h.mu.Lock()
	if path == h.path {
		h.mu.Unlock()
		return
	}
	h.path = path
	fns := make([]func(string), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(path)
	}
}

func (h *History) Subscribe(fn func(string)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}
