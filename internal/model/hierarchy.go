package model

import "sync"

// Collection is the live annotation set of an open image.
//
// Implementations are owned by the host. Add must not notify observers;
// callers batch their mutations and call NotifyChanged once per phase.
type Collection interface {
	// Snapshot returns a copy of the current annotations.
	Snapshot() []Annotation

	// Remove deletes the annotation with the given ID and reports whether it existed.
	Remove(id string) bool

	// Add inserts an annotation without notifying observers.
	Add(a Annotation)

	// NotifyChanged signals observers that the collection changed.
	NotifyChanged()
}

// Hierarchy is an in-memory Collection. It is safe for concurrent use and
// counts change notifications so callers can observe batching.
type Hierarchy struct {
	mu            sync.Mutex
	items         []Annotation
	notifications int
	observers     []func()
}

var _ Collection = (*Hierarchy)(nil)

// NewHierarchy creates a hierarchy holding the given annotations in order.
func NewHierarchy(items ...Annotation) *Hierarchy {
	h := &Hierarchy{items: make([]Annotation, 0, len(items))}
	h.items = append(h.items, items...)
	return h
}

// Snapshot returns a copy of the annotations in insertion order.
func (h *Hierarchy) Snapshot() []Annotation {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Annotation, len(h.items))
	copy(out, h.items)
	return out
}

// Remove deletes the annotation with the given ID.
func (h *Hierarchy) Remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.items {
		if h.items[i].ID == id {
			h.items = append(h.items[:i], h.items[i+1:]...)
			return true
		}
	}
	return false
}

// Add appends an annotation.
func (h *Hierarchy) Add(a Annotation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, a)
}

// NotifyChanged increments the notification counter and calls observers.
func (h *Hierarchy) NotifyChanged() {
	h.mu.Lock()
	h.notifications++
	observers := make([]func(), len(h.observers))
	copy(observers, h.observers)
	h.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// Observe registers fn to be called on every NotifyChanged.
func (h *Hierarchy) Observe(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, fn)
}

// Len returns the number of annotations.
func (h *Hierarchy) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Notifications returns how many times NotifyChanged was called.
func (h *Hierarchy) Notifications() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.notifications
}

// CountByLabel returns the number of non-marker annotations per label name.
func (h *Hierarchy) CountByLabel() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, a := range h.items {
		if a.IsPoint() || a.Label == nil {
			continue
		}
		counts[a.Label.Name]++
	}
	return counts
}
