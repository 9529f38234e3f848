package mg

import (
	"sort"
	"sync"
)

// EditBuffer is the latest in-memory content of a source.
//
// Version is incremented on every update and lets callers detect
// whether the buffer changed after they took a snapshot of it.
type EditBuffer struct {
	ID      string
	Src     string
	Version uint64
}

// Registry tracks the most recent content of each source, keyed by its absolute path,
// and which sources have an edit that was not yet admitted for compilation.
type Registry struct {
	mu    sync.Mutex
	bufs  map[string]*EditBuffer
	dirty map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		bufs:  map[string]*EditBuffer{},
		dirty: map[string]struct{}{},
	}
}

// Update replaces the content of id and marks it dirty.
func (r *Registry) Update(id, src string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bufs[id]
	if b == nil {
		b = &EditBuffer{ID: id}
		r.bufs[id] = b
	}
	b.Src = src
	b.Version++
	r.dirty[id] = struct{}{}
}

// Buffer returns a copy of the buffer for id
func (r *Registry) Buffer(id string) (EditBuffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b := r.bufs[id]; b != nil {
		return *b, true
	}
	return EditBuffer{}, false
}

// Dirty returns the sorted list of sources with pending edits.
func (r *Registry) Dirty() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := make([]string, 0, len(r.dirty))
	for id := range r.dirty {
		l = append(l, id)
	}
	sort.Strings(l)
	return l
}

func (r *Registry) IsDirty(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.dirty[id]
	return ok
}

// Clean clears the dirty mark of id if the buffer is still at version.
// It returns false if the buffer was updated in the meantime.
func (r *Registry) Clean(id string, version uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bufs[id]
	if b == nil || b.Version != version {
		return false
	}
	delete(r.dirty, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.bufs)
}
