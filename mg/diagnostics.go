package mg

import (
	"sort"
	"strings"
	"sync"
)

// DiagnosticLines maps a zero-based line to the messages reported for it.
type DiagnosticLines map[int][]string

func (dl DiagnosticLines) copy() DiagnosticLines {
	m := make(DiagnosticLines, len(dl))
	for ln, msgs := range dl {
		m[ln] = append([]string(nil), msgs...)
	}
	return m
}

// Lines returns the sorted list of lines that carry diagnostics
func (dl DiagnosticLines) Lines() []int {
	l := make([]int, 0, len(dl))
	for ln := range dl {
		l = append(l, ln)
	}
	sort.Ints(l)
	return l
}

// DiagnosticStore holds the current diagnostics of each source.
//
// An entry exists for a source from its first Clear or Add until Forget;
// Has reports whether one exists, even if it's empty.
type DiagnosticStore struct {
	mu sync.RWMutex
	m  map[string]DiagnosticLines
}

func NewDiagnosticStore() *DiagnosticStore {
	return &DiagnosticStore{m: map[string]DiagnosticLines{}}
}

func (ds *DiagnosticStore) Clear(id string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.m[id] = DiagnosticLines{}
}

func (ds *DiagnosticStore) Add(id string, line int, msg string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.add(id, line, msg)
}

func (ds *DiagnosticStore) add(id string, line int, msg string) {
	dl := ds.m[id]
	if dl == nil {
		dl = DiagnosticLines{}
		ds.m[id] = dl
	}
	dl[line] = append(dl[line], msg)
}

// Replace clears id and every other source named by issues, then adds issues.
// The list of cleared sources, id first, is returned.
func (ds *DiagnosticStore) Replace(id string, issues []Issue) []string {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	touched := []string{id}
	ds.m[id] = DiagnosticLines{}
	cleared := map[string]bool{id: true}
	for _, isu := range issues {
		if !cleared[isu.Path] {
			cleared[isu.Path] = true
			touched = append(touched, isu.Path)
			ds.m[isu.Path] = DiagnosticLines{}
		}
		ds.add(isu.Path, isu.Row, isu.Message)
	}
	return touched
}

// Restore sets the diagnostics of id to a copy of dl
func (ds *DiagnosticStore) Restore(id string, dl DiagnosticLines) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.m[id] = dl.copy()
}

// Forget removes the entry for id
func (ds *DiagnosticStore) Forget(id string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	delete(ds.m, id)
}

func (ds *DiagnosticStore) Has(id string) bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	_, ok := ds.m[id]
	return ok
}

// Count returns the number of lines of id that carry diagnostics
func (ds *DiagnosticStore) Count(id string) int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return len(ds.m[id])
}

// Snapshot returns a copy of the diagnostics of id
func (ds *DiagnosticStore) Snapshot(id string) DiagnosticLines {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return ds.m[id].copy()
}

func (ds *DiagnosticStore) Lines(id string) []int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return ds.m[id].Lines()
}

// NextAfter returns the smallest line of id greater than line
func (ds *DiagnosticStore) NextAfter(id string, line int) (int, bool) {
	for _, ln := range ds.Lines(id) {
		if ln > line {
			return ln, true
		}
	}
	return 0, false
}

// PrevBefore returns the largest line of id less than line
func (ds *DiagnosticStore) PrevBefore(id string, line int) (int, bool) {
	l := ds.Lines(id)
	for i := len(l) - 1; i >= 0; i-- {
		if l[i] < line {
			return l[i], true
		}
	}
	return 0, false
}

func (ds *DiagnosticStore) MessagesAt(id string, line int) []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	return append([]string(nil), ds.m[id][line]...)
}

// StatusText returns the status bar text for line of id, or an empty string
func (ds *DiagnosticStore) StatusText(id string, line int) string {
	msgs := ds.MessagesAt(id, line)
	if len(msgs) == 0 {
		return ""
	}
	return "Error: " + strings.Join(msgs, "; ")
}
