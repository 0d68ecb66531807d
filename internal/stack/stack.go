// Package stack tracks running and recently completed jobs for inspection.
//
// The stack holds summaries, not live records: the launcher publishes a
// summary at spawn time and each monitor publishes the terminal one, so
// readers never race the goroutine that owns the job itself.
package stack

import (
	"sync"
	"time"

	"github.com/occidens/org-async/internal/job"
)

// DefaultMaxEntries caps retained terminal summaries.
const DefaultMaxEntries = 256

// Summary is a point-in-time view of one job.
type Summary struct {
	ID          string     `json:"id"`
	Origin      string     `json:"origin"`
	Status      job.Status `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Stack is a mutex-guarded registry of job summaries in insertion order.
type Stack struct {
	mu         sync.Mutex
	entries    map[string]*Summary
	order      []string
	maxEntries int
}

// New creates an empty stack.
func New() *Stack {
	return &Stack{
		entries:    make(map[string]*Summary),
		maxEntries: DefaultMaxEntries,
	}
}

// Put inserts or replaces the summary for s.ID, then evicts the oldest
// terminal entries beyond the retention cap.
func (st *Stack) Put(s Summary) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.entries[s.ID]; !ok {
		st.order = append(st.order, s.ID)
	}
	cp := s
	st.entries[s.ID] = &cp

	st.evictLocked()
}

// Get returns the summary for id.
func (st *Stack) Get(id string) (Summary, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.entries[id]
	if !ok {
		return Summary{}, false
	}
	return *s, true
}

// Remove deletes the summary for id.
func (st *Stack) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.entries[id]; !ok {
		return
	}
	delete(st.entries, id)
	for i, oid := range st.order {
		if oid == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
}

// All returns every summary in insertion order.
func (st *Stack) All() []Summary {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]Summary, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *st.entries[id])
	}
	return out
}

// Running returns summaries of jobs that have not reached a terminal status.
func (st *Stack) Running() []Summary {
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []Summary
	for _, id := range st.order {
		if s := st.entries[id]; !s.Status.Terminal() {
			out = append(out, *s)
		}
	}
	return out
}

// evictLocked drops the oldest terminal entries while over the cap. Running
// jobs are never evicted.
func (st *Stack) evictLocked() {
	for len(st.order) > st.maxEntries {
		evicted := false
		for i, id := range st.order {
			if st.entries[id].Status.Terminal() {
				delete(st.entries, id)
				st.order = append(st.order[:i], st.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}
