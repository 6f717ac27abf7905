package events

import "sync"

// Queue buffers events emitted during a state transaction. The transaction
// wrapper drains it to downstream emitters only after a successful commit, so
// rolled-back operations leave no trace in the audit trail or event feed.
type Queue struct {
	mu      sync.Mutex
	pending []Event
}

// NewQueue returns an empty queue.
func NewQueue() *Queue { return &Queue{} }

// Emit implements the Emitter interface.
func (q *Queue) Emit(evt Event) {
	if q == nil || evt == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, evt)
	q.mu.Unlock()
}

// Drain returns the buffered events and clears the queue.
func (q *Queue) Drain() []Event {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	return pending
}

// Reset discards any buffered events.
func (q *Queue) Reset() {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
}

// Fanout forwards each event to every target emitter.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, target := range f {
		if target != nil {
			target.Emit(evt)
		}
	}
}
