package state

import "sync"

// KV is the minimal key/value surface the settlement store is built on.
type KV interface {
	Get(key []byte) ([]byte, bool)
	Put(key, value []byte)
	Delete(key []byte)
}

type journalEntry struct {
	key     string
	prev    []byte
	existed bool
}

// MemoryKV is an in-memory key/value store with an undo journal. Every write
// records the previous value so a failed operation can be rolled back to the
// snapshot taken at its start, giving external calls all-or-nothing semantics.
// Reads and writes are individually synchronized, so query handlers may read
// concurrently with an in-flight transaction.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string][]byte
	journal []journalEntry
}

// NewMemoryKV returns an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemoryKV) Get(key []byte) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[string(key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// Put stores the value, journalling the previous entry.
func (m *MemoryKV) Put(key, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(key)
	prev, existed := m.entries[k]
	m.journal = append(m.journal, journalEntry{key: k, prev: prev, existed: existed})
	m.entries[k] = append([]byte(nil), value...)
}

// Delete removes the key, journalling the previous entry.
func (m *MemoryKV) Delete(key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := string(key)
	prev, existed := m.entries[k]
	if !existed {
		return
	}
	m.journal = append(m.journal, journalEntry{key: k, prev: prev, existed: true})
	delete(m.entries, k)
}

// Snapshot marks the current journal position.
func (m *MemoryKV) Snapshot() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.journal)
}

// RevertTo undoes every write recorded after the supplied snapshot mark.
func (m *MemoryKV) RevertTo(mark int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mark < 0 {
		mark = 0
	}
	for i := len(m.journal) - 1; i >= mark; i-- {
		entry := m.journal[i]
		if entry.existed {
			m.entries[entry.key] = entry.prev
		} else {
			delete(m.entries, entry.key)
		}
	}
	m.journal = m.journal[:mark]
}

// DiscardJournal drops accumulated undo records once an operation has
// committed.
func (m *MemoryKV) DiscardJournal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = m.journal[:0]
}

// Each invokes fn for every stored pair until fn returns false. Iteration
// order is unspecified. fn must not call back into the store.
func (m *MemoryKV) Each(fn func(key, value []byte) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.entries {
		if !fn([]byte(k), append([]byte(nil), v...)) {
			return
		}
	}
}

// Len reports the number of stored keys.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
