package crdt

import "encoding/json"

// Map is a handle on one named map of a Document.
type Map struct {
	doc  *Document
	name string
}

// Name returns the map name.
func (m *Map) Name() string { return m.name }

// Get returns the live value stored under key.
func (m *Map) Get(key string) (json.RawMessage, bool) {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	e, ok := m.doc.maps[m.name][key]
	if !ok || e.Deleted {
		return nil, false
	}
	return e.Value, true
}

// All returns the live entries sorted by key.
func (m *Map) All() []Entry {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	return sortedEntries(m.doc.maps[m.name], false)
}

// Len returns the number of live keys.
func (m *Map) Len() int {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	n := 0
	for _, e := range m.doc.maps[m.name] {
		if !e.Deleted {
			n++
		}
	}
	return n
}

// Set writes a single value in its own transaction.
func (m *Map) Set(key string, value json.RawMessage) {
	m.doc.Transact(func(tx *Tx) { tx.Set(m.name, key, value) })
}

// Delete tombstones key in its own transaction and reports whether the key
// was live.
func (m *Map) Delete(key string) bool {
	var deleted bool
	m.doc.Transact(func(tx *Tx) { deleted = tx.Delete(m.name, key) })
	return deleted
}
