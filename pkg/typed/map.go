// Package typed provides type-safe access to the maps of a crdt.Document.
// Records are stored as JSON; the typed layer converts on every read and
// write so that callers only ever see domain structs.
package typed

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/crdt"
)

// Map wraps one named document map holding records of type T.
type Map[T any] struct {
	doc  *crdt.Document
	name string
}

// NewMap creates a typed view over the named map of doc.
func NewMap[T any](doc *crdt.Document, name string) *Map[T] {
	return &Map[T]{doc: doc, name: name}
}

// Name returns the underlying map name.
func (m *Map[T]) Name() string { return m.name }

// Get reads and decodes the record stored under id.
func (m *Map[T]) Get(id string) (T, error) {
	var zero T
	raw, ok := m.doc.Map(m.name).Get(id)
	if !ok {
		return zero, fmt.Errorf("%s %s: %w", m.name, id, core.ErrNotFound)
	}
	return decode[T](raw)
}

// Put encodes v and stages it under id in tx.
func (m *Map[T]) Put(tx *crdt.Tx, id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", m.name, id, err)
	}
	tx.Set(m.name, id, data)
	return nil
}

// Remove stages the deletion of id in tx and reports whether it was live.
func (m *Map[T]) Remove(tx *crdt.Tx, id string) bool {
	return tx.Delete(m.name, id)
}

// Lookup reads id inside tx, observing earlier writes of the transaction.
func (m *Map[T]) Lookup(tx *crdt.Tx, id string) (T, bool) {
	var zero T
	raw, ok := tx.Get(m.name, id)
	if !ok {
		return zero, false
	}
	v, err := decode[T](raw)
	if err != nil {
		return zero, false
	}
	return v, true
}

// Scan decodes every live record inside tx. Undecodable records are skipped.
func (m *Map[T]) Scan(tx *crdt.Tx) []T {
	out := make([]T, 0)
	for _, e := range tx.Entries(m.name) {
		v, err := decode[T](e.Value)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Decode converts an observed value into T.
func (m *Map[T]) Decode(raw json.RawMessage) (T, error) {
	return decode[T](raw)
}

// DecodeEntries converts a hydration snapshot into records. Entries that do
// not decode are left out and reported to skip when it is not nil.
func (m *Map[T]) DecodeEntries(entries []crdt.Entry, skip func(key string, err error)) []T {
	result := make([]T, 0, len(entries))
	for _, e := range entries {
		v, err := decode[T](e.Value)
		if err != nil {
			if skip != nil {
				skip(e.Key, err)
			}
			continue
		}
		result = append(result, v)
	}
	return result
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("unmarshal to target type failed: %w", err)
	}
	return v, nil
}
