package crdt

import (
	"time"

	"github.com/aretw0/introspection"
)

// DocumentState exposes internal state for observability.
type DocumentState struct {
	Replica     string         `json:"replica"`
	Clock       uint64         `json:"clock"`
	Live        map[string]int `json:"live"`
	Tombstones  map[string]int `json:"tombstones"`
	Subscribers int            `json:"subscribers"`
	LastRemote  *time.Time     `json:"last_remote,omitempty"`
}

// State implements introspection.Introspectable.
func (d *Document) State() any {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := DocumentState{
		Replica:    d.replica,
		Clock:      d.clock,
		Live:       make(map[string]int, len(d.maps)),
		Tombstones: make(map[string]int, len(d.maps)),
		LastRemote: d.lastRemote,
	}
	for name, m := range d.maps {
		for _, e := range m {
			if e.Deleted {
				st.Tombstones[name]++
			} else {
				st.Live[name]++
			}
		}
	}
	for _, subs := range d.subs {
		st.Subscribers += len(subs)
	}
	return st
}

// ComponentType implements introspection.Component.
func (d *Document) ComponentType() string {
	return "document"
}

var _ introspection.Introspectable = (*Document)(nil)
var _ introspection.Component = (*Document)(nil)
