// Package crdt implements the Shared Graph Document: a set of named
// last-writer-wins maps that converge under any delivery order.
//
// Every write is stamped with a Lamport clock and the writing replica's id.
// A replica keeps, per key, the entry with the greatest stamp; deletes are
// tombstones so that a late, older write cannot resurrect a key. Applying
// the same update twice is a no-op, so replicas that have seen the same set
// of updates hold identical maps regardless of arrival order.
package crdt

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/canopy/pkg/core"
)

// Change describes the effect of an applied op on a map.
type Change struct {
	Type   core.EventType
	Key    string
	Value  json.RawMessage
	Remote bool
}

// Document is a replica of the shared state.
type Document struct {
	replica string
	logger  *slog.Logger

	mu       sync.Mutex
	clock    uint64
	maps     map[string]map[string]Entry
	subs     map[string][]*Subscription
	outbound []*serial[Update]

	lastRemote *time.Time
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger for the document.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Document) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates an empty replica identified by replica.
func New(replica string, opts ...Option) *Document {
	d := &Document{
		replica: replica,
		logger:  slog.New(slog.DiscardHandler),
		maps:    make(map[string]map[string]Entry),
		subs:    make(map[string][]*Subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Replica returns the id stamped on local writes.
func (d *Document) Replica() string { return d.replica }

// Map returns a handle on the named map. Maps exist implicitly.
func (d *Document) Map(name string) *Map {
	return &Map{doc: d, name: name}
}

// Transact runs fn under the document lock and commits every write it made
// as one Update. fn must not call other Document methods; use tx for reads.
// The committed update is handed to OnUpdate listeners and returned.
func (d *Document) Transact(fn func(tx *Tx)) Update {
	d.mu.Lock()
	tx := &Tx{doc: d}
	fn(tx)
	u := Update{Origin: d.replica, Ops: tx.ops}
	touched := d.enqueueLocked(tx.changes)
	var out []*serial[Update]
	if !u.Empty() {
		out = d.outbound
		for _, o := range out {
			o.push(u)
		}
	}
	d.mu.Unlock()

	for _, s := range touched {
		s.queue.drain()
	}
	for _, o := range out {
		o.drain()
	}
	return u
}

// ApplyUpdate merges an update received from another replica and returns
// the number of ops that changed local state.
func (d *Document) ApplyUpdate(u Update) int {
	d.mu.Lock()
	changes := make(map[string][]Change)
	applied := 0
	for _, op := range u.Ops {
		if op.Stamp.Clock > d.clock {
			d.clock = op.Stamp.Clock
		}
		ch, ok := d.applyLocked(op, true)
		if !ok {
			continue
		}
		applied++
		if ch != nil {
			changes[op.Map] = append(changes[op.Map], *ch)
		}
	}
	if applied > 0 {
		now := time.Now()
		d.lastRemote = &now
	}
	touched := d.enqueueLocked(changes)
	d.mu.Unlock()

	for _, s := range touched {
		s.queue.drain()
	}
	if applied > 0 {
		d.logger.Debug("applied remote update", "origin", u.Origin, "ops", len(u.Ops), "applied", applied)
	}
	return applied
}

// Snapshot returns the full state, tombstones included, as one update.
// Applying it to any replica brings that replica up to date.
func (d *Document) Snapshot() Update {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.maps))
	for name := range d.maps {
		names = append(names, name)
	}
	sort.Strings(names)

	u := Update{Origin: d.replica}
	for _, name := range names {
		for _, e := range sortedEntries(d.maps[name], true) {
			u.Ops = append(u.Ops, Op{Map: name, Entry: e})
		}
	}
	return u
}

// Observe is the two-phase subscription: it returns the live entries of the
// named map (the hydration snapshot) and registers fn for every change
// committed afterwards. No change is both in the snapshot and delivered.
//
// Deliveries to one subscriber are serial and in commit order. fn may write
// to the document; the resulting changes are queued behind the current one.
func (d *Document) Observe(name string, fn func([]Change)) ([]Entry, *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub := &Subscription{doc: d, name: name, queue: newSerial(fn)}
	d.subs[name] = append(d.subs[name], sub)
	return sortedEntries(d.maps[name], false), sub
}

// OnUpdate registers fn for every locally committed update, typically to
// publish it on a transport. The returned func removes the listener.
func (d *Document) OnUpdate(fn func(Update)) (cancel func()) {
	q := newSerial(fn)
	d.mu.Lock()
	d.outbound = append(d.outbound, q)
	d.mu.Unlock()

	return func() {
		q.close()
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, o := range d.outbound {
			if o == q {
				d.outbound = append(d.outbound[:i], d.outbound[i+1:]...)
				return
			}
		}
	}
}

// applyLocked stores op if its stamp wins. ok reports whether state changed;
// the change is nil when the op replaced a tombstone with a tombstone.
func (d *Document) applyLocked(op Op, remote bool) (*Change, bool) {
	m, exists := d.maps[op.Map]
	if !exists {
		m = make(map[string]Entry)
		d.maps[op.Map] = m
	}

	prev, had := m[op.Key]
	if had && !prev.Stamp.Less(op.Stamp) {
		return nil, false
	}
	m[op.Key] = op.Entry

	wasLive := had && !prev.Deleted
	switch {
	case op.Deleted && wasLive:
		return &Change{Type: core.EventDeleted, Key: op.Key, Remote: remote}, true
	case op.Deleted:
		return nil, true
	case wasLive:
		return &Change{Type: core.EventUpdated, Key: op.Key, Value: op.Value, Remote: remote}, true
	default:
		return &Change{Type: core.EventAdded, Key: op.Key, Value: op.Value, Remote: remote}, true
	}
}

// enqueueLocked pushes change batches to the subscribers of each map and
// returns the subscriptions that need draining once the lock is released.
func (d *Document) enqueueLocked(changes map[string][]Change) []*Subscription {
	var touched []*Subscription
	for name, batch := range changes {
		if len(batch) == 0 {
			continue
		}
		for _, s := range d.subs[name] {
			s.queue.push(batch)
			touched = append(touched, s)
		}
	}
	return touched
}

func (d *Document) removeSub(sub *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subs[sub.name]
	for i, s := range subs {
		if s == sub {
			d.subs[sub.name] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func sortedEntries(m map[string]Entry, tombstones bool) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		if e.Deleted && !tombstones {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Subscription is a registered Observe callback.
type Subscription struct {
	doc   *Document
	name  string
	queue *serial[[]Change]
	once  sync.Once
}

// Unsubscribe stops delivery. Batches not yet delivered are dropped.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.queue.close()
		s.doc.removeSub(s)
	})
}

// Tx is the write handle passed to Transact.
type Tx struct {
	doc     *Document
	ops     []Op
	changes map[string][]Change
}

// Set writes value under key in the named map.
func (tx *Tx) Set(mapName, key string, value json.RawMessage) {
	tx.write(Op{Map: mapName, Entry: Entry{Key: key, Value: value}})
}

// Delete tombstones key in the named map. Deleting an absent key writes
// nothing.
func (tx *Tx) Delete(mapName, key string) bool {
	if _, ok := tx.Get(mapName, key); !ok {
		return false
	}
	tx.write(Op{Map: mapName, Entry: Entry{Key: key, Deleted: true}})
	return true
}

// Get reads key, observing writes made earlier in the same transaction.
func (tx *Tx) Get(mapName, key string) (json.RawMessage, bool) {
	e, ok := tx.doc.maps[mapName][key]
	if !ok || e.Deleted {
		return nil, false
	}
	return e.Value, true
}

// Entries lists the live entries of a map, sorted by key.
func (tx *Tx) Entries(mapName string) []Entry {
	return sortedEntries(tx.doc.maps[mapName], false)
}

func (tx *Tx) write(op Op) {
	d := tx.doc
	d.clock++
	op.Stamp = Stamp{Clock: d.clock, Replica: d.replica}
	ch, _ := d.applyLocked(op, false)
	tx.ops = append(tx.ops, op)
	if ch == nil {
		return
	}
	if tx.changes == nil {
		tx.changes = make(map[string][]Change)
	}
	tx.changes[op.Map] = append(tx.changes[op.Map], *ch)
}
