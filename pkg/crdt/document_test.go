package crdt_test

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/crdt"
)

func raw(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// collect records every update a replica commits locally.
func collect(d *crdt.Document) *[]crdt.Update {
	var out []crdt.Update
	d.OnUpdate(func(u crdt.Update) { out = append(out, u) })
	return &out
}

func TestDocument_ConvergesUnderAnyOrder(t *testing.T) {
	a, b, c := crdt.New("a"), crdt.New("b"), crdt.New("c")
	ua, ub, uc := collect(a), collect(b), collect(c)

	// Concurrent writes: disjoint keys, same key, and a delete racing a set.
	a.Map("nodes").Set("1", raw("a1"))
	a.Map("nodes").Set("shared", raw("from-a"))
	b.Map("nodes").Set("2", raw("b2"))
	b.Map("nodes").Set("shared", raw("from-b"))
	c.Map("nodes").Set("1", raw("c1"))
	c.Map("edges").Set("e1-2", raw("edge"))
	a.Map("nodes").Delete("1")

	var all []crdt.Update
	all = append(all, *ua...)
	all = append(all, *ub...)
	all = append(all, *uc...)

	rng := rand.New(rand.NewSource(7))
	var snapshots []crdt.Update
	for i := 0; i < 5; i++ {
		replica := crdt.New("observer")
		order := rng.Perm(len(all))
		for _, idx := range order {
			replica.ApplyUpdate(all[idx])
		}
		// Duplicate delivery must not matter either.
		replica.ApplyUpdate(all[order[0]])
		s := replica.Snapshot()
		s.Origin = ""
		snapshots = append(snapshots, s)
	}
	for _, s := range snapshots[1:] {
		assert.Equal(t, snapshots[0], s)
	}

	// Originating replicas converge to the same maps once they exchange.
	for _, u := range all {
		a.ApplyUpdate(u)
		b.ApplyUpdate(u)
		c.ApplyUpdate(u)
	}
	sa, sb, sc := a.Snapshot(), b.Snapshot(), c.Snapshot()
	sa.Origin, sb.Origin, sc.Origin = "", "", ""
	assert.Equal(t, sa, sb)
	assert.Equal(t, sb, sc)
	assert.Equal(t, snapshots[0], sa)
}

func TestDocument_SameKeyResolvesDeterministically(t *testing.T) {
	a, b := crdt.New("a"), crdt.New("b")
	ua, ub := collect(a), collect(b)

	a.Map("nodes").Set("k", raw("A"))
	b.Map("nodes").Set("k", raw("B"))

	a.ApplyUpdate((*ub)[0])
	b.ApplyUpdate((*ua)[0])

	va, _ := a.Map("nodes").Get("k")
	vb, _ := b.Map("nodes").Get("k")
	assert.Equal(t, va, vb)
	// Equal clocks: the greater replica id wins.
	assert.JSONEq(t, `"B"`, string(va))
}

func TestDocument_TombstonePreventsResurrection(t *testing.T) {
	a := crdt.New("a")
	ua := collect(a)
	a.Map("nodes").Set("k", raw("v"))
	a.Map("nodes").Delete("k")

	late := crdt.New("late")
	// Deliver the delete before the set.
	late.ApplyUpdate((*ua)[1])
	late.ApplyUpdate((*ua)[0])

	_, ok := late.Map("nodes").Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, late.Map("nodes").Len())
}

func TestDocument_DeleteAbsentKeyWritesNothing(t *testing.T) {
	a := crdt.New("a")
	ua := collect(a)
	assert.False(t, a.Map("nodes").Delete("missing"))
	assert.Empty(t, *ua)
}

func TestDocument_ObserveSeparatesHydrationFromDeltas(t *testing.T) {
	d := crdt.New("local")
	remote := crdt.New("remote")
	ur := collect(remote)
	for _, k := range []string{"1", "2", "3", "4", "5"} {
		remote.Map("nodes").Set(k, raw(k))
	}
	for _, u := range *ur {
		d.ApplyUpdate(u)
	}

	var deltas []crdt.Change
	snapshot, sub := d.Observe("nodes", func(batch []crdt.Change) {
		deltas = append(deltas, batch...)
	})
	defer sub.Unsubscribe()

	require.Len(t, snapshot, 5)
	assert.Empty(t, deltas)

	remote.Map("nodes").Set("6", raw("6"))
	d.ApplyUpdate((*ur)[len(*ur)-1])

	require.Len(t, deltas, 1)
	assert.Equal(t, core.EventAdded, deltas[0].Type)
	assert.Equal(t, "6", deltas[0].Key)
	assert.True(t, deltas[0].Remote)

	// Replaying the same update is not a new creation.
	d.ApplyUpdate((*ur)[len(*ur)-1])
	assert.Len(t, deltas, 1)
}

func TestDocument_ChangeTypes(t *testing.T) {
	d := crdt.New("a")
	var got []core.EventType
	_, sub := d.Observe("nodes", func(batch []crdt.Change) {
		for _, c := range batch {
			got = append(got, c.Type)
		}
	})
	defer sub.Unsubscribe()

	m := d.Map("nodes")
	m.Set("k", raw("1"))
	m.Set("k", raw("2"))
	m.Delete("k")
	m.Set("k", raw("3"))

	assert.Equal(t, []core.EventType{core.EventAdded, core.EventUpdated, core.EventDeleted, core.EventAdded}, got)
}

func TestDocument_SubscriberMayWriteFromCallback(t *testing.T) {
	d := crdt.New("a")
	var seen []string
	_, sub := d.Observe("nodes", func(batch []crdt.Change) {
		for _, c := range batch {
			seen = append(seen, c.Key)
			if c.Key == "first" {
				d.Map("nodes").Set("second", raw("x"))
			}
		}
	})
	defer sub.Unsubscribe()

	d.Map("nodes").Set("first", raw("x"))
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestDocument_UnsubscribeStopsDelivery(t *testing.T) {
	d := crdt.New("a")
	calls := 0
	_, sub := d.Observe("nodes", func([]crdt.Change) { calls++ })
	d.Map("nodes").Set("k", raw("1"))
	sub.Unsubscribe()
	sub.Unsubscribe()
	d.Map("nodes").Set("k", raw("2"))
	assert.Equal(t, 1, calls)
}

func TestDocument_TransactGroupsOps(t *testing.T) {
	d := crdt.New("a")
	ud := collect(d)
	u := d.Transact(func(tx *crdt.Tx) {
		tx.Set("nodes", "1", raw("n"))
		tx.Set("edges", "e1-2", raw("e"))
		v, ok := tx.Get("nodes", "1")
		require.True(t, ok)
		assert.JSONEq(t, `"n"`, string(v))
	})
	require.Len(t, *ud, 1)
	assert.Len(t, u.Ops, 2)

	data, err := crdt.Encode(u)
	require.NoError(t, err)
	decoded, err := crdt.DecodeUpdate(data)
	require.NoError(t, err)

	other := crdt.New("b")
	assert.Equal(t, 2, other.ApplyUpdate(decoded))
	assert.Equal(t, 1, other.Map("edges").Len())
}

func TestDocument_State(t *testing.T) {
	d := crdt.New("a")
	d.Map("nodes").Set("1", raw("x"))
	d.Map("nodes").Set("2", raw("x"))
	d.Map("nodes").Delete("2")

	st, ok := d.State().(crdt.DocumentState)
	require.True(t, ok)
	assert.Equal(t, "a", st.Replica)
	assert.Equal(t, 1, st.Live["nodes"])
	assert.Equal(t, 1, st.Tombstones["nodes"])
	assert.Equal(t, uint64(3), st.Clock)
	assert.Equal(t, "document", d.ComponentType())
}
