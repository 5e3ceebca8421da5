package relay_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/crdt"
	"github.com/aretw0/canopy/pkg/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, replica, key, value string) []byte {
	t.Helper()
	doc := crdt.New(replica)
	u := doc.Transact(func(tx *crdt.Tx) {
		tx.Set("nodes", key, json.RawMessage(value))
	})
	b, err := crdt.Encode(u)
	require.NoError(t, err)
	return b
}

func TestRoom_SyncReplyCarriesMergedState(t *testing.T) {
	r := relay.NewRoom(core.RoomName("ws"), nil)

	route, err := r.Handle(core.Message{Kind: core.MessageUpdate, From: "a", Payload: update(t, "a", "1", `{"id":"1"}`)})
	require.NoError(t, err)
	assert.True(t, route.Broadcast)
	assert.Nil(t, route.Reply)
	assert.Equal(t, 1, route.Merged)

	route, err = r.Handle(core.Message{Kind: core.MessageSyncRequest, From: "b"})
	require.NoError(t, err)
	assert.False(t, route.Broadcast)
	require.NotNil(t, route.Reply)
	assert.Equal(t, core.MessageSync, route.Reply.Kind)
	assert.Equal(t, "flow-room-ws", route.Reply.Room)

	late := crdt.New("b")
	u, err := crdt.DecodeUpdate(route.Reply.Payload)
	require.NoError(t, err)
	late.ApplyUpdate(u)
	_, ok := late.Map("nodes").Get("1")
	assert.True(t, ok)
}

func TestRoom_DuplicateUpdateMergesOnce(t *testing.T) {
	r := relay.NewRoom("room", nil)
	payload := update(t, "a", "1", `{"id":"1"}`)

	n, err := r.Merge(payload)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.Merge(payload)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRoom_MalformedUpdate(t *testing.T) {
	r := relay.NewRoom("room", nil)
	_, err := r.Handle(core.Message{Kind: core.MessageUpdate, Payload: []byte("{")})
	assert.Error(t, err)
}

func TestRoom_PresenceIsForwarded(t *testing.T) {
	r := relay.NewRoom("room", nil)
	for _, kind := range []core.MessageKind{core.MessageAwareness, core.MessageHello, core.MessageLeave} {
		route, err := r.Handle(core.Message{Kind: kind, From: "a"})
		require.NoError(t, err)
		assert.True(t, route.Broadcast, kind)
	}
	route, err := r.Handle(core.Message{Kind: core.MessageSync, From: "a"})
	require.NoError(t, err)
	assert.False(t, route.Broadcast)
}

func TestRoom_Members(t *testing.T) {
	r := relay.NewRoom("room", nil)
	r.Join("b", "sb")
	r.Join("a", "sa")
	assert.Equal(t, []string{"a", "b"}, r.Members())

	assert.True(t, r.Leave("a", "sa"))
	assert.False(t, r.Leave("a", "sa"))

	st := r.State().(relay.RoomState)
	assert.Equal(t, []string{"b"}, st.Members)
	assert.Equal(t, "relay-room", r.ComponentType())
}

func TestRoom_StaleConnectionDoesNotEvictRejoinedClient(t *testing.T) {
	r := relay.NewRoom("room", nil)
	r.Join("a", "old")
	r.Join("a", "new")
	assert.Equal(t, []string{"a"}, r.Members())

	// The old socket's disconnect arrives after the rejoin.
	assert.False(t, r.Leave("a", "old"))
	assert.Equal(t, []string{"a"}, r.Members())

	assert.True(t, r.Leave("a", "new"))
	assert.Empty(t, r.Members())
}

func TestRooms_GetIsLazyAndStable(t *testing.T) {
	rs := relay.NewRooms(nil)
	a := rs.Get("x")
	assert.Same(t, a, rs.Get("x"))
	rs.Get("a")
	all := rs.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name())
}

func TestWire_DecodeAcceptsSocketShapes(t *testing.T) {
	text, err := relay.EncodeMessage(core.Message{Kind: core.MessageHello, From: "a"})
	require.NoError(t, err)

	for _, arg := range []any{text, []byte(text), map[string]any{"kind": "hello", "from": "a"}} {
		msg, err := relay.DecodeMessage(arg)
		require.NoError(t, err)
		assert.Equal(t, core.MessageHello, msg.Kind)
		assert.Equal(t, "a", msg.From)
	}

	_, err = relay.DecodeJoin(map[string]any{"room": "r"})
	assert.Error(t, err)
}
