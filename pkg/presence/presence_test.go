package presence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/presence"
)

// wire connects channels directly, delivering every message to every other
// channel, the way a room broadcast does.
type wire struct {
	channels []*presence.Channel
}

func (w *wire) sender(from int) presence.Sender {
	return func(msg core.Message) error {
		for i, c := range w.channels {
			if i != from {
				c.Handle(msg)
			}
		}
		return nil
	}
}

func TestChannel_BroadcastsCursorAndFiltersSelf(t *testing.T) {
	w := &wire{}
	alice := presence.New("alice", "Alice", nil, nil)
	bob := presence.New("bob", "Bob", nil, nil)
	w.channels = []*presence.Channel{alice, bob}
	alice.SetSender(w.sender(0))
	bob.SetSender(w.sender(1))

	require.NoError(t, alice.SetCursor(core.XY{X: 10, Y: 20}))

	cursors := bob.Cursors()
	require.Len(t, cursors, 1)
	assert.Equal(t, "alice", cursors[0].ClientID)
	assert.Equal(t, &core.XY{X: 10, Y: 20}, cursors[0].Cursor)
	assert.Equal(t, presence.ColorFor("alice"), cursors[0].Color)

	// Alice never sees herself.
	assert.Empty(t, alice.Peers())

	// An echo of her own record is ignored too.
	alice.Handle(core.Message{Kind: core.MessageAwareness, From: "relay", Payload: []byte(`{"clientId":"alice","color":"#000"}`)})
	assert.Empty(t, alice.Peers())
}

func TestChannel_HelloIsAnsweredAndLeaveRemoves(t *testing.T) {
	w := &wire{}
	alice := presence.New("alice", "", nil, nil)
	bob := presence.New("bob", "", nil, nil)
	w.channels = []*presence.Channel{alice, bob}
	alice.SetSender(w.sender(0))

	require.NoError(t, alice.SetHolding("n1"))

	// Bob joins late: his hello makes Alice re-announce.
	bob.SetSender(w.sender(1))
	require.NoError(t, bob.Announce())

	holder, ok := bob.HeldBy("n1")
	require.True(t, ok)
	assert.Equal(t, "alice", holder)
	assert.Len(t, alice.Peers(), 1)

	var changes int
	cancel := bob.OnChange(func([]presence.State) { changes++ })
	defer cancel()

	bob.Handle(core.Message{Kind: core.MessageLeave, From: "alice"})
	assert.Empty(t, bob.Peers())
	assert.Equal(t, 1, changes)

	// Unknown leaves do not notify.
	bob.Handle(core.Message{Kind: core.MessageLeave, From: "ghost"})
	assert.Equal(t, 1, changes)
}

func TestChannel_ClearCursorAndClose(t *testing.T) {
	w := &wire{}
	alice := presence.New("alice", "", nil, nil)
	bob := presence.New("bob", "", nil, nil)
	w.channels = []*presence.Channel{alice, bob}
	alice.SetSender(w.sender(0))

	require.NoError(t, alice.SetCursor(core.XY{X: 1, Y: 1}))
	require.Len(t, bob.Cursors(), 1)
	require.NoError(t, alice.ClearCursor())
	assert.Empty(t, bob.Cursors())
	assert.Len(t, bob.Peers(), 1)

	alice.Close()
	assert.ErrorIs(t, alice.SetCursor(core.XY{}), core.ErrClosed)

	bob.Close()
	bob.Handle(core.Message{Kind: core.MessageAwareness, From: "carol", Payload: []byte(`{"clientId":"carol"}`)})
	assert.Empty(t, bob.Peers())
}

func TestChannel_NotConnected(t *testing.T) {
	c := presence.New("solo", "", nil, nil)
	assert.ErrorIs(t, c.SetCursor(core.XY{}), core.ErrNotConnected)
	assert.Equal(t, presence.ColorFor("solo"), c.Local().Color)
}
