package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/core"
)

func TestEdgeID_IsOrderIndependent(t *testing.T) {
	assert.Equal(t, core.EdgeID("1", "2"), core.EdgeID("2", "1"))
	assert.Equal(t, "e1-2", core.EdgeID("2", "1"))
	assert.NotEqual(t, core.EdgeID("1", "2"), core.EdgeID("1", "3"))
}

func TestNode_Kind(t *testing.T) {
	note := core.NewNote("1", core.XY{}, core.NoteData{Title: "A", PageID: 1})
	group := core.NewGroup("g", core.XY{}, core.Dimensions{Width: 10, Height: 10}, "")

	assert.Equal(t, core.KindNote, note.Kind())
	assert.Equal(t, core.KindGroup, group.Kind())
	assert.True(t, group.IsGroup())

	malformed := core.Node{ID: "x"}
	assert.Equal(t, core.Kind(""), malformed.Kind())
	require.ErrorIs(t, malformed.Validate(), core.ErrInvalidNode)

	self := note
	self.ParentID = "1"
	require.ErrorIs(t, self.Validate(), core.ErrInvalidNode)
	require.NoError(t, note.Validate())
}

func TestNode_CloneIsDeep(t *testing.T) {
	note := core.NewNote("1", core.XY{}, core.NoteData{Title: "A"})
	c := note.Clone()
	c.Note.Title = "B"
	assert.Equal(t, "A", note.Note.Title)
}

func TestPage_NodeID(t *testing.T) {
	assert.Equal(t, "42", core.Page{ID: 42}.NodeID())
	assert.Equal(t, "flow-room-7", core.RoomName("7"))
}

func TestEvent_String(t *testing.T) {
	e := core.Event{Type: core.EventAdded, Entity: core.EntityNode, ID: "3", Remote: true}
	assert.Equal(t, "ADDED node 3 (remote)", e.String())
}
