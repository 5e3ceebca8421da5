package typed_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/crdt"
	"github.com/aretw0/canopy/pkg/typed"
)

func TestMap_PutGetAll(t *testing.T) {
	doc := crdt.New("a")
	nodes := typed.NewMap[core.Node](doc, "nodes")

	note := core.NewNote("1", core.XY{X: 10, Y: 20}, core.NoteData{Title: "A", PageID: 1, Emoji: "📄"})
	group := core.NewGroup("g", core.XY{}, core.Dimensions{Width: 200, Height: 200}, "Group")
	group.Selected = true

	doc.Transact(func(tx *crdt.Tx) {
		require.NoError(t, nodes.Put(tx, note.ID, note))
		require.NoError(t, nodes.Put(tx, group.ID, group))

		got, ok := nodes.Lookup(tx, "1")
		require.True(t, ok)
		assert.Equal(t, "A", got.Note.Title)
		assert.Len(t, nodes.Scan(tx), 2)
	})

	got, err := nodes.Get("g")
	require.NoError(t, err)
	assert.Equal(t, core.KindGroup, got.Kind())
	assert.False(t, got.Selected, "selection is never replicated")

	all := nodes.DecodeEntries(doc.Map("nodes").All(), nil)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)

	_, err = nodes.Get("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMap_Remove(t *testing.T) {
	doc := crdt.New("a")
	edges := typed.NewMap[core.Edge](doc, "edges")
	doc.Transact(func(tx *crdt.Tx) {
		require.NoError(t, edges.Put(tx, "e1-2", core.Edge{ID: "e1-2", Source: "1", Target: "2"}))
	})

	var removed, again bool
	doc.Transact(func(tx *crdt.Tx) {
		removed = edges.Remove(tx, "e1-2")
		again = edges.Remove(tx, "e1-2")
	})
	assert.True(t, removed)
	assert.False(t, again)

	assert.Empty(t, edges.DecodeEntries(doc.Map("edges").All(), nil))
}

func TestMap_DecodeEntriesSkipsBadRecords(t *testing.T) {
	doc := crdt.New("a")
	nodes := typed.NewMap[core.Node](doc, "nodes")

	entries := []crdt.Entry{
		{Key: "1", Value: json.RawMessage(`{"id":"1","note":{"title":"A"}}`)},
		{Key: "2", Value: json.RawMessage(`[1,2`)},
		{Key: "3", Value: json.RawMessage(`{"id":"3"}`)},
	}

	var skipped []string
	got := nodes.DecodeEntries(entries, func(key string, err error) {
		assert.Error(t, err)
		skipped = append(skipped, key)
	})
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
	assert.Equal(t, []string{"2"}, skipped)

	assert.Len(t, nodes.DecodeEntries(entries, nil), 2)
}
