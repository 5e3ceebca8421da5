package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapter "github.com/aretw0/canopy/pkg/adapters/lifecycle"
	"github.com/aretw0/canopy/pkg/core"
)

type fakeWatcher chan core.Event

func (f fakeWatcher) Watch(context.Context) <-chan core.Event { return f }

func TestSource_ForwardsUntilStreamEnds(t *testing.T) {
	events := make(fakeWatcher, 2)
	events <- core.Event{Type: core.EventAdded, Entity: core.EntityNode, ID: "1", Remote: true}
	close(events)

	src := adapter.NewSource(events)
	require.NoError(t, src.Start(context.Background()))

	select {
	case e := <-src.Events():
		assert.Equal(t, "ADDED node 1 (remote)", e.String())
	case <-time.After(time.Second):
		t.Fatal("no event forwarded")
	}

	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events not closed")
	}
}

func TestSource_StopsWithContext(t *testing.T) {
	src := adapter.NewSource(make(fakeWatcher))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx))
	cancel()

	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events not closed")
	}
}
