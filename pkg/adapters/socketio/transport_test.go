package socketio_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/adapters/socketio"
	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_SendBeforeConnect(t *testing.T) {
	tr := socketio.New("http://127.0.0.1:1")
	defer tr.Close()
	assert.ErrorIs(t, tr.Send(core.Message{Kind: core.MessageHello}), core.ErrNotConnected)
}

func TestTransport_ClosedRejectsConnect(t *testing.T) {
	tr := socketio.New("http://127.0.0.1:1")
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Connect(context.Background(), "room", "a"), core.ErrClosed)
}

func TestTransport_BadURL(t *testing.T) {
	tr := socketio.New("://nope")
	defer tr.Close()
	assert.Error(t, tr.Connect(context.Background(), "room", "a"))
}

func TestTransport_RelayRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a relay server")
	}
	srv := httptest.NewServer(relay.NewServer(nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := socketio.New(srv.URL, socketio.WithConnectTimeout(5*time.Second))
	b := socketio.New(srv.URL, socketio.WithConnectTimeout(5*time.Second))
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Connect(ctx, "room", "a"))
	require.NoError(t, b.Connect(ctx, "room", "b"))

	waitFor := func(tr *socketio.Transport, kind core.MessageKind) core.Message {
		for {
			select {
			case msg := <-tr.Messages():
				if msg.Kind == kind {
					return msg
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %s", kind)
			}
		}
	}
	waitFor(a, core.MessageConnected)
	waitFor(b, core.MessageConnected)

	// The join is processed asynchronously; keep saying hello until b hears it.
	got := make(chan core.Message, 1)
	go func() {
		for {
			select {
			case msg := <-b.Messages():
				if msg.Kind == core.MessageHello {
					got <- msg
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, a.Send(core.Message{Kind: core.MessageHello}))
		select {
		case msg := <-got:
			assert.Equal(t, "a", msg.From)
			return
		case <-tick.C:
		case <-ctx.Done():
			t.Fatal("hello never relayed")
		}
	}
}
