// Package presence implements the awareness channel: ephemeral per-client
// records (cursor, color, the node being dragged) broadcast over the room
// transport and never written to the shared document.
package presence

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/canopy/pkg/core"
)

// Palette is the set of cursor colors assigned to clients.
var Palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#9a6324", "#469990", "#800000",
}

// ColorFor derives a stable cursor color from a client id.
func ColorFor(clientID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

// State is the awareness record of one client. Cursor is in canvas space;
// converting to screen space is the renderer's job.
type State struct {
	ClientID string   `json:"clientId"`
	Name     string   `json:"name,omitempty"`
	Color    string   `json:"color"`
	Cursor   *core.XY `json:"cursor,omitempty"`
	Holding  string   `json:"holding,omitempty"`
}

// Sender publishes a message on the room transport.
type Sender func(core.Message) error

// Channel tracks the local awareness record and those of remote peers.
type Channel struct {
	send   Sender
	logger *slog.Logger

	mu        sync.Mutex
	self      State
	peers     map[string]State
	listeners map[int]func([]State)
	nextID    int
	closed    bool
}

// New creates the channel for clientID. send may be nil until the
// transport is connected (see SetSender).
func New(clientID, name string, send Sender, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Channel{
		send:   send,
		logger: logger,
		self: State{
			ClientID: clientID,
			Name:     name,
			Color:    ColorFor(clientID),
		},
		peers:     make(map[string]State),
		listeners: make(map[int]func([]State)),
	}
}

// SetSender replaces the publish function.
func (c *Channel) SetSender(send Sender) {
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
}

// Local returns the local record.
func (c *Channel) Local() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// SetCursor moves the local cursor and broadcasts it.
func (c *Channel) SetCursor(p core.XY) error {
	return c.updateSelf(func(s *State) { s.Cursor = &p })
}

// ClearCursor hides the local cursor (pointer left the canvas).
func (c *Channel) ClearCursor() error {
	return c.updateSelf(func(s *State) { s.Cursor = nil })
}

// SetHolding marks the node the local client is dragging; "" clears it.
func (c *Channel) SetHolding(nodeID string) error {
	return c.updateSelf(func(s *State) { s.Holding = nodeID })
}

// Announce greets the room and publishes the local record. Peers answer
// the greeting with their own records.
func (c *Channel) Announce() error {
	if err := c.publish(core.Message{Kind: core.MessageHello}); err != nil {
		return err
	}
	return c.broadcastSelf()
}

// Peers returns the remote records sorted by client id.
func (c *Channel) Peers() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peersLocked()
}

// Cursors returns the remote records that currently show a cursor.
func (c *Channel) Cursors() []State {
	var out []State
	for _, p := range c.Peers() {
		if p.Cursor != nil {
			out = append(out, p)
		}
	}
	return out
}

// HeldBy returns the client currently dragging nodeID, if any peer is.
func (c *Channel) HeldBy(nodeID string) (string, bool) {
	for _, p := range c.Peers() {
		if p.Holding == nodeID {
			return p.ClientID, true
		}
	}
	return "", false
}

// Handle processes an inbound awareness, hello or leave message.
// Other kinds are ignored.
func (c *Channel) Handle(msg core.Message) {
	c.mu.Lock()
	closed := c.closed
	self := c.self.ClientID
	c.mu.Unlock()
	if closed || msg.From == self {
		return
	}

	switch msg.Kind {
	case core.MessageAwareness:
		var st State
		if err := json.Unmarshal(msg.Payload, &st); err != nil {
			c.logger.Debug("dropping malformed awareness record", "from", msg.From, "error", err)
			return
		}
		if st.ClientID == "" {
			st.ClientID = msg.From
		}
		if st.ClientID == self {
			return
		}
		c.mu.Lock()
		c.peers[st.ClientID] = st
		c.mu.Unlock()
		c.notify()
	case core.MessageHello:
		if err := c.broadcastSelf(); err != nil {
			c.logger.Debug("failed to answer hello", "to", msg.From, "error", err)
		}
	case core.MessageLeave:
		c.mu.Lock()
		_, known := c.peers[msg.From]
		delete(c.peers, msg.From)
		c.mu.Unlock()
		if known {
			c.notify()
		}
	}
}

// OnChange registers fn for every change of the peer set. The returned func
// removes it.
func (c *Channel) OnChange(fn func([]State)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close drops every listener and peer record. Later messages are ignored.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.listeners = make(map[int]func([]State))
	c.peers = make(map[string]State)
	c.send = nil
	c.mu.Unlock()
}

func (c *Channel) updateSelf(fn func(*State)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrClosed
	}
	fn(&c.self)
	c.mu.Unlock()
	return c.broadcastSelf()
}

func (c *Channel) broadcastSelf() error {
	c.mu.Lock()
	self := c.self
	c.mu.Unlock()

	payload, err := json.Marshal(self)
	if err != nil {
		return fmt.Errorf("failed to encode awareness: %w", err)
	}
	return c.publish(core.Message{Kind: core.MessageAwareness, Payload: payload})
}

func (c *Channel) publish(msg core.Message) error {
	c.mu.Lock()
	send := c.send
	msg.From = c.self.ClientID
	c.mu.Unlock()
	if send == nil {
		return core.ErrNotConnected
	}
	return send(msg)
}

func (c *Channel) notify() {
	c.mu.Lock()
	peers := c.peersLocked()
	fns := make([]func([]State), 0, len(c.listeners))
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(peers)
	}
}

func (c *Channel) peersLocked() []State {
	out := make([]State, 0, len(c.peers))
	for _, p := range c.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}
