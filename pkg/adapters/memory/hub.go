// Package memory provides an in-process Transport. A Hub plays the relay:
// every room keeps a relay.Room replica, so connections opened late are
// answered with the full room state on sync.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/canopy/internal/mailbox"
	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/relay"
	"github.com/google/uuid"
)

// Hub routes messages between connections in the same process.
type Hub struct {
	rooms  *relay.Rooms
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]map[string]*Conn
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		rooms:  relay.NewRooms(logger),
		logger: logger,
		conns:  make(map[string]map[string]*Conn),
	}
}

// Room returns the relay replica behind a room.
func (h *Hub) Room(name string) *relay.Room { return h.rooms.Get(name) }

// Members returns the ids connected to room, sorted.
func (h *Hub) Members(room string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.conns[room]))
	for id := range h.conns[room] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dial returns an unconnected transport bound to the hub.
func (h *Hub) Dial() *Conn {
	return &Conn{id: uuid.NewString(), hub: h, box: mailbox.New[core.Message]()}
}

func (h *Hub) attach(c *Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.conns[c.room]
	if !ok {
		members = make(map[string]*Conn)
		h.conns[c.room] = members
	}
	if _, taken := members[c.clientID]; taken {
		return fmt.Errorf("client %s already connected to %s", c.clientID, c.room)
	}
	members[c.clientID] = c
	h.rooms.Get(c.room).Join(c.clientID, c.id)
	return nil
}

func (h *Hub) detach(c *Conn) {
	h.mu.Lock()
	members := h.conns[c.room]
	if members[c.clientID] != c {
		h.mu.Unlock()
		return
	}
	delete(members, c.clientID)
	h.mu.Unlock()

	room := h.rooms.Get(c.room)
	room.Leave(c.clientID, c.id)
	h.broadcast(c, core.Message{Kind: core.MessageLeave, Room: c.room, From: c.clientID})
}

func (h *Hub) route(c *Conn, msg core.Message) error {
	route, err := h.rooms.Get(c.room).Handle(msg)
	if err != nil {
		return err
	}
	if route.Reply != nil {
		c.box.Push(*route.Reply)
	}
	if route.Broadcast {
		h.broadcast(c, msg)
	}
	return nil
}

func (h *Hub) broadcast(from *Conn, msg core.Message) {
	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.conns[from.room]))
	for _, c := range h.conns[from.room] {
		if c != from {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.box.Push(msg)
	}
}

// Conn is one client's connection to a Hub.
type Conn struct {
	id  string
	hub *Hub
	box *mailbox.Mailbox[core.Message]

	mu        sync.Mutex
	room      string
	clientID  string
	connected bool
	closed    bool
}

// Connect joins room as clientID and queues a connected notice.
func (c *Conn) Connect(ctx context.Context, room, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrClosed
	}
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected to %s", c.room)
	}
	c.room, c.clientID = room, clientID
	c.mu.Unlock()

	if err := c.hub.attach(c); err != nil {
		return err
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.box.Push(core.Message{Kind: core.MessageConnected, Room: room, From: clientID})
	return nil
}

// Send relays msg through the hub. Room and sender are stamped here.
func (c *Conn) Send(msg core.Message) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return core.ErrClosed
	case !c.connected:
		c.mu.Unlock()
		return core.ErrNotConnected
	}
	msg.Room, msg.From = c.room, c.clientID
	c.mu.Unlock()
	return c.hub.route(c, msg)
}

// Messages delivers inbound messages in arrival order.
func (c *Conn) Messages() <-chan core.Message { return c.box.Out() }

// Drop severs the connection as a network failure would: peers see the
// client leave and the Messages channel closes.
func (c *Conn) Drop() { _ = c.Close() }

// Close leaves the room. Safe to call twice.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	connected := c.connected
	c.connected = false
	c.mu.Unlock()

	if connected {
		c.hub.detach(c)
	}
	c.box.Close()
	return nil
}

var _ core.Transport = (*Conn)(nil)
