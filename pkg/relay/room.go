// Package relay hosts the server side of a canvas room: a document replica
// per room that merges every update it forwards, so a client joining late
// can be brought up to date with a single sync reply.
package relay

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/crdt"
	"github.com/aretw0/introspection"
)

// Route tells a transport what to do with an inbound message.
type Route struct {
	// Reply, when set, goes back to the sender only.
	Reply *core.Message
	// Broadcast reports whether the message is forwarded to the other
	// members of the room.
	Broadcast bool
	// Merged counts the ops that changed the room replica.
	Merged int
}

// Room is the relay's view of one canvas room.
type Room struct {
	name   string
	doc    *crdt.Document
	logger *slog.Logger

	mu      sync.Mutex
	members map[string]string // client id -> connection id
	merged  int
}

// NewRoom creates an empty room.
func NewRoom(name string, logger *slog.Logger) *Room {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("room", name)
	return &Room{
		name:    name,
		doc:     crdt.New("relay:"+name, crdt.WithLogger(logger)),
		logger:  logger,
		members: make(map[string]string),
	}
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Join records clientID as a member reached over conn. A later Join of the
// same client replaces the connection it is reached over.
func (r *Room) Join(clientID, conn string) {
	r.mu.Lock()
	prev, rejoined := r.members[clientID]
	r.members[clientID] = conn
	r.mu.Unlock()
	if rejoined && prev != conn {
		r.logger.Info("client reconnected", "client", clientID, "conn", conn)
		return
	}
	r.logger.Info("client joined", "client", clientID, "conn", conn)
}

// Leave removes clientID when it is still reached over conn and reports
// whether it did. The stale connection of a client that already rejoined
// leaves nothing.
func (r *Room) Leave(clientID, conn string) bool {
	r.mu.Lock()
	current, ok := r.members[clientID]
	ok = ok && current == conn
	if ok {
		delete(r.members, clientID)
	}
	r.mu.Unlock()
	if ok {
		r.logger.Info("client left", "client", clientID)
	}
	return ok
}

// Members returns the member ids in sorted order.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Merge applies an encoded update to the room replica and returns the
// number of ops that changed it.
func (r *Room) Merge(payload []byte) (int, error) {
	u, err := crdt.DecodeUpdate(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to merge into room %s: %w", r.name, err)
	}
	n := r.doc.ApplyUpdate(u)
	r.mu.Lock()
	r.merged += n
	r.mu.Unlock()
	return n, nil
}

// SyncPayload encodes the full room state.
func (r *Room) SyncPayload() ([]byte, error) {
	return crdt.Encode(r.doc.Snapshot())
}

// Handle decides how msg is relayed. Updates are merged before they are
// forwarded; a sync request is answered from the room replica.
func (r *Room) Handle(msg core.Message) (Route, error) {
	switch msg.Kind {
	case core.MessageUpdate:
		n, err := r.Merge(msg.Payload)
		if err != nil {
			return Route{}, err
		}
		return Route{Broadcast: true, Merged: n}, nil
	case core.MessageSyncRequest:
		payload, err := r.SyncPayload()
		if err != nil {
			return Route{}, fmt.Errorf("failed to answer sync request: %w", err)
		}
		return Route{Reply: &core.Message{
			Kind:    core.MessageSync,
			Room:    r.name,
			From:    r.doc.Replica(),
			Payload: payload,
		}}, nil
	case core.MessageAwareness, core.MessageHello, core.MessageLeave:
		return Route{Broadcast: true}, nil
	default:
		r.logger.Debug("ignoring message", "kind", msg.Kind, "from", msg.From)
		return Route{}, nil
	}
}

// RoomState is the introspection view of a Room.
type RoomState struct {
	Name     string   `json:"name"`
	Members  []string `json:"members"`
	Merged   int      `json:"merged_ops"`
	Document any      `json:"document"`
}

// State implements introspection.Introspectable.
func (r *Room) State() any {
	r.mu.Lock()
	merged := r.merged
	r.mu.Unlock()
	return RoomState{
		Name:     r.name,
		Members:  r.Members(),
		Merged:   merged,
		Document: r.doc.State(),
	}
}

// ComponentType implements introspection.Component.
func (r *Room) ComponentType() string { return "relay-room" }

var _ introspection.Introspectable = (*Room)(nil)
var _ introspection.Component = (*Room)(nil)

// Rooms is a lazily populated set of rooms.
type Rooms struct {
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRooms returns an empty registry.
func NewRooms(logger *slog.Logger) *Rooms {
	return &Rooms{logger: logger, rooms: make(map[string]*Room)}
}

// Get returns the named room, creating it on first use.
func (rs *Rooms) Get(name string) *Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[name]
	if !ok {
		r = NewRoom(name, rs.logger)
		rs.rooms[name] = r
	}
	return r
}

// All returns the rooms sorted by name.
func (rs *Rooms) All() []*Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*Room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
