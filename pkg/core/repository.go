package core

import "context"

// PageSource supplies the ordered list of external pages.
type PageSource interface {
	// Pages fetches the current page list.
	Pages(ctx context.Context) ([]Page, error)
}

// PageWatcher is implemented by page sources that can signal changes on
// their own (e.g. a watched directory). Each receive means "refetch".
type PageWatcher interface {
	WatchPages(ctx context.Context) (<-chan struct{}, error)
}

// Intersector answers the geometric query the containment logic needs:
// which nodes overlap the given one. The result must follow render order
// (bottom-most first).
type Intersector interface {
	Intersecting(target Node, nodes []Node) []Node
}

// MessageKind tags transport messages.
type MessageKind string

const (
	// MessageUpdate carries an encoded document update.
	MessageUpdate MessageKind = "update"
	// MessageSyncRequest asks the room for its full state.
	MessageSyncRequest MessageKind = "sync-request"
	// MessageSync answers a sync request with a full-state update.
	MessageSync MessageKind = "sync"
	// MessageAwareness carries a presence record.
	MessageAwareness MessageKind = "awareness"
	// MessageHello announces a newly joined client; peers answer with
	// their awareness record.
	MessageHello MessageKind = "hello"
	// MessageLeave tells the room a client disconnected.
	MessageLeave MessageKind = "leave"
	// MessageConnected is emitted locally by a transport every time its
	// connection (re)establishes.
	MessageConnected MessageKind = "connected"
)

// Message is the unit exchanged over a Transport.
type Message struct {
	Kind    MessageKind `json:"kind"`
	Room    string      `json:"room,omitempty"`
	From    string      `json:"from,omitempty"`
	Payload []byte      `json:"payload,omitempty"`
}

// Transport is an opaque, reliable broadcast channel scoped to one room.
// Replication of the document and presence both ride on it.
type Transport interface {
	// Connect joins room as clientID and blocks until the handshake
	// completes or ctx is done.
	Connect(ctx context.Context, room, clientID string) error

	// Send broadcasts a message to the room. The relay answers
	// MessageSyncRequest to the sender only.
	Send(msg Message) error

	// Messages delivers inbound messages. It is closed by Close.
	Messages() <-chan Message

	// Close releases the connection. It is safe to call more than once.
	Close() error
}
