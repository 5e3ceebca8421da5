// Package core holds the domain types of the canvas and the contracts its
// collaborators (transports, page sources, rendering surfaces) implement.
package core

import "fmt"

// Page is an externally owned content page. Every page materializes as one
// note node whose id is the decimal page id.
type Page struct {
	ID    int    `json:"id" yaml:"id" toml:"id"`
	Title string `json:"title" yaml:"title" toml:"title"`
	Emoji string `json:"emoji" yaml:"emoji" toml:"emoji"`
}

// NodeID returns the id of the node backing the page.
func (p Page) NodeID() string { return fmt.Sprint(p.ID) }

// EventType represents the type of change in the shared document.
type EventType string

const (
	EventAdded   EventType = "ADDED"
	EventUpdated EventType = "UPDATED"
	EventDeleted EventType = "DELETED"
)

// Entity names the collection an event refers to.
type Entity string

const (
	EntityNode Entity = "node"
	EntityEdge Entity = "edge"
)

// Event represents a change in the canvas.
type Event struct {
	Type      EventType
	Entity    Entity
	ID        string
	Remote    bool
	Timestamp int64 // Unix timestamp
}

// String implements fmt.Stringer.
func (e Event) String() string {
	origin := "local"
	if e.Remote {
		origin = "remote"
	}
	return fmt.Sprintf("%s %s %s (%s)", e.Type, e.Entity, e.ID, origin)
}

// NodeChangeType is the vocabulary of node changes a rendering surface emits.
type NodeChangeType string

const (
	NodeChangePosition   NodeChangeType = "position"
	NodeChangeDimensions NodeChangeType = "dimensions"
	NodeChangeSelect     NodeChangeType = "select"
	NodeChangeRemove     NodeChangeType = "remove"
	NodeChangeAdd        NodeChangeType = "add"
)

// NodeChange is a single change emitted by the rendering surface.
// Only the fields relevant to Type are read.
type NodeChange struct {
	Type       NodeChangeType
	ID         string
	Position   *XY
	Dimensions *Dimensions
	Selected   bool
	Node       *Node // for NodeChangeAdd
}

// EdgeChangeType is the vocabulary of edge changes a rendering surface emits.
type EdgeChangeType string

const (
	EdgeChangeRemove EdgeChangeType = "remove"
	EdgeChangeAdd    EdgeChangeType = "add"
)

// EdgeChange is a single edge change emitted by the rendering surface.
type EdgeChange struct {
	Type EdgeChangeType
	ID   string
	Edge *Edge // for EdgeChangeAdd
}

// RoomPrefix prefixes every replication room name.
const RoomPrefix = "flow-room-"

// RoomName derives the replication room of a workspace.
func RoomName(workspaceID string) string {
	return RoomPrefix + workspaceID
}
