package core

import "fmt"

// Kind discriminates the Node variant.
type Kind string

const (
	KindNote  Kind = "note"
	KindGroup Kind = "group"
)

// XY is a point on the canvas. Whether it is absolute or relative depends
// on the owner (see Node.ParentID).
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by o.
func (p XY) Add(o XY) XY { return XY{X: p.X + o.X, Y: p.Y + o.Y} }

// Sub returns p translated by -o.
func (p XY) Sub(o XY) XY { return XY{X: p.X - o.X, Y: p.Y - o.Y} }

// Dimensions is the size of a node's bounding box.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NoteData is the payload of a content node backed by an external page.
type NoteData struct {
	Title  string `json:"title"`
	PageID int    `json:"id"`
	Emoji  string `json:"emoji"`
}

// GroupData is the payload of a group (container) node.
type GroupData struct {
	Dimensions Dimensions `json:"dimensions"`
	Label      string     `json:"label,omitempty"`
}

// Node is a vertex of the shared graph.
// Exactly one of Note or Group is set; Kind reports which.
//
// Position is absolute (canvas space) when ParentID is empty and relative to
// the parent's absolute position otherwise.
type Node struct {
	ID       string     `json:"id"`
	Position XY         `json:"position"`
	ParentID string     `json:"parentId,omitempty"`
	Note     *NoteData  `json:"note,omitempty"`
	Group    *GroupData `json:"group,omitempty"`

	// Selected is a local UI flag. It is never replicated.
	Selected bool `json:"-"`
}

// NewNote builds a content node for a page.
func NewNote(id string, pos XY, data NoteData) Node {
	return Node{ID: id, Position: pos, Note: &data}
}

// NewGroup builds a group node.
func NewGroup(id string, pos XY, dims Dimensions, label string) Node {
	return Node{ID: id, Position: pos, Group: &GroupData{Dimensions: dims, Label: label}}
}

// Kind reports the variant. A malformed node (neither or both payloads)
// reports the empty Kind.
func (n Node) Kind() Kind {
	switch {
	case n.Note != nil && n.Group == nil:
		return KindNote
	case n.Group != nil && n.Note == nil:
		return KindGroup
	default:
		return ""
	}
}

// IsGroup is shorthand for n.Kind() == KindGroup.
func (n Node) IsGroup() bool { return n.Kind() == KindGroup }

// Validate checks the structural invariants of a single node.
func (n Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if n.Kind() == "" {
		return fmt.Errorf("%w: node %s must carry exactly one of note or group", ErrInvalidNode, n.ID)
	}
	if n.ParentID == n.ID {
		return fmt.Errorf("%w: node %s is its own parent", ErrInvalidNode, n.ID)
	}
	return nil
}

// Clone returns a deep copy of n, so callers can mutate payloads freely.
func (n Node) Clone() Node {
	c := n
	if n.Note != nil {
		d := *n.Note
		c.Note = &d
	}
	if n.Group != nil {
		d := *n.Group
		c.Group = &d
	}
	return c
}
