package layout

import "github.com/aretw0/canopy/pkg/core"

// Arena indexes the nodes of one gesture: id → node, id → parent, and the
// render order (bottom-most first). It is rebuilt per gesture, linear in
// the node count.
type Arena struct {
	nodes    map[string]core.Node
	parent   map[string]string
	order    []string
	noteSize core.Dimensions
}

// NewArena indexes nodes, which must be given in render order.
func NewArena(nodes []core.Node, noteSize core.Dimensions) *Arena {
	if noteSize.Width <= 0 || noteSize.Height <= 0 {
		noteSize = DefaultNoteSize
	}
	a := &Arena{
		nodes:    make(map[string]core.Node, len(nodes)),
		parent:   make(map[string]string, len(nodes)),
		order:    make([]string, 0, len(nodes)),
		noteSize: noteSize,
	}
	for _, n := range nodes {
		if _, dup := a.nodes[n.ID]; !dup {
			a.order = append(a.order, n.ID)
		}
		a.put(n)
	}
	return a
}

func (a *Arena) put(n core.Node) {
	a.nodes[n.ID] = n
	if n.ParentID != "" {
		a.parent[n.ID] = n.ParentID
	} else {
		delete(a.parent, n.ID)
	}
}

// Update replaces a node so later queries see a planned write.
func (a *Arena) Update(n core.Node) {
	if _, ok := a.nodes[n.ID]; !ok {
		a.order = append(a.order, n.ID)
	}
	a.put(n)
}

// Node returns the node with the given id.
func (a *Arena) Node(id string) (core.Node, bool) {
	n, ok := a.nodes[id]
	return n, ok
}

// Nodes returns the nodes in render order.
func (a *Arena) Nodes() []core.Node {
	out := make([]core.Node, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.nodes[id])
	}
	return out
}

// Children returns the direct children of id in render order.
func (a *Arena) Children(id string) []core.Node {
	var out []core.Node
	for _, cid := range a.order {
		if a.parent[cid] == id {
			out = append(out, a.nodes[cid])
		}
	}
	return out
}

// Ancestors walks the parent index upwards from id. The walk stops at a
// missing parent or at the first repeated id.
func (a *Arena) Ancestors(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	for cur := a.parent[id]; cur != ""; cur = a.parent[cur] {
		if seen[cur] {
			break
		}
		if _, ok := a.nodes[cur]; !ok {
			break
		}
		seen[cur] = true
		out = append(out, cur)
	}
	return out
}

// IsAncestor reports whether anc is id itself or one of its ancestors.
func (a *Arena) IsAncestor(anc, id string) bool {
	if anc == id {
		return true
	}
	for _, p := range a.Ancestors(id) {
		if p == anc {
			return true
		}
	}
	return false
}

// Absolute returns the canvas-space position of id.
func (a *Arena) Absolute(id string) core.XY {
	n, ok := a.nodes[id]
	if !ok {
		return core.XY{}
	}
	pos := n.Position
	for _, p := range a.Ancestors(id) {
		pos = ToAbsolute(pos, a.nodes[p].Position)
	}
	return pos
}

// Size returns the bounding box size of n.
func (a *Arena) Size(n core.Node) core.Dimensions {
	switch n.Kind() {
	case core.KindGroup:
		return n.Group.Dimensions
	default:
		return a.noteSize
	}
}

// Bounds returns the absolute bounding box of id.
func (a *Arena) Bounds(id string) Rect {
	n, ok := a.nodes[id]
	if !ok {
		return Rect{}
	}
	pos := a.Absolute(id)
	size := a.Size(n)
	return Rect{X: pos.X, Y: pos.Y, W: size.Width, H: size.Height}
}
