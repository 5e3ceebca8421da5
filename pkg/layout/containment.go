package layout

import "github.com/aretw0/canopy/pkg/core"

// Plan is the set of writes a gesture produces. Nodes are written before
// edges, in one transaction.
type Plan struct {
	Nodes []core.Node
	Edges []core.Edge
}

// Empty reports whether the plan writes nothing.
func (p Plan) Empty() bool {
	return len(p.Nodes) == 0 && len(p.Edges) == 0
}

// Resolver computes group membership when a drag ends.
type Resolver struct {
	Intersector core.Intersector
}

// NewResolver returns a Resolver backed by bounding-box intersection when
// in is nil.
func NewResolver(in core.Intersector, noteSize core.Dimensions) *Resolver {
	if in == nil {
		in = BoundsIntersector{NoteSize: noteSize}
	}
	return &Resolver{Intersector: in}
}

// DragStop resolves containment for the node id that was just dropped.
// The arena is updated in place with the planned node writes, so the
// returned edge anchors reflect the new geometry. An unknown id yields an
// empty plan.
func (r *Resolver) DragStop(a *Arena, edges []core.Edge, id string) Plan {
	n, ok := a.Node(id)
	if !ok {
		return Plan{}
	}
	switch n.Kind() {
	case core.KindGroup:
		return r.dropGroup(a, edges, n)
	case core.KindNote:
		return r.dropNote(a, edges, n)
	default:
		return Plan{}
	}
}

// dropGroup adopts every unparented note under the group, then re-anchors
// the edges of all its children.
func (r *Resolver) dropGroup(a *Arena, edges []core.Edge, group core.Node) Plan {
	var plan Plan
	groupAbs := a.Absolute(group.ID)

	for _, n := range r.Intersector.Intersecting(group, a.Nodes()) {
		if n.Kind() != core.KindNote || n.ParentID != "" {
			continue
		}
		if a.IsAncestor(n.ID, group.ID) {
			continue
		}
		child := n.Clone()
		child.ParentID = group.ID
		child.Position = ToRelative(n.Position, groupAbs)
		a.Update(child)
		plan.Nodes = append(plan.Nodes, child)
	}

	children := a.Children(group.ID)
	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	plan.Edges = ReanchorTouching(a, edges, ids...)
	return plan
}

// dropNote attaches the note to the topmost intersecting group, moves it
// between groups, or detaches it when it was dropped outside every group.
func (r *Resolver) dropNote(a *Arena, edges []core.Edge, note core.Node) Plan {
	var candidate *core.Node
	for _, g := range r.Intersector.Intersecting(note, a.Nodes()) {
		if g.Kind() != core.KindGroup || a.IsAncestor(note.ID, g.ID) {
			continue
		}
		candidate = &g // last one wins: topmost in render order
	}

	updated := note.Clone()
	switch {
	case candidate == nil && note.ParentID == "":
		return Plan{Edges: ReanchorTouching(a, edges, note.ID)}
	case candidate == nil:
		updated.Position = a.Absolute(note.ID)
		updated.ParentID = ""
	case candidate.ID == note.ParentID:
		// Same parent: the position stays in that parent's frame.
	default:
		abs := a.Absolute(note.ID)
		updated.Position = ToRelative(abs, a.Absolute(candidate.ID))
		updated.ParentID = candidate.ID
	}

	a.Update(updated)
	return Plan{
		Nodes: []core.Node{updated},
		Edges: ReanchorTouching(a, edges, note.ID),
	}
}

// Detach converts every child of groupID back to absolute coordinates and
// clears its parent, as required before the group itself is deleted.
func Detach(a *Arena, groupID string) []core.Node {
	var out []core.Node
	for _, c := range a.Children(groupID) {
		abs := a.Absolute(c.ID)
		child := c.Clone()
		child.Position = abs
		child.ParentID = ""
		a.Update(child)
		out = append(out, child)
	}
	return out
}
