package layout

import "github.com/aretw0/canopy/pkg/core"

// BoundsIntersector answers intersection queries from absolute bounding
// boxes. It is the default when the rendering surface supplies none.
type BoundsIntersector struct {
	NoteSize core.Dimensions
}

// Intersecting returns the nodes whose bounds overlap target, in the order
// given (render order), target excluded.
func (b BoundsIntersector) Intersecting(target core.Node, nodes []core.Node) []core.Node {
	a := NewArena(nodes, b.NoteSize)
	a.Update(target)
	box := a.Bounds(target.ID)

	var out []core.Node
	for _, n := range nodes {
		if n.ID == target.ID {
			continue
		}
		if box.Intersects(a.Bounds(n.ID)) {
			out = append(out, n)
		}
	}
	return out
}

var _ core.Intersector = BoundsIntersector{}
