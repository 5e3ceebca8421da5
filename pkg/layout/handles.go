package layout

import (
	"math"

	"github.com/aretw0/canopy/pkg/core"
)

// BestHandles picks the anchor sides for an edge from sourceID to targetID.
//
// The axis with the larger centroid displacement wins (horizontal on ties).
// If the straight line between the chosen anchors runs through another node
// and the other axis is clear, the other axis is used instead. The result
// depends only on the arena contents.
func BestHandles(a *Arena, sourceID, targetID string) (src, tgt core.Handle) {
	sb, tb := a.Bounds(sourceID), a.Bounds(targetID)
	sc, tc := sb.Center(), tb.Center()
	dx, dy := tc.X-sc.X, tc.Y-sc.Y

	horizontal := [2]core.Handle{core.HandleRight, core.HandleLeft}
	if dx < 0 {
		horizontal = [2]core.Handle{core.HandleLeft, core.HandleRight}
	}
	vertical := [2]core.Handle{core.HandleBottom, core.HandleTop}
	if dy < 0 {
		vertical = [2]core.Handle{core.HandleTop, core.HandleBottom}
	}

	primary, secondary := horizontal, vertical
	if math.Abs(dy) > math.Abs(dx) {
		primary, secondary = vertical, horizontal
	}

	obstacles := obstaclesFor(a, sourceID, targetID)
	blocked := func(pair [2]core.Handle) bool {
		p, q := sb.Anchor(pair[0]), tb.Anchor(pair[1])
		for _, r := range obstacles {
			if r.CrossesSegment(p, q) {
				return true
			}
		}
		return false
	}

	if blocked(primary) && !blocked(secondary) {
		return secondary[0], secondary[1]
	}
	return primary[0], primary[1]
}

// obstaclesFor lists the boxes an edge should avoid: every node except the
// endpoints and the groups that contain either endpoint.
func obstaclesFor(a *Arena, sourceID, targetID string) []Rect {
	skip := map[string]bool{sourceID: true, targetID: true}
	for _, id := range a.Ancestors(sourceID) {
		skip[id] = true
	}
	for _, id := range a.Ancestors(targetID) {
		skip[id] = true
	}

	var out []Rect
	for _, id := range a.order {
		if skip[id] {
			continue
		}
		out = append(out, a.Bounds(id))
	}
	return out
}

// Reanchor recomputes the handles of e. ok is false when an endpoint is
// missing from the arena; changed reports whether the handles moved.
func Reanchor(a *Arena, e core.Edge) (updated core.Edge, changed, ok bool) {
	if _, found := a.Node(e.Source); !found {
		return e, false, false
	}
	if _, found := a.Node(e.Target); !found {
		return e, false, false
	}
	src, tgt := BestHandles(a, e.Source, e.Target)
	updated = e
	updated.SourceHandle, updated.TargetHandle = src, tgt
	return updated, updated != e, true
}

// ReanchorTouching recomputes every edge touching one of ids and returns
// the edges whose handles changed, each at most once, in input order.
func ReanchorTouching(a *Arena, edges []core.Edge, ids ...string) []core.Edge {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []core.Edge
	for _, e := range edges {
		if !want[e.Source] && !want[e.Target] {
			continue
		}
		if updated, changed, ok := Reanchor(a, e); ok && changed {
			out = append(out, updated)
		}
	}
	return out
}
