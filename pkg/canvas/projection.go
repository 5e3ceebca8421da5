package canvas

import (
	"log/slog"
	"time"

	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/crdt"
	"github.com/aretw0/canopy/pkg/layout"
	"github.com/aretw0/canopy/pkg/presence"
	"github.com/aretw0/canopy/pkg/typed"
)

// Frame is what a renderer draws: nodes in z-order (groups first), the
// edges whose endpoints both exist, and the cursors of other clients.
type Frame struct {
	Nodes   []core.Node
	Edges   []core.Edge
	Cursors []presence.State
}

// projection is the session's local copy of the graph. It is only touched
// from the session queue.
type projection struct {
	nodeMap *typed.Map[core.Node]
	edgeMap *typed.Map[core.Edge]
	logger  *slog.Logger

	nodes     map[string]core.Node
	nodeOrder []string
	edges     map[string]core.Edge
	edgeOrder []string
	selected  map[string]bool

	// last absolute position of deleted groups, for children a concurrent
	// edit left pointing at them
	anchors map[string]core.XY
}

func newProjection(nodes *typed.Map[core.Node], edges *typed.Map[core.Edge], logger *slog.Logger) *projection {
	return &projection{
		nodeMap:  nodes,
		edgeMap:  edges,
		logger:   logger,
		nodes:    make(map[string]core.Node),
		edges:    make(map[string]core.Edge),
		selected: make(map[string]bool),
		anchors:  make(map[string]core.XY),
	}
}

// hydrate loads the initial snapshot. It raises no events.
func (p *projection) hydrate(nodes []core.Node, edges []core.Edge) {
	for _, n := range nodes {
		p.putNode(n)
	}
	for _, e := range edges {
		p.putEdge(e)
	}
}

// applyNodes folds node changes in and reports the resulting events and
// whether a remote peer created or removed a node.
func (p *projection) applyNodes(changes []crdt.Change) (events []core.Event, invalidate bool) {
	for _, ch := range changes {
		switch ch.Type {
		case core.EventAdded, core.EventUpdated:
			n, err := p.nodeMap.Decode(ch.Value)
			if err != nil {
				p.logger.Warn("skipping undecodable node", "id", ch.Key, "error", err)
				continue
			}
			p.putNode(n)
			if ch.Type == core.EventAdded && ch.Remote {
				invalidate = true
			}
		case core.EventDeleted:
			p.deleteNode(ch.Key)
			if ch.Remote {
				invalidate = true
			}
		}
		events = append(events, event(ch, core.EntityNode))
	}
	return events, invalidate
}

func (p *projection) applyEdges(changes []crdt.Change) []core.Event {
	var events []core.Event
	for _, ch := range changes {
		switch ch.Type {
		case core.EventAdded, core.EventUpdated:
			e, err := p.edgeMap.Decode(ch.Value)
			if err != nil {
				p.logger.Warn("skipping undecodable edge", "id", ch.Key, "error", err)
				continue
			}
			p.putEdge(e)
		case core.EventDeleted:
			p.deleteEdge(ch.Key)
		}
		events = append(events, event(ch, core.EntityEdge))
	}
	return events
}

func event(ch crdt.Change, entity core.Entity) core.Event {
	return core.Event{
		Type:      ch.Type,
		Entity:    entity,
		ID:        ch.Key,
		Remote:    ch.Remote,
		Timestamp: time.Now().Unix(),
	}
}

func (p *projection) putNode(n core.Node) {
	if _, ok := p.nodes[n.ID]; !ok {
		p.nodeOrder = append(p.nodeOrder, n.ID)
	}
	n.Selected = false
	p.nodes[n.ID] = n
	delete(p.anchors, n.ID)
}

func (p *projection) deleteNode(id string) {
	n, ok := p.nodes[id]
	if !ok {
		return
	}
	if n.IsGroup() {
		p.anchors[id] = p.absolute(id)
	}
	delete(p.nodes, id)
	delete(p.selected, id)
	p.nodeOrder = without(p.nodeOrder, id)
}

func (p *projection) putEdge(e core.Edge) {
	if _, ok := p.edges[e.ID]; !ok {
		p.edgeOrder = append(p.edgeOrder, e.ID)
	}
	p.edges[e.ID] = e
}

func (p *projection) deleteEdge(id string) {
	if _, ok := p.edges[id]; !ok {
		return
	}
	delete(p.edges, id)
	p.edgeOrder = without(p.edgeOrder, id)
}

func without(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func (p *projection) node(id string) (core.Node, bool) {
	n, ok := p.nodes[id]
	if ok {
		n = p.resolve(n)
	}
	n.Selected = p.selected[id]
	return n.Clone(), ok
}

// resolve shows a node whose parent group is gone as a top-level node. A
// peer can delete a group while another adopts a note into it; the note then
// keeps the absolute position it had under the group's last known position.
// The document is left as is until the node is next written.
func (p *projection) resolve(n core.Node) core.Node {
	if n.ParentID == "" {
		return n
	}
	if _, ok := p.nodes[n.ParentID]; ok {
		return n
	}
	if anchor, ok := p.anchors[n.ParentID]; ok {
		n.Position = layout.ToAbsolute(n.Position, anchor)
	}
	n.ParentID = ""
	return n
}

// absolute follows resolved parents up to the canvas.
func (p *projection) absolute(id string) core.XY {
	var pos core.XY
	for depth := 0; id != "" && depth <= len(p.nodes); depth++ {
		n, ok := p.nodes[id]
		if !ok {
			break
		}
		n = p.resolve(n)
		pos = pos.Add(n.Position)
		id = n.ParentID
	}
	return pos
}

// setSelected reports whether the flag changed.
func (p *projection) setSelected(id string, selected bool) bool {
	if _, ok := p.nodes[id]; !ok {
		return false
	}
	if p.selected[id] == selected {
		return false
	}
	if selected {
		p.selected[id] = true
	} else {
		delete(p.selected, id)
	}
	return true
}

// orderedNodes returns copies in render order: groups, then notes, each in
// insertion order.
func (p *projection) orderedNodes() []core.Node {
	out := make([]core.Node, 0, len(p.nodeOrder))
	for _, pass := range []core.Kind{core.KindGroup, core.KindNote} {
		for _, id := range p.nodeOrder {
			n := p.nodes[id]
			if n.Kind() != pass {
				continue
			}
			n = p.resolve(n).Clone()
			n.Selected = p.selected[id]
			out = append(out, n)
		}
	}
	return out
}

func (p *projection) allEdges() []core.Edge {
	out := make([]core.Edge, 0, len(p.edgeOrder))
	for _, id := range p.edgeOrder {
		out = append(out, p.edges[id])
	}
	return out
}

// visibleEdges drops edges with a missing endpoint, which concurrent
// deletes can leave behind.
func (p *projection) visibleEdges() []core.Edge {
	out := make([]core.Edge, 0, len(p.edgeOrder))
	for _, id := range p.edgeOrder {
		e := p.edges[id]
		_, src := p.nodes[e.Source]
		_, tgt := p.nodes[e.Target]
		if src && tgt {
			out = append(out, e)
		}
	}
	return out
}

func (p *projection) arena(noteSize core.Dimensions) *layout.Arena {
	return layout.NewArena(p.orderedNodes(), noteSize)
}

func (p *projection) frame(cursors []presence.State) Frame {
	return Frame{
		Nodes:   p.orderedNodes(),
		Edges:   p.visibleEdges(),
		Cursors: cursors,
	}
}
