package canvas

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/aretw0/canopy/pkg/core"
	"github.com/aretw0/canopy/pkg/crdt"
	"github.com/aretw0/canopy/pkg/typed"
)

// DefaultSpawnArea bounds the random position of newly materialized notes.
const DefaultSpawnArea = 500

// ReconcileResult lists the node ids a reconciliation wrote.
type ReconcileResult struct {
	Created []string
	Updated []string
	Deleted []string
}

// Empty reports whether nothing was written.
func (r ReconcileResult) Empty() bool {
	return len(r.Created) == 0 && len(r.Updated) == 0 && len(r.Deleted) == 0
}

// StaticPages is a fixed page list.
type StaticPages []core.Page

// Pages returns a sorted copy of the list.
func (s StaticPages) Pages(_ context.Context) ([]core.Page, error) {
	out := make([]core.Page, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ core.PageSource = StaticPages(nil)

// reconciler keeps note nodes in step with the page list. It remembers
// which ids it materialized so that only those are swept when their page
// disappears; groups and notes it never saw are left alone.
type reconciler struct {
	nodes  *typed.Map[core.Node]
	edges  *typed.Map[core.Edge]
	rand   *rand.Rand
	area   float64
	logger *slog.Logger

	materialized map[string]bool
}

func newReconciler(nodes *typed.Map[core.Node], edges *typed.Map[core.Edge], rnd *rand.Rand, area float64, logger *slog.Logger) *reconciler {
	if area <= 0 {
		area = DefaultSpawnArea
	}
	return &reconciler{
		nodes:        nodes,
		edges:        edges,
		rand:         rnd,
		area:         area,
		logger:       logger,
		materialized: make(map[string]bool),
	}
}

// run performs the three-way diff inside tx.
func (r *reconciler) run(tx *crdt.Tx, pages []core.Page) ReconcileResult {
	var res ReconcileResult
	seen := make(map[string]bool, len(pages))

	for _, p := range pages {
		id := p.NodeID()
		seen[id] = true
		data := core.NoteData{Title: p.Title, PageID: p.ID, Emoji: p.Emoji}

		existing, ok := r.nodes.Lookup(tx, id)
		if !ok {
			pos := core.XY{X: r.rand.Float64() * r.area, Y: r.rand.Float64() * r.area}
			if err := r.nodes.Put(tx, id, core.NewNote(id, pos, data)); err != nil {
				r.logger.Warn("failed to create note", "id", id, "error", err)
				continue
			}
			r.materialized[id] = true
			res.Created = append(res.Created, id)
			continue
		}

		r.materialized[id] = true
		if existing.Kind() != core.KindNote {
			r.logger.Debug("page id is held by a non-note node", "id", id, "kind", existing.Kind())
			continue
		}
		if *existing.Note == data {
			continue
		}
		existing.Note = &data
		if err := r.nodes.Put(tx, id, existing); err != nil {
			r.logger.Warn("failed to update note", "id", id, "error", err)
			continue
		}
		res.Updated = append(res.Updated, id)
	}

	for _, id := range sortedKeys(r.materialized) {
		if seen[id] {
			continue
		}
		delete(r.materialized, id)
		if !r.nodes.Remove(tx, id) {
			r.logger.Debug("swept node already gone", "id", id)
			continue
		}
		removeEdgesTouching(tx, r.edges, id)
		res.Deleted = append(res.Deleted, id)
	}
	return res
}

func removeEdgesTouching(tx *crdt.Tx, edges *typed.Map[core.Edge], id string) []string {
	var removed []string
	for _, e := range edges.Scan(tx) {
		if e.Touches(id) && edges.Remove(tx, e.ID) {
			removed = append(removed, e.ID)
		}
	}
	return removed
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
