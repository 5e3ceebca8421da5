package layout

import (
	"math"
	"sort"
	"strconv"

	"github.com/aretw0/canopy/pkg/core"
)

// Gap is the spacing Arrange leaves between notes.
const Gap = 40

// Arrange places the unparented notes on a square grid ordered by page id
// and returns the moved notes. Groups and grouped notes keep their place.
func Arrange(a *Arena, origin core.XY) []core.Node {
	var notes []core.Node
	for _, n := range a.Nodes() {
		if n.Kind() == core.KindNote && n.ParentID == "" {
			notes = append(notes, n)
		}
	}
	if len(notes) == 0 {
		return nil
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return pageOrder(notes[i]) < pageOrder(notes[j])
	})

	cols := int(math.Ceil(math.Sqrt(float64(len(notes)))))
	stepX := a.noteSize.Width + Gap
	stepY := a.noteSize.Height + Gap

	var moved []core.Node
	for i, n := range notes {
		pos := core.XY{
			X: origin.X + float64(i%cols)*stepX,
			Y: origin.Y + float64(i/cols)*stepY,
		}
		if pos == n.Position {
			continue
		}
		n = n.Clone()
		n.Position = pos
		a.Update(n)
		moved = append(moved, n)
	}
	return moved
}

func pageOrder(n core.Node) int {
	if n.Note != nil && n.Note.PageID != 0 {
		return n.Note.PageID
	}
	if v, err := strconv.Atoi(n.ID); err == nil {
		return v
	}
	return math.MaxInt
}
