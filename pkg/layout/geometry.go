// Package layout holds the geometry of the canvas: coordinate frames,
// bounding boxes, containment (grouping) and edge anchoring. Everything
// here is pure and deterministic; callers decide what to write.
package layout

import "github.com/aretw0/canopy/pkg/core"

// DefaultNoteSize is the bounding box assumed for notes, which carry no
// dimensions of their own.
var DefaultNoteSize = core.Dimensions{Width: 160, Height: 48}

// ToRelative expresses an absolute point in the frame of a parent whose
// absolute position is parentAbs.
func ToRelative(p, parentAbs core.XY) core.XY {
	return p.Sub(parentAbs)
}

// ToAbsolute is the inverse of ToRelative.
func ToAbsolute(p, parentAbs core.XY) core.XY {
	return p.Add(parentAbs)
}

// Rect is an axis-aligned box in canvas space.
type Rect struct {
	X, Y, W, H float64
}

// Intersects reports whether the boxes overlap with a positive area.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W &&
		r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Center returns the centroid.
func (r Rect) Center() core.XY {
	return core.XY{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Anchor returns the midpoint of the given side.
func (r Rect) Anchor(h core.Handle) core.XY {
	switch h {
	case core.HandleTop:
		return core.XY{X: r.X + r.W/2, Y: r.Y}
	case core.HandleBottom:
		return core.XY{X: r.X + r.W/2, Y: r.Y + r.H}
	case core.HandleLeft:
		return core.XY{X: r.X, Y: r.Y + r.H/2}
	case core.HandleRight:
		return core.XY{X: r.X + r.W, Y: r.Y + r.H/2}
	default:
		return r.Center()
	}
}

// CrossesSegment reports whether the segment p→q passes through r
// (Liang–Barsky clipping).
func (r Rect) CrossesSegment(p, q core.XY) bool {
	dx, dy := q.X-p.X, q.Y-p.Y
	t0, t1 := 0.0, 1.0
	clip := func(den, num float64) bool {
		if den == 0 {
			return num >= 0
		}
		t := num / den
		if den < 0 {
			if t > t1 {
				return false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return false
			}
			if t < t1 {
				t1 = t
			}
		}
		return true
	}
	return clip(-dx, p.X-r.X) &&
		clip(dx, r.X+r.W-p.X) &&
		clip(-dy, p.Y-r.Y) &&
		clip(dy, r.Y+r.H-p.Y) &&
		t0 < t1
}
