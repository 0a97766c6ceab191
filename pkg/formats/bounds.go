package formats

import "math"

// Bounds accumulates an axis-aligned bounding box.
type Bounds struct {
	Min   [3]float32
	Max   [3]float32
	empty bool
}

// NewBounds returns an empty bounding box.
func NewBounds() Bounds {
	return Bounds{
		Min:   [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max:   [3]float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
		empty: true,
	}
}

// Add grows the box to contain p.
func (b *Bounds) Add(p [3]float32) {
	b.empty = false
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Empty reports whether no point has been added.
func (b *Bounds) Empty() bool {
	return b.empty
}

// CenterScale returns the box center and the per-axis factor 1/(max-min)
// that maps the box extent to 1.
//
// An axis with no extent, such as z for a mesh lying in a plane, gets a
// scale of 1 instead of the infinite 1/0. An empty box yields center 0 and
// scale 1.
func (b *Bounds) CenterScale() (center, scale [3]float32) {
	for i := 0; i < 3; i++ {
		if b.empty {
			scale[i] = 1
			continue
		}
		extent := b.Max[i] - b.Min[i]
		center[i] = extent/2 + b.Min[i]
		if extent > 0 {
			scale[i] = 1 / extent
		} else {
			scale[i] = 1
		}
	}
	return center, scale
}
