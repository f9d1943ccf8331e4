package classifier

import (
	"github.com/aukilabs/escapefield/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Classifier is the interface that describes a collision query against static
// geometry.
type Classifier interface {
	// Reports whether any solid geometry overlaps the axis-aligned box given
	// by its center and half extents. Touching counts as overlapping.
	//
	// Implementations must be deterministic. When a bake classifies cells
	// from several goroutines, they must also be safe for concurrent use.
	Overlaps(center r3.Vec, halfExtent r3.Vec) bool
}

// Func adapts an ordinary function to the Classifier interface.
type Func func(center r3.Vec, halfExtent r3.Vec) bool

func (f Func) Overlaps(center r3.Vec, halfExtent r3.Vec) bool {
	return f(center, halfExtent)
}

// Scene is a read-only set of primitive colliders.
type Scene struct {
	Spheres []geom.Sphere
	Boxes   []geom.Box
}

func (s *Scene) Overlaps(center r3.Vec, halfExtent r3.Vec) bool {
	cell := geom.Box{
		Center:  center,
		Extents: halfExtent,
	}

	for _, sphere := range s.Spheres {
		if geom.DoesSphereOverlapBox(sphere, cell) {
			return true
		}
	}

	for _, box := range s.Boxes {
		if geom.DoBoxesOverlap(box, cell) {
			return true
		}
	}

	return false
}

// Empty reports whether the scene holds no collider.
func (s *Scene) Empty() bool {
	return len(s.Spheres) == 0 && len(s.Boxes) == 0
}
