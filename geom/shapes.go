package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Bounds is an axis-aligned region given by its min corner and size.
type Bounds struct {
	Min  r3.Vec
	Size r3.Vec
}

func NewBoundsFromCenter(center r3.Vec, size r3.Vec) Bounds {
	return Bounds{
		Min:  r3.Sub(center, r3.Scale(0.5, size)),
		Size: size,
	}
}

func (b Bounds) Max() r3.Vec {
	return r3.Add(b.Min, b.Size)
}

func (b Bounds) Center() r3.Vec {
	return r3.Add(b.Min, r3.Scale(0.5, b.Size))
}

// Box is an axis-aligned box described by its center and half extents.
type Box struct {
	Center  r3.Vec
	Extents r3.Vec // Half-Extents!
}

func (b Box) Min() r3.Vec {
	return r3.Sub(b.Center, b.Extents)
}

func (b Box) Max() r3.Vec {
	return r3.Add(b.Center, b.Extents)
}

// ClosestPoint returns the point of b nearest to p.
func (b Box) ClosestPoint(p r3.Vec) r3.Vec {
	min := b.Min()
	max := b.Max()
	return r3.Vec{
		X: math.Max(min.X, math.Min(p.X, max.X)),
		Y: math.Max(min.Y, math.Min(p.Y, max.Y)),
		Z: math.Max(min.Z, math.Min(p.Z, max.Z)),
	}
}

type Sphere struct {
	Center r3.Vec
	Radius float64
}

// DoBoxesOverlap reports whether a and b share at least one point. Touching
// faces count as an overlap.
func DoBoxesOverlap(a Box, b Box) bool {
	minA := a.Min()
	maxA := a.Max()
	minB := b.Min()
	maxB := b.Max()

	if minA.X > maxB.X || maxA.X < minB.X {
		return false
	}
	if minA.Y > maxB.Y || maxA.Y < minB.Y {
		return false
	}
	if minA.Z > maxB.Z || maxA.Z < minB.Z {
		return false
	}

	// overlap on all axes -> must overlap
	return true
}

// DoesSphereOverlapBox reports whether s touches or intersects b.
func DoesSphereOverlapBox(s Sphere, b Box) bool {
	closest := b.ClosestPoint(s.Center)
	return r3.Norm2(r3.Sub(closest, s.Center)) <= s.Radius*s.Radius
}
