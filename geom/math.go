package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DegenerateLength is the length under which a vector is treated as having no
// usable direction.
const DegenerateLength = 1e-9

func EqualWithEpsilon(a float64, b float64, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func VecEqualWithEpsilon(v1 r3.Vec, v2 r3.Vec, epsilon float64) bool {
	return EqualWithEpsilon(v1.X, v2.X, epsilon) &&
		EqualWithEpsilon(v1.Y, v2.Y, epsilon) &&
		EqualWithEpsilon(v1.Z, v2.Z, epsilon)
}

func Splat(v float64) r3.Vec {
	return r3.Vec{X: v, Y: v, Z: v}
}

// Normalized returns v scaled to unit length. The zero vector is returned
// unchanged instead of turning into NaNs.
func Normalized(v r3.Vec) r3.Vec {
	length := r3.Norm(v)
	if length == 0 {
		return v
	}
	return r3.Scale(1/length, v)
}

// Direction returns the unit vector pointing from one point to another.
func Direction(from r3.Vec, to r3.Vec) r3.Vec {
	return Normalized(r3.Sub(to, from))
}

func IsFinite(v r3.Vec) bool {
	return IsFiniteScalar(v.X) && IsFiniteScalar(v.Y) && IsFiniteScalar(v.Z)
}

// IsFiniteScalar reports whether f is neither NaN nor infinite.
func IsFiniteScalar(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AverageDirection returns the normalized mean of the given unit vectors.
//
// When the contributions cancel out, the first one is returned so that every
// resolved direction keeps unit length. ok is false when dirs is empty.
func AverageDirection(dirs []r3.Vec) (avg r3.Vec, ok bool) {
	if len(dirs) == 0 {
		return r3.Vec{}, false
	}

	var sum r3.Vec
	for _, d := range dirs {
		sum = r3.Add(sum, d)
	}
	mean := r3.Scale(1/float64(len(dirs)), sum)

	if r3.Norm(mean) < DegenerateLength {
		return Normalized(dirs[0]), true
	}
	return Normalized(mean), true
}

// Floor quantizes p by cell size, per axis.
func Floor(p r3.Vec, cellSize float64) [3]int {
	return [3]int{
		int(math.Floor(p.X / cellSize)),
		int(math.Floor(p.Y / cellSize)),
		int(math.Floor(p.Z / cellSize)),
	}
}
