package field

import (
	"github.com/aukilabs/escapefield/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Lookup maps quantized grid coordinates to escape directions.
//
// A Lookup is read-only once built and can be shared by concurrent readers.
// When the underlying entries change, build a new one.
type Lookup struct {
	boundsMin r3.Vec
	cellSize  float64
	cells     map[[3]int]r3.Vec
}

// NewLookup indexes the field entries by floor(position / cellSize). When two
// entries quantize to the same cell, the last one wins.
func NewLookup(f BakedField) *Lookup {
	l := &Lookup{
		boundsMin: f.BoundsMin,
		cellSize:  f.CellSize,
		cells:     make(map[[3]int]r3.Vec, len(f.Entries)),
	}

	if !(f.CellSize > 0) {
		return l
	}

	for _, e := range f.Entries {
		l.cells[geom.Floor(e.Position, f.CellSize)] = e.Direction
	}
	return l
}

// TryGetDirection returns the direction stored for the cell enclosing the
// given world position. There is no interpolation between cells.
func (l *Lookup) TryGetDirection(world r3.Vec) (r3.Vec, bool) {
	if l == nil || len(l.cells) == 0 || !(l.cellSize > 0) {
		return r3.Vec{}, false
	}

	dir, ok := l.cells[l.WorldToGrid(world)]
	return dir, ok
}

// WorldToGrid returns the integer cell coordinate of a world position.
func (l *Lookup) WorldToGrid(world r3.Vec) [3]int {
	return geom.Floor(r3.Sub(world, l.boundsMin), l.cellSize)
}

func (l *Lookup) Len() int {
	if l == nil {
		return 0
	}
	return len(l.cells)
}

// Anchor places a baked field at a world origin, so that the same field can be
// queried wherever it is instanced.
type Anchor struct {
	Lookup *Lookup
	Origin r3.Vec
}

func (a Anchor) TryGetDirection(world r3.Vec) (r3.Vec, bool) {
	return a.Lookup.TryGetDirection(r3.Sub(world, a.Origin))
}
