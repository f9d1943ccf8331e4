package baker

import (
	"math"
	"sync"

	"github.com/aukilabs/escapefield/classifier"
	"github.com/aukilabs/escapefield/geom"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// Voxel Grid
//
// A uniformly sub-divided box covering the bake bounds. The particularities are:
//   - the cell count per axis is ceil(size / cellSize), so the grid may overshoot
//     the bounds on the far side;
//   - cells live in one flat slice indexed by x + y*cellsX + z*cellsX*cellsY;
//   - walks that must be deterministic (seeding, propagation, extraction) go
//     x-major, then y, then z.

// maxGridCells caps the grid regardless of configuration so that a bad cell
// size cannot request an absurd allocation.
const maxGridCells = math.MaxInt32

// Cell is one voxel of the grid.
//
// Inside is set once by classification. Direction and HasDirection are written
// at most once by the propagator.
type Cell struct {
	Center       r3.Vec
	Inside       bool
	Direction    r3.Vec
	HasDirection bool
}

type CellState uint8

const (
	CellOutside CellState = iota
	CellInside
	CellResolved
)

func (c Cell) State() CellState {
	switch {
	case !c.Inside:
		return CellOutside
	case c.HasDirection:
		return CellResolved
	default:
		return CellInside
	}
}

type Grid struct {
	bounds   geom.Bounds
	cellSize float64
	cellsX   int
	cellsY   int
	cellsZ   int
	cells    []Cell
}

// neighbours holds the 26 offsets of the 3x3x3 block around a cell, in
// dx, dy, dz loop order.
var neighbours [][3]int

func init() {
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				neighbours = append(neighbours, [3]int{dx, dy, dz})
			}
		}
	}
}

// BuildGrid validates the bake region, lays out the grid and classifies every
// cell with c.
func BuildGrid(bounds geom.Bounds, cellSize float64, c classifier.Classifier, opts Options) (*Grid, error) {
	cellsX, cellsY, cellsZ, err := gridDims(bounds, cellSize, opts.MaxCells)
	if err != nil {
		return nil, err
	}

	g := &Grid{
		bounds:   bounds,
		cellSize: cellSize,
		cellsX:   cellsX,
		cellsY:   cellsY,
		cellsZ:   cellsZ,
		cells:    make([]Cell, cellsX*cellsY*cellsZ),
	}

	workers := opts.Workers
	if workers > cellsZ {
		workers = cellsZ
	}
	if workers <= 1 {
		g.classify(c, 0, cellsZ)
		return g, nil
	}

	// Each worker owns a contiguous z-slab, so writes never overlap.
	var wg sync.WaitGroup
	slab := (cellsZ + workers - 1) / workers
	for z0 := 0; z0 < cellsZ; z0 += slab {
		z1 := z0 + slab
		if z1 > cellsZ {
			z1 = cellsZ
		}

		wg.Add(1)
		go func(z0, z1 int) {
			defer wg.Done()
			g.classify(c, z0, z1)
		}(z0, z1)
	}
	wg.Wait()

	return g, nil
}

func gridDims(bounds geom.Bounds, cellSize float64, maxCells int) (int, int, int, error) {
	if !(cellSize > 0) || !geom.IsFiniteScalar(cellSize) {
		return 0, 0, 0, errors.New("cell size must be positive").
			WithType(ErrTypeInvalidCellSize).
			WithTag("cell_size", cellSize)
	}

	size := bounds.Size
	if size.X < 0 || size.Y < 0 || size.Z < 0 || !geom.IsFinite(size) || !geom.IsFinite(bounds.Min) {
		return 0, 0, 0, errors.New("bounds size must be finite and not negative").
			WithType(ErrTypeInvalidBounds).
			WithTag("bounds_min", bounds.Min).
			WithTag("bounds_size", size)
	}

	fx := math.Ceil(size.X / cellSize)
	fy := math.Ceil(size.Y / cellSize)
	fz := math.Ceil(size.Z / cellSize)

	// A zero axis times an overflowing one is NaN.
	total := fx * fy * fz
	if fx > maxGridCells || fy > maxGridCells || fz > maxGridCells ||
		!geom.IsFiniteScalar(total) || total > maxGridCells ||
		(maxCells > 0 && total > float64(maxCells)) {
		return 0, 0, 0, errors.New("grid has too many cells").
			WithType(ErrTypeGridTooLarge).
			WithTag("cells", total).
			WithTag("max_cells", maxCells)
	}

	return int(fx), int(fy), int(fz), nil
}

func (g *Grid) classify(c classifier.Classifier, z0, z1 int) {
	half := g.cellSize / 2
	origin := r3.Add(g.bounds.Min, geom.Splat(half))
	halfExtent := geom.Splat(half)

	for z := z0; z < z1; z++ {
		for y := 0; y < g.cellsY; y++ {
			for x := 0; x < g.cellsX; x++ {
				center := r3.Add(origin, r3.Vec{
					X: float64(x) * g.cellSize,
					Y: float64(y) * g.cellSize,
					Z: float64(z) * g.cellSize,
				})

				cell := &g.cells[g.Index(x, y, z)]
				cell.Center = center
				cell.Inside = c.Overlaps(center, halfExtent)
			}
		}
	}
}

// Index returns the flat index of cell (x, y, z).
func (g *Grid) Index(x, y, z int) int {
	return x + y*g.cellsX + z*g.cellsX*g.cellsY
}

// Coords is the inverse of Index.
func (g *Grid) Coords(i int) (x, y, z int) {
	layer := g.cellsX * g.cellsY
	z = i / layer
	i -= z * layer
	y = i / g.cellsX
	x = i - y*g.cellsX
	return x, y, z
}

func (g *Grid) contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 &&
		x < g.cellsX && y < g.cellsY && z < g.cellsZ
}

// forEach visits every cell index in x-major, then y, then z order.
func (g *Grid) forEach(visit func(i int)) {
	for x := 0; x < g.cellsX; x++ {
		for y := 0; y < g.cellsY; y++ {
			for z := 0; z < g.cellsZ; z++ {
				visit(g.Index(x, y, z))
			}
		}
	}
}

// forEachNeighbour visits the in-grid 26-neighbours of cell i.
func (g *Grid) forEachNeighbour(i int, visit func(n int)) {
	x, y, z := g.Coords(i)
	for _, o := range neighbours {
		nx, ny, nz := x+o[0], y+o[1], z+o[2]
		if !g.contains(nx, ny, nz) {
			continue
		}
		visit(g.Index(nx, ny, nz))
	}
}

// resolve assigns a direction to cell i unless it already has one.
func (g *Grid) resolve(i int, dir r3.Vec) bool {
	cell := &g.cells[i]
	if cell.HasDirection {
		return false
	}

	cell.Direction = dir
	cell.HasDirection = true
	return true
}

func (g *Grid) Dims() (cellsX, cellsY, cellsZ int) {
	return g.cellsX, g.cellsY, g.cellsZ
}

func (g *Grid) Bounds() geom.Bounds {
	return g.bounds
}

func (g *Grid) CellSize() float64 {
	return g.cellSize
}

func (g *Grid) Len() int {
	return len(g.cells)
}

// Cell returns a copy of cell (x, y, z). ok is false outside the grid.
func (g *Grid) Cell(x, y, z int) (cell Cell, ok bool) {
	if !g.contains(x, y, z) {
		return Cell{}, false
	}
	return g.cells[g.Index(x, y, z)], true
}

// Cells returns a copy of every cell in index order.
func (g *Grid) Cells() []Cell {
	cells := make([]Cell, len(g.cells))
	copy(cells, g.cells)
	return cells
}

type DebugInfo struct {
	CellSize float64
	CellsX   int
	CellsY   int
	CellsZ   int
	Min      r3.Vec
	Max      r3.Vec
	Outside  int
	Inside   int
	Resolved int
	States   []CellState
}

// DebugInfo flattens the grid state for visualization tools.
func (g *Grid) DebugInfo() DebugInfo {
	info := DebugInfo{
		CellSize: g.cellSize,
		CellsX:   g.cellsX,
		CellsY:   g.cellsY,
		CellsZ:   g.cellsZ,
		Min:      g.bounds.Min,
		Max: r3.Add(g.bounds.Min, r3.Vec{
			X: float64(g.cellsX) * g.cellSize,
			Y: float64(g.cellsY) * g.cellSize,
			Z: float64(g.cellsZ) * g.cellSize,
		}),
		States: make([]CellState, len(g.cells)),
	}

	for i, c := range g.cells {
		state := c.State()
		info.States[i] = state

		switch state {
		case CellOutside:
			info.Outside++
		case CellInside:
			info.Inside++
		case CellResolved:
			info.Resolved++
		}
	}

	return info
}
