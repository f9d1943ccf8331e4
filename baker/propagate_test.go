package baker

import (
	"math"
	"testing"

	"github.com/aukilabs/escapefield/classifier"
	"github.com/aukilabs/escapefield/geom"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func requireVecInDelta(t *testing.T, expected, actual r3.Vec, delta float64) {
	t.Helper()
	require.InDelta(t, expected.X, actual.X, delta)
	require.InDelta(t, expected.Y, actual.Y, delta)
	require.InDelta(t, expected.Z, actual.Z, delta)
}

func TestSeedBottomLayer(t *testing.T) {
	g, err := BuildGrid(cube(3), 1, classifier.Func(func(center, halfExtent r3.Vec) bool {
		return center.Y < 1
	}), Options{})
	require.NoError(t, err)

	require.Equal(t, 9, Seed(g))

	for x := 0; x < 3; x++ {
		for z := 0; z < 3; z++ {
			cell, _ := g.Cell(x, 0, z)
			require.Equal(t, CellResolved, cell.State())
			require.InDelta(t, 1, r3.Norm(cell.Direction), 1e-9)
			require.Greater(t, cell.Direction.Y, 0.5)
		}
	}

	center, _ := g.Cell(1, 0, 1)
	requireVecInDelta(t, r3.Vec{Y: 1}, center.Direction, 1e-9)

	s2, s3 := math.Sqrt2, math.Sqrt(3)
	expected := geom.Normalized(r3.Vec{
		X: 1/s2 + 1/s3,
		Y: 1 + 2/s2 + 1/s3,
		Z: 1/s2 + 1/s3,
	})
	corner, _ := g.Cell(0, 0, 0)
	requireVecInDelta(t, expected, corner.Direction, 1e-9)

	stats := Propagate(g)
	require.Equal(t, PropagationStats{}, stats)
}

func TestSeedIsolatedCell(t *testing.T) {
	middle := r3.Vec{X: 2.5, Y: 2.5, Z: 2.5}
	g, err := BuildGrid(cube(5), 1, classifier.Func(func(center, halfExtent r3.Vec) bool {
		return center == middle
	}), Options{})
	require.NoError(t, err)

	require.Equal(t, 1, Seed(g))

	cell, _ := g.Cell(2, 2, 2)
	require.Equal(t, CellResolved, cell.State())
	require.True(t, geom.IsFinite(cell.Direction))
	require.InDelta(t, 1, r3.Norm(cell.Direction), 1e-9)

	// The 26 contributions cancel out, the first one wins.
	requireVecInDelta(t, geom.Normalized(geom.Splat(-1)), cell.Direction, 1e-9)

	require.Equal(t, PropagationStats{}, Propagate(g))
}

func TestSeedIgnoresCellsBeyondGrid(t *testing.T) {
	g, err := BuildGrid(geom.Bounds{Size: r3.Vec{X: 2, Y: 1, Z: 1}}, 1, classifier.Func(func(center, halfExtent r3.Vec) bool {
		return center.X < 1
	}), Options{})
	require.NoError(t, err)

	require.Equal(t, 1, Seed(g))

	cell, _ := g.Cell(0, 0, 0)
	require.Equal(t, r3.Vec{X: 1}, cell.Direction)
}

func TestPropagatePointsTowardSender(t *testing.T) {
	g, err := BuildGrid(geom.Bounds{Size: r3.Vec{X: 4, Y: 1, Z: 1}}, 1, classifier.Func(func(center, halfExtent r3.Vec) bool {
		return center.X > 1
	}), Options{})
	require.NoError(t, err)

	require.Equal(t, 1, Seed(g))

	stats := Propagate(g)
	require.Equal(t, PropagationStats{
		Rounds:   2,
		Resolved: 2,
	}, stats)

	for x := 1; x < 4; x++ {
		cell, _ := g.Cell(x, 0, 0)
		require.Equal(t, CellResolved, cell.State())
		requireVecInDelta(t, r3.Vec{X: -1}, cell.Direction, 1e-12)
	}
}

func TestPropagateAveragesSendersOfARound(t *testing.T) {
	// Empty space lies along the x=0 column and the y=0 row.
	g, err := BuildGrid(geom.Bounds{Size: r3.Vec{X: 4, Y: 4, Z: 1}}, 1, classifier.Func(func(center, halfExtent r3.Vec) bool {
		return center.X > 1 && center.Y > 1
	}), Options{})
	require.NoError(t, err)

	require.Equal(t, 5, Seed(g))
	require.Equal(t, PropagationStats{Rounds: 2, Resolved: 4}, Propagate(g))

	diagonal := geom.Normalized(r3.Vec{X: -1, Y: -1})
	for _, xy := range [][2]int{{2, 2}, {3, 3}} {
		cell, _ := g.Cell(xy[0], xy[1], 0)
		requireVecInDelta(t, diagonal, cell.Direction, 1e-9)
	}
}

func TestPropagateOpposingSenders(t *testing.T) {
	g, err := BuildGrid(geom.Bounds{Size: r3.Vec{X: 5, Y: 1, Z: 1}}, 1, classifier.Func(func(center, halfExtent r3.Vec) bool {
		return center.X > 1 && center.X < 4
	}), Options{})
	require.NoError(t, err)

	require.Equal(t, 2, Seed(g))
	require.Equal(t, PropagationStats{Rounds: 1, Resolved: 1}, Propagate(g))

	// Both contributions cancel out, the first sender in walk order wins.
	cell, _ := g.Cell(2, 0, 0)
	requireVecInDelta(t, r3.Vec{X: -1}, cell.Direction, 1e-12)
}

func TestPropagateFullySolid(t *testing.T) {
	g, err := BuildGrid(cube(3), 1, solid, Options{})
	require.NoError(t, err)

	require.Zero(t, Seed(g))
	require.Equal(t, PropagationStats{
		Unresolved: 27,
		Stalled:    true,
	}, Propagate(g))
	require.Empty(t, Extract(g))
}

func TestPropagateEmpty(t *testing.T) {
	g, err := BuildGrid(cube(3), 1, empty, Options{})
	require.NoError(t, err)

	require.Zero(t, Seed(g))
	require.Equal(t, PropagationStats{}, Propagate(g))
	require.Empty(t, Extract(g))
}

func TestPropagateResolvesEveryReachableCell(t *testing.T) {
	scene := &classifier.Scene{
		Spheres: []geom.Sphere{{Center: r3.Vec{X: 3, Y: 3, Z: 3}, Radius: 2.2}},
	}

	g, err := BuildGrid(cube(6), 0.5, scene, Options{})
	require.NoError(t, err)

	seeded := Seed(g)
	stats := Propagate(g)
	require.False(t, stats.Stalled)
	require.Zero(t, stats.Unresolved)
	require.Greater(t, stats.Rounds, 0)

	info := g.DebugInfo()
	require.Zero(t, info.Inside)
	require.Equal(t, seeded+stats.Resolved, info.Resolved)

	for _, c := range g.Cells() {
		if c.Inside {
			require.InDelta(t, 1, r3.Norm(c.Direction), 1e-9)
		}
	}
}

func TestExtract(t *testing.T) {
	bounds := geom.Bounds{
		Min:  r3.Vec{X: -2, Y: 1, Z: 3},
		Size: r3.Vec{X: 2, Y: 1, Z: 2},
	}
	g, err := BuildGrid(bounds, 1, classifier.Func(func(center, halfExtent r3.Vec) bool {
		return center.Z > 4
	}), Options{})
	require.NoError(t, err)

	Seed(g)
	Propagate(g)

	entries := Extract(g)
	require.Len(t, entries, 2)
	require.Equal(t, r3.Vec{X: 0.5, Y: 0.5, Z: 1.5}, entries[0].Position)
	require.Equal(t, r3.Vec{X: 1.5, Y: 0.5, Z: 1.5}, entries[1].Position)
	require.Less(t, entries[0].Direction.Z, 0.0)
	require.Greater(t, entries[0].Direction.X, 0.0)
	requireVecInDelta(t, r3.Vec{
		X: -entries[0].Direction.X,
		Z: entries[0].Direction.Z,
	}, entries[1].Direction, 1e-12)
}
