package preview

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aukilabs/escapefield/baker"
	"github.com/aukilabs/escapefield/classifier"
	"github.com/aukilabs/escapefield/geom"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot/vg"
)

func previewGrid(t *testing.T) *baker.Grid {
	scene := &classifier.Scene{
		Spheres: []geom.Sphere{{Center: r3.Vec{X: 2, Y: 2, Z: 2}, Radius: 1.2}},
	}

	g, _, err := baker.Preview(geom.Bounds{Size: geom.Splat(4)}, 0.5, scene, baker.Options{})
	require.NoError(t, err)
	return g
}

func TestRenderSlice(t *testing.T) {
	g := previewGrid(t)

	for _, axis := range []Axis{AxisX, AxisY, AxisZ} {
		t.Run(axis.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "slice.png")
			err := RenderSlice(g, axis, 4, path, Options{Width: 3 * vg.Inch})
			require.NoError(t, err)

			b, err := os.ReadFile(path)
			require.NoError(t, err)
			require.True(t, bytes.HasPrefix(b, []byte("\x89PNG")))
		})
	}
}

func TestRenderSliceSVG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slice.svg")
	err := RenderSlice(previewGrid(t), AxisZ, 0, path, Options{NoArrows: true})
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "<svg")
}

func TestRenderSliceErrors(t *testing.T) {
	g := previewGrid(t)
	dir := t.TempDir()

	tests := []struct {
		scenario string
		axis     Axis
		index    int
		path     string
		errType  string
	}{
		{
			scenario: "negative index",
			axis:     AxisX,
			index:    -1,
			path:     filepath.Join(dir, "a.png"),
			errType:  ErrTypeInvalidSlice,
		},
		{
			scenario: "index out of grid",
			axis:     AxisY,
			index:    8,
			path:     filepath.Join(dir, "b.png"),
			errType:  ErrTypeInvalidSlice,
		},
		{
			scenario: "unknown axis",
			axis:     Axis(3),
			path:     filepath.Join(dir, "c.png"),
			errType:  ErrTypeInvalidSlice,
		},
		{
			scenario: "unknown format",
			axis:     AxisZ,
			path:     filepath.Join(dir, "d.unknown"),
			errType:  ErrTypeRenderFailure,
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			err := RenderSlice(g, test.axis, test.index, test.path, Options{})
			require.Error(t, err)
			require.True(t, errors.IsType(err, test.errType))
		})
	}
}

func TestParseAxis(t *testing.T) {
	for s, expected := range map[string]Axis{"x": AxisX, "Y": AxisY, "z": AxisZ} {
		axis, err := ParseAxis(s)
		require.NoError(t, err)
		require.Equal(t, expected, axis)
	}

	_, err := ParseAxis("w")
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvalidSlice))
}

func TestSlicePlotterDataRange(t *testing.T) {
	s := &slicePlotter{axis: AxisY, cellSize: 1}
	xmin, xmax, ymin, ymax := s.DataRange()
	require.Equal(t, [4]float64{0, 1, 0, 1}, [4]float64{xmin, xmax, ymin, ymax})

	s.cells = []baker.Cell{
		{Center: r3.Vec{X: 0.5, Y: 9, Z: 1.5}},
		{Center: r3.Vec{X: 2.5, Y: 9, Z: 0.5}},
	}
	xmin, xmax, ymin, ymax = s.DataRange()
	require.Equal(t, [4]float64{0, 3, 0, 2}, [4]float64{xmin, xmax, ymin, ymax})
}

func TestForEachSliceCell(t *testing.T) {
	g := previewGrid(t)

	var count int
	forEachSliceCell(g, AxisY, 3, func(cell baker.Cell) {
		require.Equal(t, 1.75, cell.Center.Y)
		count++
	})
	require.Equal(t, 64, count)
}
