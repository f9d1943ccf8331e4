// Package preview renders debug pictures of baked grids.
package preview

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/aukilabs/escapefield/baker"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	ErrTypeInvalidSlice  = "invalid_slice"
	ErrTypeRenderFailure = "render_failure"
)

var (
	ResolvedColor = color.RGBA{R: 255, B: 255, A: 255}
	InsideColor   = color.RGBA{R: 255, A: 255}
	OutsideColor  = color.RGBA{G: 200, A: 255}
	ArrowColor    = color.Black
)

// Axis is the axis a slice is orthogonal to.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(s) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	default:
		return 0, errors.New("unknown slice axis").
			WithType(ErrTypeInvalidSlice).
			WithTag("axis", s)
	}
}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// plane returns the names of the axes that span a slice.
func (a Axis) plane() (u, v string) {
	switch a {
	case AxisX:
		return "y", "z"
	case AxisY:
		return "x", "z"
	default:
		return "x", "y"
	}
}

// project keeps the two components of p that lie in the slice plane.
func (a Axis) project(p r3.Vec) (u, v float64) {
	switch a {
	case AxisX:
		return p.Y, p.Z
	case AxisY:
		return p.X, p.Z
	default:
		return p.X, p.Y
	}
}

type Options struct {
	// The picture size. Defaults to 8 inches.
	Width  vg.Length
	Height vg.Length

	// Hides direction arrows.
	NoArrows bool
}

// RenderSlice draws the cells of the grid slice orthogonal to axis at index
// and saves the picture at path. The format is chosen from the path
// extension (png, svg, pdf, ...).
func RenderSlice(g *baker.Grid, axis Axis, index int, path string, opts Options) error {
	cellsX, cellsY, cellsZ := g.Dims()
	dims := [3]int{cellsX, cellsY, cellsZ}

	if axis < AxisX || axis > AxisZ {
		return errors.New("unknown slice axis").
			WithType(ErrTypeInvalidSlice).
			WithTag("axis", axis)
	}
	if index < 0 || index >= dims[axis] {
		return errors.New("slice index is out of grid").
			WithType(ErrTypeInvalidSlice).
			WithTag("axis", axis.String()).
			WithTag("index", index).
			WithTag("cells", dims[axis])
	}

	if opts.Width <= 0 {
		opts.Width = 8 * vg.Inch
	}
	if opts.Height <= 0 {
		opts.Height = opts.Width
	}

	slice := &slicePlotter{
		axis:     axis,
		cellSize: g.CellSize(),
		arrows:   !opts.NoArrows,
	}

	var states [3]int
	forEachSliceCell(g, axis, index, func(cell baker.Cell) {
		slice.cells = append(slice.cells, cell)
		states[cell.State()]++
	})

	u, v := axis.plane()
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s = %d (outside %d, inside %d, resolved %d)",
		axis, index,
		states[baker.CellOutside],
		states[baker.CellInside],
		states[baker.CellResolved],
	)
	p.X.Label.Text = u
	p.Y.Label.Text = v
	p.Add(slice)
	p.Legend.Add("resolved", swatch{color: ResolvedColor})
	p.Legend.Add("inside", swatch{color: InsideColor})
	p.Legend.Add("outside", swatch{color: OutsideColor})
	p.Legend.Top = true

	if err := p.Save(opts.Width, opts.Height, path); err != nil {
		return errors.New("saving slice preview failed").
			WithType(ErrTypeRenderFailure).
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}

func forEachSliceCell(g *baker.Grid, axis Axis, index int, visit func(baker.Cell)) {
	cellsX, cellsY, cellsZ := g.Dims()

	for x := 0; x < cellsX; x++ {
		for y := 0; y < cellsY; y++ {
			for z := 0; z < cellsZ; z++ {
				if [3]int{x, y, z}[axis] != index {
					continue
				}

				cell, _ := g.Cell(x, y, z)
				visit(cell)
			}
		}
	}
}

// slicePlotter draws grid cells as filled squares with their projected escape
// direction on top.
type slicePlotter struct {
	axis     Axis
	cellSize float64
	arrows   bool
	cells    []baker.Cell
}

func (s *slicePlotter) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	half := s.cellSize / 2

	for _, cell := range s.cells {
		u, v := s.axis.project(cell.Center)
		c.FillPolygon(stateColor(cell.State()), []vg.Point{
			{X: trX(u - half), Y: trY(v - half)},
			{X: trX(u + half), Y: trY(v - half)},
			{X: trX(u + half), Y: trY(v + half)},
			{X: trX(u - half), Y: trY(v + half)},
		})
	}

	if !s.arrows {
		return
	}

	style := draw.LineStyle{
		Color: ArrowColor,
		Width: vg.Points(0.75),
	}

	for _, cell := range s.cells {
		if !cell.HasDirection {
			continue
		}

		du, dv := s.axis.project(cell.Direction)
		if du == 0 && dv == 0 {
			continue
		}

		u, v := s.axis.project(cell.Center)
		length := s.cellSize * 0.45
		tipU, tipV := u+du*length, v+dv*length
		c.StrokeLine2(style, trX(u), trY(v), trX(tipU), trY(tipV))

		// Head: two short strokes rotated 150 degrees from the shaft.
		head := length * 0.35
		for _, sign := range []float64{1, -1} {
			hu := du*cos150 - sign*dv*sin150
			hv := sign*du*sin150 + dv*cos150
			c.StrokeLine2(style, trX(tipU), trY(tipV), trX(tipU+hu*head), trY(tipV+hv*head))
		}
	}
}

const (
	cos150 = -0.8660254037844386
	sin150 = 0.5
)

func (s *slicePlotter) DataRange() (xmin, xmax, ymin, ymax float64) {
	if len(s.cells) == 0 {
		return 0, 1, 0, 1
	}

	half := s.cellSize / 2
	xmin, ymin = s.axis.project(s.cells[0].Center)
	xmax, ymax = xmin, ymin

	for _, cell := range s.cells[1:] {
		u, v := s.axis.project(cell.Center)
		xmin = min(xmin, u)
		xmax = max(xmax, u)
		ymin = min(ymin, v)
		ymax = max(ymax, v)
	}

	return xmin - half, xmax + half, ymin - half, ymax + half
}

func stateColor(s baker.CellState) color.Color {
	switch s {
	case baker.CellResolved:
		return ResolvedColor
	case baker.CellInside:
		return InsideColor
	default:
		return OutsideColor
	}
}

type swatch struct {
	color color.Color
}

func (s swatch) Thumbnail(c *draw.Canvas) {
	c.FillPolygon(s.color, []vg.Point{
		c.Min,
		{X: c.Max.X, Y: c.Min.Y},
		c.Max,
		{X: c.Min.X, Y: c.Max.Y},
	})
}
