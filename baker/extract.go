package baker

import (
	"github.com/aukilabs/escapefield/field"
	"gonum.org/v1/gonum/spatial/r3"
)

// Extract lists the resolved inside cells in x-major, then y, then z order.
// Positions are relative to the bounds min corner. Unresolved pockets produce
// no entry.
func Extract(g *Grid) []field.Entry {
	var entries []field.Entry

	g.forEach(func(i int) {
		cell := g.cells[i]
		if !cell.Inside || !cell.HasDirection {
			return
		}

		entries = append(entries, field.Entry{
			Position:  r3.Sub(cell.Center, g.bounds.Min),
			Direction: cell.Direction,
		})
	})

	return entries
}
