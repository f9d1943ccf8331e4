package baker

import (
	"github.com/aukilabs/escapefield/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Seed gives every inside cell that borders empty space the averaged direction
// toward its outside neighbours. Neighbours beyond the grid are ignored, they
// do not count as empty space. It returns the number of seeded cells.
func Seed(g *Grid) int {
	var seeded int
	var dirs []r3.Vec

	g.forEach(func(i int) {
		cell := g.cells[i]
		if !cell.Inside {
			return
		}

		dirs = dirs[:0]
		g.forEachNeighbour(i, func(n int) {
			neighbour := g.cells[n]
			if !neighbour.Inside {
				dirs = append(dirs, geom.Direction(cell.Center, neighbour.Center))
			}
		})

		if dir, ok := geom.AverageDirection(dirs); ok && g.resolve(i, dir) {
			seeded++
		}
	})

	return seeded
}

type PropagationStats struct {
	Rounds     int
	Resolved   int
	Unresolved int
	Stalled    bool
}

// Propagate relays directions from resolved inside cells to the unresolved
// inside cells around them, one round at a time, until every inside cell has
// a direction or a round resolves nothing.
//
// A receiver gets the normalized average of the unit vectors pointing from
// itself toward each sender that reached it during the round. All
// contributions of a round are gathered before any receiver is resolved.
func Propagate(g *Grid) PropagationStats {
	var senders []int
	var lacking int

	g.forEach(func(i int) {
		cell := g.cells[i]
		if !cell.Inside {
			return
		}

		if cell.HasDirection {
			senders = append(senders, i)
		} else {
			lacking++
		}
	})

	var stats PropagationStats
	incoming := make(map[int][]r3.Vec)
	var receivers []int

	for lacking > 0 {
		// Senders broadcast for good: dequeuing and re-enqueuing every sender of
		// the round keeps the queue order, so the round walks senders[:count].
		count := len(senders)

		for _, s := range senders[:count] {
			sender := g.cells[s]

			g.forEachNeighbour(s, func(n int) {
				neighbour := g.cells[n]
				if !neighbour.Inside || neighbour.HasDirection {
					return
				}

				if _, ok := incoming[n]; !ok {
					receivers = append(receivers, n)
				}
				incoming[n] = append(incoming[n], geom.Direction(neighbour.Center, sender.Center))
			})
		}

		if len(receivers) == 0 {
			stats.Stalled = true
			break
		}

		for _, r := range receivers {
			dir, _ := geom.AverageDirection(incoming[r])
			if g.resolve(r, dir) {
				senders = append(senders, r)
				lacking--
				stats.Resolved++
			}
			delete(incoming, r)
		}

		receivers = receivers[:0]
		stats.Rounds++
	}

	stats.Unresolved = lacking
	return stats
}
