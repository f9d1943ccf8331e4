package field

import (
	"github.com/aukilabs/escapefield/geom"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	ErrTypeInvalidArtifact = "invalid_artifact"
)

// Entry is one baked cell: its center relative to the bounds min corner and
// its escape direction.
type Entry struct {
	Position  r3.Vec
	Direction r3.Vec
}

// BakedField is the exported result of a bake.
type BakedField struct {
	BoundsMin r3.Vec
	CellSize  float64
	Entries   []Entry
}

// Validate reports whether the field can be looked up.
func (f BakedField) Validate() error {
	if !(f.CellSize > 0) || !geom.IsFiniteScalar(f.CellSize) {
		return errors.New("cell size must be positive").
			WithType(ErrTypeInvalidArtifact).
			WithTag("cell_size", f.CellSize)
	}

	if !geom.IsFinite(f.BoundsMin) {
		return errors.New("bounds min must be finite").
			WithType(ErrTypeInvalidArtifact).
			WithTag("bounds_min", f.BoundsMin)
	}

	return nil
}

// sanitize re-normalizes directions and drops entries that no longer carry a
// usable direction or position.
func (f BakedField) sanitize() BakedField {
	entries := make([]Entry, 0, len(f.Entries))
	for _, e := range f.Entries {
		if !geom.IsFinite(e.Position) || !geom.IsFinite(e.Direction) {
			continue
		}
		if r3.Norm(e.Direction) < geom.DegenerateLength {
			continue
		}

		entries = append(entries, Entry{
			Position:  e.Position,
			Direction: geom.Normalized(e.Direction),
		})
	}

	f.Entries = entries
	return f
}
