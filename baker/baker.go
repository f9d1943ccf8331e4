package baker

import (
	"time"

	"github.com/aukilabs/escapefield/classifier"
	"github.com/aukilabs/escapefield/field"
	"github.com/aukilabs/escapefield/geom"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
)

const (
	ErrTypeInvalidCellSize     = "invalid_cell_size"
	ErrTypeInvalidBounds       = "invalid_bounds"
	ErrTypeGridTooLarge        = "grid_too_large"
	ErrTypeUnreachableInterior = "unreachable_interior"
)

type Options struct {
	// The bake name, used in logs.
	Name string

	// The number of goroutines classifying cells. Values below 2 classify
	// sequentially. The classifier must be safe for concurrent use when set.
	Workers int

	// The maximum number of grid cells. Zero means no limit besides the
	// built-in one.
	MaxCells int

	// Makes Bake fail when some inside cells cannot be reached from the
	// boundary.
	FailOnUnreachableInterior bool
}

type Stats struct {
	Cells      int
	Inside     int
	Seeded     int
	Propagated int
	Unresolved int
	Rounds     int
	Stalled    bool
	Duration   time.Duration
}

type Result struct {
	ID    string
	Field field.BakedField
	Stats Stats
}

// Diagnostic describes an unreachable interior region left by the bake, or
// returns nil when every inside cell got a direction.
func (r Result) Diagnostic() error {
	if !r.Stats.Stalled {
		return nil
	}

	return errors.New("unreachable interior region: some inside cells have no path to empty space").
		WithType(ErrTypeUnreachableInterior).
		WithTag("bake_id", r.ID).
		WithTag("unresolved", r.Stats.Unresolved).
		WithTag("inside", r.Stats.Inside)
}

// Bake builds the escape vector field of the given region.
//
// A region with an unreachable interior still produces a partial field. The
// returned error is then nil unless opts.FailOnUnreachableInterior is set, in
// which case the partial result comes along with the diagnostic.
func Bake(bounds geom.Bounds, cellSize float64, c classifier.Classifier, opts Options) (Result, error) {
	g, stats, err := generate(bounds, cellSize, c, opts)
	if err != nil {
		instrumentBakeError(err)
		return Result{}, err
	}

	res := Result{
		ID: uuid.NewString(),
		Field: field.BakedField{
			BoundsMin: bounds.Min,
			CellSize:  cellSize,
			Entries:   Extract(g),
		},
		Stats: stats,
	}
	instrumentBake(stats)

	entry := logs.WithTag("bake_id", res.ID).
		WithTag("name", opts.Name).
		WithTag("cells", stats.Cells).
		WithTag("inside", stats.Inside).
		WithTag("seeded", stats.Seeded).
		WithTag("propagated", stats.Propagated).
		WithTag("rounds", stats.Rounds).
		WithTag("entries", len(res.Field.Entries)).
		WithTag("duration", stats.Duration)

	diag := res.Diagnostic()
	if diag == nil {
		entry.Info("escape field baked")
		return res, nil
	}

	entry.Warn(diag)
	if opts.FailOnUnreachableInterior {
		return res, diag
	}
	return res, nil
}

// Preview runs the same pipeline as Bake and returns the annotated grid for
// visualization.
func Preview(bounds geom.Bounds, cellSize float64, c classifier.Classifier, opts Options) (*Grid, Stats, error) {
	return generate(bounds, cellSize, c, opts)
}

func generate(bounds geom.Bounds, cellSize float64, c classifier.Classifier, opts Options) (*Grid, Stats, error) {
	start := time.Now()

	g, err := BuildGrid(bounds, cellSize, c, opts)
	if err != nil {
		return nil, Stats{}, err
	}

	seeded := Seed(g)
	propagation := Propagate(g)

	stats := Stats{
		Cells:      g.Len(),
		Inside:     seeded + propagation.Resolved + propagation.Unresolved,
		Seeded:     seeded,
		Propagated: propagation.Resolved,
		Unresolved: propagation.Unresolved,
		Rounds:     propagation.Rounds,
		Stalled:    propagation.Stalled,
		Duration:   time.Since(start),
	}
	return g, stats, nil
}
